// Package signal classifies a market snapshot into Neutral, EnterLong or
// ExitShort from the last two indicator points, and builds the textual
// explanation shown to operators.
package signal

import (
	"errors"
	"fmt"
	"math"
	"time"

	"signalbot/internal/indicator"
	"signalbot/internal/model"
)

// ErrInsufficientData means the snapshot is too short for the indicators the
// rule consults. Callers skip the instrument for the cycle.
var ErrInsufficientData = errors.New("insufficient data")

const (
	oversold   = 30.0
	overbought = 70.0
)

// Result is a successful classification.
type Result struct {
	Instrument  model.Instrument `json:"-"`
	Symbol      string           `json:"symbol"`
	Resolution  model.Resolution `json:"resolution"`
	State       State            `json:"state"`
	Explanation Explanation      `json:"explanation"`
	Point       indicator.Point  `json:"indicators"`
	Band        indicator.Band   `json:"band"`
	Liquidity   float64          `json:"liquidity_price"`
	Price       float64          `json:"price"`
	Volume      float64          `json:"volume"`
	At          time.Time        `json:"bar_ts"` // open time of the last bar
}

// Decide applies the entry/exit rule to the previous and last points.
// The first matching branch wins:
//
//	EnterLong: RSI < 30, MACD crosses above signal, EMA20 > EMA50
//	ExitShort: RSI > 70, MACD crosses below signal, EMA20 < EMA50
//
// Both values must be defined; Classify checks this before calling.
func Decide(prev, last indicator.Point) State {
	long := last.RSI < oversold &&
		prev.MACD < prev.MACDSignal && last.MACD > last.MACDSignal &&
		last.EMA20 > last.EMA50
	short := last.RSI > overbought &&
		prev.MACD > prev.MACDSignal && last.MACD < last.MACDSignal &&
		last.EMA20 < last.EMA50

	if long && short {
		panic(fmt.Sprintf("signal: long and short both hold (rsi=%v)", last.RSI))
	}
	switch {
	case long:
		return EnterLong
	case short:
		return ExitShort
	default:
		return Neutral
	}
}

// Classify computes the indicators for snap and classifies its last bar.
func Classify(snap model.Snapshot) (Result, error) {
	if snap.Len() < 2 {
		return Result{}, fmt.Errorf("%w: %d bars", ErrInsufficientData, snap.Len())
	}

	series := indicator.Compute(snap)
	last, prev := series.Last(), series.Prev()
	if undefined(last.RSI, last.MACD, last.MACDSignal, last.EMA20, last.EMA50, last.SMA20) ||
		undefined(prev.MACD, prev.MACDSignal) {
		return Result{}, fmt.Errorf("%w: %d bars, need %d", ErrInsufficientData, snap.Len(), indicator.SlowEMA)
	}

	bars := snap.Bars()
	bar := snap.Last()
	res := Result{
		Instrument: snap.Instrument(),
		Symbol:     snap.Instrument().Symbol(),
		Resolution: snap.Resolution(),
		State:      Decide(prev, last),
		Point:      last,
		Band:       indicator.SupportResistance(bars, indicator.LevelWindow),
		Liquidity:  indicator.LiquidityPrice(bars, indicator.LevelWindow),
		Price:      bar.Close,
		Volume:     bar.Volume,
		At:         bar.TS,
	}
	res.Explanation = explain(res)
	return res, nil
}

func undefined(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return false
}
