package indicator

import (
	"math"

	"signalbot/internal/model"
)

// Point holds the indicator values of one bar. Undefined values are NaN.
type Point struct {
	RSI        float64 `json:"rsi"`
	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	EMA20      float64 `json:"ema20"`
	EMA50      float64 `json:"ema50"`
	SMA20      float64 `json:"sma20"`
}

// Series is aligned index-for-index with the bars of the snapshot it was
// computed from.
type Series []Point

// Last returns the most recent point.
func (s Series) Last() Point { return s[len(s)-1] }

// Prev returns the point before the most recent one.
func (s Series) Prev() Point { return s[len(s)-2] }

// Compute derives RSI(14), MACD(12,26,9), EMA20, EMA50 and SMA20 of the close
// price for every bar of the snapshot. It is a pure function of the bars:
// fresh indicator instances are created on each call.
func Compute(snap model.Snapshot) Series {
	rsi := NewRSI(RSIPeriod)
	macd := NewMACD(MACDFast, MACDSlow, MACDSignal)
	ema20 := NewEMA(FastEMA)
	ema50 := NewEMA(SlowEMA)
	sma20 := NewSMA(SMAPeriod)

	out := make(Series, snap.Len())
	for i := 0; i < snap.Len(); i++ {
		price := snap.Bar(i).Close
		rsi.Update(price)
		macd.Update(price)
		ema20.Update(price)
		ema50.Update(price)
		sma20.Update(price)

		out[i] = Point{
			RSI:        valueOrNaN(rsi),
			MACD:       valueOrNaN(macd),
			MACDSignal: math.NaN(),
			EMA20:      valueOrNaN(ema20),
			EMA50:      valueOrNaN(ema50),
			SMA20:      valueOrNaN(sma20),
		}
		if macd.SignalReady() {
			out[i].MACDSignal = macd.Signal()
		}
	}
	return out
}

func valueOrNaN(ind Indicator) float64 {
	if !ind.Ready() {
		return math.NaN()
	}
	return ind.Value()
}
