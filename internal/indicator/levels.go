package indicator

import (
	"math"

	"signalbot/internal/model"
)

// Band is the rolling support/resistance range of a trailing window.
type Band struct {
	Support    float64 `json:"support"`    // min(low)
	Resistance float64 `json:"resistance"` // max(high)
}

// SupportResistance computes the band over the last window bars. With fewer
// bars the whole slice is used; with none both values are NaN.
func SupportResistance(bars []model.Bar, window int) Band {
	tail := trailing(bars, window)
	if len(tail) == 0 {
		return Band{Support: math.NaN(), Resistance: math.NaN()}
	}
	b := Band{Support: tail[0].Low, Resistance: tail[0].High}
	for _, bar := range tail[1:] {
		if bar.Low < b.Support {
			b.Support = bar.Low
		}
		if bar.High > b.Resistance {
			b.Resistance = bar.High
		}
	}
	return b
}

// LiquidityPrice returns the close of the highest-volume bar among the last
// window bars. Ties resolve to the earliest bar. NaN when bars is empty.
func LiquidityPrice(bars []model.Bar, window int) float64 {
	tail := trailing(bars, window)
	if len(tail) == 0 {
		return math.NaN()
	}
	best := 0
	for i := 1; i < len(tail); i++ {
		if tail[i].Volume > tail[best].Volume {
			best = i
		}
	}
	return tail[best].Close
}

func trailing(bars []model.Bar, window int) []model.Bar {
	if window <= 0 || window > len(bars) {
		return bars
	}
	return bars[len(bars)-window:]
}
