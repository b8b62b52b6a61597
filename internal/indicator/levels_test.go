package indicator

import (
	"math"
	"testing"
	"time"

	"signalbot/internal/model"
)

func TestSupportResistance_TrailingWindow(t *testing.T) {
	closes := linear(30) // lows 0..29, highs 2..31
	snap := snapshotOf(t, closes, nil)
	band := SupportResistance(snap.Bars(), 20)
	// Last 20 bars have closes 11..30
	assertClose(t, "support", band.Support, 10, 1e-9)
	assertClose(t, "resistance", band.Resistance, 31, 1e-9)
}

func TestSupportResistance_ShortSnapshot(t *testing.T) {
	snap := snapshotOf(t, []float64{5, 3, 8}, nil)
	band := SupportResistance(snap.Bars(), 20)
	assertClose(t, "support", band.Support, 2, 1e-9)
	assertClose(t, "resistance", band.Resistance, 9, 1e-9)

	empty := SupportResistance(nil, 20)
	if !math.IsNaN(empty.Support) || !math.IsNaN(empty.Resistance) {
		t.Fatalf("expected NaN band for no bars, got %+v", empty)
	}
}

func TestLiquidityPrice_TieBreakEarliest(t *testing.T) {
	closes := make([]float64, 25)
	volumes := make([]float64, 25)
	for i := range closes {
		closes[i] = 100 + float64(i)
		volumes[i] = 10
	}
	volumes[2] = 999 // outside the trailing window
	volumes[8] = 500
	volumes[17] = 500
	snap := snapshotOf(t, closes, volumes)
	got := LiquidityPrice(snap.Bars(), 20)
	if got != 108 {
		t.Fatalf("liquidity price = %v, want 108 (earliest max-volume bar)", got)
	}
}

func TestLiquidityPrice_Empty(t *testing.T) {
	if !math.IsNaN(LiquidityPrice([]model.Bar{}, 20)) {
		t.Fatal("expected NaN for empty input")
	}
	one := []model.Bar{{TS: time.Unix(0, 0), Close: 42, Volume: 1}}
	if LiquidityPrice(one, 20) != 42 {
		t.Fatal("single bar should be its own liquidity price")
	}
}
