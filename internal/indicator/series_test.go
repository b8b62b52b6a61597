package indicator

import (
	"math"
	"testing"
	"time"

	"signalbot/internal/model"
)

func snapshotOf(t *testing.T, closes []float64, volumes []float64) model.Snapshot {
	t.Helper()
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]model.Bar, len(closes))
	for i, c := range closes {
		v := 1.0
		if volumes != nil {
			v = volumes[i]
		}
		bars[i] = model.Bar{TS: start.Add(time.Duration(i) * time.Hour), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: v}
	}
	snap, err := model.NewSnapshot(model.Instrument{Base: "BTC", Quote: "USDT"}, model.Res1h, bars)
	if err != nil {
		t.Fatal(err)
	}
	return snap
}

func linear(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i + 1)
	}
	return out
}

func TestCompute_FirstDefinedIndices(t *testing.T) {
	s := Compute(snapshotOf(t, linear(60), nil))
	if len(s) != 60 {
		t.Fatalf("len = %d, want 60", len(s))
	}

	first := func(get func(Point) float64) int {
		for i, p := range s {
			if !math.IsNaN(get(p)) {
				return i
			}
		}
		return -1
	}
	tests := []struct {
		name string
		get  func(Point) float64
		want int
	}{
		{"RSI", func(p Point) float64 { return p.RSI }, 14},
		{"MACD", func(p Point) float64 { return p.MACD }, 25},
		{"MACDSignal", func(p Point) float64 { return p.MACDSignal }, 33},
		{"EMA20", func(p Point) float64 { return p.EMA20 }, 19},
		{"EMA50", func(p Point) float64 { return p.EMA50 }, 49},
		{"SMA20", func(p Point) float64 { return p.SMA20 }, 19},
	}
	for _, tt := range tests {
		if got := first(tt.get); got != tt.want {
			t.Errorf("%s first defined at %d, want %d", tt.name, got, tt.want)
		}
	}

	last := s.Last()
	assertClose(t, "SMA20", last.SMA20, 50.5, 1e-9)
	assertClose(t, "EMA20", last.EMA20, 50.5, 1e-9)
	assertClose(t, "EMA50", last.EMA50, 35.5, 1e-9)
	assertClose(t, "RSI", last.RSI, 100, 1e-9)
}

func TestCompute_Deterministic(t *testing.T) {
	closes := make([]float64, 80)
	for i := range closes {
		closes[i] = 100 + 10*math.Sin(float64(i)/5)
	}
	snap := snapshotOf(t, closes, nil)
	a := Compute(snap)
	b := Compute(snap)
	for i := range a {
		if !samePoint(a[i], b[i]) {
			t.Fatalf("index %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestCompute_PrefixConsistent(t *testing.T) {
	// Indicators are causal: the value at index i does not depend on later bars.
	closes := make([]float64, 70)
	for i := range closes {
		closes[i] = 50 + float64(i%7)*1.5
	}
	snap := snapshotOf(t, closes, nil)
	full := Compute(snap)
	part := Compute(snap.Prefix(55))
	for i := range part {
		if !samePoint(full[i], part[i]) {
			t.Fatalf("index %d: prefix %+v != full %+v", i, part[i], full[i])
		}
	}
}

func samePoint(a, b Point) bool {
	eq := func(x, y float64) bool { return x == y || (math.IsNaN(x) && math.IsNaN(y)) }
	return eq(a.RSI, b.RSI) && eq(a.MACD, b.MACD) && eq(a.MACDSignal, b.MACDSignal) &&
		eq(a.EMA20, b.EMA20) && eq(a.EMA50, b.EMA50) && eq(a.SMA20, b.SMA20)
}
