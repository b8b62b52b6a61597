package indicator

import (
	"math"
	"testing"
)

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

// ────────────────────────────────────────────────────────────
// SMA
// ────────────────────────────────────────────────────────────

func TestSMA_Correctness_Period3(t *testing.T) {
	// Prices: 100, 102, 104, 103, 105
	// SMA after value 3: (100+102+104)/3 = 102
	// SMA after value 4: (102+104+103)/3 = 103
	// SMA after value 5: (104+103+105)/3 = 104
	sma := NewSMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 103.0, 104.0}
	ready := []bool{false, false, true, true, true}

	for i, p := range prices {
		sma.Update(p)
		if sma.Ready() != ready[i] {
			t.Errorf("value %d: Ready()=%v, want %v", i, sma.Ready(), ready[i])
		}
		if ready[i] {
			assertClose(t, "SMA(3)", sma.Value(), expected[i], 0.0001)
		}
	}
}

func TestSMA_Reset(t *testing.T) {
	sma := NewSMA(2)
	sma.Update(10)
	sma.Update(20)
	sma.Reset()
	if sma.Ready() {
		t.Fatal("expected not ready after Reset")
	}
	sma.Update(4)
	sma.Update(6)
	assertClose(t, "SMA after reset", sma.Value(), 5, 1e-9)
}

// ────────────────────────────────────────────────────────────
// EMA
// ────────────────────────────────────────────────────────────

func TestEMA_Correctness_Period3(t *testing.T) {
	// multiplier = 2/(3+1) = 0.5
	// 100, 102, 104 → seed = 102
	// 103: 103*0.5 + 102*0.5 = 102.5
	// 105: 105*0.5 + 102.5*0.5 = 103.75
	ema := NewEMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 102.5, 103.75}
	ready := []bool{false, false, true, true, true}

	for i, p := range prices {
		ema.Update(p)
		if ema.Ready() != ready[i] {
			t.Errorf("value %d: Ready()=%v, want %v", i, ema.Ready(), ready[i])
		}
		if ready[i] {
			assertClose(t, "EMA(3)", ema.Value(), expected[i], 0.0001)
		}
	}
}

func TestEMA_LinearSeriesLag(t *testing.T) {
	// On a linear series an SMA-seeded EMA lags the price by (period-1)/2.
	ema := NewEMA(20)
	for i := 1; i <= 60; i++ {
		ema.Update(float64(i))
	}
	assertClose(t, "EMA(20) lag", 60-ema.Value(), 9.5, 1e-9)
}

func TestEMA_MoreResponsiveThanSMA(t *testing.T) {
	sma := NewSMA(10)
	ema := NewEMA(10)
	for i := 0; i < 20; i++ {
		sma.Update(100)
		ema.Update(100)
	}
	sma.Update(120)
	ema.Update(120)
	if ema.Value() <= sma.Value() {
		t.Errorf("EMA should react more than SMA to a jump: EMA=%.4f, SMA=%.4f", ema.Value(), sma.Value())
	}
}

// ────────────────────────────────────────────────────────────
// RSI (Wilder)
// ────────────────────────────────────────────────────────────

func TestRSI_Correctness_Period5(t *testing.T) {
	prices := []float64{44.00, 44.34, 44.09, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84}
	expected := map[int]float64{5: 68.1223, 6: 72.2169, 7: 76.6587, 8: 81.5087}

	rsi := NewRSI(5)
	for i, p := range prices {
		rsi.Update(p)
		if want, ok := expected[i]; ok {
			if !rsi.Ready() {
				t.Fatalf("value %d: expected Ready", i)
			}
			assertClose(t, "RSI(5)", rsi.Value(), want, 0.001)
		} else if rsi.Ready() {
			t.Fatalf("value %d: Ready too early", i)
		}
	}
}

func TestRSI_AllUp_Is100(t *testing.T) {
	rsi := NewRSI(5)
	for i := 0; i < 10; i++ {
		rsi.Update(100 + float64(i))
	}
	assertClose(t, "RSI all up", rsi.Value(), 100.0, 0.001)
}

func TestRSI_AllDown_Is0(t *testing.T) {
	rsi := NewRSI(5)
	for i := 0; i < 10; i++ {
		rsi.Update(200 - float64(i))
	}
	assertClose(t, "RSI all down", rsi.Value(), 0.0, 0.001)
}

func TestRSI_Flat_Is50(t *testing.T) {
	// No gains and no losses: neither side dominates.
	rsi := NewRSI(5)
	for i := 0; i < 10; i++ {
		rsi.Update(100)
	}
	assertClose(t, "RSI flat", rsi.Value(), 50.0, 0.001)
}

// ────────────────────────────────────────────────────────────
// MACD
// ────────────────────────────────────────────────────────────

func TestMACD_LinearSeries(t *testing.T) {
	// Linear prices: EMA12 lags 5.5, EMA26 lags 12.5 → MACD = 7 exactly,
	// and the signal of a constant MACD is the same constant.
	m := NewMACD(12, 26, 9)
	for i := 1; i <= 40; i++ {
		m.Update(float64(i))
		switch {
		case i < 26:
			if m.Ready() {
				t.Fatalf("value %d: MACD ready too early", i)
			}
		case i < 34:
			if !m.Ready() || m.SignalReady() {
				t.Fatalf("value %d: ready=%v signalReady=%v", i, m.Ready(), m.SignalReady())
			}
		default:
			if !m.SignalReady() {
				t.Fatalf("value %d: signal not ready", i)
			}
		}
	}
	assertClose(t, "MACD line", m.Value(), 7, 1e-9)
	assertClose(t, "MACD signal", m.Signal(), 7, 1e-9)
	assertClose(t, "MACD histogram", m.Histogram(), 0, 1e-9)
}

func TestIndicatorNames(t *testing.T) {
	tests := []struct {
		ind  Indicator
		want string
	}{
		{NewSMA(20), "SMA_20"},
		{NewEMA(50), "EMA_50"},
		{NewRSI(14), "RSI_14"},
		{NewMACD(12, 26, 9), "MACD_12_26_9"},
	}
	for _, tt := range tests {
		if got := tt.ind.Name(); got != tt.want {
			t.Errorf("Name() = %q, want %q", got, tt.want)
		}
	}
}
