package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"signalbot/internal/breaker"
)

func TestBreakerHook(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	hook := m.BreakerHook()

	hook("binance", breaker.StateClosed, breaker.StateOpen)
	if got := value(t, m.CircuitBreakerState.WithLabelValues("binance")); got != 1 {
		t.Errorf("gauge = %v, want 1", got)
	}
	if got := value(t, m.CircuitBreakerTrips.WithLabelValues("binance")); got != 1 {
		t.Errorf("trips = %v, want 1", got)
	}
	hook("binance", breaker.StateOpen, breaker.StateHalfOpen)
	hook("binance", breaker.StateHalfOpen, breaker.StateClosed)
	if got := value(t, m.CircuitBreakerState.WithLabelValues("binance")); got != 0 {
		t.Errorf("gauge = %v, want 0", got)
	}
	if got := value(t, m.CircuitBreakerTrips.WithLabelValues("binance")); got != 1 {
		t.Errorf("trips = %v, want 1", got)
	}
}

func value(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatal(err)
	}
	if m.Gauge != nil {
		return m.GetGauge().GetValue()
	}
	return m.GetCounter().GetValue()
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func healthz(t *testing.T, h *HealthStatus) (int, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	return rec.Code, body
}

func TestHealthz(t *testing.T) {
	h := NewHealthStatus()
	if code, body := healthz(t, h); code != http.StatusOK || body["status"] != "healthy" {
		t.Fatalf("fresh status: %d %v", code, body)
	}

	h.RecordFetch(false, time.Now())
	if code, _ := healthz(t, h); code != http.StatusOK {
		t.Errorf("failed fetch before any success should not degrade, got %d", code)
	}
	h.RecordFetch(true, time.Now())
	h.RecordFetch(false, time.Now())
	if code, body := healthz(t, h); code != http.StatusServiceUnavailable || body["status"] != "degraded" {
		t.Errorf("exchange down: %d %v", code, body)
	}
	h.RecordFetch(true, time.Now())

	h.EnableJournal()
	h.CheckJournal(context.Background(), pinger{err: errors.New("locked")})
	if code, _ := healthz(t, h); code != http.StatusServiceUnavailable {
		t.Errorf("journal down: %d", code)
	}
	h.CheckJournal(context.Background(), pinger{})
	h.RecordCycle("alert", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	code, body := healthz(t, h)
	if code != http.StatusOK {
		t.Errorf("recovered: %d", code)
	}
	cycles, _ := body["last_cycle"].(map[string]interface{})
	if cycles["alert"] != "2024-01-01T00:00:00Z" {
		t.Errorf("last_cycle = %v", body["last_cycle"])
	}
}

func TestServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.TransitionsTotal.WithLabelValues("ENTER_LONG").Inc()

	srv := NewServer(":0", NewHealthStatus(), reg, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `signalbot_transitions_total{state="ENTER_LONG"} 1`) {
		t.Errorf("metrics output missing transition counter:\n%s", rec.Body.String())
	}
}
