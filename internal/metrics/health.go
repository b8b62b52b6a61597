package metrics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger is anything with a context-aware liveness check (the journal).
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	ExchangeOK     bool                 `json:"exchange_ok"`
	LastFetchAt    time.Time            `json:"last_fetch_at"`
	RedisEnabled   bool                 `json:"redis_enabled"`
	RedisConnected bool                 `json:"redis_connected"`
	JournalEnabled bool                 `json:"journal_enabled"`
	JournalOK      bool                 `json:"journal_ok"`
	LastCycle      map[string]time.Time `json:"last_cycle"`

	RedisLatencyMs   float64   `json:"redis_latency_ms"`
	JournalLatencyMs float64   `json:"journal_latency_ms"`
	LastCheckAt      time.Time `json:"last_check_at"`
	StartedAt        time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
		LastCycle: make(map[string]time.Time),
	}
}

// RecordFetch notes the outcome of a market data fetch.
func (h *HealthStatus) RecordFetch(ok bool, at time.Time) {
	h.mu.Lock()
	h.ExchangeOK = ok
	if ok {
		h.LastFetchAt = at
	}
	h.mu.Unlock()
}

// RecordCycle notes the completion time of a cycle kind.
func (h *HealthStatus) RecordCycle(kind string, at time.Time) {
	h.mu.Lock()
	h.LastCycle[kind] = at
	h.mu.Unlock()
}

// EnableRedis marks redis as a configured dependency.
func (h *HealthStatus) EnableRedis() {
	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = true
	h.mu.Unlock()
}

// EnableJournal marks the journal as a configured dependency.
func (h *HealthStatus) EnableJournal() {
	h.mu.Lock()
	h.JournalEnabled = true
	h.JournalOK = true
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckJournal pings the journal database and records latency + health.
func (h *HealthStatus) CheckJournal(ctx context.Context, db Pinger) {
	start := time.Now()
	err := db.Ping(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.JournalOK = err == nil
	h.JournalLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Either argument may
// be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, db Pinger, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if db != nil {
					h.CheckJournal(probeCtx, db)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint. The exchange being unreachable or
// an enabled dependency failing degrades the status.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	redisDown := h.RedisEnabled && !h.RedisConnected
	journalDown := h.JournalEnabled && !h.JournalOK
	fetched := !h.LastFetchAt.IsZero()
	if (fetched && !h.ExchangeOK) || redisDown || journalDown {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	cycles := make(map[string]string, len(h.LastCycle))
	for k, v := range h.LastCycle {
		cycles[k] = v.Format(time.RFC3339)
	}
	fetchAge := ""
	if fetched {
		fetchAge = time.Since(h.LastFetchAt).Round(time.Millisecond).String()
	}

	status := struct {
		Status           string            `json:"status"`
		Uptime           string            `json:"uptime"`
		ExchangeOK       bool              `json:"exchange_ok"`
		LastFetchAge     string            `json:"last_fetch_age"`
		RedisEnabled     bool              `json:"redis_enabled"`
		RedisConnected   bool              `json:"redis_connected"`
		RedisLatencyMs   float64           `json:"redis_latency_ms"`
		JournalEnabled   bool              `json:"journal_enabled"`
		JournalOK        bool              `json:"journal_ok"`
		JournalLatencyMs float64           `json:"journal_latency_ms"`
		LastCycle        map[string]string `json:"last_cycle"`
		LastCheckAt      string            `json:"last_check_at"`
	}{
		Status:           overallStatus,
		Uptime:           time.Since(h.StartedAt).Round(time.Second).String(),
		ExchangeOK:       h.ExchangeOK,
		LastFetchAge:     fetchAge,
		RedisEnabled:     h.RedisEnabled,
		RedisConnected:   h.RedisConnected,
		RedisLatencyMs:   h.RedisLatencyMs,
		JournalEnabled:   h.JournalEnabled,
		JournalOK:        h.JournalOK,
		JournalLatencyMs: h.JournalLatencyMs,
		LastCycle:        cycles,
		LastCheckAt:      h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
	log  *slog.Logger
}

// NewServer creates a metrics and health server. A nil gatherer uses
// prometheus.DefaultGatherer.
func NewServer(addr string, health *HealthStatus, gatherer prometheus.Gatherer, log *slog.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if log == nil {
		log = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		log:  log,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the server's mux (tests).
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info("metrics server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			s.log.Error("metrics server error", "error", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
