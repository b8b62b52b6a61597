// Package engine runs the report and alert-scan cycles over the configured
// instruments: fetch, classify, track transitions, notify.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"signalbot/internal/alert"
	"signalbot/internal/marketdata"
	"signalbot/internal/metrics"
	"signalbot/internal/model"
	"signalbot/internal/news"
	"signalbot/internal/notification"
	"signalbot/internal/signal"
)

// Cycle kinds, used as the cycle label in logs, metrics and the journal.
const (
	CycleReport = "report"
	CycleAlert  = "alert"
	CycleAdHoc  = "analyze"
)

// Journal records evaluations and transitions (implemented by the sqlx-backed
// journal store).
type Journal interface {
	RecordEvaluation(ctx context.Context, cycleID, cycleKind string, r signal.Result) error
	RecordTransition(ctx context.Context, ev alert.Event, r signal.Result) error
}

// Publisher pushes transition notices to live subscribers (redis pub/sub,
// the WebSocket hub).
type Publisher interface {
	PublishTransition(ctx context.Context, n alert.Notice) error
}

// Config holds the engine's cycle parameters.
type Config struct {
	Instruments []model.Instrument
	Resolution  model.Resolution
	BarLimit    int
	// Delays inserted between consecutive instruments of one cycle.
	ReportDelay time.Duration
	AlertDelay  time.Duration
	NewsCount   int
}

// Deps are the collaborators of the engine. Source, Memory and Notifier are
// required; the rest are optional.
type Deps struct {
	Source     marketdata.Source
	Memory     *alert.Memory
	Notifier   notification.Notifier
	News       news.Provider
	Journal    Journal
	Publishers []Publisher
	Store      alert.Store
	Metrics    *metrics.Metrics
	Health     *metrics.HealthStatus
	Logger     *slog.Logger
}

// Engine coordinates the cycles. Cycles never interleave: RunReport and
// RunAlertScan hold the same lock for their whole duration.
type Engine struct {
	cfg  Config
	deps Deps
	log  *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	cycleMu sync.Mutex
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock overrides the clock used for cycle start times.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithSleep overrides the inter-instrument delay (tests use a no-op).
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) { e.sleep = fn }
}

// New validates cfg and deps and returns an Engine.
func New(cfg Config, deps Deps, opts ...Option) (*Engine, error) {
	if deps.Source == nil || deps.Memory == nil || deps.Notifier == nil {
		return nil, errors.New("engine: source, memory and notifier are required")
	}
	if len(cfg.Instruments) == 0 {
		return nil, errors.New("engine: no instruments configured")
	}
	if _, err := model.ParseResolution(string(cfg.Resolution)); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if cfg.BarLimit <= 0 {
		cfg.BarLimit = DefaultBarLimit
	}
	if cfg.NewsCount <= 0 {
		cfg.NewsCount = news.DefaultCount
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	e := &Engine{
		cfg:   cfg,
		deps:  deps,
		log:   deps.Logger.With("component", "engine"),
		now:   time.Now,
		sleep: sleepCtx,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// DefaultBarLimit is the number of bars fetched per evaluation.
const DefaultBarLimit = 150

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// Memory returns the alert memory owned by the engine.
func (e *Engine) Memory() *alert.Memory { return e.deps.Memory }

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
