package engine

import (
	"context"
	"errors"
	"time"

	"signalbot/internal/model"
	"signalbot/internal/signal"
)

// ErrorKind classifies a failed evaluation.
type ErrorKind string

const (
	KindNone             ErrorKind = ""
	KindDataFetch        ErrorKind = "data_fetch"
	KindInsufficientData ErrorKind = "insufficient_data"
	KindCancelled        ErrorKind = "cancelled"
)

// Outcome is the per-instrument result of one evaluation: either Result is
// set and Err is nil, or Err is set and Kind says why.
type Outcome struct {
	Instrument model.Instrument
	Result     signal.Result
	Err        error
	Kind       ErrorKind
}

// OK reports whether the evaluation produced a classification.
func (o Outcome) OK() bool { return o.Err == nil }

func kindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	case errors.Is(err, signal.ErrInsufficientData):
		return KindInsufficientData
	default:
		// everything else surfaces from the source
		return KindDataFetch
	}
}

// Evaluate fetches a fresh snapshot for inst and classifies it. It never
// touches the alert memory.
func (e *Engine) Evaluate(ctx context.Context, inst model.Instrument, res model.Resolution) Outcome {
	start := time.Now()
	snap, err := e.deps.Source.FetchSnapshot(ctx, inst, res, e.cfg.BarLimit)
	if e.deps.Metrics != nil {
		e.deps.Metrics.FetchDuration.Observe(time.Since(start).Seconds())
	}
	if e.deps.Health != nil && ctx.Err() == nil {
		e.deps.Health.RecordFetch(err == nil, e.now())
	}
	if err != nil {
		return Outcome{Instrument: inst, Err: err, Kind: kindOf(err)}
	}

	r, err := signal.Classify(snap)
	if err != nil {
		return Outcome{Instrument: inst, Err: err, Kind: kindOf(err)}
	}
	return Outcome{Instrument: inst, Result: r}
}

// Analyze is the on-demand evaluation behind the HTTP surface. It records
// the classification in the journal but never mutates the alert memory.
func (e *Engine) Analyze(ctx context.Context, inst model.Instrument, res model.Resolution) Outcome {
	if res == "" {
		res = e.cfg.Resolution
	}
	out := e.Evaluate(ctx, inst, res)
	e.observe(ctx, CycleAdHoc, "", out)
	return out
}

// observe feeds metrics, logs and the journal for one outcome.
func (e *Engine) observe(ctx context.Context, kind, cycleID string, out Outcome) {
	log := e.log.With("cycle", kind, "cycle_id", cycleID, "symbol", out.Instrument.Symbol())
	if !out.OK() {
		if e.deps.Metrics != nil {
			e.deps.Metrics.EvaluationErrors.WithLabelValues(kind, string(out.Kind)).Inc()
		}
		log.Warn("evaluation failed", "kind", string(out.Kind), "error", out.Err)
		return
	}

	r := out.Result
	if e.deps.Metrics != nil {
		e.deps.Metrics.EvaluationsTotal.WithLabelValues(kind, r.State.String()).Inc()
	}
	log.Debug("evaluated", "resolution", string(r.Resolution), "state", r.State.String(),
		"price", r.Price, "rsi", r.Point.RSI, "macd", r.Point.MACD)

	if e.deps.Journal != nil {
		if err := e.deps.Journal.RecordEvaluation(ctx, cycleID, kind, r); err != nil {
			log.Error("journal evaluation failed", "error", err)
		}
	}
}
