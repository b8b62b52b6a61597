package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"signalbot/internal/alert"
	"signalbot/internal/logger"
	"signalbot/internal/news"
	"signalbot/internal/notification"
	"signalbot/internal/report"
)

// Summary describes a finished cycle.
type Summary struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
	Evaluated int            `json:"evaluated"`
	Failed    int            `json:"failed"`
	Notices   []alert.Notice `json:"notices,omitempty"`
	Text      string         `json:"-"` // report text, report cycle only
}

// RunReport evaluates every instrument in configured order and sends one full
// report. Failed instruments appear as placeholder lines. The alert memory is
// left untouched. The returned error is a delivery failure or a cancellation.
func (e *Engine) RunReport(ctx context.Context) (Summary, error) {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	sum, ctx := e.begin(ctx, CycleReport)
	log := e.log.With(logger.Attrs(ctx)...)
	log.Info("report cycle started", "instruments", len(e.cfg.Instruments))

	var b report.Builder
	for i, inst := range e.cfg.Instruments {
		if i > 0 {
			if err := e.sleep(ctx, e.cfg.ReportDelay); err != nil {
				return e.finish(sum, err)
			}
		}
		out := e.Evaluate(ctx, inst, e.cfg.Resolution)
		if out.Kind == KindCancelled {
			return e.finish(sum, out.Err)
		}
		e.observe(ctx, CycleReport, sum.ID, out)
		if out.OK() {
			sum.Evaluated++
			b.AddResult(out.Result)
		} else {
			sum.Failed++
			b.AddFailure(inst.Symbol())
		}
	}

	headlines := news.Section(ctx, e.deps.News, e.cfg.NewsCount)
	sum.Text = b.String(headlines, news.IdeasLine(e.cfg.Instruments[0].Base))

	err := e.deps.Notifier.Send(ctx, notification.Message{
		Level: notification.LevelReport,
		Title: report.ReportTitle(e.cfg.Resolution),
		Text:  sum.Text,
	})
	if err != nil {
		e.deliveryFailed(ctx, CycleReport, err)
	}
	return e.finish(sum, err)
}

// RunAlertScan evaluates every instrument in configured order and notifies
// on transitions into a directional state. Every successful classification is
// fed to the alert memory under the cycle's start time, so an observation
// from an older cycle can never overwrite a newer one. At the end the memory
// is snapshotted to the configured store.
func (e *Engine) RunAlertScan(ctx context.Context) (Summary, error) {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	sum, ctx := e.begin(ctx, CycleAlert)
	log := e.log.With(logger.Attrs(ctx)...)
	log.Info("alert scan started", "instruments", len(e.cfg.Instruments))

	var cycleErr error
	for i, inst := range e.cfg.Instruments {
		if i > 0 {
			if err := e.sleep(ctx, e.cfg.AlertDelay); err != nil {
				cycleErr = err
				break
			}
		}
		out := e.Evaluate(ctx, inst, e.cfg.Resolution)
		if out.Kind == KindCancelled {
			cycleErr = out.Err
			break
		}
		e.observe(ctx, CycleAlert, sum.ID, out)
		if !out.OK() {
			sum.Failed++
			continue
		}
		sum.Evaluated++

		if n, ok := e.track(ctx, sum.StartedAt, out); ok {
			sum.Notices = append(sum.Notices, n)
		}
	}

	e.saveMemory(ctx)
	return e.finish(sum, cycleErr)
}

// track applies one classification to the alert memory and, on a
// transition, notifies, journals and publishes it.
func (e *Engine) track(ctx context.Context, asOf time.Time, out Outcome) (alert.Notice, bool) {
	r := out.Result
	log := e.log.With(logger.Attrs(ctx)...).With("symbol", r.Symbol, "state", r.State.String())

	ev, err := e.deps.Memory.Evaluate(r.Symbol, r.State, asOf)
	if err != nil {
		if errors.Is(err, alert.ErrStaleObservation) && e.deps.Metrics != nil {
			e.deps.Metrics.StaleObservations.Inc()
		}
		log.Warn("tracker update rejected", "error", err)
		return alert.Notice{}, false
	}
	if ev == nil {
		if r.State.Directional() {
			if e.deps.Metrics != nil {
				e.deps.Metrics.SuppressedTotal.Inc()
			}
			log.Debug("unchanged directional state suppressed")
		}
		return alert.Notice{}, false
	}

	n := alert.NewNotice(*ev, r)
	if e.deps.Metrics != nil {
		e.deps.Metrics.TransitionsTotal.WithLabelValues(ev.State.String()).Inc()
	}
	log.Info("transition", "event_id", ev.ID, "previous", ev.Previous.String(), "had_previous", ev.HadPrevious)

	// Memory is already committed; delivery failures never roll it back.
	err = e.deps.Notifier.Send(ctx, notification.Message{
		Level:      notification.LevelAlert,
		Instrument: r.Symbol,
		Title:      report.Title(r.Symbol, r.Resolution),
		Text:       report.Alert(r),
	})
	if err != nil {
		e.deliveryFailed(ctx, CycleAlert, err)
	}

	if e.deps.Journal != nil {
		if err := e.deps.Journal.RecordTransition(ctx, *ev, r); err != nil {
			log.Error("journal transition failed", "error", err)
		}
	}
	for _, p := range e.deps.Publishers {
		if err := p.PublishTransition(ctx, n); err != nil {
			log.Warn("publish transition failed", "error", err)
		}
	}
	return n, true
}

func (e *Engine) saveMemory(ctx context.Context) {
	if e.deps.Store == nil {
		return
	}
	// The snapshot is written even when the cycle was cancelled.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.deps.Store.SaveAlertMemory(saveCtx, e.deps.Memory.Entries()); err != nil {
		e.log.With(logger.Attrs(ctx)...).Warn("alert memory snapshot failed", "error", err)
	}
}

// RestoreMemory loads a previous alert memory snapshot from the store.
func (e *Engine) RestoreMemory(ctx context.Context) (int, error) {
	if e.deps.Store == nil {
		return 0, nil
	}
	entries, err := e.deps.Store.LoadAlertMemory(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore alert memory: %w", err)
	}
	n := e.deps.Memory.Restore(entries)
	e.log.Info("alert memory restored", "entries", n)
	return n, nil
}

func (e *Engine) begin(ctx context.Context, kind string) (Summary, context.Context) {
	start := e.now()
	id := logger.GenerateCycleID(kind, start)
	ctx = logger.WithCycleID(ctx, id)
	return Summary{ID: id, Kind: kind, StartedAt: start}, ctx
}

func (e *Engine) finish(sum Summary, err error) (Summary, error) {
	sum.Duration = e.now().Sub(sum.StartedAt)
	if e.deps.Metrics != nil {
		e.deps.Metrics.CycleDuration.WithLabelValues(sum.Kind).Observe(sum.Duration.Seconds())
	}
	if e.deps.Health != nil && err == nil {
		e.deps.Health.RecordCycle(sum.Kind, sum.StartedAt.Add(sum.Duration))
	}
	log := e.log.With("cycle", sum.Kind, "cycle_id", sum.ID)
	if err != nil {
		log.Warn("cycle ended with error", "evaluated", sum.Evaluated, "failed", sum.Failed, "error", err)
	} else {
		log.Info("cycle finished", "evaluated", sum.Evaluated, "failed", sum.Failed,
			"transitions", len(sum.Notices), "duration", sum.Duration.String())
	}
	return sum, err
}

func (e *Engine) deliveryFailed(ctx context.Context, kind string, err error) {
	if e.deps.Metrics != nil {
		e.deps.Metrics.NotificationErrors.WithLabelValues(kind).Inc()
	}
	e.log.With(logger.Attrs(ctx)...).Error("notification failed", "error", err)
}
