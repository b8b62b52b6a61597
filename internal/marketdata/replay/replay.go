// Package replay serves snapshots from memory and replays a snapshot bar by
// bar through the classifier and an Alert Memory. It backs offline
// diagnostics and the end-to-end tests.
package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"signalbot/internal/alert"
	"signalbot/internal/marketdata"
	"signalbot/internal/model"
	"signalbot/internal/signal"
)

// Source is an in-memory marketdata.Source.
type Source struct {
	mu    sync.Mutex
	snaps map[string]model.Snapshot
	fails map[string]error
	calls []string
}

// NewSource creates a Source serving the given snapshots.
func NewSource(snaps ...model.Snapshot) *Source {
	s := &Source{
		snaps: make(map[string]model.Snapshot),
		fails: make(map[string]error),
	}
	for _, snap := range snaps {
		s.Put(snap)
	}
	return s
}

func key(inst model.Instrument, res model.Resolution) string {
	return inst.Symbol() + "@" + string(res)
}

// Put adds or replaces the snapshot for its instrument and resolution.
func (s *Source) Put(snap model.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[key(snap.Instrument(), snap.Resolution())] = snap
}

// Fail makes every fetch of inst at res return err (nil clears it).
func (s *Source) Fail(inst model.Instrument, res model.Resolution, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fails, key(inst, res))
		return
	}
	s.fails[key(inst, res)] = err
}

// Calls returns the fetched keys ("BTC/USDT@1h") in call order.
func (s *Source) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// FetchSnapshot implements marketdata.Source, returning the most recent
// limit bars.
func (s *Source) FetchSnapshot(ctx context.Context, inst model.Instrument, res model.Resolution, limit int) (model.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return model.Snapshot{}, fmt.Errorf("%w: %w", marketdata.ErrDataFetch, err)
	}
	k := key(inst, res)

	s.mu.Lock()
	s.calls = append(s.calls, k)
	snap, ok := s.snaps[k]
	failErr := s.fails[k]
	s.mu.Unlock()

	if failErr != nil {
		return model.Snapshot{}, fmt.Errorf("%w: %s: %w", marketdata.ErrDataFetch, k, failErr)
	}
	if !ok {
		return model.Snapshot{}, fmt.Errorf("%w: %s: no data", marketdata.ErrDataFetch, k)
	}
	if limit <= 0 || limit >= snap.Len() {
		return snap, nil
	}
	return model.NewSnapshot(inst, res, snap.Tail(limit))
}

// Step is the outcome of replaying one prefix of a snapshot.
type Step struct {
	Index  int           // index of the last bar in the prefix
	Result signal.Result // zero when Err is set
	Err    error
	Event  *alert.Event
}

// Options controls Walk.
type Options struct {
	// Speed paces the replay: 1.0 = real time, 10.0 = 10x, 0 = as fast as
	// possible. Gaps are capped at MaxGap.
	Speed  float64
	MaxGap time.Duration
	// OnStep is called after every step.
	OnStep func(Step)
	Logger *slog.Logger
}

// Walk classifies every prefix snap[:1], snap[:2], ... and feeds each
// successful classification into mem using the bar timestamp as the
// observation time. Prefixes that are too short are reported with
// signal.ErrInsufficientData and leave mem untouched.
func Walk(ctx context.Context, snap model.Snapshot, mem *alert.Memory, opts Options) ([]Step, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	maxGap := opts.MaxGap
	if maxGap <= 0 {
		maxGap = 5 * time.Second
	}
	symbol := snap.Instrument().Symbol()

	steps := make([]Step, 0, snap.Len())
	var prevTS time.Time
	for n := 1; n <= snap.Len(); n++ {
		bar := snap.Bar(n - 1)
		if opts.Speed > 0 && !prevTS.IsZero() {
			gap := time.Duration(float64(bar.TS.Sub(prevTS)) / opts.Speed)
			if gap > maxGap {
				gap = maxGap
			}
			select {
			case <-ctx.Done():
				return steps, ctx.Err()
			case <-time.After(gap):
			}
		} else if err := ctx.Err(); err != nil {
			return steps, err
		}
		prevTS = bar.TS

		step := Step{Index: n - 1}
		res, err := signal.Classify(snap.Prefix(n))
		switch {
		case err != nil:
			step.Err = err
		default:
			step.Result = res
			step.Event, step.Err = mem.Evaluate(symbol, res.State, bar.TS)
		}
		if step.Err != nil && !errors.Is(step.Err, signal.ErrInsufficientData) {
			log.Warn("replay step failed", "symbol", symbol, "index", step.Index, "error", step.Err)
		}
		if step.Event != nil {
			log.Info("replay transition", "symbol", symbol, "index", step.Index, "state", step.Event.State.String())
		}
		steps = append(steps, step)
		if opts.OnStep != nil {
			opts.OnStep(step)
		}
	}
	return steps, nil
}

// Events returns the transition events of steps in order.
func Events(steps []Step) []*alert.Event {
	var out []*alert.Event
	for _, s := range steps {
		if s.Event != nil {
			out = append(out, s.Event)
		}
	}
	return out
}
