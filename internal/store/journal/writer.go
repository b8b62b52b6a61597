package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"signalbot/internal/alert"
	"signalbot/internal/signal"
)

// RecordEvaluation stores one successful classification of a cycle.
func (s *Store) RecordEvaluation(ctx context.Context, cycleID, cycleKind string, r signal.Result) error {
	q := s.db.Rebind(`
		INSERT INTO evaluations (cycle_id, cycle_kind, symbol, resolution, state, price, volume,
			rsi, macd, macd_signal, ema20, ema50, sma20, support, resistance, liquidity, bar_ts, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	p := r.Point
	_, err := s.db.ExecContext(ctx, q,
		cycleID, cycleKind, r.Symbol, string(r.Resolution), r.State.String(), r.Price, r.Volume,
		p.RSI, p.MACD, p.MACDSignal, p.EMA20, p.EMA50, p.SMA20,
		r.Band.Support, r.Band.Resistance, r.Liquidity,
		r.At.UnixMilli(), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("journal insert evaluation %s: %w", r.Symbol, err)
	}
	return nil
}

// RecordTransition stores a transition event with the classification that
// produced it. Re-recording the same event ID is a no-op.
func (s *Store) RecordTransition(ctx context.Context, ev alert.Event, r signal.Result) error {
	q := s.db.Rebind(`
		INSERT INTO transitions (id, symbol, resolution, previous, state, price, explanation, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`)
	var prev sql.NullString
	if ev.HadPrevious {
		prev = sql.NullString{String: ev.Previous.String(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, q,
		ev.ID, ev.Symbol, string(r.Resolution), prev, ev.State.String(), r.Price,
		r.Explanation.String(), ev.At.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("journal insert transition %s: %w", ev.Symbol, err)
	}
	return nil
}
