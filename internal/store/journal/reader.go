package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Evaluation is a stored classification row.
type Evaluation struct {
	ID         int64           `db:"id" json:"id"`
	CycleID    string          `db:"cycle_id" json:"cycle_id"`
	CycleKind  string          `db:"cycle_kind" json:"cycle_kind"`
	Symbol     string          `db:"symbol" json:"symbol"`
	Resolution string          `db:"resolution" json:"resolution"`
	State      string          `db:"state" json:"state"`
	Price      float64         `db:"price" json:"price"`
	Volume     float64         `db:"volume" json:"volume"`
	RSI        sql.NullFloat64 `db:"rsi" json:"-"`
	MACD       sql.NullFloat64 `db:"macd" json:"-"`
	MACDSignal sql.NullFloat64 `db:"macd_signal" json:"-"`
	EMA20      sql.NullFloat64 `db:"ema20" json:"-"`
	EMA50      sql.NullFloat64 `db:"ema50" json:"-"`
	SMA20      sql.NullFloat64 `db:"sma20" json:"-"`
	Support    sql.NullFloat64 `db:"support" json:"-"`
	Resistance sql.NullFloat64 `db:"resistance" json:"-"`
	Liquidity  sql.NullFloat64 `db:"liquidity" json:"-"`
	BarTS      int64           `db:"bar_ts" json:"bar_ts"`
	RecordedAt int64           `db:"recorded_at" json:"recorded_at"`
}

// Transition is a stored transition event.
type Transition struct {
	ID          string         `db:"id" json:"id"`
	Symbol      string         `db:"symbol" json:"symbol"`
	Resolution  string         `db:"resolution" json:"resolution"`
	Previous    sql.NullString `db:"previous" json:"-"`
	State       string         `db:"state" json:"state"`
	Price       float64        `db:"price" json:"price"`
	Explanation string         `db:"explanation" json:"explanation"`
	At          int64          `db:"at" json:"at"`
}

// Time returns At as a UTC time.
func (t Transition) Time() time.Time { return time.UnixMilli(t.At).UTC() }

// RecentTransitions returns up to limit transitions, newest first.
func (s *Store) RecentTransitions(ctx context.Context, limit int) ([]Transition, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []Transition
	q := s.db.Rebind(`SELECT id, symbol, resolution, previous, state, price, explanation, at
		FROM transitions ORDER BY at DESC, id LIMIT ?`)
	if err := s.db.SelectContext(ctx, &out, q, limit); err != nil {
		return nil, fmt.Errorf("journal query transitions: %w", err)
	}
	return out, nil
}

// LatestEvaluations returns the most recent evaluation of every symbol,
// ordered by symbol.
func (s *Store) LatestEvaluations(ctx context.Context) ([]Evaluation, error) {
	var out []Evaluation
	err := s.db.SelectContext(ctx, &out, `
		SELECT e.id, e.cycle_id, e.cycle_kind, e.symbol, e.resolution, e.state, e.price, e.volume,
			e.rsi, e.macd, e.macd_signal, e.ema20, e.ema50, e.sma20,
			e.support, e.resistance, e.liquidity, e.bar_ts, e.recorded_at
		FROM evaluations e
		JOIN (SELECT symbol, MAX(id) AS id FROM evaluations GROUP BY symbol) m ON e.id = m.id
		ORDER BY e.symbol`)
	if err != nil {
		return nil, fmt.Errorf("journal query evaluations: %w", err)
	}
	return out, nil
}
