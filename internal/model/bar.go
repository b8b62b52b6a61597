package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrUnorderedBars is returned when bar timestamps are not strictly increasing.
var ErrUnorderedBars = errors.New("bars not in strictly increasing timestamp order")

// Bar is one OHLCV candle of a snapshot.
type Bar struct {
	TS     time.Time `json:"ts"` // bar open time (UTC)
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *Bar) JSON() []byte {
	out, _ := json.Marshal(b)
	return out
}

// Snapshot is an immutable, time-ordered sequence of bars for one
// instrument at one resolution. Build it with NewSnapshot.
type Snapshot struct {
	instrument Instrument
	resolution Resolution
	bars       []Bar
}

// NewSnapshot copies bars into a new Snapshot. Timestamps must be strictly
// increasing.
func NewSnapshot(inst Instrument, res Resolution, bars []Bar) (Snapshot, error) {
	for i := 1; i < len(bars); i++ {
		if !bars[i].TS.After(bars[i-1].TS) {
			return Snapshot{}, fmt.Errorf("%w: index %d (%s) not after %s",
				ErrUnorderedBars, i, bars[i].TS.Format(time.RFC3339), bars[i-1].TS.Format(time.RFC3339))
		}
	}
	cp := make([]Bar, len(bars))
	copy(cp, bars)
	return Snapshot{instrument: inst, resolution: res, bars: cp}, nil
}

func (s Snapshot) Instrument() Instrument { return s.instrument }
func (s Snapshot) Resolution() Resolution { return s.resolution }
func (s Snapshot) Len() int               { return len(s.bars) }

// Bar returns the i-th bar (0 = oldest).
func (s Snapshot) Bar(i int) Bar { return s.bars[i] }

// Last returns the most recent bar. It panics on an empty snapshot.
func (s Snapshot) Last() Bar { return s.bars[len(s.bars)-1] }

// Bars returns a copy of all bars.
func (s Snapshot) Bars() []Bar {
	cp := make([]Bar, len(s.bars))
	copy(cp, s.bars)
	return cp
}

// Tail returns a copy of the n most recent bars (all bars if fewer).
func (s Snapshot) Tail(n int) []Bar {
	if n > len(s.bars) {
		n = len(s.bars)
	}
	if n < 0 {
		n = 0
	}
	cp := make([]Bar, n)
	copy(cp, s.bars[len(s.bars)-n:])
	return cp
}

// Prefix returns a snapshot of the first n bars. It is used to replay a
// snapshot as it looked at an earlier bar.
func (s Snapshot) Prefix(n int) Snapshot {
	if n > len(s.bars) {
		n = len(s.bars)
	}
	return Snapshot{instrument: s.instrument, resolution: s.resolution, bars: s.bars[:n:n]}
}

// Closes returns the close price column.
func (s Snapshot) Closes() []float64 {
	out := make([]float64, len(s.bars))
	for i, b := range s.bars {
		out[i] = b.Close
	}
	return out
}
