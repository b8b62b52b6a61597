// Package alert remembers the last signal state per instrument and turns
// state changes into transition events, suppressing repeats.
package alert

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"signalbot/internal/signal"
)

// ErrStaleObservation is returned when an observation is older than the one
// already stored for the instrument. Nothing is mutated.
var ErrStaleObservation = errors.New("stale observation")

// Entry is the remembered state of one instrument.
type Entry struct {
	State signal.State `json:"state"`
	AsOf  time.Time    `json:"as_of"`
}

// Event is emitted when an instrument moves into a directional state it was
// not already in.
type Event struct {
	ID          string       `json:"id"`
	Symbol      string       `json:"symbol"`
	Previous    signal.State `json:"previous"`
	HadPrevious bool         `json:"had_previous"`
	State       signal.State `json:"state"`
	At          time.Time    `json:"at"`
}

// Store persists Alert Memory snapshots outside the process.
type Store interface {
	SaveAlertMemory(ctx context.Context, entries map[string]Entry) error
	LoadAlertMemory(ctx context.Context) (map[string]Entry, error)
}

// Memory maps instrument symbol to its last observed state. The zero value
// is not usable; create one with NewMemory. Safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemory returns an empty Memory.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

// Evaluate records state for symbol as observed at asOf and returns an event
// when the state is directional and differs from the stored one (or nothing
// was stored). The stored state is overwritten whether or not an event is
// returned. Observations with an asOf before the stored one are rejected.
func (m *Memory) Evaluate(symbol string, state signal.State, asOf time.Time) (*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, had := m.entries[symbol]
	if had && asOf.Before(prev.AsOf) {
		return nil, fmt.Errorf("%w: %s at %s, stored %s", ErrStaleObservation,
			symbol, asOf.Format(time.RFC3339), prev.AsOf.Format(time.RFC3339))
	}
	m.entries[symbol] = Entry{State: state, AsOf: asOf}

	if !state.Directional() || (had && prev.State == state) {
		return nil, nil
	}
	ev := &Event{
		ID:          uuid.NewString(),
		Symbol:      symbol,
		HadPrevious: had,
		State:       state,
		At:          asOf,
	}
	if had {
		ev.Previous = prev.State
	}
	return ev, nil
}

// Last returns the stored entry for symbol.
func (m *Memory) Last(symbol string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[symbol]
	return e, ok
}

// Entries returns a copy of all stored entries.
func (m *Memory) Entries() map[string]Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Entry, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out
}

// Symbols returns the remembered symbols in sorted order.
func (m *Memory) Symbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for k := range m.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Restore merges entries into the memory. An entry only replaces a stored
// one when it is not older. It returns the number of entries applied.
func (m *Memory) Restore(entries map[string]Entry) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, v := range entries {
		if cur, ok := m.entries[k]; ok && v.AsOf.Before(cur.AsOf) {
			continue
		}
		m.entries[k] = v
		n++
	}
	return n
}
