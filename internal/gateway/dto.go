package gateway

import (
	"time"

	"signalbot/internal/signal"
)

// SignalOut is one row of /api/signals.
type SignalOut struct {
	Symbol     string    `json:"symbol"`
	Resolution string    `json:"resolution,omitempty"`
	State      string    `json:"state"`
	Label      string    `json:"label"`
	Price      float64   `json:"price,omitempty"`
	BarTS      time.Time `json:"bar_ts,omitempty"`
	AsOf       time.Time `json:"as_of"`
	CycleID    string    `json:"cycle_id,omitempty"`
}

// TransitionOut is one row of /api/transitions when served from the journal.
type TransitionOut struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Resolution  string    `json:"resolution"`
	Previous    string    `json:"previous,omitempty"`
	State       string    `json:"state"`
	Price       float64   `json:"price"`
	Explanation string    `json:"explanation"`
	At          time.Time `json:"at"`
}

// AnalysisOut is the /api/analyze response.
type AnalysisOut struct {
	signal.Result
	Label string   `json:"label"`
	Text  []string `json:"text"`
}

// StatusOut is the /api/status response.
type StatusOut struct {
	UptimeSec   int64          `json:"uptime_sec"`
	Goroutines  int            `json:"goroutines"`
	HeapAllocMB float64        `json:"heap_alloc_mb"`
	GCRuns      uint32         `json:"gc_runs"`
	Clients     int            `json:"ws_clients"`
	Seq         int64          `json:"seq"`
	Latency     LatencySummary `json:"alert_latency"`
	Tracked     int            `json:"tracked_instruments"`
	TS          string         `json:"ts"`
}
