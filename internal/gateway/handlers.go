package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"signalbot/internal/alert"
	"signalbot/internal/engine"
	"signalbot/internal/model"
	"signalbot/internal/scheduler"
	"signalbot/internal/signal"
	"signalbot/internal/store/journal"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Analyzer runs an on-demand classification.
type Analyzer interface {
	Analyze(ctx context.Context, inst model.Instrument, res model.Resolution) engine.Outcome
}

// JournalReader is the read side of the signal journal.
type JournalReader interface {
	RecentTransitions(ctx context.Context, limit int) ([]journal.Transition, error)
	LatestEvaluations(ctx context.Context) ([]journal.Evaluation, error)
}

// JobLister reports scheduler job status.
type JobLister interface {
	Jobs() []scheduler.JobStatus
}

// API bundles what the REST handlers read. Journal and Jobs are optional.
type API struct {
	Hub      *Hub
	Analyzer Analyzer
	Memory   *alert.Memory
	Journal  JournalReader
	Jobs     JobLister
	Start    time.Time
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// RegisterRoutes registers all HTTP routes on the provided mux.
func RegisterRoutes(mux *http.ServeMux, api *API) {
	mux.HandleFunc("/ws", api.handleWS)
	mux.HandleFunc("/api/signals", get(api.handleSignals))
	mux.HandleFunc("/api/analyze", get(api.handleAnalyze))
	mux.HandleFunc("/api/transitions", get(api.handleTransitions))
	mux.HandleFunc("/api/memory", get(api.handleMemory))
	mux.HandleFunc("/api/jobs", get(api.handleJobs))
	mux.HandleFunc("/api/status", get(api.handleStatus))
}

// get wraps a JSON GET handler with CORS and method checks.
func get(fn func(w http.ResponseWriter, r *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		switch r.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			fn(w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, "GET only")
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, status, map[string]string{"error": msg})
}

func (a *API) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.Hub.log.Warn("ws upgrade failed", "error", err)
		return
	}
	// Without ?since= nothing is replayed.
	since := int64(-1)
	if s := r.URL.Query().Get("since"); s != "" {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil && v >= 0 {
			since = v
		}
	}
	a.Hub.HandleWSRequest(conn, since)
}

// handleSignals serves the latest classification per instrument: from the
// journal when configured, otherwise from the alert memory.
func (a *API) handleSignals(w http.ResponseWriter, r *http.Request) {
	if a.Journal != nil {
		rows, err := a.Journal.LatestEvaluations(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out := make([]SignalOut, 0, len(rows))
		for _, row := range rows {
			var st signal.State
			st.UnmarshalText([]byte(row.State))
			out = append(out, SignalOut{
				Symbol:     row.Symbol,
				Resolution: row.Resolution,
				State:      row.State,
				Label:      st.Label(),
				Price:      row.Price,
				BarTS:      time.UnixMilli(row.BarTS).UTC(),
				AsOf:       time.UnixMilli(row.RecordedAt).UTC(),
				CycleID:    row.CycleID,
			})
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	out := make([]SignalOut, 0)
	for _, sym := range a.Memory.Symbols() {
		e, _ := a.Memory.Last(sym)
		out = append(out, SignalOut{Symbol: sym, State: e.State.String(), Label: e.State.Label(), AsOf: e.AsOf})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleAnalyze classifies ?symbol= at ?tf= (default: the engine's
// resolution) without touching the alert memory.
func (a *API) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	inst, err := model.ParseInstrument(r.URL.Query().Get("symbol"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var res model.Resolution
	if tf := r.URL.Query().Get("tf"); tf != "" {
		if res, err = model.ParseResolution(tf); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	out := a.Analyzer.Analyze(r.Context(), inst, res)
	switch {
	case out.OK():
		writeJSON(w, http.StatusOK, AnalysisOut{
			Result: out.Result,
			Label:  out.Result.State.Label(),
			Text:   out.Result.Explanation.Lines(),
		})
	case errors.Is(out.Err, signal.ErrInsufficientData):
		writeError(w, http.StatusUnprocessableEntity, out.Err.Error())
	default:
		writeError(w, http.StatusBadGateway, "error retrieving data: "+out.Err.Error())
	}
}

// handleTransitions serves ?limit= recent transitions, newest first.
func (a *API) handleTransitions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 && v <= 500 {
			limit = v
		}
	}

	if a.Journal == nil {
		writeJSON(w, http.StatusOK, a.Hub.Recent(limit))
		return
	}
	rows, err := a.Journal.RecentTransitions(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]TransitionOut, len(rows))
	for i, t := range rows {
		out[i] = TransitionOut{
			ID:          t.ID,
			Symbol:      t.Symbol,
			Resolution:  t.Resolution,
			Previous:    t.Previous.String,
			State:       t.State,
			Price:       t.Price,
			Explanation: t.Explanation,
			At:          t.Time(),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleMemory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Memory.Entries())
}

func (a *API) handleJobs(w http.ResponseWriter, r *http.Request) {
	if a.Jobs == nil {
		writeJSON(w, http.StatusOK, []scheduler.JobStatus{})
		return
	}
	writeJSON(w, http.StatusOK, a.Jobs.Jobs())
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	writeJSON(w, http.StatusOK, StatusOut{
		UptimeSec:   int64(time.Since(a.Start).Seconds()),
		Goroutines:  runtime.NumGoroutine(),
		HeapAllocMB: float64(ms.HeapAlloc) / 1024 / 1024,
		GCRuns:      ms.NumGC,
		Clients:     a.Hub.ClientCount(),
		Seq:         a.Hub.Seq(),
		Latency:     a.Hub.Latency.Summary(),
		Tracked:     len(a.Memory.Symbols()),
		TS:          time.Now().UTC().Format(time.RFC3339Nano),
	})
}
