package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"signalbot/internal/alert"
	"signalbot/internal/engine"
	"signalbot/internal/marketdata"
	"signalbot/internal/model"
	"signalbot/internal/scheduler"
	"signalbot/internal/signal"
)

type envelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
	TS      string          `json:"ts"`
	Seq     int64           `json:"seq"`
}

func notice(id, symbol string, st signal.State) alert.Notice {
	return alert.Notice{
		Event: alert.Event{
			ID:     id,
			Symbol: symbol,
			State:  st,
			At:     time.Now().Add(-time.Second),
		},
		Resolution: model.Res1h,
		Label:      st.Label(),
		Price:      101.5,
	}
}

type fakeAnalyzer struct{}

func (fakeAnalyzer) Analyze(_ context.Context, inst model.Instrument, res model.Resolution) engine.Outcome {
	switch inst.Base {
	case "BTC":
		if res == "" {
			res = model.Res1h
		}
		return engine.Outcome{Instrument: inst, Result: signal.Result{
			Symbol:      inst.Symbol(),
			Resolution:  res,
			State:       signal.EnterLong,
			Explanation: signal.Explanation{Rationale: "oversold", Facts: []signal.Fact{{Label: "Price", Value: "100.0000"}}},
			Price:       100,
		}}
	case "NEW":
		return engine.Outcome{Instrument: inst, Err: signal.ErrInsufficientData, Kind: engine.KindInsufficientData}
	default:
		return engine.Outcome{Instrument: inst, Err: fmt.Errorf("%w: boom", marketdata.ErrDataFetch), Kind: engine.KindDataFetch}
	}
}

type fakeJobs []scheduler.JobStatus

func (f fakeJobs) Jobs() []scheduler.JobStatus { return f }

func newTestServer(t *testing.T) (*httptest.Server, *API) {
	t.Helper()
	mem := alert.NewMemory()
	api := &API{
		Hub:      NewHub(nil),
		Analyzer: fakeAnalyzer{},
		Memory:   mem,
		Jobs:     fakeJobs{{Name: "alert_scan", Interval: "30m0s", Runs: 3}},
		Start:    time.Now(),
	}
	mux := http.NewServeMux()
	RegisterRoutes(mux, api)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, api
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", h.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBuildEnvelope(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	buf := buildEnvelope("pub:signal:BTCUSDT", []byte(`{"symbol":"BTC/USDT"}`), now, 42)

	var env envelope
	if err := json.Unmarshal(buf, &env); err != nil {
		t.Fatalf("envelope is not valid JSON: %v\nraw: %s", err, buf)
	}
	if env.Channel != "pub:signal:BTCUSDT" || env.Seq != 42 || env.TS != "2024-06-01T12:00:00Z" {
		t.Errorf("envelope = %+v", env)
	}
	if string(env.Data) != `{"symbol":"BTC/USDT"}` {
		t.Errorf("data = %s", env.Data)
	}
}

func TestHub_ReplayThenLive(t *testing.T) {
	srv, api := newTestServer(t)
	hub := api.Hub
	hub.PublishTransition(context.Background(), notice("e1", "BTC/USDT", signal.EnterLong))

	conn := dial(t, srv, "?since=0")
	var env envelope
	readJSON(t, conn, &env)
	if env.Seq != 1 || env.Channel != "pub:signal:BTCUSDT" {
		t.Fatalf("replayed envelope = %+v", env)
	}
	var n alert.Notice
	if err := json.Unmarshal(env.Data, &n); err != nil {
		t.Fatal(err)
	}
	if n.ID != "e1" || n.State != signal.EnterLong || n.Label != "Enter (Long)" {
		t.Errorf("notice = %+v", n)
	}

	waitClients(t, hub, 1)
	hub.PublishTransition(context.Background(), notice("e2", "ETH/USDT", signal.ExitShort))
	readJSON(t, conn, &env)
	if env.Seq != 2 || env.Channel != "pub:signal:ETHUSDT" {
		t.Errorf("live envelope = %+v", env)
	}
	if s := hub.Latency.Summary(); s.Count != 2 || s.P50 < 900 {
		t.Errorf("latency = %+v, want two samples of about 1s", s)
	}
}

func TestHub_NoReplayWithoutSince(t *testing.T) {
	srv, api := newTestServer(t)
	api.Hub.PublishTransition(context.Background(), notice("old", "BTC/USDT", signal.EnterLong))

	conn := dial(t, srv, "")
	waitClients(t, api.Hub, 1)
	api.Hub.PublishTransition(context.Background(), notice("new", "BTC/USDT", signal.ExitShort))

	var env envelope
	readJSON(t, conn, &env)
	if env.Seq != 2 {
		t.Errorf("expected only the live envelope, got seq %d", env.Seq)
	}
}

func TestClient_SubscribeFilters(t *testing.T) {
	srv, api := newTestServer(t)
	conn := dial(t, srv, "")
	waitClients(t, api.Hub, 1)

	if err := conn.WriteJSON(map[string]interface{}{"type": "SUBSCRIBE", "symbols": []string{"eth/usdt"}}); err != nil {
		t.Fatal(err)
	}
	var ack struct {
		Type     string   `json:"type"`
		Channels []string `json:"channels"`
	}
	readJSON(t, conn, &ack)
	if ack.Type != "subscribed" || len(ack.Channels) != 1 || ack.Channels[0] != "pub:signal:ETHUSDT" {
		t.Fatalf("ack = %+v", ack)
	}

	api.Hub.PublishTransition(context.Background(), notice("b", "BTC/USDT", signal.EnterLong))
	api.Hub.PublishTransition(context.Background(), notice("e", "ETH/USDT", signal.EnterLong))

	var env envelope
	readJSON(t, conn, &env)
	if env.Channel != "pub:signal:ETHUSDT" || env.Seq != 2 {
		t.Errorf("filtered envelope = %+v", env)
	}
}

func TestClient_Ping(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv, "")
	conn.WriteJSON(map[string]int64{"ping": 1234})

	var pong struct {
		Type string `json:"type"`
		Ping int64  `json:"ping"`
	}
	readJSON(t, conn, &pong)
	if pong.Type != "pong" || pong.Ping != 1234 {
		t.Errorf("pong = %+v", pong)
	}
}

type fakeSubscriber struct{ payloads map[string]string }

func (f fakeSubscriber) SubscribeTransitions(_ context.Context, fn func(channel string, payload []byte)) {
	for ch, p := range f.payloads {
		fn(ch, []byte(p))
	}
}

func TestHub_RunRedis(t *testing.T) {
	hub := NewHub(nil)
	hub.RunRedis(context.Background(), fakeSubscriber{payloads: map[string]string{
		"pub:signal:SOLUSDT": string(notice("r1", "SOL/USDT", signal.ExitShort).JSON()),
	}})

	if hub.Seq() != 1 {
		t.Fatalf("seq = %d", hub.Seq())
	}
	latest := hub.Latest()
	if _, ok := latest["pub:signal:SOLUSDT"]; !ok {
		t.Errorf("latest = %v", latest)
	}
	if got := hub.Recent(10); len(got) != 1 {
		t.Errorf("recent = %d entries", len(got))
	}
}

func getJSON(t *testing.T, url string, wantStatus int, v interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s: status %d, want %d", url, resp.StatusCode, wantStatus)
	}
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	srv, api := newTestServer(t)

	var out struct {
		Symbol     string   `json:"symbol"`
		Resolution string   `json:"resolution"`
		State      string   `json:"state"`
		Label      string   `json:"label"`
		Text       []string `json:"text"`
	}
	getJSON(t, srv.URL+"/api/analyze?symbol=BTCUSDT&tf=4h", http.StatusOK, &out)
	if out.Symbol != "BTC/USDT" || out.Resolution != "4h" || out.State != "ENTER_LONG" || out.Label != "Enter (Long)" {
		t.Errorf("analysis = %+v", out)
	}
	if len(out.Text) != 2 || out.Text[0] != "oversold" || out.Text[1] != "Price: 100.0000" {
		t.Errorf("text = %q", out.Text)
	}
	if len(api.Memory.Entries()) != 0 {
		t.Error("analyze touched the alert memory")
	}

	getJSON(t, srv.URL+"/api/analyze?symbol=", http.StatusBadRequest, nil)
	getJSON(t, srv.URL+"/api/analyze?symbol=BTC/USDT&tf=2h", http.StatusBadRequest, nil)
	getJSON(t, srv.URL+"/api/analyze?symbol=NEW/USDT", http.StatusUnprocessableEntity, nil)

	var e map[string]string
	getJSON(t, srv.URL+"/api/analyze?symbol=XRP/USDT", http.StatusBadGateway, &e)
	if !strings.HasPrefix(e["error"], "error retrieving data") {
		t.Errorf("error body = %v", e)
	}
}

func TestSignalsFromMemory(t *testing.T) {
	srv, api := newTestServer(t)
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	api.Memory.Evaluate("ETH/USDT", signal.Neutral, at)
	api.Memory.Evaluate("BTC/USDT", signal.EnterLong, at)

	var out []SignalOut
	getJSON(t, srv.URL+"/api/signals", http.StatusOK, &out)
	if len(out) != 2 || out[0].Symbol != "BTC/USDT" || out[0].State != "ENTER_LONG" || out[1].Label != "Neutral (Hold)" {
		t.Errorf("signals = %+v", out)
	}
	if !out[0].AsOf.Equal(at) {
		t.Errorf("as_of = %v", out[0].AsOf)
	}

	var mem map[string]alert.Entry
	getJSON(t, srv.URL+"/api/memory", http.StatusOK, &mem)
	if mem["BTC/USDT"].State != signal.EnterLong {
		t.Errorf("memory = %+v", mem)
	}
}

func TestTransitionsFromHubWithoutJournal(t *testing.T) {
	srv, api := newTestServer(t)
	for i := 0; i < 3; i++ {
		api.Hub.PublishTransition(context.Background(), notice(fmt.Sprintf("e%d", i), "BTC/USDT", signal.EnterLong))
	}

	var out []envelope
	getJSON(t, srv.URL+"/api/transitions?limit=2", http.StatusOK, &out)
	if len(out) != 2 || out[0].Seq != 3 || out[1].Seq != 2 {
		t.Errorf("transitions = %+v", out)
	}
}

func TestJobsStatusAndMethods(t *testing.T) {
	srv, _ := newTestServer(t)

	var jobs []scheduler.JobStatus
	getJSON(t, srv.URL+"/api/jobs", http.StatusOK, &jobs)
	if len(jobs) != 1 || jobs[0].Name != "alert_scan" || jobs[0].Runs != 3 {
		t.Errorf("jobs = %+v", jobs)
	}

	var st StatusOut
	getJSON(t, srv.URL+"/api/status", http.StatusOK, &st)
	if st.Goroutines == 0 || st.Clients != 0 {
		t.Errorf("status = %+v", st)
	}

	resp, err := http.Post(srv.URL+"/api/signals", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d", resp.StatusCode)
	}
}

