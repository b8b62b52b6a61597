// Package gateway serves the live signal feed: a WebSocket hub pushing
// transition notices and a small REST surface over the engine state.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"signalbot/internal/alert"
	sigredis "signalbot/internal/store/redis"
)

// replayCapacity bounds the notices replayed to reconnecting clients.
const replayCapacity = 200

// Hub manages WebSocket clients and fans out transition notices.
// Notices arrive either directly from the engine (PublishTransition) or
// from redis pub/sub (RunRedis), never both.
type Hub struct {
	log *slog.Logger

	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]latestEntry // by channel
	seq     int64

	replay *ReplayBuffer

	// Time from cycle start to fan-out, per transition.
	Latency *LatencyTracker

	Broadcaster *Broadcaster
}

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64
}

// NewHub creates an empty hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	h := &Hub{
		log:     log.With("component", "gateway"),
		clients: make(map[*Client]bool),
		latest:  make(map[string]latestEntry),
		replay:  NewReplayBuffer(replayCapacity),
		Latency: NewLatencyTracker(1000),
	}
	h.Broadcaster = NewBroadcaster(h)
	return h
}

// PublishTransition broadcasts a notice produced in this process.
func (h *Hub) PublishTransition(_ context.Context, n alert.Notice) error {
	h.broadcast(sigredis.ChannelFor(n.Symbol), n.JSON())
	return nil
}

// Subscriber is the redis side of the feed.
type Subscriber interface {
	SubscribeTransitions(ctx context.Context, fn func(channel string, payload []byte))
}

// RunRedis relays notices published on redis. Blocks until ctx is cancelled.
func (h *Hub) RunRedis(ctx context.Context, sub Subscriber) {
	h.log.Info("relaying transitions from redis")
	sub.SubscribeTransitions(ctx, h.broadcast)
}

func (h *Hub) broadcast(channel string, data []byte) {
	h.Broadcaster.Broadcast(channel, data)
}

// HandleWSRequest registers an upgraded connection. Buffered envelopes with
// a sequence number above since are queued before any live one.
func (h *Hub) HandleWSRequest(conn *websocket.Conn, since int64) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	client.sendInitialState(since)
	h.mu.Unlock()

	h.log.Info("ws client connected", "clients", count, "since", since)

	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Seq returns the sequence number of the last broadcast envelope.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

// Latest returns the last notice per channel.
func (h *Hub) Latest() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make(map[string]json.RawMessage, len(h.latest))
	for k, v := range h.latest {
		cp[k] = v.Data
	}
	return cp
}

// Recent returns up to n buffered envelopes, newest first.
func (h *Hub) Recent(n int) []json.RawMessage {
	entries := h.replay.Last(n)
	out := make([]json.RawMessage, len(entries))
	for i, e := range entries {
		out[i] = e.Data
	}
	return out
}
