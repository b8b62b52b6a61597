package gateway

import (
	"encoding/json"
	"strconv"
	"time"
)

// Broadcaster constructs envelope JSON and sends filtered messages to clients.
type Broadcaster struct {
	hub *Hub
	now func() time.Time
}

// NewBroadcaster creates a Broadcaster backed by the given Hub.
func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub, now: time.Now}
}

// Broadcast wraps data in an envelope and sends it to every client whose
// filter matches channel:
//
//	{"channel":"pub:signal:BTCUSDT","data":{...},"ts":"...","seq":N}
//
// data must be a JSON document.
func (b *Broadcaster) Broadcast(channel string, data []byte) {
	now := b.now().UTC()

	if at := extractAt(data); !at.IsZero() {
		if ms := float64(now.Sub(at).Microseconds()) / 1000.0; ms >= 0 {
			b.hub.Latency.Record(ms)
		}
	}

	// Sequencing, replay and fan-out happen under one lock so a client
	// registering concurrently sees each envelope exactly once.
	b.hub.mu.Lock()
	defer b.hub.mu.Unlock()
	b.hub.seq++
	seq := b.hub.seq
	b.hub.latest[channel] = latestEntry{Data: data, TS: now, Seq: seq}
	buf := buildEnvelope(channel, data, now, seq)
	b.hub.replay.Push(seq, buf)

	for client := range b.hub.clients {
		if !client.matchesChannel(channel) {
			continue
		}
		select {
		case client.send <- buf:
		default:
			b.hub.log.Warn("ws client send buffer full, dropping envelope", "channel", channel, "seq", seq)
		}
	}
}

func buildEnvelope(channel string, data []byte, now time.Time, seq int64) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+96)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, '}')
	return buf
}

// extractAt returns the "at" field of a notice payload, zero if absent.
func extractAt(data []byte) time.Time {
	var partial struct {
		At time.Time `json:"at"`
	}
	if err := json.Unmarshal(data, &partial); err == nil {
		return partial.At
	}
	return time.Time{}
}
