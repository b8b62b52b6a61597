// Package redis snapshots the Alert Memory to Redis and publishes transition
// notices on Redis pub/sub.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"signalbot/internal/alert"
	"signalbot/internal/breaker"
)

const (
	// MemoryKey is the hash holding one JSON alert.Entry per symbol.
	MemoryKey = "signal:alert_memory"
	// TransitionStream keeps a capped history of published notices.
	TransitionStream = "stream:signal:transitions"
	// ChannelPrefix prefixes the per-symbol pub/sub channel.
	ChannelPrefix = "pub:signal:"

	streamMaxLen = 1000
)

// Config configures the Redis connection.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Store implements alert.Store and the engine's transition publisher.
type Store struct {
	client  *goredis.Client
	breaker *breaker.Breaker
	log     *slog.Logger
}

// New creates a Store and pings the server.
func New(ctx context.Context, cfg Config, br *breaker.Breaker, log *slog.Logger) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	s := NewFromClient(client, br, log)
	s.log.Info("redis connected", "addr", cfg.Addr)
	return s, nil
}

// NewFromClient wraps an existing client. br may be nil.
func NewFromClient(client *goredis.Client, br *breaker.Breaker, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{client: client, breaker: br, log: log}
}

// Client returns the underlying Redis client for health checks.
func (s *Store) Client() *goredis.Client { return s.client }

func (s *Store) exec(fn func() error) error {
	if s.breaker == nil {
		return fn()
	}
	return s.breaker.Execute(fn)
}

// ChannelFor returns the pub/sub channel of symbol, e.g. "pub:signal:BTCUSDT".
func ChannelFor(symbol string) string {
	return ChannelPrefix + strings.ReplaceAll(symbol, "/", "")
}

// SaveAlertMemory replaces the stored snapshot with entries.
func (s *Store) SaveAlertMemory(ctx context.Context, entries map[string]alert.Entry) error {
	fields, err := encodeEntries(entries)
	if err != nil {
		return err
	}
	return s.exec(func() error {
		pipe := s.client.TxPipeline()
		pipe.Del(ctx, MemoryKey)
		if len(fields) > 0 {
			pipe.HSet(ctx, MemoryKey, fields)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("redis save alert memory: %w", err)
		}
		return nil
	})
}

// LoadAlertMemory reads the stored snapshot. Undecodable fields are skipped.
func (s *Store) LoadAlertMemory(ctx context.Context) (map[string]alert.Entry, error) {
	var raw map[string]string
	err := s.exec(func() error {
		var err error
		raw, err = s.client.HGetAll(ctx, MemoryKey).Result()
		if err != nil {
			return fmt.Errorf("redis load alert memory: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	entries, bad := decodeEntries(raw)
	for _, sym := range bad {
		s.log.Warn("skipping undecodable alert memory entry", "symbol", sym)
	}
	return entries, nil
}

// PublishTransition publishes n on the symbol channel and appends it to the
// capped transition stream.
func (s *Store) PublishTransition(ctx context.Context, n alert.Notice) error {
	payload := n.JSON()
	return s.exec(func() error {
		pipe := s.client.Pipeline()
		pipe.Publish(ctx, ChannelFor(n.Symbol), payload)
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: TransitionStream,
			MaxLen: streamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"symbol": n.Symbol, "data": payload},
		})
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("redis publish transition %s: %w", n.Symbol, err)
		}
		return nil
	})
}

// SubscribeTransitions delivers every notice published on any symbol channel
// to fn. Blocks until ctx is cancelled.
func (s *Store) SubscribeTransitions(ctx context.Context, fn func(channel string, payload []byte)) {
	pubsub := s.client.PSubscribe(ctx, ChannelPrefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fn(msg.Channel, []byte(msg.Payload))
		}
	}
}

// Close closes the client.
func (s *Store) Close() error { return s.client.Close() }

func encodeEntries(entries map[string]alert.Entry) (map[string]interface{}, error) {
	fields := make(map[string]interface{}, len(entries))
	for sym, e := range entries {
		b, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("encode alert memory %s: %w", sym, err)
		}
		fields[sym] = string(b)
	}
	return fields, nil
}

func decodeEntries(raw map[string]string) (map[string]alert.Entry, []string) {
	out := make(map[string]alert.Entry, len(raw))
	var bad []string
	for sym, v := range raw {
		var e alert.Entry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			bad = append(bad, sym)
			continue
		}
		out[sym] = e
	}
	return out, bad
}
