// Package notification delivers reports and signal alerts to operators
// (Telegram, webhooks, logs).
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrDelivery wraps every failure to hand a message to a channel. Callers
// log it and move on.
var ErrDelivery = errors.New("notification delivery failed")

// Level represents the kind of message.
type Level string

const (
	LevelReport Level = "REPORT"
	LevelAlert  Level = "ALERT"
	LevelInfo   Level = "INFO"
)

// Message is one notification. Title prefixes the text on chat channels,
// e.g. "BTC/USDT (1h)". Image is an optional PNG payload.
type Message struct {
	Level      Level  `json:"level"`
	Instrument string `json:"instrument,omitempty"`
	Title      string `json:"title"`
	Text       string `json:"text"`
	Image      []byte `json:"-"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers a message. Returns an error wrapping ErrDelivery if
	// delivery fails.
	Send(ctx context.Context, msg Message) error
}

// LogNotifier logs messages (useful for development).
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a log-based notifier. A nil logger uses slog.Default.
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(ctx context.Context, msg Message) error {
	n.log.InfoContext(ctx, "notify",
		"level", string(msg.Level),
		"instrument", msg.Instrument,
		"title", msg.Title,
		"text", msg.Text,
		"image_bytes", len(msg.Image),
	)
	return nil
}

// Multi fans a message out to every notifier. All notifiers are tried; the
// failures are joined.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrDelivery, errors.Join(errs...))
}
