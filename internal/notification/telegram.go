package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"
)

// MaxMessageRunes is the longest text sent in one Telegram message.
const MaxMessageRunes = 4000

const defaultTelegramAPI = "https://api.telegram.org"

// TelegramNotifier sends messages via the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
	log      *slog.Logger
}

// TelegramOption configures a TelegramNotifier.
type TelegramOption func(*TelegramNotifier)

// WithTelegramAPI overrides the Bot API base URL (tests, local bot API).
func WithTelegramAPI(base string) TelegramOption {
	return func(t *TelegramNotifier) { t.apiBase = base }
}

// WithTelegramLogger sets the logger.
func WithTelegramLogger(l *slog.Logger) TelegramOption {
	return func(t *TelegramNotifier) { t.log = l }
}

// NewTelegramNotifier creates a Telegram notifier.
// botToken: Bot API token from @BotFather
// chatID: Target chat/group/channel ID
func NewTelegramNotifier(botToken, chatID string, opts ...TelegramOption) *TelegramNotifier {
	t := &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  defaultTelegramAPI,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: slog.Default(),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Send posts the text, split into parts of at most MaxMessageRunes sent in
// order, then the image (if any) with the title as caption. It stops at the
// first failed part.
func (t *TelegramNotifier) Send(ctx context.Context, msg Message) error {
	for _, text := range Compose(msg.Title, msg.Text) {
		if err := t.sendMessage(ctx, text); err != nil {
			return err
		}
	}
	if len(msg.Image) > 0 {
		if err := t.sendPhoto(ctx, msg.Title, msg.Image); err != nil {
			return err
		}
	}
	t.log.Debug("telegram message sent", "title", msg.Title, "level", string(msg.Level))
	return nil
}

// Compose renders text into the chat messages to send. Short text becomes
// "Title: text"; longer text is split into numbered parts
// "Title - part N:\n<chunk>".
func Compose(title, text string) []string {
	parts := Split(text, MaxMessageRunes)
	if len(parts) <= 1 {
		if title == "" {
			return []string{text}
		}
		return []string{title + ": " + text}
	}
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = fmt.Sprintf("%s - part %d:\n%s", title, i+1, p)
	}
	return out
}

// Split cuts s into chunks of at most max runes, preserving order.
func Split(s string, max int) []string {
	r := []rune(s)
	if len(r) <= max || max <= 0 {
		return []string{s}
	}
	out := make([]string, 0, len(r)/max+1)
	for len(r) > 0 {
		n := max
		if n > len(r) {
			n = len(r)
		}
		out = append(out, string(r[:n]))
		r = r[n:]
	}
	return out
}

func (t *TelegramNotifier) endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", t.apiBase, t.botToken, method)
}

func (t *TelegramNotifier) sendMessage(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]interface{}{
		"chat_id": t.chatID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("%w: telegram: marshal: %w", ErrDelivery, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint("sendMessage"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: telegram: create request: %w", ErrDelivery, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return t.do(req)
}

func (t *TelegramNotifier) sendPhoto(ctx context.Context, caption string, png []byte) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("chat_id", t.chatID)
	if caption != "" {
		_ = mw.WriteField("caption", caption)
	}
	fw, err := mw.CreateFormFile("photo", "chart.png")
	if err != nil {
		return fmt.Errorf("%w: telegram: form: %w", ErrDelivery, err)
	}
	if _, err := fw.Write(png); err != nil {
		return fmt.Errorf("%w: telegram: form: %w", ErrDelivery, err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("%w: telegram: form: %w", ErrDelivery, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint("sendPhoto"), &buf)
	if err != nil {
		return fmt.Errorf("%w: telegram: create request: %w", ErrDelivery, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return t.do(req)
}

func (t *TelegramNotifier) do(req *http.Request) error {
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: telegram: send: %w", ErrDelivery, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Description string `json:"description"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Description != "" {
			return fmt.Errorf("%w: telegram: status %d: %s", ErrDelivery, resp.StatusCode, apiErr.Description)
		}
		return fmt.Errorf("%w: telegram: unexpected status %d", ErrDelivery, resp.StatusCode)
	}
	return nil
}
