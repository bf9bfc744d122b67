package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Notification carries the context of an actionable opportunity.
type Notification struct {
	Instrument string
	ElementID  string
	Direction  string
	Value      decimal.Decimal
	Tier       string
	Bid        decimal.Decimal
	Ask        decimal.Decimal
	BuyRate    decimal.Decimal
	SellRate   decimal.Decimal
	At         time.Time
}

// Notifier delivers notifications to an operator channel.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier pushes messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify calls sendMessage with the rendered text.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram unexpected status: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().
		Str("instrument", note.Instrument).
		Str("direction", note.Direction).
		Str("tier", note.Tier).
		Msg("alert sent (telegram)")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[%s spread]\n", strings.ToUpper(note.Instrument)))
	builder.WriteString(fmt.Sprintf("Time: %s UTC\n", note.At.UTC().Format(time.RFC3339)))
	builder.WriteString(fmt.Sprintf("Direction: %s\n", note.Direction))
	builder.WriteString(fmt.Sprintf("Opportunity: %s (%s)\n", note.Value.String(), note.Tier))
	builder.WriteString(fmt.Sprintf("Primary: bid %s / ask %s\n", note.Bid.String(), note.Ask.String()))
	builder.WriteString(fmt.Sprintf("Comparison: buy %s / sell %s\n", note.BuyRate.String(), note.SellRate.String()))
	return builder.String()
}

// Throttle suppresses repeat notifications for the same element within a cooldown.
type Throttle struct {
	next     Notifier
	cooldown time.Duration
	mu       sync.Mutex
	last     map[string]time.Time
	now      func() time.Time
}

// NewThrottle wraps next with a per-element cooldown.
func NewThrottle(next Notifier, cooldown time.Duration) *Throttle {
	return &Throttle{next: next, cooldown: cooldown, last: make(map[string]time.Time), now: time.Now}
}

// Notify forwards note unless its element notified within the cooldown.
func (t *Throttle) Notify(ctx context.Context, note Notification) error {
	key := note.ElementID + "|" + note.Tier
	now := t.now()

	t.mu.Lock()
	if at, ok := t.last[key]; ok && now.Sub(at) < t.cooldown {
		t.mu.Unlock()
		return nil
	}
	t.last[key] = now
	t.mu.Unlock()

	if err := t.next.Notify(ctx, note); err != nil {
		t.mu.Lock()
		delete(t.last, key)
		t.mu.Unlock()
		return err
	}
	return nil
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*Throttle)(nil)
)
