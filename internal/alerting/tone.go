package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"spreadwatch/internal/tier"
)

// Switch is the process-wide audio-enabled flag, passed explicitly to every
// monitor instead of living in a global.
type Switch struct {
	enabled atomic.Bool
}

// NewSwitch returns a switch in the given initial state.
func NewSwitch(enabled bool) *Switch {
	s := &Switch{}
	s.enabled.Store(enabled)
	return s
}

// Enabled reports whether tones should be requested.
func (s *Switch) Enabled() bool {
	return s != nil && s.enabled.Load()
}

// Set toggles audio.
func (s *Switch) Set(enabled bool) {
	s.enabled.Store(enabled)
}

// Player is an audio capability.
type Player interface {
	Play(ctx context.Context, tone tier.Tone) error
}

// Toner dispatches tone requests fire-and-forget. Overlapping requests are not
// coordinated; each player decides what overlap sounds like.
type Toner struct {
	audio   *Switch
	players []Player
	timeout time.Duration
	logger  zerolog.Logger
	wg      sync.WaitGroup
}

// NewToner builds a Toner gated by audio.
func NewToner(audio *Switch, players []Player, timeout time.Duration, logger zerolog.Logger) *Toner {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Toner{
		audio:   audio,
		players: players,
		timeout: timeout,
		logger:  logger.With().Str("component", "toner").Logger(),
	}
}

// Request asks every player to play tone unless audio is disabled. It
// returns immediately and reports whether the request was dispatched.
func (t *Toner) Request(tone tier.Tone) bool {
	if t == nil || !t.audio.Enabled() || len(t.players) == 0 {
		return false
	}
	for _, p := range t.players {
		t.wg.Add(1)
		go func(p Player) {
			defer t.wg.Done()
			defer func() {
				if v := recover(); v != nil {
					t.logger.Error().Interface("panic", v).Msg("tone player panicked")
				}
			}()
			ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
			defer cancel()
			if err := p.Play(ctx, tone); err != nil {
				t.logger.Warn().Err(err).Float64("frequency_hz", tone.FrequencyHz).Msg("tone request failed")
			}
		}(p)
	}
	return true
}

// Wait blocks until every dispatched tone request has finished.
func (t *Toner) Wait() {
	if t == nil {
		return
	}
	t.wg.Wait()
}

// WebhookPlayer posts tone requests to an HTTP audio service.
type WebhookPlayer struct {
	url    string
	client *http.Client
}

// NewWebhookPlayer constructs a webhook player.
func NewWebhookPlayer(url string, timeout time.Duration) *WebhookPlayer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookPlayer{url: strings.TrimSpace(url), client: &http.Client{Timeout: timeout}}
}

// Play posts {"volume":..,"frequency_hz":..}.
func (w *WebhookPlayer) Play(ctx context.Context, tone tier.Tone) error {
	body, err := json.Marshal(tone)
	if err != nil {
		return fmt.Errorf("marshal tone: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create tone request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send tone request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("audio webhook status %d", resp.StatusCode)
	}
	return nil
}

var _ Player = (*WebhookPlayer)(nil)
