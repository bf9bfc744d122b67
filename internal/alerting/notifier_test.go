package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func sampleNote() Notification {
	return Notification{
		Instrument: "sol",
		ElementID:  "sol-buy",
		Direction:  "up",
		Value:      decimal.RequireFromString("0.01"),
		Tier:       "strong-up",
		Bid:        decimal.NewFromInt(10),
		Ask:        decimal.NewFromInt(10),
		BuyRate:    decimal.NewFromInt(10),
		SellRate:   decimal.NewFromInt(10),
		At:         time.Now(),
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), sampleNote()); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	if !strings.Contains(received["text"], "strong-up") {
		t.Fatalf("text 应包含 tier: %q", received["text"])
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), sampleNote()); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

type countingNotifier struct {
	calls int
	err   error
}

func (c *countingNotifier) Notify(context.Context, Notification) error {
	c.calls++
	return c.err
}

func TestThrottleCooldown(t *testing.T) {
	inner := &countingNotifier{}
	th := NewThrottle(inner, time.Minute)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	th.now = func() time.Time { return clock }

	note := sampleNote()
	_ = th.Notify(context.Background(), note)
	_ = th.Notify(context.Background(), note)
	if inner.calls != 1 {
		t.Fatalf("冷却期内应只发送一次, 实际 %d", inner.calls)
	}

	other := note
	other.ElementID = "sol-sell"
	_ = th.Notify(context.Background(), other)
	if inner.calls != 2 {
		t.Fatalf("不同元素应独立计算冷却, 实际 %d", inner.calls)
	}

	clock = clock.Add(2 * time.Minute)
	_ = th.Notify(context.Background(), note)
	if inner.calls != 3 {
		t.Fatalf("冷却结束后应再次发送, 实际 %d", inner.calls)
	}
}

func TestThrottleRetriesAfterFailure(t *testing.T) {
	inner := &countingNotifier{err: errors.New("boom")}
	th := NewThrottle(inner, time.Hour)

	if err := th.Notify(context.Background(), sampleNote()); err == nil {
		t.Fatal("下游失败应返回错误")
	}
	inner.err = nil
	if err := th.Notify(context.Background(), sampleNote()); err != nil {
		t.Fatalf("失败后不应进入冷却: %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("期望 2 次调用, 实际 %d", inner.calls)
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
