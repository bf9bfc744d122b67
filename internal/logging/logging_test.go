package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerToJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(Config{Level: "warn", Format: "json"}, &buf)

	logger.Info().Msg("dropped")
	logger.Warn().Str("instrument", "sol").Msg("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("期望 1 行日志，得到 %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("日志不是 JSON: %v", err)
	}
	if entry["instrument"] != "sol" || entry["message"] != "kept" {
		t.Fatalf("字段不符: %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Fatalf("缺少时间戳字段")
	}
}

func TestNewLoggerToInvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(Config{Level: "loud"}, &buf)
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("期望 info 级别，得到 %s", logger.GetLevel())
	}
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(Config{Format: "console"}, &buf)
	logger.Info().Msg("hello")
	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Fatalf("console 格式不应输出 JSON: %q", buf.String())
	}
}
