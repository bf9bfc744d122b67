package sink

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSink writes displays as structured log lines.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink constructs a LogSink.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "display").Logger()}
}

// Present logs display; error displays are logged at warn.
func (l *LogSink) Present(_ context.Context, d Display) error {
	ev := l.logger.Info()
	if d.Error {
		ev = l.logger.Warn()
	}
	ev.Str("element", d.ElementID).
		Str("instrument", d.Instrument).
		Str("direction", d.Direction).
		Str("text", d.Text).
		Str("tier", d.Tier).
		Str("glyph", d.Glyph).
		Str("tick_id", d.TickID).
		Msg("display updated")
	return nil
}

var _ Sink = (*LogSink)(nil)
