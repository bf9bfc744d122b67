// Package sink delivers monitor output to presentation surfaces.
package sink

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// ErrorText is written in place of a value when a tick could not be computed.
	ErrorText = "ERR"
	// ErrorTier is the tier name carried by error displays.
	ErrorTier = "error"
)

// Display is one presentation update: what to write into which element.
type Display struct {
	ElementID  string    `json:"element_id"`
	Instrument string    `json:"instrument"`
	Direction  string    `json:"direction"`
	Text       string    `json:"text"`
	Tier       string    `json:"tier"`
	Glyph      string    `json:"glyph"`
	Error      bool      `json:"error"`
	TickID     string    `json:"tick_id"`
	At         time.Time `json:"at"`
}

// Sink accepts display updates. Writes are last-write-wins per element.
type Sink interface {
	Present(ctx context.Context, display Display) error
}

// Fanout delivers every display to all sinks, continuing past failures.
type Fanout []Sink

// Present forwards display to each sink and joins their errors.
func (f Fanout) Present(ctx context.Context, display Display) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Present(ctx, display); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", s, err))
		}
	}
	return errors.Join(errs...)
}

var _ Sink = Fanout(nil)
