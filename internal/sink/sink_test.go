package sink

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSink struct{ calls int }

func (f *failingSink) Present(context.Context, Display) error {
	f.calls++
	return errors.New("unavailable")
}

func display(id, text string) Display {
	return Display{ElementID: id, Instrument: "sol", Direction: "up", Text: text, Tier: "up", Glyph: "▲", At: time.Unix(1700000000, 0)}
}

func TestFanoutContinuesPastFailures(t *testing.T) {
	board := NewBoard()
	bad := &failingSink{}
	fan := Fanout{bad, nil, board}

	err := fan.Present(context.Background(), display("sol-buy", "0.01"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unavailable")
	assert.Equal(t, 1, bad.calls)

	got, ok := board.Get("sol-buy")
	require.True(t, ok)
	assert.Equal(t, "0.01", got.Text)
}

func TestBoardLastWriteWins(t *testing.T) {
	board := NewBoard()
	ctx := context.Background()
	require.NoError(t, board.Present(ctx, display("b", "1")))
	require.NoError(t, board.Present(ctx, display("a", "2")))
	require.NoError(t, board.Present(ctx, display("b", "3")))

	snap := board.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].ElementID)
	assert.Equal(t, "3", snap[1].Text)
}

func TestLogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSink(zerolog.New(&buf))

	require.NoError(t, s.Present(context.Background(), display("sol-buy", "0.01")))
	assert.Contains(t, buf.String(), `"level":"info"`)

	buf.Reset()
	errDisplay := display("sol-buy", ErrorText)
	errDisplay.Error = true
	require.NoError(t, s.Present(context.Background(), errDisplay))
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), `"text":"ERR"`)
}

func TestDisplayFields(t *testing.T) {
	fields := displayFields(display("sol-sell", "0.004"))
	assert.Equal(t, "0.004", fields["text"])
	assert.Equal(t, "false", fields["error"])
	assert.Equal(t, "1700000000000", fields["ts"])
}
