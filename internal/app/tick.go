package app

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"spreadwatch/internal/config"
	"spreadwatch/internal/monitor"
)

// Tick polls one instrument once and prints the classified opportunities.
// No tones or notifications are sent.
func (a *App) Tick(ctx context.Context, name string, out io.Writer) error {
	inst, ok := a.Config.Instrument(name)
	if !ok {
		return fmt.Errorf("unknown instrument %q", name)
	}
	a.logWarnings()

	rt, err := a.newRuntime(ctx, false)
	if err != nil {
		return err
	}
	defer rt.close()
	rt.toner = nil
	rt.notifier = nil

	m, err := a.newMonitor(rt, inst)
	if err != nil {
		return err
	}

	events, err := m.Poll(ctx)
	if err != nil {
		return err
	}
	return writeEvents(out, inst, events)
}

func writeEvents(out io.Writer, inst config.InstrumentConfig, events []monitor.AlertEvent) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Instrument\tDirection\tValue\tTier\tActionable")
	for _, ev := range events {
		fmt.Fprintf(
			writer,
			"%s\t%s %s\t%s\t%s\t%t\n",
			ev.Instrument,
			ev.Direction.Glyph(),
			ev.Direction,
			ev.Value.StringFixed(inst.DisplayPrecision()),
			ev.Tier.Name,
			ev.Tier.Actionable(),
		)
	}
	return writer.Flush()
}
