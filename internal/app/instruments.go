package app

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Instruments prints every configured instrument with its venues and tiers.
func (a *App) Instruments(out io.Writer) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Name\tEnabled\tPeriod\tPrimary\tComparison\tTiers")

	for _, inst := range a.Config.Instruments {
		table, err := inst.Table()
		if err != nil {
			return fmt.Errorf("instrument %q: %w", inst.Name, err)
		}
		tiers := make([]string, 0)
		for _, t := range table.Tiers() {
			if t.Neutral() {
				tiers = append(tiers, t.Name)
				continue
			}
			label := fmt.Sprintf("%s@%s", t.Name, t.Bound.String())
			if t.Actionable() {
				label += "!"
			}
			tiers = append(tiers, label)
		}

		fmt.Fprintf(
			writer,
			"%s\t%t\t%s\t%s\t%s\t%s\n",
			inst.Name,
			!inst.Disabled,
			inst.Period,
			describeVenue(inst.Primary.Kind, inst.Primary.Symbol),
			describeVenue(inst.Comparison.Kind, inst.Comparison.Symbol),
			strings.Join(tiers, " "),
		)
	}

	if err := writer.Flush(); err != nil {
		return err
	}
	for _, w := range a.Config.Warnings() {
		fmt.Fprintf(out, "warning: %s\n", w)
	}
	return nil
}

func describeVenue(kind, symbol string) string {
	if symbol == "" {
		return kind
	}
	return kind + ":" + symbol
}
