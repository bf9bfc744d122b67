package cli

import (
	"github.com/spf13/cobra"
)

var tickInstrument string

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Poll one instrument once and print the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Tick(cmd.Context(), tickInstrument, cmd.OutOrStdout())
	},
}

func init() {
	tickCmd.Flags().StringVar(&tickInstrument, "instrument", "", "Instrument name")
	_ = tickCmd.MarkFlagRequired("instrument")
}
