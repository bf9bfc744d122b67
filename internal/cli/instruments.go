package cli

import (
	"github.com/spf13/cobra"
)

var instrumentsCmd = &cobra.Command{
	Use:   "instruments",
	Short: "List configured instruments and their tiers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Instruments(cmd.OutOrStdout())
	},
}
