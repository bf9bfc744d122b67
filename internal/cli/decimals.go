package cli

import (
	"github.com/spf13/cobra"
)

var decimalsCmd = &cobra.Command{
	Use:   "decimals",
	Short: "Verify configured ERC-20 decimals against the chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().CheckDecimals(cmd.Context(), cmd.OutOrStdout())
	},
}
