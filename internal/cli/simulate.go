package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"spreadwatch/internal/app"
)

var (
	simulateInstrument string
	simulateBid        string
	simulateAsk        string
	simulateBuyRate    string
	simulateSellRate   string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "模拟一次价差并触发提示音与告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		in := app.SimulateInput{Instrument: simulateInstrument}
		for _, f := range []struct {
			name string
			raw  string
			dst  *decimal.Decimal
		}{
			{"bid", simulateBid, &in.Bid},
			{"ask", simulateAsk, &in.Ask},
			{"buy-rate", simulateBuyRate, &in.BuyRate},
			{"sell-rate", simulateSellRate, &in.SellRate},
		} {
			v, err := decimal.NewFromString(f.raw)
			if err != nil {
				return fmt.Errorf("--%s: %w", f.name, err)
			}
			if v.IsNegative() {
				return fmt.Errorf("--%s 不能为负数", f.name)
			}
			*f.dst = v
		}
		return getApp().Simulate(cmd.Context(), in, cmd.OutOrStdout())
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateInstrument, "instrument", "", "Instrument name")
	simulateCmd.Flags().StringVar(&simulateBid, "bid", "", "主交易所买一价")
	simulateCmd.Flags().StringVar(&simulateAsk, "ask", "", "主交易所卖一价")
	simulateCmd.Flags().StringVar(&simulateBuyRate, "buy-rate", "", "对比场所买入价")
	simulateCmd.Flags().StringVar(&simulateSellRate, "sell-rate", "", "对比场所卖出价")
	for _, name := range []string{"instrument", "bid", "ask", "buy-rate", "sell-rate"} {
		_ = simulateCmd.MarkFlagRequired(name)
	}
}
