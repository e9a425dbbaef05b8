package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"commodity-price-alerts/internal/app"
)

var simulateOpts app.SimulateOptions

var simulateCmd = &cobra.Command{
	Use:     "simulate",
	Short:   "Replay a price sequence against one alert",
	Example: "  pricealerts simulate --instrument onion --target 18 --direction below --prices 20,17.5,16",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateOpts.InstrumentID == "" || simulateOpts.Target == "" {
			return errors.New("--instrument and --target are required")
		}
		return getApp().Simulate(cmd.Context(), simulateOpts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateOpts.InstrumentID, "instrument", "", "Instrument id")
	simulateCmd.Flags().StringVar(&simulateOpts.Label, "label", "", "Display name used in notifications")
	simulateCmd.Flags().StringVar(&simulateOpts.Target, "target", "", "Target price")
	simulateCmd.Flags().StringVar(&simulateOpts.Direction, "direction", "below", "Crossing direction: below or above")
	simulateCmd.Flags().Float64SliceVar(&simulateOpts.Prices, "prices", nil, "Comma-separated price sequence, one per tick")
}
