package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"commodity-price-alerts/internal/app"
)

var addOpts app.AddOptions

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Manage price alerts",
}

var alertsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create an alert on an instrument",
	RunE: func(cmd *cobra.Command, args []string) error {
		if addOpts.InstrumentID == "" {
			return errors.New("--instrument is required")
		}
		if addOpts.Target == "" {
			return errors.New("--target is required")
		}
		return getApp().AddAlert(cmd.Context(), addOpts)
	},
}

var alertsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List alerts and their state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ListAlerts(cmd.Context())
	},
}

var alertsToggleCmd = &cobra.Command{
	Use:   "toggle <id>",
	Short: "Enable or disable an alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ToggleAlert(cmd.Context(), args[0])
	},
}

var alertsResetCmd = &cobra.Command{
	Use:   "reset <id>",
	Short: "Re-arm a triggered alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ResetAlert(cmd.Context(), args[0])
	},
}

var alertsRemoveCmd = &cobra.Command{
	Use:     "remove <id>",
	Aliases: []string{"rm"},
	Short:   "Delete an alert",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().RemoveAlert(cmd.Context(), args[0])
	},
}

func init() {
	alertsAddCmd.Flags().StringVar(&addOpts.InstrumentID, "instrument", "", "Instrument id as reported by the price feed")
	alertsAddCmd.Flags().StringVar(&addOpts.Label, "label", "", "Display name used in notifications (defaults to the id)")
	alertsAddCmd.Flags().StringVar(&addOpts.Target, "target", "", "Target price")
	alertsAddCmd.Flags().StringVar(&addOpts.Direction, "direction", "below", "Crossing direction: below or above")

	alertsCmd.AddCommand(alertsAddCmd, alertsListCmd, alertsToggleCmd, alertsResetCmd, alertsRemoveCmd)
}
