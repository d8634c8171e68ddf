package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"tour-price-tracker/internal/app"
)

var (
	alertTour       int64
	alertSubscriber int64
	alertType       string
	alertPrice      string
	alertPercentage string
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Manage and evaluate alert rules",
}

var alertsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate active alerts against current prices",
	RunE: func(cmd *cobra.Command, args []string) error {
		fired, err := getApp().CheckAlerts(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d alert(s) fired\n", fired)
		return nil
	},
}

var alertsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create an alert rule for a tour",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.AddAlertOptions{
			TourSourceID:        alertTour,
			SubscriberID:        alertSubscriber,
			Type:                alertType,
			ThresholdPrice:      alertPrice,
			ThresholdPercentage: alertPercentage,
		}
		id, err := getApp().AddAlert(cmd.Context(), opts)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "alert %d created\n", id)
		return nil
	},
}

func init() {
	alertsAddCmd.Flags().Int64Var(&alertTour, "tour", 0, "Tour source id the rule watches")
	alertsAddCmd.Flags().Int64Var(&alertSubscriber, "subscriber", 0, "Subscriber id owning the rule")
	alertsAddCmd.Flags().StringVar(&alertType, "type", "price_drop", "Alert type: price_drop, price_increase, price_change, percentage_drop")
	alertsAddCmd.Flags().StringVar(&alertPrice, "threshold-price", "", "Threshold price for price_drop/price_increase rules")
	alertsAddCmd.Flags().StringVar(&alertPercentage, "threshold-percent", "", "Threshold percentage for percentage_drop rules")
	_ = alertsAddCmd.MarkFlagRequired("tour")
	_ = alertsAddCmd.MarkFlagRequired("subscriber")

	alertsCmd.AddCommand(alertsCheckCmd)
	alertsCmd.AddCommand(alertsAddCmd)
}
