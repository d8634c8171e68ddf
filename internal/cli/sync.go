package cli

import (
	"github.com/spf13/cobra"

	"tour-price-tracker/internal/app"
)

var (
	syncDestinations []string
	syncActiveOnly   bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one price sync pass and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.SyncOptions{
			Destinations: syncDestinations,
			ActiveOnly:   syncActiveOnly,
		}
		return getApp().Sync(cmd.Context(), opts)
	},
}

func init() {
	syncCmd.Flags().StringSliceVar(&syncDestinations, "destination", nil, "Destination slugs to sync (defaults to config)")
	syncCmd.Flags().BoolVar(&syncActiveOnly, "active-only", false, "Only refresh destinations that already hold active tours")
}
