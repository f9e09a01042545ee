package main

import (
	"github.com/spf13/cobra"
)

var cleanupDays int

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete detections older than the given number of days",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		deleted, err := a.history.CleanupOldDetections(cmd.Context(), cleanupDays)
		if err != nil {
			return err
		}
		a.log.Info().Int64("deleted_count", deleted).Int("days", cleanupDays).Msg("cleanup finished")
		return nil
	},
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 90, "Retention period in days")
	rootCmd.AddCommand(cleanupCmd)
}
