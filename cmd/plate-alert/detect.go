package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"plate-alert-service/internal/domain/detection"
)

var (
	detectCamera      string
	detectLocation    string
	detectConcurrency int
)

var detectCmd = &cobra.Command{
	Use:   "detect <image-url>...",
	Short: "Run detection for one or more image URLs and print the results",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		reqs := make([]detection.Request, len(args))
		for i, url := range args {
			reqs[i] = detection.Request{ImageURL: url, CameraID: detectCamera, Location: detectLocation}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if len(reqs) == 1 {
			result, err := a.detections.ProcessDetection(cmd.Context(), reqs[0])
			if encErr := enc.Encode(result); encErr != nil {
				return encErr
			}
			return err
		}

		results, err := a.detections.ProcessBatch(cmd.Context(), reqs, detectConcurrency)
		if err != nil {
			return err
		}
		return enc.Encode(results)
	},
}

func init() {
	detectCmd.Flags().StringVar(&detectCamera, "camera", "", "Camera identifier")
	detectCmd.Flags().StringVar(&detectLocation, "location", "", "Camera location shown in alerts")
	detectCmd.Flags().IntVar(&detectConcurrency, "concurrency", 0, "Maximum concurrent detections for several URLs")
	rootCmd.AddCommand(detectCmd)
}
