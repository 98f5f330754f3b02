package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/user/neuroclaw/internal/capture"
	"github.com/user/neuroclaw/internal/types"
)

func init() {
	captureCmd.Flags().StringVar(&captureSession, "session", "", "session key (default from config)")
	rootCmd.AddCommand(captureCmd)
}

var captureSession string

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Run one capture pass and print the redacted events",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		sessionKey := cfg.Capture.SessionKey
		if captureSession != "" {
			sessionKey = captureSession
		}

		sensors := []capture.Sensor{
			capture.NewClipboardSensor(),
			capture.NewActiveWindowSensor(),
		}
		if len(cfg.Capture.WatchPaths) > 0 {
			fsSensor, err := capture.NewFSSensor(cfg.Capture.WatchPaths)
			if err == nil {
				defer fsSensor.Close()
				sensors = append(sensors, fsSensor)
			}
		}

		runner := capture.NewRunner(capture.Options{Sensors: sensors})
		result := runner.CaptureOnce(context.Background(), types.SessionKey(sessionKey))
		return printJSON(result)
	},
}
