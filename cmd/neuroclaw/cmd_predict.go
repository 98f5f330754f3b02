package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/user/neuroclaw/internal/predict"
	"github.com/user/neuroclaw/internal/types"
)

func init() {
	rootCmd.AddCommand(predictCmd)
}

var predictCmd = &cobra.Command{
	Use:   "predict <session-key> <source> <signal>",
	Short: "Preview the prediction decision for a signal",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		source := types.Source(args[1])
		if !source.Valid() {
			return fmt.Errorf("unknown source: %s", args[1])
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		engine := predict.New(store, predict.Options{})
		decision, err := engine.Predict(types.SessionKey(args[0]), source, args[2], time.Now().UnixMilli())
		if err != nil {
			return err
		}
		return printJSON(decision)
	},
}
