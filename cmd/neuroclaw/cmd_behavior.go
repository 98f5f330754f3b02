package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/user/neuroclaw/internal/behavior"
	"github.com/user/neuroclaw/internal/types"
)

func init() {
	behaviorExportCmd.Flags().StringVar(&behaviorSession, "session", "", "restrict to one session key")
	behaviorExportCmd.Flags().IntVar(&behaviorLimit, "limit", 0, "max events (default 1000, cap 5000)")
	behaviorDeleteCmd.Flags().StringVar(&behaviorSession, "session", "", "restrict to one session key")
	behaviorDeleteCmd.Flags().BoolVar(&behaviorPrefs, "preferences", false, "also delete learned preferences")
	behaviorRetentionCmd.Flags().BoolVar(&behaviorDryRun, "dry-run", false, "report without deleting")
	behaviorCmd.AddCommand(behaviorExportCmd, behaviorDeleteCmd, behaviorRetentionCmd, behaviorStatsCmd)
	rootCmd.AddCommand(behaviorCmd)
}

var (
	behaviorSession string
	behaviorLimit   int
	behaviorPrefs   bool
	behaviorDryRun  bool
)

var behaviorCmd = &cobra.Command{
	Use:   "behavior",
	Short: "Manage the behavioral store",
}

// openStore opens the behavioral database at the configured location.
// Retention days come from the config so a CLI sweep matches the daemon's.
func openStore() (*behavior.Store, error) {
	cfg := loadConfig()
	store, err := behavior.Open(behavior.Options{
		DBPath:        cfg.DBPath(),
		RetentionDays: cfg.Retention.Days,
	})
	if err != nil {
		return nil, fmt.Errorf("open behavior store: %w", err)
	}
	return store, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var behaviorExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export behavioral events and preferences as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		export, err := store.ExportData(behavior.ExportOptions{
			SessionKey: types.SessionKey(behaviorSession),
			Limit:      behaviorLimit,
		})
		if err != nil {
			return err
		}
		return printJSON(export)
	},
}

var behaviorDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete behavioral events",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		result, err := store.DeleteData(behavior.DeleteOptions{
			SessionKey:        types.SessionKey(behaviorSession),
			DeletePreferences: behaviorPrefs,
		})
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var behaviorRetentionCmd = &cobra.Command{
	Use:   "retention",
	Short: "Run a retention sweep now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		result, err := store.PruneExpired(0, behaviorDryRun)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var behaviorStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show behavioral store statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := store.Stats()
		if err != nil {
			return err
		}
		return printJSON(stats)
	},
}
