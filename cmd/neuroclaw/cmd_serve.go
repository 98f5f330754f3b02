package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/user/neuroclaw/internal/behavior"
	"github.com/user/neuroclaw/internal/capture"
	"github.com/user/neuroclaw/internal/config"
	"github.com/user/neuroclaw/internal/flags"
	"github.com/user/neuroclaw/internal/gateway"
	"github.com/user/neuroclaw/internal/httpapi"
	"github.com/user/neuroclaw/internal/prompt"
	"github.com/user/neuroclaw/internal/scheduler"
	"github.com/user/neuroclaw/internal/types"
	"github.com/user/neuroclaw/pkg/llm"
	"github.com/user/neuroclaw/pkg/llm/openai"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the neuroclaw daemon",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, "neuroclaw.pid")
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

// initialFlags seeds the flag service from the config file. The file only
// sets the starting point; flags.set mutations win from then on.
func initialFlags(cfg *config.Config) flags.Patch {
	return flags.Patch{
		ProactiveCards: &cfg.Flags.ProactiveCards,
		FlowMode:       &cfg.Flags.FlowMode,
		PreferenceSync: &cfg.Flags.PreferenceSync,
		KillSwitch:     &cfg.Flags.KillSwitch,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	// Behavioral store
	store, err := behavior.Open(behavior.Options{
		DBPath:        cfg.DBPath(),
		RetentionDays: cfg.Retention.Days,
	})
	if err != nil {
		return fmt.Errorf("open behavior store: %w", err)
	}
	defer store.Close()

	// Model catalog; without a base URL every apply falls back.
	var catalog llm.Catalog
	if cfg.LLM.BaseURL != "" {
		catalog = openai.New(llm.Config{
			BaseURL: cfg.LLM.BaseURL,
			APIKey:  cfg.LLM.APIKey,
		})
	}

	engine := prompt.New(cfg.LLM.Model, cfg.LLM.MaxContextTokens, cfg.LLM.OutputReserve)

	svc, err := gateway.New(gateway.Options{
		Store:  store,
		Models: catalog,
		Flags:  flags.New(flags.Options{Initial: initialFlags(cfg)}),
		Prompt: engine,
	})
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slog.Info("neuroclaw started",
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"db_path", cfg.DBPath(),
		"llm_model", cfg.LLM.Model,
		"pid_file", pidPath,
	)

	// Capture sensors
	var jobs []scheduler.Job
	if cfg.Capture.Enabled {
		sensors := []capture.Sensor{
			capture.NewClipboardSensor(),
			capture.NewActiveWindowSensor(),
		}
		if len(cfg.Capture.WatchPaths) > 0 {
			fsSensor, err := capture.NewFSSensor(cfg.Capture.WatchPaths)
			if err != nil {
				slog.Warn("fs sensor disabled", "error", err)
			} else {
				defer fsSensor.Close()
				sensors = append(sensors, fsSensor)
			}
		}
		runner := capture.NewRunner(capture.Options{Sensors: sensors})
		sessionKey := types.SessionKey(cfg.Capture.SessionKey)
		jobs = append(jobs, scheduler.Job{
			Name:     "capture",
			Schedule: cfg.Capture.Schedule,
			Enabled:  true,
			Run: func() {
				svc.RunCapturePass(ctx, runner, sessionKey)
			},
		})
	} else {
		slog.Info("capture disabled")
	}

	// Retention sweep
	jobs = append(jobs, scheduler.Job{
		Name:     "retention",
		Schedule: cfg.Retention.Schedule,
		Enabled:  cfg.Retention.Days > 0,
		Run: func() {
			result, err := svc.BehaviorRetention(ctx, gateway.RetentionParams{})
			if err != nil {
				slog.Error("retention sweep failed", "error", err)
				return
			}
			if result.DeletedEvents > 0 {
				slog.Info("retention sweep", "deleted_events", result.DeletedEvents)
			}
		},
	})

	sched := scheduler.New(jobs...)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	// HTTP API
	httpServer := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: httpapi.NewServer(svc),
	}
	go func() {
		slog.Info("http server started", "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		httpServer.Close()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			slog.Info("received SIGHUP, restarting")
			execPath, err := os.Executable()
			if err != nil {
				slog.Error("failed to get executable path", "error", err)
				continue
			}
			os.Remove(pidPath)
			if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
				slog.Error("failed to re-exec", "error", err)
				if _, writeErr := writePIDFile(cfg.DataDir); writeErr != nil {
					slog.Error("failed to re-write PID file", "error", writeErr)
				}
				continue
			}
		}
		slog.Info("shutting down", "signal", sig)
		return nil
	}
}
