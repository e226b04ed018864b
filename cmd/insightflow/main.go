package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/insightflow/internal/backend"
	"github.com/user/insightflow/internal/config"
	"github.com/user/insightflow/internal/engine"
	"github.com/user/insightflow/internal/metrics"
	"github.com/user/insightflow/internal/state"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "insightflow",
	Short:         "Time-series event analytics with LLM-generated insights",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config",
		filepath.Join(os.Getenv("HOME"), ".insightflow", "config.json"), "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig loads the config file or exits.
func loadConfig() *config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// newClient builds an insight client from cfg. Background jobs are only
// configured when background is set; one-shot commands leave them off.
func newClient(cfg *config.Config, m *metrics.Metrics, background bool) (*engine.Client, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	bopts, err := cfg.BackendOptions()
	if err != nil {
		return nil, err
	}
	be, err := backend.New(bopts)
	if err != nil {
		return nil, fmt.Errorf("create backend: %w", err)
	}

	eopts, err := cfg.EngineOptions(m)
	if err != nil {
		return nil, err
	}
	if !background {
		eopts.AutoInsightInterval = 0
		eopts.Scheduled = nil
	}
	return engine.New(state.NewStore(cfg.StorePath()), be, eopts)
}

// withClient runs fn against a started client and stops it afterwards.
func withClient(fn func(ctx context.Context, c *engine.Client) error) error {
	cfg := loadConfig()
	setupLogging(cfg)

	c, err := newClient(cfg, nil, false)
	if err != nil {
		return err
	}
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := c.Stop(); err != nil {
			slog.Warn("stop client", "error", err)
		}
	}()
	return fn(ctx, c)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
