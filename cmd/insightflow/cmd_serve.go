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

	"github.com/user/insightflow/internal/metrics"
	"github.com/user/insightflow/internal/telegram"
	"github.com/user/insightflow/internal/webhook"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the insight daemon (auto insights, scheduled insights, HTTP API, Telegram)",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "insightflow.pid")
}

func writePIDFile(dataDir string) (string, error) {
	pidPath := pidFilePath(dataDir)
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	m := metrics.New()
	client, err := newClient(cfg, m, true)
	if err != nil {
		return err
	}

	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer func() {
		if err := client.Stop(); err != nil {
			slog.Error("stop engine", "error", err)
		}
	}()

	slog.Info("insightflow started",
		"data_dir", cfg.DataDir,
		"db_path", cfg.StorePath(),
		"backend", cfg.Backend.Kind,
		"auto_insight_interval", cfg.AutoInsightInterval,
		"scheduled_insights", len(cfg.ScheduledInsights),
		"pid_file", pidPath,
	)

	// Telegram notifier
	if cfg.Telegram.Token != "" && cfg.Telegram.ChatID != 0 {
		bot, err := telegram.New(cfg.Telegram.Token, cfg.Telegram.ChatID, client)
		if err != nil {
			return fmt.Errorf("create telegram bot: %w", err)
		}
		client.OnInsight("telegram", cfg.Telegram.MinConfidence, bot.Notify)
		go bot.Start(ctx)
		slog.Info("telegram notifier started", "chat_id", cfg.Telegram.ChatID, "min_confidence", cfg.Telegram.MinConfidence)
	} else {
		slog.Warn("telegram notifier disabled (no token or chat id)")
	}

	// HTTP API
	if cfg.HTTP.Enabled {
		srv := webhook.NewServer(client, m.Handler())
		go func() {
			if err := srv.ListenAndServe(ctx, cfg.HTTP.Listen); err != nil && err != http.ErrServerClosed {
				slog.Error("http server error", "error", err)
			}
		}()
	}

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
			// Release the database and PID file before re-exec.
			cancel()
			if err := client.Stop(); err != nil {
				slog.Error("stop engine", "error", err)
			}
			os.Remove(pidPath)
			if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
				slog.Error("failed to re-exec", "error", err)
				return err
			}
		}
		// SIGINT or SIGTERM
		slog.Info("shutting down", "signal", sig)
		return nil
	}
}
