package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/insightflow/internal/backend"
	"github.com/user/insightflow/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("InsightFlow Setup Wizard")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		kind := prompt(scanner, "Backend (local or remote)", cfg.Backend.Kind)
		if _, err := backend.ParseKind(kind); err != nil {
			return err
		}
		cfg.Backend.Kind = kind

		if backend.Kind(kind) == backend.KindLocal {
			cfg.Local.BaseURL = prompt(scanner, "llama.cpp server URL", cfg.Local.BaseURL)
			cfg.Local.Model = prompt(scanner, "Model name", cfg.Local.Model)
		} else {
			cfg.Remote.Endpoint = prompt(scanner, "Azure OpenAI endpoint (empty for api.openai.com)", cfg.Remote.Endpoint)
			cfg.Remote.APIKey = prompt(scanner, "API key", cfg.Remote.APIKey)
			if cfg.Remote.Endpoint != "" {
				cfg.Remote.Deployment = prompt(scanner, "Deployment name", cfg.Remote.Deployment)
			}
			cfg.Remote.Model = prompt(scanner, "Model name", cfg.Remote.Model)
		}

		interval := prompt(scanner, "Auto-insight interval in seconds (0 disables)", strconv.Itoa(cfg.AutoInsightInterval))
		if n, err := strconv.Atoi(interval); err == nil && n >= 0 {
			cfg.AutoInsightInterval = n
		}

		cfg.Telegram.Token = prompt(scanner, "Telegram bot token (optional)", cfg.Telegram.Token)
		if cfg.Telegram.Token != "" {
			chat := prompt(scanner, "Telegram chat id", strconv.FormatInt(cfg.Telegram.ChatID, 10))
			if n, err := strconv.ParseInt(chat, 10, 64); err == nil {
				cfg.Telegram.ChatID = n
			}
		}

		httpOn := prompt(scanner, "Enable HTTP API (y/n)", yesNo(cfg.HTTP.Enabled))
		cfg.HTTP.Enabled = strings.HasPrefix(strings.ToLower(httpOn), "y")

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		return nil
	},
}

func yesNo(b bool) string {
	if b {
		return "y"
	}
	return "n"
}

// prompt displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func prompt(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}
