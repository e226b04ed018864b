package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/insightflow/internal/engine"
	"github.com/user/insightflow/internal/types"
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionStartCmd, sessionEndCmd, sessionShowCmd, sessionSummarizeCmd)

	sessionStartCmd.Flags().String("topic", "", "session topic")
	sessionShowCmd.Flags().Bool("json", false, "print JSON")
	sessionSummarizeCmd.Flags().String("topic", "", "focus topic")
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage sessions",
}

var sessionStartCmd = &cobra.Command{
	Use:   "start <source>",
	Short: "Start a session and print its id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topic, _ := cmd.Flags().GetString("topic")
		return withClient(func(ctx context.Context, c *engine.Client) error {
			id, err := c.StartSession(ctx, args[0], topic)
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		})
	},
}

var sessionEndCmd = &cobra.Command{
	Use:   "end <id>",
	Short: "End a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *engine.Client) error {
			if err := c.EndSession(ctx, types.SessionID(args[0])); err != nil {
				return err
			}
			fmt.Println("Session ended.")
			return nil
		})
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		return withClient(func(ctx context.Context, c *engine.Client) error {
			s, err := c.GetSession(ctx, types.SessionID(args[0]))
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(s)
			}
			fmt.Printf("ID:      %s\n", s.ID)
			fmt.Printf("Source:  %s\n", s.Source)
			if s.Topic != "" {
				fmt.Printf("Topic:   %s\n", s.Topic)
			}
			fmt.Printf("Status:  %s\n", s.Status)
			fmt.Printf("Started: %s\n", s.StartedAt.Local().Format(time.DateTime))
			if s.EndedAt != nil {
				fmt.Printf("Ended:   %s\n", s.EndedAt.Local().Format(time.DateTime))
			}
			fmt.Printf("Events:  %d\n", s.EventCount)
			return nil
		})
	},
}

var sessionSummarizeCmd = &cobra.Command{
	Use:   "summarize <id>",
	Short: "Summarise the observations recorded in a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topic, _ := cmd.Flags().GetString("topic")
		return withClient(func(ctx context.Context, c *engine.Client) error {
			summary, err := c.SummarizeSession(ctx, types.SessionID(args[0]), topic)
			if err != nil {
				return err
			}
			fmt.Println(summary)
			return nil
		})
	},
}
