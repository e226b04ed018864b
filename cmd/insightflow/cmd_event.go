package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/insightflow/internal/engine"
	"github.com/user/insightflow/internal/types"
)

func init() {
	rootCmd.AddCommand(eventCmd)
	eventCmd.AddCommand(eventLogCmd, eventListCmd)

	eventLogCmd.Flags().String("type", string(types.EventCustom), "event type (camera_analysis, chat_message, sensor_reading, activity_log, custom)")
	eventLogCmd.Flags().String("source", "", "event source (required)")
	eventLogCmd.Flags().String("content", "", "text content")
	eventLogCmd.Flags().Float64("value", 0, "numeric value")
	eventLogCmd.Flags().String("session", "", "session id")
	eventLogCmd.Flags().StringSlice("tag", nil, "tag (repeatable)")
	eventLogCmd.Flags().String("data", "", "structured data as a JSON object")
	eventLogCmd.MarkFlagRequired("source")

	eventListCmd.Flags().String("window", "1h", "time window")
	eventListCmd.Flags().StringSlice("type", nil, "filter by event type (repeatable)")
	eventListCmd.Flags().StringSlice("source", nil, "filter by source (repeatable)")
	eventListCmd.Flags().String("session", "", "filter by session id")
	eventListCmd.Flags().Int("limit", 50, "maximum events")
	eventListCmd.Flags().Bool("json", false, "print JSON")
}

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Log and list events",
}

var eventLogCmd = &cobra.Command{
	Use:   "log",
	Short: "Log one event",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, _ := cmd.Flags().GetString("type")
		eventType, err := types.ParseEventType(typ)
		if err != nil {
			return err
		}
		source, _ := cmd.Flags().GetString("source")
		e := types.NewEvent(eventType, source)
		e.Content, _ = cmd.Flags().GetString("content")
		if cmd.Flags().Changed("value") {
			v, _ := cmd.Flags().GetFloat64("value")
			e.NumericValue = &v
		}
		session, _ := cmd.Flags().GetString("session")
		e.SessionID = types.SessionID(session)
		if tags, _ := cmd.Flags().GetStringSlice("tag"); len(tags) > 0 {
			e.Tags = tags
		}
		if data, _ := cmd.Flags().GetString("data"); data != "" {
			if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
				return fmt.Errorf("--data: %w", err)
			}
		}

		return withClient(func(ctx context.Context, c *engine.Client) error {
			id, err := c.LogEvent(ctx, e)
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		})
	},
}

var eventListCmd = &cobra.Command{
	Use:   "list",
	Short: "List events in a time window, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		window, _ := cmd.Flags().GetString("window")
		typeNames, _ := cmd.Flags().GetStringSlice("type")
		sources, _ := cmd.Flags().GetStringSlice("source")
		session, _ := cmd.Flags().GetString("session")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		filter := types.EventFilter{Sources: sources, SessionID: types.SessionID(session), Limit: limit}
		for _, t := range typeNames {
			et, err := types.ParseEventType(t)
			if err != nil {
				return err
			}
			filter.Types = append(filter.Types, et)
		}

		return withClient(func(ctx context.Context, c *engine.Client) error {
			events, err := c.GetEvents(ctx, window, filter)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(events)
			}
			if len(events) == 0 {
				fmt.Println("No events found.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tTYPE\tSOURCE\tCONTENT")
			for _, e := range events {
				content := e.Content
				if content == "" && e.NumericValue != nil {
					content = fmt.Sprintf("%g", *e.NumericValue)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Type, e.Source, clip(content, 60))
			}
			return w.Flush()
		})
	},
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
