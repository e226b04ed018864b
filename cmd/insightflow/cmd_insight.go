package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/insightflow/internal/analysis"
	"github.com/user/insightflow/internal/engine"
	"github.com/user/insightflow/internal/types"
)

func init() {
	rootCmd.AddCommand(insightCmd)
	insightCmd.AddCommand(insightGenerateCmd, insightHistoryCmd)

	insightGenerateCmd.Flags().String("window", "1h", "time window")
	insightGenerateCmd.Flags().StringSlice("source", nil, "restrict to source (repeatable)")
	insightGenerateCmd.Flags().String("topic", "", "focus topic")
	insightGenerateCmd.Flags().String("session", "", "restrict to session id")
	insightGenerateCmd.Flags().String("prompt", "", "additional analysis instructions")
	insightGenerateCmd.Flags().Bool("no-save", false, "do not persist the insight")
	insightGenerateCmd.Flags().Bool("json", false, "print JSON")

	insightHistoryCmd.Flags().String("window", "", "only insights for this window")
	insightHistoryCmd.Flags().Duration("since", 0, "only insights newer than this (e.g. 24h)")
	insightHistoryCmd.Flags().Int("limit", 20, "maximum insights")
	insightHistoryCmd.Flags().Bool("json", false, "print JSON")
}

var insightCmd = &cobra.Command{
	Use:   "insight",
	Short: "Generate and review insights",
}

var insightGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate an insight for a time window",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		window, _ := cmd.Flags().GetString("window")
		sources, _ := cmd.Flags().GetStringSlice("source")
		topic, _ := cmd.Flags().GetString("topic")
		session, _ := cmd.Flags().GetString("session")
		prompt, _ := cmd.Flags().GetString("prompt")
		noSave, _ := cmd.Flags().GetBool("no-save")
		asJSON, _ := cmd.Flags().GetBool("json")

		opts := []engine.InsightOption{
			engine.WithSources(sources...),
			engine.WithTopic(topic),
			engine.WithCustomPrompt(prompt),
		}
		if session != "" {
			opts = append(opts, engine.ForSession(types.SessionID(session)))
		}
		if noSave {
			opts = append(opts, engine.WithoutSave())
		}

		return withClient(func(ctx context.Context, c *engine.Client) error {
			insight, err := c.GetInsight(ctx, window, opts...)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(insight)
			}
			printInsight(insight)
			return nil
		})
	},
}

func printInsight(in *types.Insight) {
	fmt.Printf("Insight %s (%s, %d events)\n\n", in.ID, in.TimeWindow, in.SourceEventsCount)
	fmt.Println(in.Summary)
	if len(in.Patterns) > 0 {
		fmt.Println("\nPatterns:")
		for _, p := range in.Patterns {
			fmt.Println("  -", p)
		}
	}
	if len(in.Recommendations) > 0 {
		fmt.Println("\nRecommendations:")
		for _, r := range in.Recommendations {
			fmt.Println("  -", r)
		}
	}
	fmt.Printf("\nConfidence: %.2f (%s)\n", in.Confidence, analysis.ConfidenceLabel(in.Confidence))
}

var insightHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored insights, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		window, _ := cmd.Flags().GetString("window")
		since, _ := cmd.Flags().GetDuration("since")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		filter := types.InsightFilter{Window: window, Limit: limit}
		if since > 0 {
			filter.Since = time.Now().UTC().Add(-since)
		}

		return withClient(func(ctx context.Context, c *engine.Client) error {
			insights, err := c.GetInsightsHistory(ctx, filter)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(insights)
			}
			if len(insights) == 0 {
				fmt.Println("No insights found.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CREATED\tWINDOW\tEVENTS\tCONFIDENCE\tSUMMARY")
			for _, in := range insights {
				fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\t%s\n",
					in.CreatedAt.Local().Format("2006-01-02 15:04"),
					in.TimeWindow,
					in.SourceEventsCount,
					in.Confidence,
					clip(strings.ReplaceAll(in.Summary, "\n", " "), 70),
				)
			}
			return w.Flush()
		})
	},
}
