package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/insightflow/internal/engine"
)

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().String("window", "24h", "time window")
	statsCmd.Flags().Bool("json", false, "print JSON")
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show grouped event counts for a time window",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		window, _ := cmd.Flags().GetString("window")
		asJSON, _ := cmd.Flags().GetBool("json")

		return withClient(func(ctx context.Context, c *engine.Client) error {
			agg, err := c.GetStatistics(ctx, window)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(agg)
			}

			fmt.Printf("Window %s: %d events\n\n", window, agg.Total)
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			printCounts(w, "TYPE", agg.ByType)
			printCounts(w, "SOURCE", agg.BySource)
			printCounts(w, "HOUR", agg.ByTime)
			return w.Flush()
		})
	},
}

func printCounts(w *tabwriter.Writer, title string, counts map[string]int64) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(w, "%s\tCOUNT\n", title)
	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%d\n", k, counts[k])
	}
	fmt.Fprintln(w)
}
