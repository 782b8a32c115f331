package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/chirag127/chirag127.github.io-sub000/internal/analytics"
)

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Query model and session analytics from the event log",
}

var analyticsModelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Attempts, success rate and latency per model",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		since, _ := cmd.Flags().GetString("since")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		d, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer d.Close()

		results, err := analytics.QueryModelStats(d, since)
		if err != nil {
			return err
		}
		if format == "json" {
			return writeJSON(cmd.OutOrStdout(), results)
		}
		if len(results) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No dispatch attempts recorded")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "MODEL\tPROVIDER\tATTEMPTS\tSUCCESS\tTOKENS\tAVG_MS\tP95_MS")
		for _, r := range results {
			fmt.Fprintf(w, "%s\t%s\t%d\t%.1f%%\t%d\t%.0f\t%.0f\n",
				r.Model, r.Provider, r.Attempts, r.SuccessRate, r.Tokens, r.AvgMs, r.P95Ms)
		}
		return w.Flush()
	},
}

var analyticsSessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Session duration in minutes by outcome",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		since, _ := cmd.Flags().GetString("since")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		d, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer d.Close()

		results, err := analytics.QuerySessionDurations(d, since)
		if err != nil {
			return err
		}
		if format == "json" {
			return writeJSON(cmd.OutOrStdout(), results)
		}
		if len(results) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No finished sessions recorded")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "OUTCOME\tCOUNT\tAVG_MIN\tP50_MIN\tP95_MIN")
		for _, r := range results {
			fmt.Fprintf(w, "%s\t%d\t%.1f\t%.1f\t%.1f\n", r.Outcome, r.Count, r.Avg, r.P50, r.P95)
		}
		return w.Flush()
	},
}

var analyticsThroughputCmd = &cobra.Command{
	Use:   "throughput",
	Short: "Sessions created, finished and helped per day",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		days, _ := cmd.Flags().GetInt("days")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		d, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer d.Close()

		results, err := analytics.QueryDailyThroughput(d, days)
		if err != nil {
			return err
		}
		if format == "json" {
			return writeJSON(cmd.OutOrStdout(), results)
		}
		if len(results) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No session activity recorded")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "DAY\tCREATED\tCOMPLETED\tFAILED\tNUDGES\tRECOVERIES")
		for _, r := range results {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n", r.Day, r.Created, r.Completed, r.Failed, r.Nudges, r.Recoveries)
		}
		return w.Flush()
	},
}

func init() {
	for _, c := range []*cobra.Command{analyticsModelsCmd, analyticsSessionsCmd, analyticsThroughputCmd} {
		c.Flags().String("format", "table", "Output format: table or json")
	}
	analyticsModelsCmd.Flags().String("since", "", "Only count attempts on or after this date (YYYY-MM-DD)")
	analyticsSessionsCmd.Flags().String("since", "", "Only count events on or after this date (YYYY-MM-DD)")
	analyticsThroughputCmd.Flags().Int("days", 14, "Number of days to show")

	analyticsCmd.AddCommand(analyticsModelsCmd)
	analyticsCmd.AddCommand(analyticsSessionsCmd)
	analyticsCmd.AddCommand(analyticsThroughputCmd)
}
