package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/chirag127/chirag127.github.io-sub000/internal/db"
	"github.com/chirag127/chirag127.github.io-sub000/internal/orchestrator"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect the session event log",
}

var sessionHistoryCmd = &cobra.Command{
	Use:   "history <session-id>",
	Short: "Show every recorded event for one session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		d, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer d.Close()

		events, err := d.SessionHistory(args[0])
		if err != nil {
			return err
		}
		if format == "json" {
			if events == nil {
				events = []db.SessionEvent{}
			}
			return writeJSON(cmd.OutOrStdout(), events)
		}
		if len(events) == 0 {
			return fmt.Errorf("no events for session %s", args[0])
		}
		return printEvents(cmd, events, false)
	},
}

var sessionRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Show the latest events across all sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		limit, _ := cmd.Flags().GetInt("limit")
		if limit <= 0 {
			return fmt.Errorf("--limit must be positive")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		d, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer d.Close()

		events, err := d.RecentSessionEvents(limit)
		if err != nil {
			return err
		}
		if format == "json" {
			if events == nil {
				events = []db.SessionEvent{}
			}
			return writeJSON(cmd.OutOrStdout(), events)
		}
		if len(events) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No session events recorded")
			return nil
		}
		return printEvents(cmd, events, true)
	},
}

// prLink is one pull request opened by a completed session.
type prLink struct {
	SessionID string `json:"session_id"`
	Repo      string `json:"repo"`
	URL       string `json:"url"`
	State     string `json:"state"`
	Title     string `json:"title,omitempty"`
	Error     string `json:"error,omitempty"`
}

var sessionPRsCmd = &cobra.Command{
	Use:   "prs",
	Short: "Show the pull requests opened by recently completed sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		limit, _ := cmd.Flags().GetInt("limit")
		if limit <= 0 {
			return fmt.Errorf("--limit must be positive")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		d, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer d.Close()

		events, err := d.RecentSessionEvents(limit)
		if err != nil {
			return err
		}

		gh := newGitHub()
		links := []prLink{}
		for _, e := range events {
			if e.Event != string(orchestrator.StateCompleted) || !strings.HasPrefix(e.Detail, "https://") {
				continue
			}
			link := prLink{SessionID: e.SessionID, Repo: e.Repo, URL: e.Detail}
			pr, err := gh.GetPR(e.Detail)
			if err != nil {
				link.State = "UNKNOWN"
				link.Error = err.Error()
			} else {
				link.State = pr.State
				link.Title = pr.Title
			}
			links = append(links, link)
		}

		if format == "json" {
			return writeJSON(cmd.OutOrStdout(), links)
		}
		if len(links) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No pull requests recorded")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "REPO\tSTATE\tPR\tTITLE")
		for _, l := range links {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", l.Repo, l.State, l.URL, truncate(l.Title, 50))
		}
		return w.Flush()
	},
}

func printEvents(cmd *cobra.Command, events []db.SessionEvent, withSession bool) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	if withSession {
		fmt.Fprintln(w, "TIME\tSESSION\tREPO\tEVENT\tDETAIL")
	} else {
		fmt.Fprintln(w, "TIME\tREPO\tEVENT\tDETAIL")
	}
	for _, e := range events {
		detail := truncate(e.Detail, 60)
		if withSession {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Timestamp, e.SessionID, e.Repo, e.Event, detail)
		} else {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Timestamp, e.Repo, e.Event, detail)
		}
	}
	return w.Flush()
}

func init() {
	sessionHistoryCmd.Flags().String("format", "table", "Output format: table or json")
	sessionRecentCmd.Flags().String("format", "table", "Output format: table or json")
	sessionRecentCmd.Flags().Int("limit", 30, "Number of events to show")

	sessionPRsCmd.Flags().String("format", "table", "Output format: table or json")
	sessionPRsCmd.Flags().Int("limit", 200, "Number of recent events to scan")

	sessionCmd.AddCommand(sessionHistoryCmd)
	sessionCmd.AddCommand(sessionRecentCmd)
	sessionCmd.AddCommand(sessionPRsCmd)
}
