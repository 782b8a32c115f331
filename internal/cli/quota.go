package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/chirag127/chirag127.github.io-sub000/internal/quota"
)

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Show today's session budget",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		m, err := newQuota(cfg)
		if err != nil {
			return err
		}
		st := m.Status()

		if format == "json" {
			return writeJSON(cmd.OutOrStdout(), st)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Date:       %s\n", st.Date)
		fmt.Fprintf(out, "Used:       %d / %d\n", st.SessionsUsed, st.DailyLimit)
		fmt.Fprintf(out, "Remaining:  %d (%d for low/normal, %d reserved for high/critical)\n",
			st.Remaining, st.RemainingStandard, st.ReservedQuota)

		if len(st.Sessions) == 0 {
			return nil
		}
		fmt.Fprintln(out)
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tPRIORITY\tREPO\tSESSION")
		for _, s := range st.Sessions {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Timestamp.Local().Format("15:04:05"), s.Priority, s.Repo, s.ID)
		}
		return w.Flush()
	},
}

var quotaCheckCmd = &cobra.Command{
	Use:   "check [priority]",
	Short: "Report whether a session of the given priority may be created now",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var arg string
		if len(args) == 1 {
			arg = args[0]
		}
		p, err := quota.ParsePriority(arg)
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		m, err := newQuota(cfg)
		if err != nil {
			return err
		}

		if !m.CanCreateSession(p) {
			return fmt.Errorf("no quota left for %s priority work today", p)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "OK: %d %s-priority session(s) available\n", m.Headroom(p), p)
		return nil
	},
}

func init() {
	quotaCmd.Flags().String("format", "text", "Output format: text or json")
	quotaCmd.AddCommand(quotaCheckCmd)
}
