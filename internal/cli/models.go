package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Show the model fallback chain and provider availability",
	Long: `Show every catalog model in chain order (largest first) with its provider,
timeout and whether it is eligible in this process. A model is eligible when it
is marked working and its provider has credentials.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client, err := newDispatch(cfg, nil)
		if err != nil {
			return err
		}
		st := client.Status()

		if format == "json" {
			return writeJSON(cmd.OutOrStdout(), st)
		}

		out := cmd.OutOrStdout()
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIER\tMODEL\tSIZE\tPROVIDER\tTIMEOUT\tJSON\tELIGIBLE")
		for i, m := range st.Models {
			fmt.Fprintf(w, "%d\t%s\t%gB\t%s\t%s\t%s\t%s\n",
				i, m.Name, m.SizeB, m.Provider, m.Timeout(), yesNo(m.StructuredOutput), yesNo(m.Eligible))
		}
		if err := w.Flush(); err != nil {
			return err
		}

		fmt.Fprintln(out)
		w = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PROVIDER\tAVAILABLE")
		for _, p := range st.Providers {
			fmt.Fprintf(w, "%s\t%s\n", p.Provider, yesNo(p.Available))
		}
		return w.Flush()
	},
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func init() {
	modelsCmd.Flags().String("format", "text", "Output format: text or json")
}
