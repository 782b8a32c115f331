package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database management",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		d, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer d.Close()

		fmt.Fprintf(cmd.OutOrStdout(), "Database at %s is up to date\n", redactURL(cfg.DatabaseURL()))
		return nil
	},
}

var dbResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop and recreate every table (destructive!)",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			return fmt.Errorf("use --confirm to erase the event log and work queue")
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

		if err := d.Reset(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Database reset")
		return nil
	},
}

var dbPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete events and finished queue items older than a cutoff",
	RunE: func(cmd *cobra.Command, args []string) error {
		olderThan, _ := cmd.Flags().GetDuration("older-than")
		if olderThan <= 0 {
			return fmt.Errorf("--older-than must be positive")
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

		n, err := d.Prune(olderThan)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d row(s)\n", n)
		return nil
	},
}

func init() {
	dbResetCmd.Flags().Bool("confirm", false, "Confirm erasing all data")
	dbPruneCmd.Flags().Duration("older-than", 30*24*time.Hour, "Age cutoff")

	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbResetCmd)
	dbCmd.AddCommand(dbPruneCmd)
}
