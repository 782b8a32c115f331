package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/chirag127/chirag127.github.io-sub000/internal/fsutil"
)

// The run lock keeps two orchestrators from sharing one quota file and queue.
// Holders refresh it every runLockRefresh so a live lock never looks stale.
const (
	runLockName    = "run.lock"
	runLockStale   = 6 * time.Hour
	runLockRefresh = 5 * time.Minute
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Create and monitor sessions for the queued work until it drains",
	Long: `Load pending work from the queue, create coding-agent sessions in priority
order within the daily quota, and monitor them until every session reaches a
terminal state. Waiting sessions are nudged, plans are approved, and stuck
sessions are diagnosed and recovered where possible.

Work that does not fit in today's quota stays pending for the next run.
Only one run may hold the data dir at a time.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		lock, err := fsutil.AcquireLock(filepath.Join(cfg.DataDir, runLockName), runLockStale)
		if err != nil {
			return fmt.Errorf("another run holds the data dir: %w", err)
		}
		defer lock.Release()

		st, err := buildStack(cfg, false)
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := loadPending(st.db, st.orch)
		if err != nil {
			return err
		}
		log.Info().Int("items", n).Msg("loaded pending work")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		g, gctx := errgroup.WithContext(ctx)
		keepCtx, stopKeep := context.WithCancel(gctx)
		g.Go(func() error {
			defer stopKeep()
			if err := st.orch.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			if err := lock.KeepAlive(keepCtx, runLockRefresh); err != nil {
				return fmt.Errorf("run lock: %w", err)
			}
			return nil
		})
		if err := g.Wait(); err != nil {
			return err
		}

		stats := st.orch.Stats()
		if format == "json" {
			return writeJSON(cmd.OutOrStdout(), stats)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Created %d session(s): %d completed, %d failed, %d still running\n",
			stats.Created, stats.Completed, stats.Failed, stats.Running)
		fmt.Fprintf(out, "Nudges: %d  Plans approved: %d  Recoveries: %d\n",
			stats.Nudges, stats.PlansApproved, stats.Recoveries)
		if stats.Queued > 0 {
			fmt.Fprintf(out, "%d item(s) left queued", stats.Queued)
			if stats.BudgetExhausted {
				fmt.Fprint(out, " (daily quota exhausted)")
			}
			fmt.Fprintln(out)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().String("format", "text", "Output format: text or json")
}
