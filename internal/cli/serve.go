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
	"github.com/chirag127/chirag127.github.io-sub000/internal/orchestrator"
	"github.com/chirag127/chirag127.github.io-sub000/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the orchestrator continuously with the status web UI",
	Long: `Start the read-only status UI and JSON API, and keep the orchestrator
polling: queued work is picked up as quota allows and live sessions are
monitored until the process is stopped.

With --ui-only the orchestrator is not started; the UI then shows the
persisted queue, quota file and event log.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		uiOnly, _ := cmd.Flags().GetBool("ui-only")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if addr == "" {
			addr = cfg.Web.Addr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if uiOnly {
			d, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer d.Close()
			q, err := newQuota(cfg)
			if err != nil {
				return err
			}
			chain, err := newDispatch(cfg, nil)
			if err != nil {
				return err
			}
			srv := web.NewServer(web.Options{Quota: q, Chain: chain, History: d})
			return srv.Start(ctx, addr)
		}

		lock, err := fsutil.AcquireLock(filepath.Join(cfg.DataDir, runLockName), runLockStale)
		if err != nil {
			return fmt.Errorf("another run holds the data dir: %w", err)
		}
		defer lock.Release()

		st, err := buildStack(cfg, true)
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := loadPending(st.db, st.orch)
		if err != nil {
			return err
		}
		log.Info().Int("items", n).Msg("loaded pending work")

		srv := web.NewServer(web.Options{
			Sessions: st.orch,
			Quota:    st.quota,
			Chain:    st.dispatch,
			History:  st.db,
		})

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			err := st.orch.Run(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		g.Go(func() error {
			return srv.Start(gctx, addr)
		})
		g.Go(func() error {
			return watchQueue(gctx, st, orchestrator.FromConfig(cfg).PollInterval)
		})
		g.Go(func() error {
			if err := lock.KeepAlive(gctx, runLockRefresh); err != nil {
				return fmt.Errorf("run lock: %w", err)
			}
			return nil
		})
		return g.Wait()
	},
}

// sessionRetention is how long serve keeps finished sessions in memory.
const sessionRetention = 24 * time.Hour

// watchQueue picks up items added with "queue add" while serve is running
// and forgets finished sessions past sessionRetention.
func watchQueue(ctx context.Context, st *stack, every time.Duration) error {
	if every <= 0 {
		every = time.Minute
	}
	tick := time.NewTicker(every)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}
		if pruned := st.orch.Prune(sessionRetention); pruned > 0 {
			log.Debug().Int("sessions", pruned).Msg("pruned finished sessions")
		}
		n, err := loadPending(st.db, st.orch)
		if err != nil {
			log.Warn().Err(err).Msg("reload pending work")
			continue
		}
		if n > 0 {
			log.Info().Int("items", n).Msg("picked up queued work")
		}
	}
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default from config, 127.0.0.1:8080)")
	serveCmd.Flags().Bool("ui-only", false, "Serve the UI without running the orchestrator")
}
