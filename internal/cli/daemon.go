package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sdejongh/davsync/pkg/logging"
	"github.com/sdejongh/davsync/pkg/models"
	"github.com/sdejongh/davsync/pkg/state"
	"github.com/sdejongh/davsync/pkg/sync"
)

// NewDaemonCommand creates the daemon command
func NewDaemonCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Synchronise on a schedule until stopped",
		Long: `Run a first pass immediately, then one every sync.interval_minutes while
sync.auto_sync is enabled. SIGHUP reloads the configuration; SIGINT and
SIGTERM stop after the pass in flight.`,
		RunE: runDaemon,
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	return serve(ctx, cmd, hup)
}

// serve runs the scheduler until ctx is done, reloading the configuration
// whenever reload fires
func serve(ctx context.Context, cmd *cobra.Command, reload <-chan os.Signal) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	formatter, err := createFormatter(cmd, cfg)
	if err != nil {
		return err
	}

	sess, err := openSession(cmd, cfg, !cfg.Output.Quiet)
	if err != nil {
		return err
	}
	defer sess.Close()

	logger := sess.logger
	out := cmd.OutOrStdout()
	quiet := cfg.Output.Quiet

	sess.engine.Subscribe(sync.ObserverFuncs{
		OnStatus: func(ev models.StatusEvent) {
			if !quiet {
				formatter.Status(out, ev)
			}
		},
		OnDownload: func(ev models.FileDownloadedEvent) {
			logger.Debug(ctx, "file replaced from server", logging.Fields{"path": ev.RelativePath})
		},
	})

	scheduler := sync.NewScheduler(sess.engine, logger)
	scheduler.Reconfigure(cfg.Sync.AutoSync, cfg.Interval())
	scheduler.OnResult(func(result *models.SyncPassResult, err error) {
		if err == nil && result.Transferred() && !quiet {
			formatter.Result(out, result)
		}
	})

	logger.Info(ctx, "daemon started", logging.Fields{
		"local":     cfg.LocalRoot(),
		"remote":    cfg.WebDAV.RemoteFolder,
		"auto_sync": cfg.Sync.AutoSync,
		"interval":  cfg.Interval().String(),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scheduler.Run(gctx)
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-reload:
				if err := reconfigure(gctx, sess, scheduler); err != nil {
					logger.Error(gctx, "configuration reload failed, keeping previous settings", err, nil)
				}
			}
		}
	})

	scheduler.Trigger()

	err = g.Wait()
	logger.Info(context.Background(), "daemon stopped", nil)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// reconfigure reloads the configuration into a running daemon. Passes
// started afterwards use the new server, folder and schedule.
func reconfigure(ctx context.Context, sess *session, scheduler *sync.Scheduler) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateSync(); err != nil {
		return err
	}

	client, err := createClient(cfg)
	if err != nil {
		return err
	}

	store := sess.store
	if path := cfg.StatePath(); path != store.Path() {
		store = state.Open(path, sess.logger)
		if err := store.Lock(); err != nil {
			return err
		}
		// A pass in flight may still save the old store; keep it locked
		// until the daemon exits.
		sess.retired = append(sess.retired, sess.store)
	}

	sess.engine.Configure(client, store, cfg.PassOptions())
	scheduler.Reconfigure(cfg.Sync.AutoSync, cfg.Interval())

	sess.cfg = cfg
	sess.client = client
	sess.store = store

	sess.logger.Info(ctx, "configuration reloaded", logging.Fields{
		"remote":    cfg.WebDAV.RemoteFolder,
		"auto_sync": cfg.Sync.AutoSync,
		"interval":  cfg.Interval().String(),
	})
	return nil
}
