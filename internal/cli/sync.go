package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sdejongh/davsync/pkg/output"
)

// SyncFlags holds sync command flags
type SyncFlags struct {
	LocalRoot      string
	RemoteFolder   string
	DryRun         bool
	Exclude        []string
	Progress       bool
	ConflictReport string
	ConflictFormat string
}

var syncFlags SyncFlags

// NewSyncCommand creates the sync command
func NewSyncCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one synchronisation pass",
		Long: `Synchronise the local folder with the WebDAV folder once.

Files changed on one side since the last pass are copied to the other side.
Files changed on both sides keep both versions: the server copy is saved next
to the local file as <name>.conflict-<timestamp><ext> and the local copy is
uploaded.`,
		RunE: runSync,
	}

	cmd.Flags().StringVarP(&syncFlags.LocalRoot, "local", "l", "", "local folder (overrides sync.local_root)")
	cmd.Flags().StringVarP(&syncFlags.RemoteFolder, "remote", "r", "", "remote folder (overrides webdav.remote_folder)")
	cmd.Flags().BoolVar(&syncFlags.DryRun, "dry-run", false, "show what would be transferred without changing anything")
	cmd.Flags().StringSliceVar(&syncFlags.Exclude, "exclude", []string{}, "additional ignore patterns")
	cmd.Flags().BoolVar(&syncFlags.Progress, "progress", false, "show a progress bar")
	cmd.Flags().StringVar(&syncFlags.ConflictReport, "conflict-report", "", "write conflicts to file")
	cmd.Flags().StringVar(&syncFlags.ConflictFormat, "conflict-format", "human", "conflict report format: human, json")

	return cmd
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if syncFlags.LocalRoot != "" {
		cfg.Sync.LocalRoot = syncFlags.LocalRoot
	}
	if syncFlags.RemoteFolder != "" {
		cfg.WebDAV.RemoteFolder = syncFlags.RemoteFolder
	}
	cfg.Exclude = append(cfg.Exclude, syncFlags.Exclude...)
	if syncFlags.Progress {
		cfg.Output.Progress = true
	}

	formatter, err := createFormatter(cmd, cfg)
	if err != nil {
		return err
	}

	sess, err := openSession(cmd, cfg, globalFlags.Verbose)
	if err != nil {
		return err
	}
	defer sess.Close()

	if syncFlags.DryRun {
		opts := sess.engine.Options()
		opts.DryRun = true
		sess.engine.Configure(sess.client, sess.store, opts)
	}

	if cfg.Output.Progress && !cfg.Output.Quiet && formatter.Name() == "human" {
		bar := output.NewProgressBar(cmd.ErrOrStderr())
		sess.engine.Subscribe(bar)
		defer bar.Finish()
	}

	result, err := sess.engine.Synchronize(ctx)
	if err != nil {
		formatter.Error(cmd.ErrOrStderr(), err)
		return &ExitError{Code: sess.engine.Status().Status.ExitCode(), Err: err}
	}

	if !cfg.Output.Quiet {
		if err := formatter.Result(cmd.OutOrStdout(), result); err != nil {
			return err
		}
	}

	if syncFlags.ConflictReport != "" {
		if err := output.WriteConflictReport(result, syncFlags.ConflictReport, syncFlags.ConflictFormat); err != nil {
			return fmt.Errorf("failed to write conflict report: %w", err)
		}
	}

	return nil
}
