package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/sdejongh/davsync/pkg/config"
	"github.com/sdejongh/davsync/pkg/logging"
	"github.com/sdejongh/davsync/pkg/state"
	"github.com/sdejongh/davsync/pkg/webdav"
)

// NewStateCommand creates the state command
func NewStateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or reset the recorded sync state",
		Long: `The state file records, per path, the fingerprints both sides agreed on at
the end of the last pass. Without it every file is treated as a first sync.`,
	}

	cmd.AddCommand(newStateShowCommand())
	cmd.AddCommand(newStateClearCommand())
	cmd.AddCommand(newStatePruneCommand())

	return cmd
}

// stateSummary is what state show prints
type stateSummary struct {
	Path               string                 `json:"path"`
	RemoteRoot         string                 `json:"remote_root,omitempty"`
	LastSuccessfulSync *time.Time             `json:"last_successful_sync,omitempty"`
	TrackedFiles       int                    `json:"tracked_files"`
	Files              []*state.FileSyncState `json:"files,omitempty"`
}

func openState(cfg *config.Config) (*state.Store, error) {
	if cfg.Sync.LocalRoot == "" && cfg.Sync.StateFile == "" {
		return nil, fmt.Errorf("sync.local_root is required to locate the state file")
	}
	return state.Open(cfg.StatePath(), logging.NewNullLogger()), nil
}

func newStateShowCommand() *cobra.Command {
	var files bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the state file for the configured folders",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openState(cfg)
			if err != nil {
				return err
			}

			summary := stateSummary{
				Path:         store.Path(),
				RemoteRoot:   store.RemoteRoot(),
				TrackedFiles: store.TrackedFileCount(),
			}
			if last := store.LastSuccessfulSync(); !last.IsZero() {
				summary.LastSuccessfulSync = &last
			}
			if files {
				for _, p := range store.Paths() {
					summary.Files = append(summary.Files, store.GetFileState(p))
				}
			}

			out := cmd.OutOrStdout()
			if cfg.Output.Format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(summary)
			}

			fmt.Fprintf(out, "State file:    %s\n", summary.Path)
			if summary.RemoteRoot != "" {
				fmt.Fprintf(out, "Remote folder: %s\n", summary.RemoteRoot)
			}
			if summary.LastSuccessfulSync != nil {
				fmt.Fprintf(out, "Last sync:     %s (%s)\n",
					summary.LastSuccessfulSync.Local().Format(time.DateTime), humanize.Time(*summary.LastSuccessfulSync))
			} else {
				fmt.Fprintf(out, "Last sync:     never\n")
			}
			fmt.Fprintf(out, "Tracked files: %d\n", summary.TrackedFiles)
			for _, f := range summary.Files {
				fmt.Fprintf(out, "  %s  %s  %s\n", f.LastLocalFingerprint, humanize.IBytes(f.Size), f.Path)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&files, "files", false, "list tracked files")
	return cmd
}

func newStateClearCommand() *cobra.Command {
	var remove bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Forget all recorded state; the next pass is a first sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openState(cfg)
			if err != nil {
				return err
			}
			if err := store.Lock(); err != nil {
				return err
			}
			defer store.Unlock()

			n := store.TrackedFileCount()
			if remove {
				err = state.Remove(store.Path())
			} else {
				store.Clear()
				err = store.Save()
			}
			if err != nil {
				return err
			}

			if !cfg.Output.Quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d entries from %s\n", n, store.Path())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&remove, "delete", false, "delete the state file instead of emptying it")
	return cmd
}

func newStatePruneCommand() *cobra.Command {
	var localOnly bool

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Drop entries for files that no longer exist",
		Long: `Remove state entries whose file exists neither locally nor on the server.
With --local-only the server is not consulted and entries for files missing
locally are dropped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openState(cfg)
			if err != nil {
				return err
			}

			var client *webdav.Client
			if !localOnly {
				if client, err = createClient(cfg); err != nil {
					return err
				}
			}

			if err := store.Lock(); err != nil {
				return err
			}
			defer store.Unlock()

			root := cfg.LocalRoot()
			var checkErr error
			removed := store.Prune(func(p string) bool {
				if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(p))); err == nil {
					return true
				}
				if client == nil || checkErr != nil {
					return checkErr != nil
				}
				exists, err := client.Exists(ctx, webdav.JoinPath(cfg.WebDAV.RemoteFolder, p))
				if err != nil {
					checkErr = err
					return true
				}
				return exists
			})
			if checkErr != nil {
				return fmt.Errorf("failed to check server, state left unchanged: %w", checkErr)
			}

			if err := store.Save(); err != nil {
				return err
			}
			if !cfg.Output.Quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d of %d entries\n", removed, removed+store.TrackedFileCount())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&localOnly, "local-only", false, "only check the local folder")
	return cmd
}
