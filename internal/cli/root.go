package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ExitError carries the process exit code for a failure that was already
// reported to the user
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewRootCommand assembles the davsync command tree
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "davsync",
		Short: "Keep a local folder in sync with a WebDAV folder",
		Long: `davsync keeps a local directory tree consistent with a folder on a WebDAV
server (Nextcloud, ownCloud, Apache mod_dav, ...). Changes on either side are
propagated; files edited on both sides keep both versions.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Add global flags
	AddGlobalFlags(rootCmd)

	// Add commands
	rootCmd.AddCommand(NewSyncCommand())
	rootCmd.AddCommand(NewDaemonCommand())
	rootCmd.AddCommand(NewTestCommand())
	rootCmd.AddCommand(NewRemoteCommand())
	rootCmd.AddCommand(NewStateCommand())
	rootCmd.AddCommand(NewConfigCommand())
	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}
