package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// ErrConnectionFailed is returned when the server does not answer OPTIONS
var ErrConnectionFailed = errors.New("connection failed")

// NewTestCommand creates the test command
func NewTestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Check that the WebDAV server is reachable with the configured credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := createClient(cfg)
			if err != nil {
				return err
			}

			if !client.TestConnection(ctx) {
				return fmt.Errorf("%w: %s", ErrConnectionFailed, client.BaseURL())
			}

			if !cfg.Output.Quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "Connected to %s\n", client.BaseURL())
			}
			return nil
		},
	}
}
