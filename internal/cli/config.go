package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sdejongh/davsync/internal/platform"
	"github.com/sdejongh/davsync/pkg/config"
)

// NewConfigCommand creates the config command
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  `View or create the davsync configuration file.`,
	}

	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigInitCommand())

	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration (password hidden)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			data, err := yaml.Marshal(cfg.Redacted())
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# state file: %s\n", cfg.StatePath())
			_, err = out.Write(data)
			return err
		},
	}
}

func newConfigInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultConfigPath()
			if globalFlags.ConfigFile != "" {
				path = platform.ExpandHome(globalFlags.ConfigFile)
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
			}

			cfg := config.Default()
			if err := config.SaveToFile(cfg, path); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Configuration file created at: %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
