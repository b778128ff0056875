package cli

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/sdejongh/davsync/pkg/webdav"
)

// NewRemoteCommand creates the remote command and its subcommands. Paths
// are relative to webdav.url, not to the synchronised folder.
func NewRemoteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Inspect and modify files on the WebDAV server",
	}

	cmd.AddCommand(newRemoteListCommand())
	cmd.AddCommand(newRemoteStatCommand())
	cmd.AddCommand(newRemoteGetCommand())
	cmd.AddCommand(newRemotePutCommand())
	cmd.AddCommand(newRemoteMkdirCommand())
	cmd.AddCommand(newRemoteRemoveCommand())
	cmd.AddCommand(newRemoteMoveCommand())

	return cmd
}

// withClient loads the configuration and runs fn with a connected client
func withClient(cmd *cobra.Command, fn func(ctx context.Context, client *webdav.Client, format string) error) error {
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
	return fn(ctx, client, cfg.Output.Format)
}

func newRemoteListCommand() *cobra.Command {
	var recursive bool

	cmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List a collection",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return withClient(cmd, func(ctx context.Context, client *webdav.Client, format string) error {
				var resources []webdav.Resource
				var err error
				if recursive {
					resources, err = client.ListDirectoryRecursive(ctx, dir)
				} else {
					resources, err = client.ListDirectory(ctx, dir)
				}
				if err != nil {
					return err
				}
				return printResources(cmd.OutOrStdout(), format, resources)
			})
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "R", false, "list every file below the collection")
	return cmd
}

func newRemoteStatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Short: "Show the properties of a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, client *webdav.Client, format string) error {
				info, err := client.GetResourceInfo(ctx, args[0])
				if err != nil {
					return err
				}
				if info == nil {
					return fmt.Errorf("%s: not found", webdav.NormalizePath(args[0]))
				}
				return printResources(cmd.OutOrStdout(), format, []webdav.Resource{*info})
			})
		},
	}
}

func newRemoteGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <remote-path> [local-path]",
		Short: "Download a file",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			local := path.Base(webdav.NormalizePath(args[0]))
			if len(args) == 2 {
				local = args[1]
			}
			return withClient(cmd, func(ctx context.Context, client *webdav.Client, format string) error {
				n, err := client.DownloadFileTo(ctx, args[0], filepath.FromSlash(local))
				if err != nil {
					return err
				}
				if !globalFlags.Quiet {
					fmt.Fprintf(cmd.OutOrStdout(), "Downloaded %s to %s (%s)\n", args[0], local, humanize.IBytes(uint64(n)))
				}
				return nil
			})
		},
	}
}

func newRemotePutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "put <local-path> <remote-path>",
		Short: "Upload a file, replacing any existing one",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, client *webdav.Client, format string) error {
				n, err := client.UploadFile(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				if !globalFlags.Quiet {
					fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s to %s (%s)\n", args[0], args[1], humanize.IBytes(uint64(n)))
				}
				return nil
			})
		},
	}
}

func newRemoteMkdirCommand() *cobra.Command {
	var parents bool

	cmd := &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, client *webdav.Client, format string) error {
				target := webdav.NormalizePath(args[0])
				if !parents {
					return client.CreateDirectory(ctx, target)
				}
				for _, prefix := range webdav.Segments(target) {
					if _, err := client.MakeCollection(ctx, prefix); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&parents, "parents", "p", false, "create missing parent collections")
	return cmd
}

func newRemoteRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete a file or collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, client *webdav.Client, format string) error {
				return client.Delete(ctx, args[0])
			})
		},
	}
}

func newRemoteMoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <source> <destination>",
		Short: "Move or rename a resource",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, client *webdav.Client, format string) error {
				return client.Move(ctx, args[0], args[1])
			})
		},
	}
}

func printResources(w io.Writer, format string, resources []webdav.Resource) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if resources == nil {
			resources = []webdav.Resource{}
		}
		return enc.Encode(resources)
	}

	for _, r := range resources {
		name := r.Path
		size := humanize.IBytes(r.Size)
		if r.IsDirectory {
			name += "/"
			size = "-"
		}
		modified := "-"
		if !r.LastModified.IsZero() {
			modified = r.LastModified.Local().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%10s  %s  %s\n", size, modified, name)
	}
	return nil
}
