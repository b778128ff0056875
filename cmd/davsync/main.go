package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sdejongh/davsync/internal/cli"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.Version, cli.Commit, cli.BuildDate = version, commit, date

	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
