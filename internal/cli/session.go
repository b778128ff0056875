package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/sdejongh/davsync/internal/platform"
	"github.com/sdejongh/davsync/pkg/config"
	"github.com/sdejongh/davsync/pkg/logging"
	"github.com/sdejongh/davsync/pkg/output"
	"github.com/sdejongh/davsync/pkg/state"
	"github.com/sdejongh/davsync/pkg/sync"
	"github.com/sdejongh/davsync/pkg/webdav"
)

// loadConfig reads the configuration file and applies global flag overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(globalFlags.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	applyFlagsToConfig(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyFlagsToConfig overrides configuration values with command-line flags
func applyFlagsToConfig(cfg *config.Config) {
	if globalFlags.Output != "" {
		cfg.Output.Format = globalFlags.Output
	}
	if globalFlags.Quiet {
		cfg.Output.Quiet = true
	}
	if globalFlags.LogLevel != "" {
		cfg.Logging.Level = globalFlags.LogLevel
	}
	if globalFlags.Verbose && globalFlags.LogLevel == "" {
		cfg.Logging.Level = "debug"
	}
	if globalFlags.LogFile != "" {
		cfg.Logging.File = globalFlags.LogFile
	}
	if globalFlags.LogFormat != "" {
		cfg.Logging.Format = globalFlags.LogFormat
	}
}

// createLogger builds the logger for a command. Console output goes to
// stderr when console is set; the file output follows the configuration.
func createLogger(cfg *config.Config, console bool, stderr io.Writer) (logging.Logger, error) {
	if !console && cfg.Logging.File == "" {
		return logging.NewNullLogger(), nil
	}

	return logging.New(logging.Config{
		Level:         logging.ParseLevel(cfg.Logging.Level),
		Console:       console,
		ConsoleWriter: stderr,
		Path:          platform.NormalizePath(cfg.Logging.File),
		Format:        logging.Format(cfg.Logging.Format),
		MaxSizeMB:     cfg.Logging.MaxSizeMB,
		MaxBackups:    cfg.Logging.MaxBackups,
		MaxAgeDays:    cfg.Logging.MaxAgeDays,
	})
}

// createClient builds a WebDAV client from the connection settings
func createClient(cfg *config.Config) (*webdav.Client, error) {
	if err := cfg.ValidateConnection(); err != nil {
		return nil, err
	}
	limit, err := cfg.BandwidthLimit()
	if err != nil {
		return nil, err
	}
	client, err := webdav.New(webdav.Options{
		BaseURL:            cfg.WebDAV.URL,
		Username:           cfg.WebDAV.Username,
		Password:           cfg.WebDAV.Password,
		Timeout:            cfg.Timeout(),
		UserAgent:          "davsync/" + Version,
		InsecureSkipVerify: cfg.WebDAV.InsecureSkipVerify,
		BandwidthLimit:     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create WebDAV client: %w", err)
	}
	return client, nil
}

// createFormatter returns the output formatter, with colors only on a terminal
func createFormatter(cmd *cobra.Command, cfg *config.Config) (output.Formatter, error) {
	colored := false
	if f, ok := cmd.OutOrStdout().(*os.File); ok {
		colored = !color.NoColor && isatty.IsTerminal(f.Fd())
	}
	return output.New(cfg.Output.Format, colored)
}

// session bundles what a pass needs: client, state store and engine
type session struct {
	cfg    *config.Config
	logger logging.Logger
	client *webdav.Client
	store  *state.Store
	engine *sync.Engine

	retired []*state.Store // replaced by a reload, still locked
}

// openSession validates the sync settings and wires a ready engine. The
// state file is locked until Close.
func openSession(cmd *cobra.Command, cfg *config.Config, console bool) (*session, error) {
	if err := cfg.ValidateSync(); err != nil {
		return nil, err
	}

	logger, err := createLogger(cfg, console, cmd.ErrOrStderr())
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	client, err := createClient(cfg)
	if err != nil {
		logger.Close()
		return nil, err
	}

	store := state.Open(cfg.StatePath(), logger)
	if err := store.Lock(); err != nil {
		logger.Close()
		return nil, fmt.Errorf("cannot use state file %s: %w", store.Path(), err)
	}

	return &session{
		cfg:    cfg,
		logger: logger,
		client: client,
		store:  store,
		engine: sync.NewEngine(client, store, cfg.PassOptions(), logger),
	}, nil
}

// Close releases the state lock and the log file
func (s *session) Close() error {
	err := s.store.Unlock()
	for _, st := range s.retired {
		st.Unlock()
	}
	if cerr := s.logger.Close(); err == nil {
		err = cerr
	}
	return err
}
