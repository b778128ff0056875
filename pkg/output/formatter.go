package output

import (
	"fmt"
	"io"

	"github.com/sdejongh/davsync/pkg/models"
)

// Formatter defines the interface for output formatting
// Implementations include human-readable and JSON formatters
type Formatter interface {
	// Result renders a finished pass
	Result(w io.Writer, result *models.SyncPassResult) error

	// Status renders an engine status change
	Status(w io.Writer, event models.StatusEvent) error

	// Error reports an error that stopped a command
	Error(w io.Writer, err error) error

	// Name returns the formatter name
	Name() string
}

// New returns the formatter for format ("human" or "json")
func New(format string, colored bool) (Formatter, error) {
	switch format {
	case "", "human":
		return NewHumanFormatter(colored), nil
	case "json":
		return NewJSONFormatter(), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}
