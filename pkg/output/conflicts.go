package output

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sdejongh/davsync/pkg/models"
)

// WriteConflictReport writes the conflicts of a pass to a file
// Format can be "human" or "json". Nothing is written for a pass without conflicts.
func WriteConflictReport(result *models.SyncPassResult, path string, format string) error {
	if len(result.Conflicts) == 0 {
		return nil
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create conflict report: %w", err)
	}
	defer file.Close()

	switch format {
	case "json":
		return encode(file, newReportData(result).Conflicts, true)
	default: // "human"
		return writeConflictsHuman(result, file)
	}
}

func writeConflictsHuman(r *models.SyncPassResult, w io.Writer) error {
	fmt.Fprintf(w, "Conflict Report\n")
	fmt.Fprintf(w, "===============\n\n")
	fmt.Fprintf(w, "Pass:   %s\n", r.PassID)
	fmt.Fprintf(w, "Local:  %s\n", r.LocalRoot)
	fmt.Fprintf(w, "Remote: %s\n\n", r.RemoteRoot)
	fmt.Fprintf(w, "Total Conflicts: %d\n\n", len(r.Conflicts))

	for _, c := range r.Conflicts {
		fmt.Fprintf(w, "%s\n", c.Path)
		fmt.Fprintf(w, "  Server copy: %s\n", c.ConflictPath)
		fmt.Fprintf(w, "  Detected:    %s\n", c.DetectedAt.Format(time.RFC3339))
		fmt.Fprintf(w, "  Local:       %s\n", c.LocalFingerprint)
		_, err := fmt.Fprintf(w, "  Remote:      %s\n\n", c.RemoteFingerprint)
		if err != nil {
			return err
		}
	}
	return nil
}
