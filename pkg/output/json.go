package output

import (
	"io"
	"time"

	"github.com/goccy/go-json"

	"github.com/sdejongh/davsync/pkg/models"
)

// JSONFormatter formats output as JSON for automation and scripting
type JSONFormatter struct{}

// JSONReportData is the document written for a finished pass
type JSONReportData struct {
	PassID     string              `json:"pass_id"`
	Message    string              `json:"message"`
	DryRun     bool                `json:"dry_run,omitempty"`
	LocalRoot  string              `json:"local_root"`
	RemoteRoot string              `json:"remote_root"`
	StartedAt  string              `json:"started_at"`
	Duration   string              `json:"duration"`
	DurationMs int64               `json:"duration_ms"`
	Stats      JSONStatsData       `json:"stats"`
	Operations []JSONOperationData `json:"operations,omitempty"`
	Conflicts  []JSONConflictData  `json:"conflicts,omitempty"`
}

// JSONStatsData represents pass counters
type JSONStatsData struct {
	Uploaded        int   `json:"uploaded"`
	Downloaded      int   `json:"downloaded"`
	Unchanged       int   `json:"unchanged"`
	Conflicted      int   `json:"conflicted"`
	BytesUploaded   int64 `json:"bytes_uploaded"`
	BytesDownloaded int64 `json:"bytes_downloaded"`
}

// JSONOperationData represents one transfer
type JSONOperationData struct {
	Path       string `json:"path"`
	Action     string `json:"action"`
	Reason     string `json:"reason,omitempty"`
	Bytes      int64  `json:"bytes"`
	DurationMs int64  `json:"duration_ms"`
}

// JSONConflictData represents a conflict that kept both versions
type JSONConflictData struct {
	Path         string `json:"path"`
	ConflictPath string `json:"conflict_path"`
	DetectedAt   string `json:"detected_at"`
}

// JSONStatusData is written for status changes
type JSONStatusData struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	LastSync string `json:"last_sync,omitempty"`
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

// Result writes the pass as an indented JSON document
func (f *JSONFormatter) Result(w io.Writer, r *models.SyncPassResult) error {
	return encode(w, newReportData(r), true)
}

func newReportData(r *models.SyncPassResult) JSONReportData {
	data := JSONReportData{
		PassID:     r.PassID,
		Message:    r.Message(),
		DryRun:     r.DryRun,
		LocalRoot:  r.LocalRoot,
		RemoteRoot: r.RemoteRoot,
		StartedAt:  r.StartedAt.Format(time.RFC3339),
		Duration:   r.Duration.Round(time.Millisecond).String(),
		DurationMs: r.Duration.Milliseconds(),
		Stats: JSONStatsData{
			Uploaded:        r.Uploaded,
			Downloaded:      r.Downloaded,
			Unchanged:       r.Unchanged,
			Conflicted:      r.Conflicted,
			BytesUploaded:   r.BytesUploaded,
			BytesDownloaded: r.BytesDownloaded,
		},
	}

	for _, op := range r.Operations {
		data.Operations = append(data.Operations, JSONOperationData{
			Path:       op.Path,
			Action:     string(op.Action),
			Reason:     op.Reason,
			Bytes:      op.BytesCopied,
			DurationMs: op.Duration.Milliseconds(),
		})
	}
	for _, c := range r.Conflicts {
		data.Conflicts = append(data.Conflicts, JSONConflictData{
			Path:         c.Path,
			ConflictPath: c.ConflictPath,
			DetectedAt:   c.DetectedAt.Format(time.RFC3339),
		})
	}
	return data
}

// Status writes a status change as a single JSON line
func (f *JSONFormatter) Status(w io.Writer, ev models.StatusEvent) error {
	data := JSONStatusData{Status: string(ev.Status), Message: ev.Message}
	if !ev.LastSync.IsZero() {
		data.LastSync = ev.LastSync.Format(time.RFC3339)
	}
	return encode(w, data, false)
}

// Error writes the error as a JSON object
func (f *JSONFormatter) Error(w io.Writer, err error) error {
	return encode(w, map[string]string{"error": err.Error()}, false)
}

// Name returns the formatter name
func (f *JSONFormatter) Name() string {
	return "json"
}

func encode(w io.Writer, v any, indent bool) error {
	encoder := json.NewEncoder(w)
	if indent {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(v)
}
