package models

import (
	"fmt"
	"time"
)

// SyncPassResult summarises one synchronisation pass
type SyncPassResult struct {
	// Pass details
	PassID     string `json:"pass_id"`
	LocalRoot  string `json:"local_root"`
	RemoteRoot string `json:"remote_root"`
	DryRun     bool   `json:"dry_run,omitempty"`

	// Timing
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
	Duration  time.Duration `json:"duration"`

	// Counts
	Uploaded   int `json:"uploaded"`
	Downloaded int `json:"downloaded"`
	Unchanged  int `json:"unchanged"`
	Conflicted int `json:"conflicted"`

	// Data transfer
	BytesUploaded   int64 `json:"bytes_uploaded"`
	BytesDownloaded int64 `json:"bytes_downloaded"`

	// Conflicts encountered, in processing order
	Conflicts []Conflict `json:"conflicts,omitempty"`

	// Operations performed (skips excluded)
	Operations []FileOperation `json:"operations,omitempty"`
}

// ConflictPaths returns the relative paths that were in conflict
func (r *SyncPassResult) ConflictPaths() []string {
	paths := make([]string, 0, len(r.Conflicts))
	for _, c := range r.Conflicts {
		paths = append(paths, c.Path)
	}
	return paths
}

// AddConflict appends a conflict and keeps the counter in step
func (r *SyncPassResult) AddConflict(c Conflict) {
	r.Conflicts = append(r.Conflicts, c)
	r.Conflicted = len(r.Conflicts)
}

// Message renders the one-line summary shown to users after a pass
func (r *SyncPassResult) Message() string {
	prefix := "Sync complete"
	if r.DryRun {
		prefix = "Dry run"
	}
	msg := fmt.Sprintf("%s: %d uploaded, %d downloaded, %d unchanged",
		prefix, r.Uploaded, r.Downloaded, r.Unchanged)
	if r.Conflicted > 0 {
		msg += fmt.Sprintf(", %d conflicts (saved both versions)", r.Conflicted)
	}
	return msg
}

// Transferred reports whether the pass moved any file in either direction
func (r *SyncPassResult) Transferred() bool {
	return r.Uploaded+r.Downloaded+r.Conflicted > 0
}

// SyncStatus is the engine's current state
type SyncStatus string

const (
	// StatusIdle means no pass has run yet
	StatusIdle SyncStatus = "idle"
	// StatusSyncing means a pass is running
	StatusSyncing SyncStatus = "syncing"
	// StatusSuccess means the last pass completed
	StatusSuccess SyncStatus = "success"
	// StatusError means the last pass failed or could not start
	StatusError SyncStatus = "error"
)

// ExitCode returns the process exit code for a finished pass
func (s SyncStatus) ExitCode() int {
	switch s {
	case StatusSuccess, StatusIdle:
		return 0
	case StatusError:
		return 2
	default:
		return 1
	}
}
