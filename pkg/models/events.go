package models

import "time"

// StatusEvent is published whenever the engine's status changes
type StatusEvent struct {
	Status  SyncStatus
	Message string
	// LastSync is the completion time of the last successful pass; zero if none.
	LastSync time.Time
}

// FileDownloadedEvent is published after a server copy replaced or created a
// local file, so open editors can reload it.
type FileDownloadedEvent struct {
	LocalPath    string
	RelativePath string
}
