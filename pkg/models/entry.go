package models

import (
	"time"
)

// FileEntry represents a file on one side of a sync pass
type FileEntry struct {
	// RelativePath is the forward-slash path relative to the sync root
	RelativePath string

	// AbsolutePath is the full path on the local filesystem (empty for remote entries)
	AbsolutePath string

	// Size in bytes
	Size uint64

	// ModTime is the last modification time
	ModTime time.Time

	// Fingerprint is the MD5 hex digest for local files or the normalised ETag for remote ones
	Fingerprint string

	// Location indicates which side the entry was read from
	Location FileLocation
}

// FileLocation indicates which side(s) a file exists on
type FileLocation string

const (
	// LocationLocal indicates file exists in the local tree only
	LocationLocal FileLocation = "local"
	// LocationRemote indicates file exists on the WebDAV server only
	LocationRemote FileLocation = "remote"
	// LocationBoth indicates file exists on both sides
	LocationBoth FileLocation = "both"
)

// Action represents what a pass does with a file
type Action string

const (
	// ActionUpload sends the local copy to the server
	ActionUpload Action = "upload"
	// ActionDownload replaces the local copy with the server's
	ActionDownload Action = "download"
	// ActionSkip leaves the file alone
	ActionSkip Action = "skip"
	// ActionConflict keeps both copies
	ActionConflict Action = "conflict"
)

// FileOperation records an operation performed on a file
type FileOperation struct {
	Path        string
	Action      Action
	Reason      string
	BytesCopied int64
	Duration    time.Duration
}
