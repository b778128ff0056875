package models

import (
	"time"
)

// Conflict records a path that changed on both sides since the last pass.
// Both versions are kept: the server copy is saved next to the local file
// under ConflictPath and the local copy is uploaded.
type Conflict struct {
	// Path is the relative path of the conflicting file
	Path string `json:"path"`

	// ConflictPath is the relative path of the saved server copy
	ConflictPath string `json:"conflict_path"`

	// LocalFingerprint and RemoteFingerprint are the versions that collided
	LocalFingerprint  string `json:"local_fingerprint"`
	RemoteFingerprint string `json:"remote_fingerprint"`

	// DetectedAt is when the conflict was detected
	DetectedAt time.Time `json:"detected_at"`
}
