package models

import (
	"path"
	"strings"
	"time"
)

// DefaultDirSettleDelay is the pause after creating remote collections, giving
// servers with eventually consistent listings time to catch up.
const DefaultDirSettleDelay = 500 * time.Millisecond

// DefaultHashWorkers is how many local files are fingerprinted concurrently
const DefaultHashWorkers = 4

// PassOptions configures what a sync pass synchronises
type PassOptions struct {
	// LocalRoot is the local directory kept in sync
	LocalRoot string
	// RemoteRoot is the collection path relative to the WebDAV base URL
	RemoteRoot string
	// ExcludePatterns are gitignore-style patterns skipped on both sides
	ExcludePatterns []string
	// DirSettleDelay is waited after any remote collection was created
	DirSettleDelay time.Duration
	// HashWorkers bounds concurrent local fingerprinting; 0 means DefaultHashWorkers
	HashWorkers int
	// DryRun plans the pass without creating collections, transferring files or recording state
	DryRun bool
}

// Validate checks if the options are usable for a pass
func (o *PassOptions) Validate() error {
	if o.LocalRoot == "" {
		return &ValidationError{Field: "LocalRoot", Message: "local root is required"}
	}
	if o.RemoteRoot == "" {
		return &ValidationError{Field: "RemoteRoot", Message: "remote folder is required"}
	}
	if o.DirSettleDelay < 0 {
		return &ValidationError{Field: "DirSettleDelay", Message: "settle delay cannot be negative"}
	}
	if o.HashWorkers < 0 {
		return &ValidationError{Field: "HashWorkers", Message: "hash workers cannot be negative"}
	}
	for _, p := range o.ExcludePatterns {
		if strings.TrimSpace(p) == "" {
			return &ValidationError{Field: "ExcludePatterns", Message: "empty exclude pattern"}
		}
		if _, err := path.Match(strings.TrimSuffix(p, "/"), ""); err != nil {
			return &ValidationError{Field: "ExcludePatterns", Message: "invalid pattern " + p}
		}
	}
	return nil
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
