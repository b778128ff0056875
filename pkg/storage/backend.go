package storage

import (
	"context"
	"time"
)

// FileInfo represents metadata about a local file
type FileInfo struct {
	Path         string
	Size         int64
	ModTime      time.Time
	IsDir        bool
	Permissions  uint32
	RelativePath string // forward-slash separated, relative to the backend root
}

// Filter reports whether a path should be skipped during a listing.
// Returning true for a directory skips its whole subtree.
type Filter func(relativePath string, isDir bool) bool

// Backend defines the local side of a sync pass
type Backend interface {
	// Root returns the absolute root directory
	Root() string

	// Abs resolves a forward-slash relative path under the root
	Abs(relativePath string) (string, error)

	// List returns all regular files under the root, recursively
	List(ctx context.Context, filter Filter) ([]FileInfo, error)

	// Stat returns file metadata
	Stat(ctx context.Context, relativePath string) (*FileInfo, error)
}
