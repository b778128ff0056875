package webdav

import "time"

// Resource is a file or collection reported by the server.
// Path is normalised and relative to the client's base URL.
type Resource struct {
	Path         string    `json:"path"`
	IsDirectory  bool      `json:"is_directory"`
	Size         uint64    `json:"size"`
	LastModified time.Time `json:"last_modified"`
	ETag         string    `json:"etag"` // quotes and weak prefix stripped
}

// Name returns the last path segment
func (r Resource) Name() string {
	p := NormalizePath(r.Path)
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[i+1:]
		}
	}
	return p
}
