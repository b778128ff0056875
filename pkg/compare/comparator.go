package compare

import (
	"context"
	"io"
	"strings"
)

// Fingerprinter computes a content fingerprint for local files.
// Fingerprints are compared with recorded values to detect local edits.
type Fingerprinter interface {
	// Fingerprint hashes everything read from r
	Fingerprint(ctx context.Context, r io.Reader, size int64) (string, error)

	// FingerprintFile hashes the file at path
	FingerprintFile(ctx context.Context, path string) (string, error)

	// Name returns the name of the fingerprint algorithm
	Name() string
}

// Equal reports whether two fingerprints denote the same content.
// Servers differ in hex case, so the comparison ignores it.
func Equal(a, b string) bool {
	return strings.EqualFold(a, b)
}

// Changed reports whether current differs from what was recorded
func Changed(recorded, current string) bool {
	return !Equal(recorded, current)
}

// NormalizeETag strips the weak validator prefix and surrounding quotes
func NormalizeETag(etag string) string {
	etag = strings.TrimSpace(etag)
	etag = strings.TrimPrefix(etag, "W/")
	return strings.Trim(etag, `"`)
}
