package compare

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// MD5Fingerprinter fingerprints file content with MD5.
// Many WebDAV servers report the MD5 of a resource as its ETag, which lets an
// unchanged file be recognised on both sides without a transfer.
type MD5Fingerprinter struct {
	buffers sync.Pool
}

// NewMD5Fingerprinter creates a fingerprinter reading bufferSize bytes at a time
func NewMD5Fingerprinter(bufferSize int) *MD5Fingerprinter {
	if bufferSize < 4096 {
		bufferSize = 4096
	}
	f := &MD5Fingerprinter{}
	f.buffers.New = func() any {
		buf := make([]byte, bufferSize)
		return &buf
	}
	return f
}

// FingerprintFile hashes the file at path
func (f *MD5Fingerprinter) FingerprintFile(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return f.Fingerprint(ctx, file, 0)
}

// Fingerprint hashes everything read from r. size is a hint and may be 0.
func (f *MD5Fingerprinter) Fingerprint(ctx context.Context, r io.Reader, size int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	buf := f.buffers.Get().(*[]byte)
	defer f.buffers.Put(buf)

	h := md5.New()
	if _, err := io.CopyBuffer(h, &ctxReader{ctx: ctx, r: r}, *buf); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Name returns the fingerprint algorithm name
func (f *MD5Fingerprinter) Name() string {
	return "md5"
}

// ctxReader stops a copy once ctx is done
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
