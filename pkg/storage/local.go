package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrOutsideRoot is returned for relative paths that escape the root
var ErrOutsideRoot = errors.New("path escapes sync root")

// Local is a filesystem-based backend rooted at the synced directory
type Local struct {
	rootPath string
}

// NewLocal creates a new local filesystem backend
func NewLocal(rootPath string) (*Local, error) {
	absPath, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to access path: %w", err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", absPath)
	}

	return &Local{rootPath: absPath}, nil
}

// Root returns the absolute root directory
func (l *Local) Root() string {
	return l.rootPath
}

// Abs resolves a forward-slash relative path under the root
func (l *Local) Abs(relativePath string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(relativePath, "/")))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
		return "", fmt.Errorf("%s: %w", relativePath, ErrOutsideRoot)
	}
	return filepath.Join(l.rootPath, clean), nil
}

// List returns all regular files under the root, sorted by relative path.
// Directories are walked but not returned; symlinks and other special files are skipped.
func (l *Local) List(ctx context.Context, filter Filter) ([]FileInfo, error) {
	var files []FileInfo

	err := filepath.WalkDir(l.rootPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if p == l.rootPath {
			return nil
		}

		relPath, err := filepath.Rel(l.rootPath, p)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		if filter != nil && filter(relPath, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		files = append(files, FileInfo{
			Path:         p,
			Size:         info.Size(),
			ModTime:      info.ModTime(),
			Permissions:  uint32(info.Mode().Perm()),
			RelativePath: relPath,
		})

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelativePath < files[j].RelativePath })
	return files, nil
}

// Stat returns file metadata
func (l *Local) Stat(ctx context.Context, relativePath string) (*FileInfo, error) {
	fullPath, err := l.Abs(relativePath)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	return &FileInfo{
		Path:         fullPath,
		Size:         info.Size(),
		ModTime:      info.ModTime(),
		IsDir:        info.IsDir(),
		Permissions:  uint32(info.Mode().Perm()),
		RelativePath: filepath.ToSlash(strings.TrimPrefix(relativePath, "/")),
	}, nil
}

// WriteFileAtomic streams r into a hidden temp file next to path and renames it
// into place, so readers never observe a partially written file. Missing
// parent directories are created.
func WriteFileAtomic(path string, r io.Reader) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".davsync-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	written, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return written, fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return written, fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return written, fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return written, fmt.Errorf("failed to replace file: %w", err)
	}

	return written, nil
}
