package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofrs/flock"

	"github.com/sdejongh/davsync/internal/platform"
	"github.com/sdejongh/davsync/pkg/logging"
)

// ErrStateLocked is returned by Lock when another process owns the state file
var ErrStateLocked = errors.New("state: locked by another process")

const stateFileVersion = 1

// FileSyncState is what both sides agreed on for a path at the end of the
// last pass that touched it. A missing entry means the path was never synced.
type FileSyncState struct {
	Path                  string    `json:"path"`
	LastLocalFingerprint  string    `json:"last_local_fingerprint"`
	LastRemoteFingerprint string    `json:"last_remote_fingerprint"`
	LastLocalModTime      time.Time `json:"last_local_mod_time"`
	LastRemoteModTime     time.Time `json:"last_remote_mod_time"`
	Size                  uint64    `json:"size"`
	LastSyncTime          time.Time `json:"last_sync_time"`
}

// document is the on-disk layout
type document struct {
	Version            int                       `json:"version"`
	RemoteRoot         string                    `json:"remote_root"`
	LastSuccessfulSync time.Time                 `json:"last_successful_sync"`
	Files              map[string]*FileSyncState `json:"files"`
}

// Store persists per-file sync state in a single JSON file.
// It is safe for concurrent use, though only the running pass mutates it.
type Store struct {
	path   string
	logger logging.Logger

	mu  sync.RWMutex
	doc document

	lock *flock.Flock
}

// Open loads the state file at path. A missing or unreadable file yields an
// empty store; a corrupt file is logged and replaced on the next Save.
func Open(path string, logger logging.Logger) *Store {
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	s := &Store{
		path:   path,
		logger: logger,
		doc:    newDocument(),
	}
	s.load()
	return s
}

func newDocument() document {
	return document{
		Version: stateFileVersion,
		Files:   make(map[string]*FileSyncState),
	}
}

func (s *Store) load() {
	ctx := context.Background()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn(ctx, "state file unreadable, starting empty", logging.Fields{"path": s.path, "error": err.Error()})
		}
		return
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn(ctx, "state file corrupt, starting empty", logging.Fields{"path": s.path, "error": err.Error()})
		return
	}
	if doc.Version > stateFileVersion {
		s.logger.Warn(ctx, "state file written by a newer version, starting empty",
			logging.Fields{"path": s.path, "version": doc.Version})
		return
	}

	if doc.Files == nil {
		doc.Files = make(map[string]*FileSyncState)
	}
	for p, fs := range doc.Files {
		if fs == nil {
			delete(doc.Files, p)
			continue
		}
		fs.Path = p
	}
	doc.Version = stateFileVersion
	s.doc = doc
}

// Path returns the state file location
func (s *Store) Path() string {
	return s.path
}

// GetFileState returns a copy of the recorded state for path, or nil if the
// path has never been synced
func (s *Store) GetFileState(path string) *FileSyncState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fs, ok := s.doc.Files[path]
	if !ok {
		return nil
	}
	cp := *fs
	return &cp
}

// UpdateFileState records the agreed state of path after a transfer
func (s *Store) UpdateFileState(path, localFingerprint, remoteFingerprint string, localModTime, remoteModTime time.Time, size uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.doc.Files[path] = &FileSyncState{
		Path:                  path,
		LastLocalFingerprint:  localFingerprint,
		LastRemoteFingerprint: remoteFingerprint,
		LastLocalModTime:      localModTime.UTC(),
		LastRemoteModTime:     remoteModTime.UTC(),
		Size:                  size,
		LastSyncTime:          time.Now().UTC(),
	}
}

// RemoveFileState forgets path
func (s *Store) RemoveFileState(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.doc.Files, path)
}

// Prune drops every entry for which keep returns false and reports how many were removed
func (s *Store) Prune(keep func(path string) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for p := range s.doc.Files {
		if !keep(p) {
			delete(s.doc.Files, p)
			removed++
		}
	}
	return removed
}

// Clear forgets all entries and the last successful sync
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = newDocument()
}

// MarkSuccessfulSync records the completion of a pass against remoteRoot
func (s *Store) MarkSuccessfulSync(remoteRoot string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.RemoteRoot = remoteRoot
	s.doc.LastSuccessfulSync = time.Now().UTC()
}

// LastSuccessfulSync returns when the last pass completed; zero if never
func (s *Store) LastSuccessfulSync() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.LastSuccessfulSync
}

// RemoteRoot returns the remote folder of the last successful pass
func (s *Store) RemoteRoot() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.RemoteRoot
}

// TrackedFileCount returns how many paths have recorded state
func (s *Store) TrackedFileCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.doc.Files)
}

// Paths returns the tracked paths in sorted order
func (s *Store) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	paths := make([]string, 0, len(s.doc.Files))
	for p := range s.doc.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Save writes the state atomically: the document goes to a temp file that
// is renamed over the previous one.
func (s *Store) Save() error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.doc, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize state file: %w", err)
	}

	return nil
}

// Lock takes an advisory lock next to the state file so two processes never
// run passes over the same state
func (s *Store) Lock() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lock == nil {
		s.lock = flock.New(s.path + ".lock")
	}

	locked, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock state: %w", err)
	}
	if !locked {
		return ErrStateLocked
	}
	return nil
}

// Unlock releases the lock taken by Lock
func (s *Store) Unlock() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lock == nil {
		return nil
	}
	if err := s.lock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock state: %w", err)
	}
	os.Remove(s.lock.Path())
	return nil
}

// DefaultPath returns the state file for a server, remote folder and local
// root under the user's config directory. Each combination gets its own file.
func DefaultPath(baseURL, remoteFolder, localRoot string) string {
	return filepath.Join(platform.StateDir(), pairID(baseURL, remoteFolder, localRoot)+".json")
}

// pairID creates a deterministic identifier with FNV-1a
func pairID(baseURL, remoteFolder, localRoot string) string {
	key := strings.TrimRight(baseURL, "/") + "|" + strings.Trim(remoteFolder, "/") + "|" + filepath.Clean(localRoot)

	h := uint64(14695981039346656037)
	for _, c := range key {
		h ^= uint64(c)
		h *= 1099511628211
	}

	return fmt.Sprintf("%016x", h)
}

// Remove deletes the state file at path; a missing file is not an error
func Remove(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
