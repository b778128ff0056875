package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func statePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "state", "sync.json")
}

// ============== Store Tests ==============

func TestOpen_Missing(t *testing.T) {
	s := Open(statePath(t), nil)

	if s.TrackedFileCount() != 0 {
		t.Errorf("TrackedFileCount() = %d, want 0", s.TrackedFileCount())
	}
	if !s.LastSuccessfulSync().IsZero() {
		t.Error("LastSuccessfulSync() should be zero for a new store")
	}
	if s.GetFileState("a.md") != nil {
		t.Error("GetFileState() should be nil for an unknown path")
	}
}

func TestStore_UpdateAndGet(t *testing.T) {
	s := Open(statePath(t), nil)
	localMod := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	remoteMod := time.Date(2024, 5, 1, 10, 0, 5, 0, time.UTC)

	s.UpdateFileState("dir/a.md", "md5-local", "etag-remote", localMod, remoteMod, 12)

	fs := s.GetFileState("dir/a.md")
	if fs == nil {
		t.Fatal("GetFileState returned nil")
	}
	if fs.Path != "dir/a.md" {
		t.Errorf("Path = %s, want dir/a.md", fs.Path)
	}
	if fs.LastLocalFingerprint != "md5-local" {
		t.Errorf("LastLocalFingerprint = %s, want md5-local", fs.LastLocalFingerprint)
	}
	if fs.LastRemoteFingerprint != "etag-remote" {
		t.Errorf("LastRemoteFingerprint = %s, want etag-remote", fs.LastRemoteFingerprint)
	}
	if !fs.LastLocalModTime.Equal(localMod) || !fs.LastRemoteModTime.Equal(remoteMod) {
		t.Error("modification times mismatch")
	}
	if fs.Size != 12 {
		t.Errorf("Size = %d, want 12", fs.Size)
	}
	if fs.LastSyncTime.IsZero() {
		t.Error("LastSyncTime should be set")
	}

	// Returned value is a copy.
	fs.LastLocalFingerprint = "mutated"
	if s.GetFileState("dir/a.md").LastLocalFingerprint != "md5-local" {
		t.Error("GetFileState() leaked internal state")
	}

	s.UpdateFileState("dir/a.md", "md5-2", "etag-2", localMod, remoteMod, 13)
	if got := s.GetFileState("dir/a.md").LastLocalFingerprint; got != "md5-2" {
		t.Errorf("LastLocalFingerprint after overwrite = %s, want md5-2", got)
	}
	if s.TrackedFileCount() != 1 {
		t.Errorf("TrackedFileCount() = %d, want 1", s.TrackedFileCount())
	}
}

func TestStore_SaveAndReload(t *testing.T) {
	path := statePath(t)
	s := Open(path, nil)
	now := time.Now().UTC().Truncate(time.Second)

	s.UpdateFileState("a.md", "l1", "r1", now, now, 1)
	s.UpdateFileState("sub/b.md", "l2", "r2", now, now, 2)
	s.MarkSuccessfulSync("Notes")

	if err := s.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	reloaded := Open(path, nil)
	if reloaded.TrackedFileCount() != 2 {
		t.Errorf("TrackedFileCount() = %d, want 2", reloaded.TrackedFileCount())
	}
	if reloaded.RemoteRoot() != "Notes" {
		t.Errorf("RemoteRoot() = %s, want Notes", reloaded.RemoteRoot())
	}
	if reloaded.LastSuccessfulSync().IsZero() {
		t.Error("LastSuccessfulSync() should survive a reload")
	}
	b := reloaded.GetFileState("sub/b.md")
	if b == nil || b.LastRemoteFingerprint != "r2" || b.Size != 2 || !b.LastLocalModTime.Equal(now) {
		t.Errorf("reloaded sub/b.md = %+v", b)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file %s left behind", e.Name())
		}
	}
}

func TestStore_CorruptFileRecovers(t *testing.T) {
	path := statePath(t)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	s := Open(path, nil)
	if s.TrackedFileCount() != 0 {
		t.Errorf("TrackedFileCount() = %d, want 0 after corrupt load", s.TrackedFileCount())
	}

	s.UpdateFileState("a.md", "l", "r", time.Now(), time.Now(), 1)
	if err := s.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if Open(path, nil).TrackedFileCount() != 1 {
		t.Error("state file was not rewritten as valid JSON")
	}
}

func TestStore_NewerVersionIgnored(t *testing.T) {
	path := statePath(t)
	os.MkdirAll(filepath.Dir(path), 0755)
	os.WriteFile(path, []byte(`{"version": 99, "files": {"a.md": {"size": 1}}}`), 0644)

	if Open(path, nil).TrackedFileCount() != 0 {
		t.Error("entries from a newer format should not be loaded")
	}
}

func TestStore_RemovePruneClear(t *testing.T) {
	s := Open(statePath(t), nil)
	for _, p := range []string{"a.md", "b.md", "c/d.md", "c/e.md"} {
		s.UpdateFileState(p, "l", "r", time.Now(), time.Now(), 1)
	}

	s.RemoveFileState("a.md")
	if s.GetFileState("a.md") != nil {
		t.Error("RemoveFileState() did not remove a.md")
	}

	removed := s.Prune(func(p string) bool { return !strings.HasPrefix(p, "c/") })
	if removed != 2 {
		t.Errorf("Prune() removed %d, want 2", removed)
	}
	if got := strings.Join(s.Paths(), ","); got != "b.md" {
		t.Errorf("Paths() = %s, want b.md", got)
	}

	s.MarkSuccessfulSync("Notes")
	s.Clear()
	if s.TrackedFileCount() != 0 || !s.LastSuccessfulSync().IsZero() {
		t.Error("Clear() should reset everything")
	}
}

func TestStore_Lock(t *testing.T) {
	path := statePath(t)
	first := Open(path, nil)
	second := Open(path, nil)

	if err := first.Lock(); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if err := second.Lock(); err != ErrStateLocked {
		t.Errorf("second Lock() error = %v, want ErrStateLocked", err)
	}
	if err := first.Unlock(); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if err := second.Lock(); err != nil {
		t.Errorf("Lock() after Unlock() error = %v", err)
	}
	second.Unlock()
}

func TestDefaultPath(t *testing.T) {
	a := DefaultPath("https://dav.example.com/", "Notes", "/home/u/Notes")
	b := DefaultPath("https://dav.example.com", "/Notes/", "/home/u/Notes/")
	c := DefaultPath("https://dav.example.com", "Other", "/home/u/Notes")

	if a != b {
		t.Errorf("equivalent configurations map to different files: %s vs %s", a, b)
	}
	if a == c {
		t.Error("different remote folders should map to different files")
	}
	if filepath.Ext(a) != ".json" || !strings.Contains(a, filepath.Join("davsync", "state")) {
		t.Errorf("DefaultPath() = %s", a)
	}
}

func TestRemove(t *testing.T) {
	path := statePath(t)
	s := Open(path, nil)
	if err := s.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := Remove(path); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := Remove(path); err != nil {
		t.Errorf("Remove() of missing file error = %v", err)
	}
}
