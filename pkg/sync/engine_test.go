package sync

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	gosync "sync"
	"testing"
	"time"

	"github.com/sdejongh/davsync/internal/davtest"
	"github.com/sdejongh/davsync/pkg/models"
	"github.com/sdejongh/davsync/pkg/state"
	"github.com/sdejongh/davsync/pkg/webdav"
)

// recorder collects engine events
type recorder struct {
	mu        gosync.Mutex
	statuses  []models.StatusEvent
	downloads []models.FileDownloadedEvent
	planned   []int
	processed []models.FileOperation
}

func (r *recorder) SyncStatusChanged(e models.StatusEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, e)
}

func (r *recorder) FileDownloaded(e models.FileDownloadedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.downloads = append(r.downloads, e)
}

func (r *recorder) PassPlanned(total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.planned = append(r.planned, total)
}

func (r *recorder) FileProcessed(op models.FileOperation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processed = append(r.processed, op)
}

func (r *recorder) downloadPaths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, d := range r.downloads {
		out = append(out, d.RelativePath)
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses, r.downloads, r.planned, r.processed = nil, nil, nil, nil
}

// harness wires an engine to an in-memory WebDAV server and a temp directory
type harness struct {
	t         *testing.T
	srv       *davtest.Server
	client    *webdav.Client
	store     *state.Store
	statePath string
	localDir  string
	engine    *Engine
	events    *recorder

	sleepMu gosync.Mutex
	slept   []time.Duration
}

func newHarness(t *testing.T, remoteRoot string) *harness {
	t.Helper()

	srv := davtest.New(t)
	client, err := webdav.New(webdav.Options{
		BaseURL:  srv.BaseURL(),
		Username: davtest.Username,
		Password: davtest.Password,
		Timeout:  10 * time.Second,
	})
	if err != nil {
		t.Fatalf("webdav.New() error = %v", err)
	}

	h := &harness{
		t:         t,
		srv:       srv,
		client:    client,
		statePath: filepath.Join(t.TempDir(), "state.json"),
		localDir:  t.TempDir(),
		events:    &recorder{},
	}
	h.store = state.Open(h.statePath, nil)
	h.engine = NewEngine(client, h.store, models.PassOptions{
		LocalRoot:  h.localDir,
		RemoteRoot: remoteRoot,
	}, nil)
	h.engine.sleep = func(ctx context.Context, d time.Duration) error {
		h.sleepMu.Lock()
		defer h.sleepMu.Unlock()
		h.slept = append(h.slept, d)
		return nil
	}
	h.engine.Subscribe(h.events)
	return h
}

func (h *harness) setOptions(fn func(o *models.PassOptions)) {
	opts := h.engine.Options()
	fn(&opts)
	h.engine.Configure(h.client, h.store, opts)
}

func (h *harness) writeLocal(rel, content string) {
	h.t.Helper()
	p := filepath.Join(h.localDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		h.t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		h.t.Fatalf("WriteFile() error = %v", err)
	}
}

func (h *harness) touchLocal(rel string, mod time.Time) {
	h.t.Helper()
	p := filepath.Join(h.localDir, filepath.FromSlash(rel))
	if err := os.Chtimes(p, mod, mod); err != nil {
		h.t.Fatalf("Chtimes() error = %v", err)
	}
}

func (h *harness) readLocal(rel string) (string, bool) {
	h.t.Helper()
	data, err := os.ReadFile(filepath.Join(h.localDir, filepath.FromSlash(rel)))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false
		}
		h.t.Fatalf("ReadFile() error = %v", err)
	}
	return string(data), true
}

func (h *harness) mustSync() *models.SyncPassResult {
	h.t.Helper()
	result, err := h.engine.Synchronize(context.Background())
	if err != nil {
		h.t.Fatalf("Synchronize() error = %v", err)
	}
	return result
}

func assertCounts(t *testing.T, r *models.SyncPassResult, uploaded, downloaded, unchanged, conflicted int) {
	t.Helper()
	if r.Uploaded != uploaded || r.Downloaded != downloaded || r.Unchanged != unchanged || r.Conflicted != conflicted {
		t.Errorf("counts = up %d, down %d, unchanged %d, conflicts %d; want %d, %d, %d, %d",
			r.Uploaded, r.Downloaded, r.Unchanged, r.Conflicted, uploaded, downloaded, unchanged, conflicted)
	}
}

// ============== Pass Tests ==============

func TestSynchronize_FirstPass(t *testing.T) {
	h := newHarness(t, "Notes")
	h.writeLocal("a.md", "local a")
	h.writeLocal("sub/c.md", "local c")
	h.srv.Put(t, "Notes/b.md", "remote b")

	result := h.mustSync()
	assertCounts(t, result, 2, 1, 0, 0)

	if got, ok := h.srv.Get(t, "Notes/a.md"); !ok || got != "local a" {
		t.Errorf("remote a.md = %q, %v", got, ok)
	}
	if got, ok := h.srv.Get(t, "Notes/sub/c.md"); !ok || got != "local c" {
		t.Errorf("remote sub/c.md = %q, %v", got, ok)
	}
	if got, ok := h.readLocal("b.md"); !ok || got != "remote b" {
		t.Errorf("local b.md = %q, %v", got, ok)
	}

	if got := h.events.downloadPaths(); len(got) != 1 || got[0] != "b.md" {
		t.Errorf("download events = %v, want [b.md]", got)
	}
	if h.store.TrackedFileCount() != 3 {
		t.Errorf("TrackedFileCount() = %d, want 3", h.store.TrackedFileCount())
	}
	if result.BytesUploaded != int64(len("local a")+len("local c")) {
		t.Errorf("BytesUploaded = %d", result.BytesUploaded)
	}
	if result.BytesDownloaded != int64(len("remote b")) {
		t.Errorf("BytesDownloaded = %d", result.BytesDownloaded)
	}
	if result.PassID == "" {
		t.Error("PassID should be set")
	}

	status := h.engine.Status()
	if status.Status != models.StatusSuccess {
		t.Errorf("Status = %s, want success", status.Status)
	}
	if status.Message != "Sync complete: 2 uploaded, 1 downloaded, 0 unchanged" {
		t.Errorf("Message = %q", status.Message)
	}
	if status.LastSync.IsZero() {
		t.Error("LastSync should be set after a successful pass")
	}

	h.events.mu.Lock()
	defer h.events.mu.Unlock()
	if len(h.events.statuses) != 2 || h.events.statuses[0].Status != models.StatusSyncing || h.events.statuses[1].Status != models.StatusSuccess {
		t.Errorf("status transitions = %+v", h.events.statuses)
	}
	if len(h.events.planned) != 1 || h.events.planned[0] != 3 {
		t.Errorf("planned = %v, want [3]", h.events.planned)
	}
	if len(h.events.processed) != 3 {
		t.Errorf("processed %d files, want 3", len(h.events.processed))
	}
}

func TestSynchronize_Idempotent(t *testing.T) {
	h := newHarness(t, "Notes")
	h.writeLocal("a.md", "local a")
	h.srv.Put(t, "Notes/b.md", "remote b")
	h.mustSync()

	h.srv.Reset()
	h.events.reset()

	result := h.mustSync()
	assertCounts(t, result, 0, 0, 2, 0)

	if n := h.srv.Count(http.MethodPut); n != 0 {
		t.Errorf("second pass sent %d PUT requests", n)
	}
	if n := h.srv.Count(http.MethodGet); n != 0 {
		t.Errorf("second pass sent %d GET requests", n)
	}
	if got := h.events.downloadPaths(); len(got) != 0 {
		t.Errorf("second pass fired download events %v", got)
	}
	if len(result.Operations) != 0 {
		t.Errorf("Operations = %+v, want none", result.Operations)
	}
}

func TestSynchronize_UploadOnlyChange(t *testing.T) {
	h := newHarness(t, "Notes")
	h.writeLocal("a.md", "v1")
	h.writeLocal("b.md", "other")
	h.mustSync()
	h.srv.Reset()
	h.events.reset()

	h.writeLocal("a.md", "v2 edited locally")

	result := h.mustSync()
	assertCounts(t, result, 1, 0, 1, 0)

	if got, _ := h.srv.Get(t, "Notes/a.md"); got != "v2 edited locally" {
		t.Errorf("remote a.md = %q", got)
	}
	if n := h.srv.Count(http.MethodPut); n != 1 {
		t.Errorf("PUT count = %d, want 1", n)
	}
	if n := h.srv.Count(http.MethodGet); n != 0 {
		t.Errorf("GET count = %d, want 0", n)
	}
	if len(result.Operations) != 1 || result.Operations[0].Reason != string(models.ReasonLocalChanged) {
		t.Errorf("Operations = %+v", result.Operations)
	}

	// The recorded remote fingerprint matches the new upload.
	fs := h.store.GetFileState("a.md")
	if fs == nil || fs.LastRemoteFingerprint != davtest.ETag("v2 edited locally") {
		t.Errorf("state after upload = %+v", fs)
	}
	assertCounts(t, h.mustSync(), 0, 0, 2, 0)
}

func TestSynchronize_DownloadOnlyChange(t *testing.T) {
	h := newHarness(t, "Notes")
	h.writeLocal("a.md", "v1")
	h.mustSync()
	h.srv.Reset()
	h.events.reset()

	h.srv.Put(t, "Notes/a.md", "v2 edited remotely")

	result := h.mustSync()
	assertCounts(t, result, 0, 1, 0, 0)

	if got, _ := h.readLocal("a.md"); got != "v2 edited remotely" {
		t.Errorf("local a.md = %q", got)
	}
	if n := h.srv.Count(http.MethodPut); n != 0 {
		t.Errorf("PUT count = %d, want 0", n)
	}

	h.events.mu.Lock()
	downloads := append([]models.FileDownloadedEvent(nil), h.events.downloads...)
	h.events.mu.Unlock()
	if len(downloads) != 1 {
		t.Fatalf("download events = %d, want exactly 1", len(downloads))
	}
	if downloads[0].RelativePath != "a.md" || downloads[0].LocalPath != filepath.Join(h.localDir, "a.md") {
		t.Errorf("download event = %+v", downloads[0])
	}

	assertCounts(t, h.mustSync(), 0, 0, 1, 0)
}

func TestSynchronize_Conflict(t *testing.T) {
	h := newHarness(t, "Notes")
	h.writeLocal("notes/todo.md", "base")
	h.mustSync()
	h.events.reset()

	at := time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)
	h.engine.now = func() time.Time { return at }

	h.writeLocal("notes/todo.md", "local edit")
	h.srv.Put(t, "Notes/notes/todo.md", "remote edit")

	result := h.mustSync()
	assertCounts(t, result, 0, 0, 0, 1)

	const copyName = "notes/todo.conflict-20240102-150405.md"
	if got, ok := h.readLocal(copyName); !ok || got != "remote edit" {
		t.Errorf("conflict copy = %q, %v", got, ok)
	}
	if got, _ := h.readLocal("notes/todo.md"); got != "local edit" {
		t.Errorf("local file = %q, want local edit", got)
	}
	if got, _ := h.srv.Get(t, "Notes/notes/todo.md"); got != "local edit" {
		t.Errorf("remote file = %q, want local edit", got)
	}

	if len(result.Conflicts) != 1 {
		t.Fatalf("Conflicts = %+v", result.Conflicts)
	}
	c := result.Conflicts[0]
	if c.Path != "notes/todo.md" || c.ConflictPath != copyName || !c.DetectedAt.Equal(at) {
		t.Errorf("conflict = %+v", c)
	}
	if !strings.HasSuffix(h.engine.Status().Message, ", 1 conflicts (saved both versions)") {
		t.Errorf("Message = %q", h.engine.Status().Message)
	}
	if h.engine.Status().Status != models.StatusSuccess {
		t.Errorf("a conflict should not fail the pass: %s", h.engine.Status().Status)
	}
	if got := h.events.downloadPaths(); len(got) != 0 {
		t.Errorf("conflict fired download events %v", got)
	}

	// The conflict copy travels to the server on the next pass, then all is quiet.
	next := h.mustSync()
	assertCounts(t, next, 1, 0, 1, 0)
	if _, ok := h.srv.Get(t, "Notes/"+copyName); !ok {
		t.Error("conflict copy was not uploaded")
	}
	assertCounts(t, h.mustSync(), 0, 0, 2, 0)
}

func TestSynchronize_FirstSyncTieBreak(t *testing.T) {
	t.Run("Identical", func(t *testing.T) {
		h := newHarness(t, "Notes")
		h.writeLocal("a.md", "same")
		h.srv.Put(t, "Notes/a.md", "same")

		result := h.mustSync()
		assertCounts(t, result, 0, 0, 1, 0)
		if h.store.GetFileState("a.md") == nil {
			t.Error("identical files should be recorded")
		}
	})

	t.Run("RemoteNewer", func(t *testing.T) {
		h := newHarness(t, "Notes")
		h.writeLocal("a.md", "old local")
		h.touchLocal("a.md", time.Now().Add(-time.Hour))
		h.srv.Put(t, "Notes/a.md", "new remote")

		result := h.mustSync()
		assertCounts(t, result, 0, 1, 0, 0)
		if got, _ := h.readLocal("a.md"); got != "new remote" {
			t.Errorf("local a.md = %q", got)
		}
	})

	t.Run("LocalNewer", func(t *testing.T) {
		h := newHarness(t, "Notes")
		h.srv.Put(t, "Notes/a.md", "old remote")
		h.writeLocal("a.md", "new local")
		h.touchLocal("a.md", time.Now().Add(time.Hour))

		result := h.mustSync()
		assertCounts(t, result, 1, 0, 0, 0)
		if got, _ := h.srv.Get(t, "Notes/a.md"); got != "new local" {
			t.Errorf("remote a.md = %q", got)
		}
	})
}

func TestSynchronize_CreatesRemoteRoot(t *testing.T) {
	h := newHarness(t, "Notes/2024")
	h.setOptions(func(o *models.PassOptions) { o.DirSettleDelay = models.DefaultDirSettleDelay })
	h.writeLocal("deep/er/a.md", "x")

	h.mustSync()

	if !h.srv.IsDir("Notes/2024") || !h.srv.IsDir("Notes/2024/deep/er") {
		t.Error("remote collections were not created")
	}
	if len(h.slept) != 1 || h.slept[0] != models.DefaultDirSettleDelay {
		t.Errorf("settle sleeps = %v, want one of %v", h.slept, models.DefaultDirSettleDelay)
	}

	// Existing collections answer 405 and are treated as present.
	h.srv.Reset()
	h.slept = nil
	h.mustSync()
	if n := h.srv.Count("MKCOL"); n != 2 {
		t.Errorf("MKCOL count = %d, want 2 (one per root segment)", n)
	}
	if len(h.slept) != 0 {
		t.Errorf("no settle delay expected when nothing was created, got %v", h.slept)
	}
	if h.engine.Status().Status != models.StatusSuccess {
		t.Errorf("Status = %s", h.engine.Status().Status)
	}
}

func TestSynchronize_PathNormalization(t *testing.T) {
	h := newHarness(t, "/Shared Notes//2024/")
	h.writeLocal("my notes/résumé #1.md", "hello")

	result := h.mustSync()
	assertCounts(t, result, 1, 0, 0, 0)
	if _, ok := h.srv.Get(t, "Shared Notes/2024/my notes/résumé #1.md"); !ok {
		t.Fatal("file with special characters was not uploaded")
	}
	if result.RemoteRoot != "Shared Notes/2024" {
		t.Errorf("RemoteRoot = %q", result.RemoteRoot)
	}

	assertCounts(t, h.mustSync(), 0, 0, 1, 0)
	if h.store.GetFileState("my notes/résumé #1.md") == nil {
		t.Error("state should be keyed by the decoded relative path")
	}
}

func TestSynchronize_Excludes(t *testing.T) {
	h := newHarness(t, "Notes")
	h.setOptions(func(o *models.PassOptions) { o.ExcludePatterns = []string{"build/", "*.log"} })

	h.writeLocal(".hidden", "x")
	h.writeLocal(".git/config", "x")
	h.writeLocal("build/out.bin", "x")
	h.writeLocal("debug.log", "x")
	h.writeLocal("draft.swp", "x")
	h.writeLocal("keep.md", "keep")
	h.srv.Put(t, "Notes/.secret", "x")
	h.srv.Put(t, "Notes/build/remote.bin", "x")
	h.srv.Put(t, "Notes/server.log", "x")

	result := h.mustSync()
	assertCounts(t, result, 1, 0, 0, 0)
	if _, ok := h.readLocal("build/remote.bin"); ok {
		t.Error("excluded remote file was downloaded")
	}
	if _, ok := h.srv.Get(t, "Notes/debug.log"); ok {
		t.Error("excluded local file was uploaded")
	}
}

func TestSynchronize_IgnoreFile(t *testing.T) {
	h := newHarness(t, "Notes")
	h.writeLocal(IgnoreFileName, "# scratch space\nscratch/\n")
	h.writeLocal("scratch/tmp.md", "x")
	h.writeLocal("a.md", "a")

	result := h.mustSync()
	assertCounts(t, result, 1, 0, 0, 0)
	if _, ok := h.srv.Get(t, "Notes/"+IgnoreFileName); ok {
		t.Error("the ignore file itself should not be synced")
	}
}

func TestSynchronize_FailureKeepsPartialState(t *testing.T) {
	h := newHarness(t, "Notes")
	h.writeLocal("a.md", "a")
	h.writeLocal("b.md", "b")
	h.writeLocal("c.md", "c")
	h.srv.Fail(http.MethodPut, "/b.md", http.StatusInternalServerError)

	result, err := h.engine.Synchronize(context.Background())
	if err == nil {
		t.Fatal("Synchronize() should fail when an upload fails")
	}
	var se *webdav.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusInternalServerError {
		t.Errorf("error = %v, want a 500 StatusError", err)
	}
	if result == nil || result.Uploaded != 1 {
		t.Errorf("result = %+v, want one completed upload", result)
	}

	status := h.engine.Status()
	if status.Status != models.StatusError || !strings.HasPrefix(status.Message, "Sync failed: ") {
		t.Errorf("status = %+v", status)
	}
	if !status.LastSync.IsZero() {
		t.Error("LastSync should be preserved (still zero) after a failed pass")
	}

	// The completed upload is on disk, the failed ones are not.
	saved := state.Open(h.statePath, nil)
	if saved.GetFileState("a.md") == nil {
		t.Error("a.md state should have been saved")
	}
	if saved.GetFileState("b.md") != nil || saved.GetFileState("c.md") != nil {
		t.Error("files after the failure should not be recorded")
	}
	if !saved.LastSuccessfulSync().IsZero() {
		t.Error("a failed pass must not mark a successful sync")
	}

	h.srv.ClearFaults()
	h.srv.Reset()
	retry := h.mustSync()
	assertCounts(t, retry, 2, 0, 1, 0)
	if n := h.srv.Count(http.MethodPut); n != 2 {
		t.Errorf("retry PUT count = %d, want 2", n)
	}
}

func TestSynchronize_FailurePreservesLastSync(t *testing.T) {
	h := newHarness(t, "Notes")
	h.writeLocal("a.md", "a")
	h.mustSync()
	last := h.engine.Status().LastSync

	h.writeLocal("a.md", "changed")
	h.srv.Fail(http.MethodPut, "/a.md", http.StatusForbidden)

	if _, err := h.engine.Synchronize(context.Background()); err == nil {
		t.Fatal("Synchronize() should fail")
	}
	status := h.engine.Status()
	if status.Status != models.StatusError || !status.LastSync.Equal(last) {
		t.Errorf("status = %+v, want error with LastSync %v", status, last)
	}
}

func TestSynchronize_Preconditions(t *testing.T) {
	t.Run("NotConfigured", func(t *testing.T) {
		store := state.Open(filepath.Join(t.TempDir(), "s.json"), nil)
		e := NewEngine(nil, store, models.PassOptions{LocalRoot: t.TempDir(), RemoteRoot: "Notes"}, nil)

		if _, err := e.Synchronize(context.Background()); !errors.Is(err, ErrNotConfigured) {
			t.Errorf("error = %v, want ErrNotConfigured", err)
		}
		if s := e.Status(); s.Status != models.StatusError || s.Message != "WebDAV not configured" {
			t.Errorf("status = %+v", s)
		}
	})

	t.Run("LocalRootMissing", func(t *testing.T) {
		h := newHarness(t, "Notes")
		h.setOptions(func(o *models.PassOptions) { o.LocalRoot = filepath.Join(h.localDir, "missing") })

		if _, err := h.engine.Synchronize(context.Background()); !errors.Is(err, ErrLocalRootMissing) {
			t.Errorf("error = %v, want ErrLocalRootMissing", err)
		}
		if s := h.engine.Status(); s.Status != models.StatusError || s.Message != "Local root not configured or does not exist" {
			t.Errorf("status = %+v", s)
		}
		if n := h.srv.Count("MKCOL") + h.srv.Count("PROPFIND"); n != 0 {
			t.Errorf("%d requests sent despite failed precondition", n)
		}
	})

	t.Run("InvalidOptions", func(t *testing.T) {
		h := newHarness(t, "")
		_, err := h.engine.Synchronize(context.Background())
		var ve *models.ValidationError
		if !errors.As(err, &ve) || ve.Field != "RemoteRoot" {
			t.Errorf("error = %v, want RemoteRoot validation error", err)
		}
	})
}

func TestSynchronize_InProgress(t *testing.T) {
	h := newHarness(t, "Fresh")
	h.setOptions(func(o *models.PassOptions) { o.DirSettleDelay = time.Millisecond })

	entered := make(chan struct{})
	release := make(chan struct{})
	h.engine.sleep = func(ctx context.Context, d time.Duration) error {
		close(entered)
		<-release
		return nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := h.engine.Synchronize(context.Background())
		done <- err
	}()
	<-entered

	if !h.engine.Running() {
		t.Error("Running() should report the pass in flight")
	}
	if _, err := h.engine.Synchronize(context.Background()); !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("concurrent Synchronize() error = %v, want ErrSyncInProgress", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("first pass error = %v", err)
	}
	if h.engine.Running() {
		t.Error("Running() should be false after the pass")
	}
}

func TestSynchronize_Cancelled(t *testing.T) {
	h := newHarness(t, "Fresh")
	h.setOptions(func(o *models.PassOptions) { o.DirSettleDelay = time.Millisecond })
	h.writeLocal("a.md", "a")

	ctx, cancel := context.WithCancel(context.Background())
	h.engine.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := h.engine.Synchronize(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if h.engine.Status().Status != models.StatusError {
		t.Errorf("Status = %s, want error", h.engine.Status().Status)
	}
	if _, ok := h.srv.Get(t, "Fresh/a.md"); ok {
		t.Error("nothing should be uploaded after cancellation")
	}
}

func TestSynchronize_DryRun(t *testing.T) {
	t.Run("PlansWithoutSideEffects", func(t *testing.T) {
		h := newHarness(t, "Notes")
		h.setOptions(func(o *models.PassOptions) { o.DryRun = true })
		h.writeLocal("a.md", "local")
		h.srv.Put(t, "Notes/b.md", "remote")
		h.srv.Reset()

		result := h.mustSync()
		assertCounts(t, result, 1, 1, 0, 0)
		if !result.DryRun || !strings.HasPrefix(result.Message(), "Dry run:") {
			t.Errorf("result = %+v", result)
		}
		if _, ok := h.srv.Get(t, "Notes/a.md"); ok {
			t.Error("dry run uploaded a file")
		}
		if _, ok := h.readLocal("b.md"); ok {
			t.Error("dry run downloaded a file")
		}
		if n := h.srv.Count(http.MethodPut) + h.srv.Count("MKCOL"); n != 0 {
			t.Errorf("dry run sent %d modifying requests", n)
		}
		if h.store.TrackedFileCount() != 0 || !h.store.LastSuccessfulSync().IsZero() {
			t.Error("dry run recorded state")
		}
		if got := h.events.downloadPaths(); len(got) != 0 {
			t.Errorf("dry run fired download events %v", got)
		}
	})

	t.Run("MissingRoot", func(t *testing.T) {
		h := newHarness(t, "Nowhere")
		h.setOptions(func(o *models.PassOptions) { o.DryRun = true })
		h.writeLocal("a.md", "local")

		result := h.mustSync()
		assertCounts(t, result, 1, 0, 0, 0)
		if h.srv.IsDir("Nowhere") {
			t.Error("dry run created the remote root")
		}
	})
}

func TestSynchronize_StateSurvivesRestart(t *testing.T) {
	h := newHarness(t, "Notes")
	h.writeLocal("a.md", "a")
	h.srv.Put(t, "Notes/b.md", "b")
	h.mustSync()

	store := state.Open(h.statePath, nil)
	e := NewEngine(h.client, store, h.engine.Options(), nil)
	if e.Status().LastSync.IsZero() {
		t.Error("a new engine should report the persisted last sync time")
	}

	result, err := e.Synchronize(context.Background())
	if err != nil {
		t.Fatalf("Synchronize() error = %v", err)
	}
	assertCounts(t, result, 0, 0, 2, 0)
}
