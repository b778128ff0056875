package sync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sdejongh/davsync/pkg/compare"
	"github.com/sdejongh/davsync/pkg/logging"
	"github.com/sdejongh/davsync/pkg/models"
	"github.com/sdejongh/davsync/pkg/state"
	"github.com/sdejongh/davsync/pkg/webdav"
)

var (
	// ErrSyncInProgress is returned when a pass is requested while another runs
	ErrSyncInProgress = errors.New("sync already in progress")
	// ErrNotConfigured is returned when no server is configured
	ErrNotConfigured = errors.New("webdav not configured")
	// ErrLocalRootMissing is returned when the local root is unset or not a directory
	ErrLocalRootMissing = errors.New("local root not configured or does not exist")
)

// User-facing status messages
const (
	msgNotConfigured    = "WebDAV not configured"
	msgLocalRootMissing = "Local root not configured or does not exist"
	msgSyncing          = "Syncing..."
)

// Remote is the part of the WebDAV client a pass needs
type Remote interface {
	MakeCollection(ctx context.Context, remotePath string) (bool, error)
	ListDirectoryRecursive(ctx context.Context, remotePath string) ([]webdav.Resource, error)
	GetResourceInfo(ctx context.Context, remotePath string) (*webdav.Resource, error)
	UploadFile(ctx context.Context, localPath, remotePath string) (int64, error)
	DownloadFileTo(ctx context.Context, remotePath, localPath string) (int64, error)
}

// Store is the part of the state store a pass needs
type Store interface {
	GetFileState(path string) *state.FileSyncState
	UpdateFileState(path, localFingerprint, remoteFingerprint string, localModTime, remoteModTime time.Time, size uint64)
	MarkSuccessfulSync(remoteRoot string)
	LastSuccessfulSync() time.Time
	Save() error
}

// Engine runs synchronisation passes between a local directory and a
// WebDAV collection. At most one pass runs at a time.
type Engine struct {
	logger        logging.Logger
	fingerprinter *compare.MD5Fingerprinter

	configMu sync.RWMutex
	remote   Remote
	store    Store
	opts     models.PassOptions

	running atomic.Bool

	statusMu sync.RWMutex
	status   models.StatusEvent

	observersMu sync.RWMutex
	observers   []Observer

	// replaced in tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine creates an engine. remote or store may be nil until Configure
// is called; passes fail with ErrNotConfigured meanwhile.
func NewEngine(remote Remote, store Store, opts models.PassOptions, logger logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNullLogger()
	}

	e := &Engine{
		logger:        logger,
		fingerprinter: compare.NewMD5Fingerprinter(64 * 1024),
		remote:        remote,
		store:         store,
		opts:          opts,
		status:        models.StatusEvent{Status: models.StatusIdle},
		now:           time.Now,
		sleep:         sleepContext,
	}
	if store != nil {
		e.status.LastSync = store.LastSuccessfulSync()
	}
	return e
}

// Configure replaces the server, state store and options used by
// subsequent passes. A running pass keeps the values it started with.
func (e *Engine) Configure(remote Remote, store Store, opts models.PassOptions) {
	e.configMu.Lock()
	e.remote = remote
	e.store = store
	e.opts = opts
	e.configMu.Unlock()

	if store != nil {
		e.statusMu.Lock()
		if last := store.LastSuccessfulSync(); last.After(e.status.LastSync) {
			e.status.LastSync = last
		}
		e.statusMu.Unlock()
	}
}

// Options returns the options the next pass will use
func (e *Engine) Options() models.PassOptions {
	e.configMu.RLock()
	defer e.configMu.RUnlock()
	return e.opts
}

// Subscribe registers an observer for status and download events
func (e *Engine) Subscribe(o Observer) {
	e.observersMu.Lock()
	defer e.observersMu.Unlock()
	e.observers = append(e.observers, o)
}

// Status returns the current status and last successful sync time
func (e *Engine) Status() models.StatusEvent {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()
	return e.status
}

// Running reports whether a pass is in flight
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Synchronize runs one pass. It returns ErrSyncInProgress without side
// effects when another pass is running. A failed pass keeps the state
// recorded for files it already transferred.
func (e *Engine) Synchronize(ctx context.Context) (*models.SyncPassResult, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer e.running.Store(false)

	e.configMu.RLock()
	remote, store, opts := e.remote, e.store, e.opts
	e.configMu.RUnlock()

	lastSync := e.Status().LastSync

	if remote == nil || store == nil {
		e.setStatus(models.StatusError, msgNotConfigured, lastSync)
		return nil, ErrNotConfigured
	}
	if !isDir(opts.LocalRoot) {
		e.setStatus(models.StatusError, msgLocalRootMissing, lastSync)
		return nil, ErrLocalRootMissing
	}
	if err := opts.Validate(); err != nil {
		e.setStatus(models.StatusError, "Invalid sync options: "+err.Error(), lastSync)
		return nil, err
	}

	e.setStatus(models.StatusSyncing, msgSyncing, lastSync)

	p, err := e.newPass(remote, store, opts)
	if err != nil {
		e.setStatus(models.StatusError, "Sync failed: "+err.Error(), lastSync)
		return nil, err
	}

	e.logger.Info(ctx, "sync pass started", logging.Fields{
		"pass_id":     p.result.PassID,
		"local_root":  opts.LocalRoot,
		"remote_root": p.root,
		"dry_run":     opts.DryRun,
	})

	result, err := p.run(ctx)
	if err != nil {
		if !opts.DryRun {
			if saveErr := store.Save(); saveErr != nil {
				e.logger.Error(ctx, "failed to save sync state", saveErr, nil)
			}
		}
		e.logger.Error(ctx, "sync pass failed", err, logging.Fields{"pass_id": result.PassID})
		e.setStatus(models.StatusError, "Sync failed: "+err.Error(), lastSync)
		return result, err
	}

	if !opts.DryRun {
		store.MarkSuccessfulSync(p.root)
		if err := store.Save(); err != nil {
			err = fmt.Errorf("failed to save sync state: %w", err)
			e.logger.Error(ctx, "sync pass failed", err, logging.Fields{"pass_id": result.PassID})
			e.setStatus(models.StatusError, "Sync failed: "+err.Error(), lastSync)
			return result, err
		}
		lastSync = store.LastSuccessfulSync()
	}

	e.logger.Info(ctx, "sync pass finished", logging.Fields{
		"pass_id":    result.PassID,
		"uploaded":   result.Uploaded,
		"downloaded": result.Downloaded,
		"unchanged":  result.Unchanged,
		"conflicts":  result.Conflicted,
		"duration":   result.Duration.String(),
	})
	e.setStatus(models.StatusSuccess, result.Message(), lastSync)

	return result, nil
}

// setStatus stores and publishes a status transition
func (e *Engine) setStatus(status models.SyncStatus, message string, lastSync time.Time) {
	event := models.StatusEvent{Status: status, Message: message, LastSync: lastSync}

	e.statusMu.Lock()
	e.status = event
	e.statusMu.Unlock()

	for _, o := range e.snapshotObservers() {
		o.SyncStatusChanged(event)
	}
}

func (e *Engine) fileDownloaded(event models.FileDownloadedEvent) {
	for _, o := range e.snapshotObservers() {
		o.FileDownloaded(event)
	}
}

func (e *Engine) snapshotObservers() []Observer {
	e.observersMu.RLock()
	defer e.observersMu.RUnlock()
	return append([]Observer(nil), e.observers...)
}

// progressObservers returns the observers that also render per-file progress
func (e *Engine) progressObservers() []ProgressObserver {
	var out []ProgressObserver
	for _, o := range e.snapshotObservers() {
		if po, ok := o.(ProgressObserver); ok {
			out = append(out, po)
		}
	}
	return out
}

func isDir(p string) bool {
	if p == "" {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
