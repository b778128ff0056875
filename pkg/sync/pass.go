package sync

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sdejongh/davsync/pkg/compare"
	"github.com/sdejongh/davsync/pkg/logging"
	"github.com/sdejongh/davsync/pkg/models"
	"github.com/sdejongh/davsync/pkg/storage"
	"github.com/sdejongh/davsync/pkg/webdav"
)

// pass holds everything a single synchronisation run touches
type pass struct {
	e      *Engine
	remote Remote
	store  Store
	opts   models.PassOptions
	logger logging.Logger

	local    storage.Backend
	rules    *ExcludeRules
	root     string          // normalised remote root
	ensured  map[string]bool // remote collections known to exist
	progress []ProgressObserver

	result *models.SyncPassResult
}

func (e *Engine) newPass(remote Remote, store Store, opts models.PassOptions) (*pass, error) {
	local, err := storage.NewLocal(opts.LocalRoot)
	if err != nil {
		return nil, err
	}
	rules, err := LoadExcludeRules(local.Root(), opts.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", IgnoreFileName, err)
	}

	root := webdav.NormalizePath(opts.RemoteRoot)
	id := uuid.NewString()

	return &pass{
		e:        e,
		remote:   remote,
		store:    store,
		opts:     opts,
		logger:   e.logger.WithFields(logging.Fields{"pass_id": id}),
		local:    local,
		rules:    rules,
		root:     root,
		ensured:  make(map[string]bool),
		progress: e.progressObservers(),
		result: &models.SyncPassResult{
			PassID:     id,
			LocalRoot:  local.Root(),
			RemoteRoot: root,
			DryRun:     opts.DryRun,
		},
	}, nil
}

// run executes the pass. The result is returned even on failure and
// reflects the work completed before the error.
func (p *pass) run(ctx context.Context) (*models.SyncPassResult, error) {
	p.result.StartedAt = p.e.now()
	defer func() {
		p.result.EndedAt = p.e.now()
		p.result.Duration = p.result.EndedAt.Sub(p.result.StartedAt)
	}()

	created, err := p.ensureRoot(ctx)
	if err != nil {
		return p.result, fmt.Errorf("failed to create remote folder %s: %w", p.root, err)
	}
	if created && p.opts.DirSettleDelay > 0 {
		p.logger.Debug(ctx, "waiting for new remote folder to settle", logging.Fields{"delay": p.opts.DirSettleDelay.String()})
		if err := p.e.sleep(ctx, p.opts.DirSettleDelay); err != nil {
			return p.result, err
		}
	}

	remoteFiles, err := p.listRemote(ctx)
	if err != nil {
		return p.result, fmt.Errorf("failed to list remote folder: %w", err)
	}
	localFiles, err := p.listLocal(ctx)
	if err != nil {
		return p.result, fmt.Errorf("failed to scan local folder: %w", err)
	}

	p.logger.Debug(ctx, "trees scanned", logging.Fields{"local": len(localFiles), "remote": len(remoteFiles)})

	total := len(localFiles)
	for rel := range remoteFiles {
		if _, ok := localFiles[rel]; !ok {
			total++
		}
	}
	for _, po := range p.progress {
		po.PassPlanned(total)
	}

	var localOnly []string
	for _, rel := range sortedKeys(localFiles) {
		if err := ctx.Err(); err != nil {
			return p.result, err
		}

		l := localFiles[rel]
		r, ok := remoteFiles[rel]
		if !ok {
			localOnly = append(localOnly, rel)
			continue
		}
		delete(remoteFiles, rel)

		d := decide(rel, l, r, p.store.GetFileState(rel))
		if err := p.apply(ctx, d, l, r); err != nil {
			return p.result, err
		}
	}

	for _, rel := range localOnly {
		if err := ctx.Err(); err != nil {
			return p.result, err
		}
		if err := p.upload(ctx, localFiles[rel], models.ReasonLocalOnly); err != nil {
			return p.result, err
		}
	}

	for _, rel := range sortedKeys(remoteFiles) {
		if err := ctx.Err(); err != nil {
			return p.result, err
		}
		if err := p.download(ctx, remoteFiles[rel], models.ReasonRemoteOnly); err != nil {
			return p.result, err
		}
	}

	return p.result, nil
}

// apply carries out a decision for a path present on both sides
func (p *pass) apply(ctx context.Context, d models.Decision, l, r *models.FileEntry) error {
	switch d.Action {
	case models.ActionUpload:
		return p.upload(ctx, l, d.Reason)
	case models.ActionDownload:
		return p.download(ctx, r, d.Reason)
	case models.ActionConflict:
		return p.conflict(ctx, l, r)
	}

	p.result.Unchanged++
	if d.Reason == models.ReasonIdentical && !p.opts.DryRun {
		// Same content on both sides: remember it so later edits are
		// attributed to the side that made them.
		p.store.UpdateFileState(l.RelativePath, l.Fingerprint, r.Fingerprint, l.ModTime, r.ModTime, r.Size)
	}
	p.processed(models.FileOperation{Path: d.Path, Action: models.ActionSkip, Reason: string(d.Reason)}, false)
	return nil
}

// upload sends a local file to the server and records the agreed state
func (p *pass) upload(ctx context.Context, l *models.FileEntry, reason models.DecisionReason) error {
	start := p.e.now()
	op := models.FileOperation{Path: l.RelativePath, Action: models.ActionUpload, Reason: string(reason)}

	if !p.opts.DryRun {
		remotePath := webdav.JoinPath(p.root, l.RelativePath)
		if err := p.ensureParents(ctx, remotePath); err != nil {
			return fmt.Errorf("failed to create remote folder for %s: %w", l.RelativePath, err)
		}

		n, err := p.remote.UploadFile(ctx, l.AbsolutePath, remotePath)
		if err != nil {
			return fmt.Errorf("failed to upload %s: %w", l.RelativePath, err)
		}
		op.BytesCopied = n
		p.result.BytesUploaded += n

		remoteFingerprint, remoteModTime := p.remoteAfterUpload(ctx, remotePath, l)
		p.store.UpdateFileState(l.RelativePath, l.Fingerprint, remoteFingerprint, l.ModTime, remoteModTime, l.Size)
	}

	p.result.Uploaded++
	op.Duration = p.e.now().Sub(start)
	p.processed(op, true)
	p.logger.Info(ctx, "uploaded", logging.Fields{"path": l.RelativePath, "reason": string(reason), "bytes": op.BytesCopied})
	return nil
}

// download replaces or creates the local copy of a remote file and fires
// the download event
func (p *pass) download(ctx context.Context, r *models.FileEntry, reason models.DecisionReason) error {
	start := p.e.now()
	op := models.FileOperation{Path: r.RelativePath, Action: models.ActionDownload, Reason: string(reason)}

	if !p.opts.DryRun {
		abs, err := p.local.Abs(r.RelativePath)
		if err != nil {
			return err
		}

		n, localFingerprint, localModTime, err := p.fetch(ctx, r.RelativePath, abs)
		if err != nil {
			return fmt.Errorf("failed to download %s: %w", r.RelativePath, err)
		}
		op.BytesCopied = n
		p.result.BytesDownloaded += n

		p.store.UpdateFileState(r.RelativePath, localFingerprint, r.Fingerprint, localModTime, r.ModTime, r.Size)
		p.e.fileDownloaded(models.FileDownloadedEvent{LocalPath: abs, RelativePath: r.RelativePath})
	}

	p.result.Downloaded++
	op.Duration = p.e.now().Sub(start)
	p.processed(op, true)
	p.logger.Info(ctx, "downloaded", logging.Fields{"path": r.RelativePath, "reason": string(reason), "bytes": op.BytesCopied})
	return nil
}

// conflict keeps both versions: the server copy is saved next to the local
// file under a conflict name, then the local copy is uploaded
func (p *pass) conflict(ctx context.Context, l, r *models.FileEntry) error {
	start := p.e.now()
	at := start
	op := models.FileOperation{Path: l.RelativePath, Action: models.ActionConflict, Reason: string(models.ReasonBothChanged)}

	name, err := uniqueConflictName(l.RelativePath, at, p.local.Abs)
	if err != nil {
		return err
	}
	c := models.Conflict{
		Path:              l.RelativePath,
		ConflictPath:      name,
		LocalFingerprint:  l.Fingerprint,
		RemoteFingerprint: r.Fingerprint,
		DetectedAt:        at,
	}

	if !p.opts.DryRun {
		abs, err := p.local.Abs(name)
		if err != nil {
			return err
		}
		remotePath := webdav.JoinPath(p.root, l.RelativePath)

		down, err := p.remote.DownloadFileTo(ctx, remotePath, abs)
		if err != nil {
			return fmt.Errorf("failed to save server copy of %s: %w", l.RelativePath, err)
		}
		p.result.BytesDownloaded += down

		up, err := p.remote.UploadFile(ctx, l.AbsolutePath, remotePath)
		if err != nil {
			return fmt.Errorf("failed to upload %s: %w", l.RelativePath, err)
		}
		p.result.BytesUploaded += up
		op.BytesCopied = down + up

		remoteFingerprint, remoteModTime := p.remoteAfterUpload(ctx, remotePath, l)
		p.store.UpdateFileState(l.RelativePath, l.Fingerprint, remoteFingerprint, l.ModTime, remoteModTime, l.Size)
	}

	p.result.AddConflict(c)
	op.Duration = p.e.now().Sub(start)
	p.processed(op, true)
	p.logger.Warn(ctx, "both sides changed, kept both versions", logging.Fields{"path": l.RelativePath, "conflict_copy": name})
	return nil
}

// fetch downloads a remote file into abs and fingerprints what was written
func (p *pass) fetch(ctx context.Context, rel, abs string) (int64, string, time.Time, error) {
	n, err := p.remote.DownloadFileTo(ctx, webdav.JoinPath(p.root, rel), abs)
	if err != nil {
		return 0, "", time.Time{}, err
	}
	fingerprint, err := p.e.fingerprinter.FingerprintFile(ctx, abs)
	if err != nil {
		return n, "", time.Time{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return n, "", time.Time{}, err
	}
	return n, fingerprint, info.ModTime(), nil
}

// remoteAfterUpload asks the server for the ETag it assigned to a freshly
// uploaded file. Without one, the local fingerprint stands in.
func (p *pass) remoteAfterUpload(ctx context.Context, remotePath string, l *models.FileEntry) (string, time.Time) {
	info, err := p.remote.GetResourceInfo(ctx, remotePath)
	if err != nil {
		p.logger.Warn(ctx, "could not read remote metadata after upload", logging.Fields{"path": l.RelativePath, "error": err.Error()})
		return l.Fingerprint, l.ModTime
	}
	if info == nil {
		return l.Fingerprint, l.ModTime
	}

	modTime := info.LastModified
	if modTime.IsZero() {
		modTime = l.ModTime
	}
	if etag := compare.NormalizeETag(info.ETag); etag != "" {
		return etag, modTime
	}
	return l.Fingerprint, modTime
}

// ensureRoot creates the remote root segment by segment and reports
// whether anything was created. Dry runs never create collections.
func (p *pass) ensureRoot(ctx context.Context) (bool, error) {
	if p.opts.DryRun {
		return false, nil
	}

	created := false
	for _, seg := range webdav.Segments(p.root) {
		c, err := p.remote.MakeCollection(ctx, seg)
		if err != nil {
			return created, err
		}
		p.ensured[seg] = true
		created = created || c
	}
	return created, nil
}

// ensureParents creates the collections above remotePath that this pass
// has not seen yet
func (p *pass) ensureParents(ctx context.Context, remotePath string) error {
	for _, seg := range webdav.Segments(webdav.Parent(remotePath)) {
		if p.ensured[seg] {
			continue
		}
		if _, err := p.remote.MakeCollection(ctx, seg); err != nil {
			return err
		}
		p.ensured[seg] = true
	}
	return nil
}

// listRemote returns the files under the remote root keyed by relative path
func (p *pass) listRemote(ctx context.Context) (map[string]*models.FileEntry, error) {
	resources, err := p.remote.ListDirectoryRecursive(ctx, p.root)
	if err != nil {
		if p.opts.DryRun && webdav.IsNotFound(err) {
			return map[string]*models.FileEntry{}, nil
		}
		return nil, err
	}

	files := make(map[string]*models.FileEntry, len(resources))
	for _, r := range resources {
		if r.IsDirectory {
			continue
		}
		rel, ok := webdav.RelativeTo(p.root, r.Path)
		if !ok || rel == "" || p.rules.ExcludesFile(rel) {
			continue
		}
		files[rel] = &models.FileEntry{
			RelativePath: rel,
			Size:         r.Size,
			ModTime:      r.LastModified,
			Fingerprint:  compare.NormalizeETag(r.ETag),
			Location:     models.LocationRemote,
		}
	}
	return files, nil
}

// listLocal walks the local root and fingerprints every file, a few at a time
func (p *pass) listLocal(ctx context.Context) (map[string]*models.FileEntry, error) {
	infos, err := p.local.List(ctx, p.rules.Excluded)
	if err != nil {
		return nil, err
	}

	workers := p.opts.HashWorkers
	if workers <= 0 {
		workers = models.DefaultHashWorkers
	}

	entries := make([]*models.FileEntry, len(infos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, info := range infos {
		g.Go(func() error {
			fingerprint, err := p.e.fingerprinter.FingerprintFile(gctx, info.Path)
			if err != nil {
				return fmt.Errorf("%s: %w", info.RelativePath, err)
			}
			entries[i] = &models.FileEntry{
				RelativePath: info.RelativePath,
				AbsolutePath: info.Path,
				Size:         uint64(info.Size),
				ModTime:      info.ModTime,
				Fingerprint:  fingerprint,
				Location:     models.LocationLocal,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	files := make(map[string]*models.FileEntry, len(entries))
	for _, entry := range entries {
		files[entry.RelativePath] = entry
	}
	return files, nil
}

// processed reports a handled file to progress observers and, for
// transfers, to the result
func (p *pass) processed(op models.FileOperation, transfer bool) {
	if transfer {
		p.result.Operations = append(p.result.Operations, op)
	}
	for _, po := range p.progress {
		po.FileProcessed(op)
	}
}

func sortedKeys(m map[string]*models.FileEntry) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
