package sync

import (
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/sdejongh/davsync/pkg/compare"
	"github.com/sdejongh/davsync/pkg/models"
	"github.com/sdejongh/davsync/pkg/state"
)

// conflictTimeLayout is the timestamp embedded in conflict copy names
const conflictTimeLayout = "20060102-150405"

// decide chooses what to do with a path present on both sides.
// Without prior state, equal fingerprints mean nothing to do and otherwise
// the later modification wins. With prior state each side is compared with
// what was recorded at the last pass.
func decide(relPath string, local, remote *models.FileEntry, prior *state.FileSyncState) models.Decision {
	d := models.Decision{Path: relPath}

	if prior == nil {
		switch {
		case remote.Fingerprint != "" && compare.Equal(local.Fingerprint, remote.Fingerprint):
			d.Action, d.Reason = models.ActionSkip, models.ReasonIdentical
		case local.ModTime.After(remote.ModTime):
			d.Action, d.Reason = models.ActionUpload, models.ReasonLocalNewer
		default:
			d.Action, d.Reason = models.ActionDownload, models.ReasonRemoteNewer
		}
		return d
	}

	localChanged := compare.Changed(prior.LastLocalFingerprint, local.Fingerprint)
	remoteChanged := remoteChangedSince(remote, prior)

	switch {
	case !localChanged && !remoteChanged:
		d.Action, d.Reason = models.ActionSkip, models.ReasonUnchanged
	case localChanged && !remoteChanged:
		d.Action, d.Reason = models.ActionUpload, models.ReasonLocalChanged
	case !localChanged && remoteChanged:
		d.Action, d.Reason = models.ActionDownload, models.ReasonRemoteChanged
	default:
		d.Action, d.Reason = models.ActionConflict, models.ReasonBothChanged
	}
	return d
}

// remoteChangedSince compares the listed remote entry with the recorded one.
// Servers that report no ETag are judged by modification time and size.
func remoteChangedSince(remote *models.FileEntry, prior *state.FileSyncState) bool {
	if remote.Fingerprint != "" {
		return compare.Changed(prior.LastRemoteFingerprint, remote.Fingerprint)
	}
	return !remote.ModTime.Equal(prior.LastRemoteModTime) || remote.Size != prior.Size
}

// conflictName returns the sibling name for the server copy of a conflicting
// file: notes/todo.md becomes notes/todo.conflict-20240102-150405.md
func conflictName(relPath string, at time.Time) string {
	dir, file := path.Split(relPath)
	ext := path.Ext(file)
	base := strings.TrimSuffix(file, ext)
	return dir + base + ".conflict-" + at.Format(conflictTimeLayout) + ext
}

// uniqueConflictName appends a counter when a conflict copy with the same
// timestamp already exists locally
func uniqueConflictName(relPath string, at time.Time, abs func(string) (string, error)) (string, error) {
	name := conflictName(relPath, at)
	for i := 2; ; i++ {
		p, err := abs(name)
		if err != nil {
			return "", err
		}
		if _, err := os.Lstat(p); os.IsNotExist(err) {
			return name, nil
		}
		if i > 100 {
			return "", fmt.Errorf("no free conflict name for %s", relPath)
		}
		ext := path.Ext(relPath)
		name = strings.TrimSuffix(conflictName(relPath, at), ext) + fmt.Sprintf("-%d", i) + ext
	}
}
