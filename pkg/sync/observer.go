package sync

import "github.com/sdejongh/davsync/pkg/models"

// Observer receives engine events. Callbacks run on the pass goroutine and
// must return quickly.
type Observer interface {
	SyncStatusChanged(event models.StatusEvent)
	FileDownloaded(event models.FileDownloadedEvent)
}

// ProgressObserver is optionally implemented by observers that render
// per-file progress
type ProgressObserver interface {
	PassPlanned(total int)
	FileProcessed(op models.FileOperation)
}

// ObserverFuncs adapts plain functions to Observer; nil fields are skipped
type ObserverFuncs struct {
	OnStatus   func(models.StatusEvent)
	OnDownload func(models.FileDownloadedEvent)
}

// SyncStatusChanged implements Observer
func (o ObserverFuncs) SyncStatusChanged(event models.StatusEvent) {
	if o.OnStatus != nil {
		o.OnStatus(event)
	}
}

// FileDownloaded implements Observer
func (o ObserverFuncs) FileDownloaded(event models.FileDownloadedEvent) {
	if o.OnDownload != nil {
		o.OnDownload(event)
	}
}
