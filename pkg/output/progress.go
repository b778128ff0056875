package output

import (
	"io"
	"os"
	"path"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"

	"github.com/sdejongh/davsync/pkg/models"
)

const progressTemplate pb.ProgressBarTemplate = `{{with string . "prefix"}}{{.}} {{end}}{{counters . }} {{bar . }} {{percent . }}{{with string . "suffix"}} {{.}}{{end}}`

// ProgressBar renders one bar per pass, advancing as files are handled.
// It is subscribed to the engine as an observer.
type ProgressBar struct {
	mu      sync.Mutex
	writer  io.Writer
	refresh time.Duration
	bar     *pb.ProgressBar
}

// NewProgressBar creates a progress renderer writing to w (stderr when nil)
func NewProgressBar(w io.Writer) *ProgressBar {
	if w == nil {
		w = os.Stderr
	}
	return &ProgressBar{writer: w, refresh: 200 * time.Millisecond}
}

// PassPlanned starts a bar for total files
func (p *ProgressBar) PassPlanned(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.finishLocked()
	p.bar = progressTemplate.New(total).
		SetWriter(p.writer).
		SetRefreshRate(p.refresh).
		SetMaxWidth(100).
		Set("prefix", "sync")
	p.bar.Start()
}

// FileProcessed advances the bar
func (p *ProgressBar) FileProcessed(op models.FileOperation) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar == nil {
		return
	}
	p.bar.Set("suffix", string(op.Action)+" "+path.Base(op.Path))
	p.bar.Increment()
}

// SyncStatusChanged finishes the bar once the pass is over
func (p *ProgressBar) SyncStatusChanged(ev models.StatusEvent) {
	if ev.Status == models.StatusSyncing {
		return
	}
	p.Finish()
}

// FileDownloaded is a no-op; the bar already counts downloads
func (p *ProgressBar) FileDownloaded(models.FileDownloadedEvent) {}

// Finish stops the current bar, if any
func (p *ProgressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finishLocked()
}

// Current returns how many files the current bar has counted
func (p *ProgressBar) Current() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar == nil {
		return 0
	}
	return p.bar.Current()
}

func (p *ProgressBar) finishLocked() {
	if p.bar != nil && !p.bar.IsFinished() {
		p.bar.Set("suffix", "")
		p.bar.Finish()
	}
}
