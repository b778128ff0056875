package output

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/sdejongh/davsync/pkg/models"
)

// HumanFormatter formats output in human-readable format
type HumanFormatter struct {
	green  *color.Color
	cyan   *color.Color
	yellow *color.Color
	red    *color.Color
	bold   *color.Color
}

// NewHumanFormatter creates a new human-readable formatter. Colors are only
// emitted when colored is true.
func NewHumanFormatter(colored bool) *HumanFormatter {
	f := &HumanFormatter{
		green:  color.New(color.FgHiGreen),
		cyan:   color.New(color.FgHiCyan),
		yellow: color.New(color.FgHiYellow),
		red:    color.New(color.FgHiRed, color.Bold),
		bold:   color.New(color.Bold),
	}
	for _, c := range []*color.Color{f.green, f.cyan, f.yellow, f.red, f.bold} {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return f
}

// Result prints the per-file operations followed by a summary
func (f *HumanFormatter) Result(w io.Writer, r *models.SyncPassResult) error {
	for _, op := range r.Operations {
		switch op.Action {
		case models.ActionUpload:
			fmt.Fprintf(w, "%s %s (%s)\n", f.green.Sprint("↑"), op.Path, humanize.IBytes(uint64(op.BytesCopied)))
		case models.ActionDownload:
			fmt.Fprintf(w, "%s %s (%s)\n", f.cyan.Sprint("↓"), op.Path, humanize.IBytes(uint64(op.BytesCopied)))
		}
	}

	for _, c := range r.Conflicts {
		fmt.Fprintf(w, "%s %s changed on both sides, server copy saved as %s\n",
			f.yellow.Sprint("conflict:"), c.Path, c.ConflictPath)
	}

	if len(r.Operations) > 0 || len(r.Conflicts) > 0 {
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, f.bold.Sprint(r.Message()))
	fmt.Fprintf(w, "  Local:       %s\n", r.LocalRoot)
	fmt.Fprintf(w, "  Remote:      %s\n", r.RemoteRoot)
	fmt.Fprintf(w, "  Uploaded:    %d (%s)\n", r.Uploaded, humanize.IBytes(uint64(r.BytesUploaded)))
	fmt.Fprintf(w, "  Downloaded:  %d (%s)\n", r.Downloaded, humanize.IBytes(uint64(r.BytesDownloaded)))
	fmt.Fprintf(w, "  Unchanged:   %d\n", r.Unchanged)
	if r.Conflicted > 0 {
		fmt.Fprintf(w, "  Conflicts:   %s\n", f.yellow.Sprint(r.Conflicted))
	}
	fmt.Fprintf(w, "  Duration:    %s\n", r.Duration.Round(time.Millisecond))

	if transferred := r.BytesUploaded + r.BytesDownloaded; transferred > 0 && r.Duration.Seconds() > 0 {
		speed := float64(transferred) / r.Duration.Seconds()
		fmt.Fprintf(w, "  Speed:       %s/s\n", humanize.IBytes(uint64(speed)))
	}

	return nil
}

// Status prints a one-line status change
func (f *HumanFormatter) Status(w io.Writer, ev models.StatusEvent) error {
	label := string(ev.Status)
	switch ev.Status {
	case models.StatusSuccess:
		label = f.green.Sprint(label)
	case models.StatusError:
		label = f.red.Sprint(label)
	case models.StatusSyncing:
		label = f.cyan.Sprint(label)
	}

	line := fmt.Sprintf("[%s] %s", label, ev.Message)
	if !ev.LastSync.IsZero() && ev.Status != models.StatusSyncing {
		line += fmt.Sprintf(" (last sync %s)", humanize.Time(ev.LastSync))
	}
	_, err := fmt.Fprintln(w, line)
	return err
}

// Error reports an error
func (f *HumanFormatter) Error(w io.Writer, err error) error {
	_, werr := fmt.Fprintf(w, "%s %v\n", f.red.Sprint("Error:"), err)
	return werr
}

// Name returns the formatter name
func (f *HumanFormatter) Name() string {
	return "human"
}
