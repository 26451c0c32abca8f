// Package progressui renders download progress to the terminal using
// schollz/progressbar, mitchellh/colorstring, and golang.org/x/term.
package progressui

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/colorstring"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"torrentleech/internal/piece"
)

// pollInterval is how often Watch samples the piece manager, so the bar
// lags a change in progress or completion by at most one tick.
const pollInterval = 250 * time.Millisecond

// Reporter drives a single torrent's progress display. On a non-terminal
// stdout (piped output, CI logs) it degrades to periodic plain-text lines
// instead of a redrawing bar, since progressbar's carriage-return redraw is
// meaningless without a real TTY.
type Reporter struct {
	bar        *progressbar.ProgressBar
	name       string
	isTerminal bool
	lastPlain  time.Time
}

// New builds a Reporter for a torrent named name with totalSize bytes.
func New(name string, totalSize int64) *Reporter {
	isTerminal := term.IsTerminal(int(os.Stdout.Fd()))

	bar := progressbar.NewOptions64(totalSize,
		progressbar.OptionSetDescription(name),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(os.Stdout) }),
		progressbar.OptionSpinnerType(14),
	)

	return &Reporter{bar: bar, name: name, isTerminal: isTerminal}
}

// Set advances the bar to an absolute byte count.
func (r *Reporter) Set(bytesDownloaded int64) {
	if r.isTerminal {
		r.bar.Set64(bytesDownloaded)
		return
	}

	// plain mode: one line at most every 5s, not on every tick.
	now := time.Now()
	if !r.lastPlain.IsZero() && now.Sub(r.lastPlain) < 5*time.Second {
		return
	}
	r.lastPlain = now
	fmt.Printf("%s: %d/%d bytes\n", r.name, bytesDownloaded, r.bar.GetMax64())
}

// Done marks the bar complete and prints a colored completion line.
func (r *Reporter) Done() {
	r.bar.Finish()
	colorstring.Println(fmt.Sprintf("[green]download complete:[reset] %s", r.name))
}

// Watch polls pm.BytesDownloaded and updates the bar until ctx is done or
// pm reports Complete, whichever comes first.
func (r *Reporter) Watch(ctx context.Context, pm *piece.Manager) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Set(pm.BytesDownloaded())
			if pm.Complete() {
				r.Done()
				return
			}
		}
	}
}
