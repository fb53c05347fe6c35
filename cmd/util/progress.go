package util

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/buger/goterm"
	"github.com/jonboulle/clockwork"

	"github.com/sidkik/repocheck/pkg/fetch"
)

// ProgressInterval is the minimum time between two updates of the progress
// line.
const ProgressInterval = 200 * time.Millisecond

const defaultWidth = 80

// ProgressPrinter draws the progress of the current download on a single
// terminal line.
type ProgressPrinter struct {
	out   io.Writer
	clock clockwork.Clock
	width func() int

	lock      sync.Mutex
	lastPrint time.Time
	drawn     bool
}

// NewProgressPrinter creates a ProgressPrinter that writes to out.
func NewProgressPrinter(out io.Writer) *ProgressPrinter {
	return &ProgressPrinter{
		out:   out,
		clock: clockwork.NewRealClock(),
		width: goterm.Width,
	}
}

// For returns the progress callback for downloading relPath.
func (pp *ProgressPrinter) For(relPath string) fetch.ProgressFunc {
	return func(written, total int64) {
		pp.lock.Lock()
		defer pp.lock.Unlock()

		// Finished downloads are erased so that log messages don't end up on
		// the same line.
		if total >= 0 && written >= total {
			pp.clear()
			return
		}

		now := pp.clock.Now()
		if pp.drawn && now.Sub(pp.lastPrint) < ProgressInterval {
			return
		}
		pp.lastPrint = now
		pp.draw(fmt.Sprintf("%s: %s", relPath, formatProgress(written, total)))
	}
}

// Clear erases the progress line, if any.
func (pp *ProgressPrinter) Clear() {
	pp.lock.Lock()
	defer pp.lock.Unlock()
	pp.clear()
}

func (pp *ProgressPrinter) clear() {
	if pp.drawn {
		fmt.Fprintf(pp.out, "\r%s\r", strings.Repeat(" ", pp.lineWidth()))
		pp.drawn = false
	}
}

func (pp *ProgressPrinter) draw(line string) {
	width := pp.lineWidth()
	if runes := []rune(line); len(runes) > width {
		line = "..." + string(runes[len(runes)-width+3:])
	}
	fmt.Fprintf(pp.out, "\r%-*s", width, line)
	pp.drawn = true
}

// lineWidth leaves the last column free so that the cursor never wraps.
func (pp *ProgressPrinter) lineWidth() int {
	width := pp.width()
	if width <= 10 {
		width = defaultWidth
	}
	return width - 1
}

func formatProgress(written, total int64) string {
	if total < 0 {
		return formatBytes(written)
	}

	pct := 100.0
	if total > 0 {
		pct = float64(written) * 100 / float64(total)
	}
	return fmt.Sprintf("%s / %s (%.0f%%)", formatBytes(written), formatBytes(total), pct)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}

	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
