// Package progress renders a row counter for long transfers.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
)

// Tracker counts transferred rows and, when attached to a terminal writer,
// draws a progress bar. A nil *Tracker is valid and does nothing.
type Tracker struct {
	mu        sync.Mutex
	out       io.Writer
	bar       *progressbar.ProgressBar
	desc      string
	total     int64
	current   atomic.Int64
	startTime time.Time
}

// New creates a tracker drawing to stderr.
func New(desc string) *Tracker {
	return NewTo(os.Stderr, desc)
}

// NewTo creates a tracker drawing to out. A nil out disables the bar.
func NewTo(out io.Writer, desc string) *Tracker {
	if desc == "" {
		desc = "Transferring"
	}
	return &Tracker{out: out, desc: desc, startTime: time.Now()}
}

// SetTotal sets the number of rows expected; a non-positive total draws a
// spinner instead of a bar.
func (t *Tracker) SetTotal(total int64) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total = total
	if t.out == nil {
		return
	}
	if total <= 0 {
		total = -1
	}
	t.bar = progressbar.NewOptions64(
		total,
		progressbar.OptionSetWriter(t.out),
		progressbar.OptionSetDescription(t.desc),
		progressbar.OptionShowBytes(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("rows"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
	)
	if cur := t.current.Load(); cur > 0 {
		t.bar.Add64(cur)
	}
}

// Add increments the row counter.
func (t *Tracker) Add(n int64) {
	if t == nil {
		return
	}
	t.current.Add(n)
	t.mu.Lock()
	if t.bar != nil {
		t.bar.Add64(n)
	}
	t.mu.Unlock()
}

// Current returns the current count.
func (t *Tracker) Current() int64 {
	if t == nil {
		return 0
	}
	return t.current.Load()
}

// Summary formats the count, the elapsed time and the throughput.
func (t *Tracker) Summary() string {
	if t == nil {
		return ""
	}
	elapsed := time.Since(t.startTime)
	n := t.current.Load()
	rate := 0.0
	if elapsed > 0 {
		rate = float64(n) / elapsed.Seconds()
	}
	return fmt.Sprintf("%s rows in %s (%s rows/sec)",
		humanize.Comma(n), elapsed.Round(time.Millisecond), humanize.Commaf(float64(int64(rate))))
}

// Finish completes the bar and prints the summary.
func (t *Tracker) Finish() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bar != nil {
		t.bar.Finish()
	}
	if t.out != nil {
		fmt.Fprintf(t.out, "\n%s %s\n", t.desc, t.Summary())
	}
}
