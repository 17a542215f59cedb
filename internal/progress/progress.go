// Package progress reports per-file transfer progress.
package progress

import (
	"io"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Tracker receives the cumulative byte count of one transfer.
// totalBytes is -1 when the size is unknown.
type Tracker interface {
	Update(bytesTransferred, totalBytes int64)
	Complete()
}

// Factory opens a Tracker for a single file.
type Factory func(key string, size int64) Tracker

type nopTracker struct{}

func (nopTracker) Update(int64, int64) {}
func (nopTracker) Complete()           {}

// Nop returns trackers that discard every update.
func Nop() Factory {
	return func(string, int64) Tracker { return nopTracker{} }
}

type barTracker struct {
	bar *progressbar.ProgressBar
}

func (b *barTracker) Update(bytesTransferred, _ int64) {
	_ = b.bar.Set64(bytesTransferred)
}

func (b *barTracker) Complete() {
	_ = b.bar.Finish()
}

// Bars draws one byte-counting bar per file on w. An unknown size renders
// as a spinner.
func Bars(w io.Writer) Factory {
	return func(key string, size int64) Tracker {
		bar := progressbar.NewOptions64(size,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription(key),
			progressbar.OptionShowBytes(true),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(30),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionOnCompletion(func() {
				_, _ = io.WriteString(w, "\n")
			}),
		)
		return &barTracker{bar: bar}
	}
}
