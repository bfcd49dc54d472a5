// Package progress provides the cancellation and progress-dispatch substrate
// shared by the download and transcode phases. Callbacks are invoked from
// worker goroutines; implementations must be thread-safe or defer to the
// refresh coalescer.
package progress

import (
	"errors"
	"sync/atomic"

	"github.com/dustin/go-humanize"
)

// ErrCancelled is raised through the pipeline when the user cancels the
// active session. Hooks return it to abort in-flight extractor or transcoder
// work; the drivers translate it back to this sentinel at the session
// boundary.
var ErrCancelled = errors.New("download cancelled")

// Phase identifies which progress channel an event belongs to.
type Phase string

const (
	// PhaseDownload covers extraction and media download.
	PhaseDownload Phase = "download"
	// PhaseProcess covers post-processing (remux or re-encode).
	PhaseProcess Phase = "process"
)

// Event is a single progress update from a worker.
//
// Numeric fields are zero when the underlying tool did not report them;
// ProgressFraction is nil when no fraction was reported and must then be
// derived from the byte counters (see ComputeProgress).
type Event struct {
	Phase  Phase
	Status string // "downloading", "finished", "processing", ...

	DownloadedBytes    int64
	TotalBytes         int64
	TotalBytesEstimate int64
	ProcessedBytes     int64
	SpeedBps           float64
	ProgressFraction   *float64

	// ActionLabel names the post-processing action ("Remuxing", "Re-encoding").
	ActionLabel string

	// Playlist bookkeeping, passed through from the extractor.
	PlaylistIndex int
	PlaylistCount int
}

// Fraction returns a copy of f suitable for Event.ProgressFraction.
func Fraction(f float64) *float64 {
	return &f
}

// Sink receives progress events. One channel per phase.
type Sink interface {
	OnDownloadProgress(ev Event)
	OnProcessProgress(ev Event)
}

// StatusSink receives human-readable phase text ("Extracting cookies...").
type StatusSink interface {
	OnStatus(message string)
}

// SinkFunc adapts two functions to the Sink interface.
type SinkFunc struct {
	Download func(ev Event)
	Process  func(ev Event)
}

func (s SinkFunc) OnDownloadProgress(ev Event) {
	if s.Download != nil {
		s.Download(ev)
	}
}

func (s SinkFunc) OnProcessProgress(ev Event) {
	if s.Process != nil {
		s.Process(ev)
	}
}

// StatusFunc adapts a function to the StatusSink interface.
type StatusFunc func(message string)

func (f StatusFunc) OnStatus(message string) {
	if f != nil {
		f(message)
	}
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) OnDownloadProgress(Event) {}
func (NopSink) OnProcessProgress(Event)  {}

// CancelToken carries a monotone cancelled state: once set it stays set for
// the token's life. A new token is created per download session.
type CancelToken struct {
	cancelled atomic.Bool
}

// NewCancelToken returns a fresh, uncancelled token.
func NewCancelToken() *CancelToken {
	return &CancelToken{}
}

// Cancel marks the token. Idempotent and safe for concurrent use.
func (t *CancelToken) Cancel() {
	t.cancelled.Store(true)
}

// Cancelled reports whether Cancel was called. Cheap non-blocking read;
// consumers poll it at phase boundaries and inside progress callbacks.
func (t *CancelToken) Cancelled() bool {
	return t.cancelled.Load()
}

// ComputeProgress derives a progress-bar value from an event.
//
// When the tool reported an explicit fraction it wins unmodified (the
// synthetic "finished" event carries 1.0). Otherwise the fraction is derived
// from the byte counters and clamped to [0, 0.99] while running, so the bar
// never shows full before the finished event. When neither is available the
// last known value is retained.
func ComputeProgress(fraction *float64, downloaded, total int64, last float64) (value, lastOut float64) {
	if fraction != nil {
		return *fraction, last
	}
	if total <= 0 || downloaded < 0 {
		return last, last
	}
	f := float64(downloaded) / float64(total)
	f = min(max(f, 0), 0.99)
	return f, f
}

// FormatSpeed renders a transfer speed as a human-readable string, or "-"
// when the speed is unknown. Download speeds are reported in bytes/s;
// process speeds arrive in bits/s and are divided by eight to get bytes.
func FormatSpeed(speedBps float64, phase Phase) string {
	if speedBps <= 0 {
		return "-"
	}
	if phase == PhaseProcess {
		speedBps /= 8
	}
	return humanize.Bytes(uint64(speedBps)) + "/s"
}

// FormatBytes renders a byte count, or "-" when unknown.
func FormatBytes(n int64) string {
	if n <= 0 {
		return "-"
	}
	return humanize.Bytes(uint64(n))
}
