package ytdlp

import (
	"sync"
	"time"
)

// StallTimeout is how long the extractor may go without any progress-hook or
// matched log activity before it is considered hung.
const StallTimeout = 120 * time.Second

// StallDetector tracks whether the extractor is making progress. Progress
// hooks and matched log lines call Tick; the retry loop polls Stalled.
type StallDetector struct {
	timeout time.Duration

	mu           sync.Mutex
	lastActivity time.Time

	// now is replaceable for tests.
	now func() time.Time
}

// NewStallDetector creates a detector with the given timeout; zero falls
// back to StallTimeout.
func NewStallDetector(timeout time.Duration) *StallDetector {
	if timeout <= 0 {
		timeout = StallTimeout
	}
	d := &StallDetector{timeout: timeout, now: time.Now}
	d.lastActivity = d.now()
	return d
}

// Tick signals activity, resetting the stall clock.
func (d *StallDetector) Tick() {
	d.mu.Lock()
	d.lastActivity = d.now()
	d.mu.Unlock()
}

// Stalled reports whether more than the timeout elapsed since the last Tick.
func (d *StallDetector) Stalled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.now().Sub(d.lastActivity) > d.timeout
}
