package ytdlp

import (
	"log/slog"
	"regexp"

	"github.com/jmylchreest/videodl/internal/progress"
)

// Status labels surfaced while the extractor works through its phases.
const (
	StatusExtractingCookies = "Extracting cookies..."
	StatusSolvingJS         = "Solving JS challenge..."
	StatusFetchingInfo      = "Fetching video info..."
)

// statusPatterns maps extractor log lines onto phase labels. The list is
// ordered; the first match wins.
var statusPatterns = []struct {
	re    *regexp.Regexp
	label string
}{
	{regexp.MustCompile(`(?i)Extracting cookies from`), StatusExtractingCookies},
	{regexp.MustCompile(`(?i)Solving JS challenge`), StatusSolvingJS},
	{regexp.MustCompile(`(?i)Extracting URL|Downloading webpage|Downloading player`), StatusFetchingInfo},
}

// LogBridge forwards extractor log lines to the application logger and, for
// debug/info lines matching a phase pattern, to the status sink. Warnings
// and errors never update the status.
type LogBridge struct {
	Log    *slog.Logger
	Status progress.StatusSink

	// OnActivity, when set, is invoked for every debug/info line that
	// matches a phase pattern, so the stall watchdog sees extraction-phase
	// activity that precedes the first progress hook.
	OnActivity func()
}

// NewLogBridge creates a bridge writing to log and status.
func NewLogBridge(log *slog.Logger, status progress.StatusSink) *LogBridge {
	if log == nil {
		log = slog.Default()
	}
	return &LogBridge{Log: log, Status: status}
}

// updateStatus reports whether msg matched a phase pattern.
func (b *LogBridge) updateStatus(msg string) bool {
	for _, p := range statusPatterns {
		if p.re.MatchString(msg) {
			if b.Status != nil {
				b.Status.OnStatus(p.label)
			}
			return true
		}
	}
	return false
}

func (b *LogBridge) activity() {
	if b.OnActivity != nil {
		b.OnActivity()
	}
}

// Debug handles an extractor debug line.
func (b *LogBridge) Debug(msg string) {
	b.Log.Debug(msg)
	if b.updateStatus(msg) {
		b.activity()
	}
}

// Info handles an extractor info line.
func (b *LogBridge) Info(msg string) {
	b.Log.Info(msg)
	if b.updateStatus(msg) {
		b.activity()
	}
}

// Warning handles an extractor warning line.
func (b *LogBridge) Warning(msg string) {
	b.Log.Warn(msg)
}

// Error handles an extractor error line.
func (b *LogBridge) Error(msg string) {
	b.Log.Error(msg)
}
