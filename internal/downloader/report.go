package downloader

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jmylchreest/videodl/internal/ffmpeg"
	"github.com/jmylchreest/videodl/internal/progress"
	"github.com/jmylchreest/videodl/internal/ytdlp"
)

// Severity is the status color a report is rendered with.
type Severity string

// Report severities.
const (
	SeverityYellow Severity = "yellow"
	SeverityRed    Severity = "red"
	SeverityGreen  Severity = "green"
)

// ErrorReport is the structured, UI-surfaceable classification of a
// pipeline failure. Immutable once built.
type ErrorReport struct {
	ShortMessage string
	Detail       string
	Color        Severity
	ShouldBreak  bool
	HasDetail    bool
}

// BuildErrorReport classifies an error into a report. Cancellation breaks
// the batch; everything else continues to the next URL. Unexpected errors
// carry their full detail for the error dialog.
func BuildErrorReport(err error) ErrorReport {
	if errors.Is(err, progress.ErrCancelled) {
		return ErrorReport{
			ShortMessage: "Download cancelled.",
			Color:        SeverityYellow,
			ShouldBreak:  true,
		}
	}
	if errors.Is(err, ytdlp.ErrPlaylistNotFound) {
		return ErrorReport{
			ShortMessage: "Playlist not found, check the URL and your permissions.",
			Color:        SeverityYellow,
		}
	}
	if errors.Is(err, ffmpeg.ErrNoValidEncoder) {
		return ErrorReport{
			ShortMessage: "No capable encoder found",
			Color:        SeverityRed,
		}
	}
	var timeout *ytdlp.DownloadTimeoutError
	if errors.As(err, &timeout) {
		return ErrorReport{
			ShortMessage: fmt.Sprintf("Timeout for %s", timeout.URL),
			Color:        SeverityYellow,
		}
	}

	shortMsg := strings.TrimPrefix(err.Error(), "ERROR: ")
	return ErrorReport{
		ShortMessage: "An error occurred during the download: " + shortMsg,
		Detail:       detailFor(err),
		Color:        SeverityRed,
		HasDetail:    true,
	}
}

// detailFor renders the full error chain for the detail dialog.
func detailFor(err error) string {
	var sb strings.Builder
	for depth := 0; err != nil; depth++ {
		if depth > 0 {
			sb.WriteString("\ncaused by: ")
		}
		sb.WriteString(err.Error())
		next := errors.Unwrap(err)
		if next == nil || next.Error() == err.Error() {
			break
		}
		err = next
	}
	return sb.String()
}
