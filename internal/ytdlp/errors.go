package ytdlp

import (
	"errors"
	"fmt"
)

// ErrPlaylistNotFound is returned when the extractor completed without
// yielding any media for the requested URL.
var ErrPlaylistNotFound = errors.New("playlist not found")

// DownloadTimeoutError is returned when all extraction attempts for a URL
// exhausted on stalls.
type DownloadTimeoutError struct {
	URL string
}

func (e *DownloadTimeoutError) Error() string {
	return fmt.Sprintf("download timed out for %s", e.URL)
}

// ExtractorError wraps a non-zero extractor exit with its stderr tail.
type ExtractorError struct {
	ReturnCode int
	Stderr     string
}

func (e *ExtractorError) Error() string {
	if e.Stderr != "" {
		return e.Stderr
	}
	return fmt.Sprintf("extractor exited with return code %d", e.ReturnCode)
}
