package downloader

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jmylchreest/videodl/internal/ffmpeg"
	"github.com/jmylchreest/videodl/internal/progress"
	"github.com/jmylchreest/videodl/internal/ytdlp"
)

func TestBuildErrorReportCancelled(t *testing.T) {
	report := BuildErrorReport(progress.ErrCancelled)
	assert.Equal(t, "Download cancelled.", report.ShortMessage)
	assert.Equal(t, SeverityYellow, report.Color)
	assert.True(t, report.ShouldBreak)
	assert.False(t, report.HasDetail)
}

func TestBuildErrorReportWrappedCancelled(t *testing.T) {
	report := BuildErrorReport(fmt.Errorf("session: %w", progress.ErrCancelled))
	assert.True(t, report.ShouldBreak)
	assert.Equal(t, SeverityYellow, report.Color)
}

func TestBuildErrorReportPlaylistNotFound(t *testing.T) {
	report := BuildErrorReport(ytdlp.ErrPlaylistNotFound)
	assert.Contains(t, report.ShortMessage, "Playlist not found")
	assert.Equal(t, SeverityYellow, report.Color)
	assert.False(t, report.ShouldBreak)
	assert.False(t, report.HasDetail)
}

func TestBuildErrorReportNoValidEncoder(t *testing.T) {
	report := BuildErrorReport(ffmpeg.ErrNoValidEncoder)
	assert.Equal(t, "No capable encoder found", report.ShortMessage)
	assert.Equal(t, SeverityRed, report.Color)
	assert.False(t, report.ShouldBreak)
	assert.False(t, report.HasDetail)
}

func TestBuildErrorReportTimeout(t *testing.T) {
	report := BuildErrorReport(&ytdlp.DownloadTimeoutError{URL: "https://example.com/v"})
	assert.Equal(t, "Timeout for https://example.com/v", report.ShortMessage)
	assert.Equal(t, SeverityYellow, report.Color)
	assert.False(t, report.ShouldBreak)
}

func TestBuildErrorReportUnexpected(t *testing.T) {
	report := BuildErrorReport(errors.New("ERROR: fragment 3 not found"))
	assert.Equal(t, "An error occurred during the download: fragment 3 not found", report.ShortMessage)
	assert.Equal(t, SeverityRed, report.Color)
	assert.False(t, report.ShouldBreak)
	assert.True(t, report.HasDetail)
	assert.NotEmpty(t, report.Detail)
}

func TestBuildErrorReportTranscodeFailure(t *testing.T) {
	err := &ffmpeg.TranscodeError{ReturnCode: 1, Stderr: "unknown encoder"}
	report := BuildErrorReport(err)
	assert.Equal(t, SeverityRed, report.Color)
	assert.True(t, report.HasDetail)
	assert.Contains(t, report.Detail, "unknown encoder")
	assert.False(t, report.ShouldBreak)
}

func TestBuildErrorReportDetailChain(t *testing.T) {
	inner := errors.New("disk full")
	report := BuildErrorReport(fmt.Errorf("writing output: %w", inner))
	assert.Contains(t, report.Detail, "writing output")
	assert.Contains(t, report.Detail, "caused by: disk full")
}
