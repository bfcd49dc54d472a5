package ffmpeg

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/videodl/internal/config"
	"github.com/jmylchreest/videodl/internal/progress"
)

func TestTempAndFinalPaths(t *testing.T) {
	assert.Equal(t, "/dl/video.tmp.mp4", TempPath("/dl/video.webm", ".mp4"))
	assert.Equal(t, "/dl/video.mp4", FinalPath("/dl/video.webm", ".mp4"))
	assert.Equal(t, "/dl/clip.tmp.mov", TempPath("/dl/clip.mp4", ".mov"))
	// A dot in a parent directory is not an extension.
	assert.Equal(t, "/d.l/video.mp4", FinalPath("/d.l/video", ".mp4"))
}

func remuxJob(input string) TranscodeJob {
	return TranscodeJob{
		Input: input,
		Decision: Decision{
			CopyVideo: true, CopyAudio: true,
			TargetVCodec: config.VideoX264, Ext: ".mp4",
		},
		Height:          1080,
		DurationSeconds: 120,
	}
}

func TestBuildArgsRemux(t *testing.T) {
	args := BuildArgs("/usr/bin/ffmpeg", remuxJob("/dl/in.webm"))
	assert.Equal(t, []string{
		"/usr/bin/ffmpeg",
		"-hide_banner",
		"-i", "/dl/in.webm",
		"-c:a", "copy",
		"-c:v", "copy",
		"-metadata", "creation_time=now",
		"-progress", "pipe:1",
		"-y", "/dl/in.tmp.mp4",
	}, args)
}

func TestBuildArgsReencodeBigDimensionAdaptsCRF(t *testing.T) {
	job := TranscodeJob{
		Input: "/dl/in.webm",
		Decision: Decision{
			CopyVideo: false, CopyAudio: false,
			TargetVCodec: config.VideoX264, Ext: ".mp4",
		},
		Encoder:         "libx264",
		QualityFlags:    []string{"-crf", "20"},
		Height:          2160,
		BigDimension:    true,
		DurationSeconds: 60,
	}
	args := BuildArgs("ffmpeg", job)
	assert.Equal(t, []string{
		"ffmpeg",
		"-hide_banner",
		"-i", "/dl/in.webm",
		"-c:a", "aac",
		"-c:v", "libx264",
		"-metadata", "creation_time=now",
		"-crf", "18",
		"-progress", "pipe:1",
		"-y", "/dl/in.tmp.mp4",
	}, args)
}

func TestBuildArgsSmallDimensionOmitsQualityFlags(t *testing.T) {
	job := TranscodeJob{
		Input: "/dl/in.webm",
		Decision: Decision{
			CopyVideo: false, CopyAudio: true,
			TargetVCodec: config.VideoX264, Ext: ".mp4",
		},
		Encoder:      "libx264",
		QualityFlags: []string{"-crf", "20"},
		Height:       1080,
	}
	args := BuildArgs("ffmpeg", job)
	assert.NotContains(t, args, "-crf")
}

func TestBuildArgsProResDefaultBlockBelow1080(t *testing.T) {
	job := TranscodeJob{
		Input: "/dl/in.mp4",
		Decision: Decision{
			CopyVideo: false, CopyAudio: true,
			TargetVCodec: config.VideoProRes, Ext: ".mov",
		},
		Encoder: "prores_ks",
		Height:  1080,
	}
	args := BuildArgs("ffmpeg", job)
	assert.Contains(t, args, "-profile:v")
	assert.Contains(t, args, "-qscale:v")
	assert.Equal(t, "/dl/in.tmp.mov", args[len(args)-1])
}

func TestBuildArgsVerboseRaisesLogLevel(t *testing.T) {
	tr := NewTranscoder("ffmpeg", slog.Default())
	job := remuxJob("/dl/in.webm")

	args := tr.buildArgs(job)
	assert.NotContains(t, args, "-loglevel")

	tr.Verbose = true
	args = tr.buildArgs(job)
	require.Equal(t, []string{"ffmpeg", "-hide_banner", "-loglevel", "verbose"}, args[:4])
	assert.Equal(t, "/dl/in.tmp.mp4", args[len(args)-1])
}

func TestParseClockTime(t *testing.T) {
	s, ok := parseClockTime("00:02:00.500000")
	require.True(t, ok)
	assert.InDelta(t, 120.5, s, 1e-6)

	_, ok = parseClockTime("12:00")
	assert.False(t, ok)
}

func TestParseBitrate(t *testing.T) {
	assert.InDelta(t, 923_400, parseBitrate(" 923.4kbits/s"), 1)
	assert.InDelta(t, 1_200_000, parseBitrate("1.2mbits/s"), 1)
	assert.InDelta(t, 0, parseBitrate("N/A"), 0.1)
}

// recordingSink collects process events.
type recordingSink struct {
	mu     sync.Mutex
	events []progress.Event
}

func (s *recordingSink) OnDownloadProgress(ev progress.Event) { s.record(ev) }
func (s *recordingSink) OnProcessProgress(ev progress.Event)  { s.record(ev) }

func (s *recordingSink) record(ev progress.Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *recordingSink) all() []progress.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]progress.Event(nil), s.events...)
}

// fakeTranscoder returns a Transcoder whose ffmpeg is a shell script.
func fakeTranscoder(t *testing.T, script string) *Transcoder {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-based test")
	}
	tr := NewTranscoder("ffmpeg", slog.Default())
	tr.command = func(ctx context.Context, _ string, _ ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "sh", "-c", script)
	}
	return tr
}

func writeInput(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	input := filepath.Join(dir, "video.webm")
	require.NoError(t, os.WriteFile(input, []byte("payload"), 0o644))
	return input
}

func TestTranscoderRunSuccessSwapsFiles(t *testing.T) {
	input := writeInput(t)
	job := remuxJob(input)
	tmp := TempPath(input, ".mp4")
	final := FinalPath(input, ".mp4")

	script := fmt.Sprintf(`
echo "out_time_us=60000000"
echo "bitrate= 923.4kbits/s"
echo "total_size=1000"
echo "progress=continue"
cp %q %q
echo "progress=end"
`, input, tmp)

	tr := fakeTranscoder(t, script)
	sink := &recordingSink{}
	err := tr.Run(context.Background(), job, progress.NewCancelToken(), sink)
	require.NoError(t, err)

	assert.FileExists(t, final)
	assert.NoFileExists(t, input)
	assert.NoFileExists(t, tmp)

	events := sink.all()
	require.NotEmpty(t, events)
	// Running events clamp at 0.99; the finished event reports 1.0.
	for _, ev := range events[:len(events)-1] {
		require.NotNil(t, ev.ProgressFraction)
		assert.Less(t, *ev.ProgressFraction, 0.99+1e-9)
	}
	last := events[len(events)-1]
	assert.Equal(t, "finished", last.Status)
	assert.Equal(t, 1.0, *last.ProgressFraction)
	assert.Equal(t, string(ActionRemux), last.ActionLabel)
}

func TestTranscoderRunFailureKeepsInput(t *testing.T) {
	input := writeInput(t)
	job := remuxJob(input)

	tr := fakeTranscoder(t, `echo "conversion failed" >&2; exit 2`)
	err := tr.Run(context.Background(), job, progress.NewCancelToken(), &recordingSink{})

	var tErr *TranscodeError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, 2, tErr.ReturnCode)
	assert.Contains(t, tErr.Stderr, "conversion failed")
	assert.FileExists(t, input)
}

func TestTranscoderRunMissingOutputIsError(t *testing.T) {
	input := writeInput(t)
	job := remuxJob(input)

	tr := fakeTranscoder(t, `exit 0`)
	err := tr.Run(context.Background(), job, progress.NewCancelToken(), &recordingSink{})

	var tErr *TranscodeError
	require.ErrorAs(t, err, &tErr)
	assert.FileExists(t, input)
}

func TestTranscoderRunCancelledCleansTemp(t *testing.T) {
	input := writeInput(t)
	job := remuxJob(input)
	tmp := TempPath(input, ".mp4")

	script := fmt.Sprintf(`cp %q %q; echo "progress=continue"; exit 0`, input, tmp)
	tr := fakeTranscoder(t, script)

	cancel := progress.NewCancelToken()
	cancel.Cancel()
	err := tr.Run(context.Background(), job, cancel, &recordingSink{})

	assert.ErrorIs(t, err, progress.ErrCancelled)
	assert.FileExists(t, input)
	assert.NoFileExists(t, tmp)
	assert.NoFileExists(t, FinalPath(input, ".mp4"))
}
