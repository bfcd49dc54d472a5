package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/jmylchreest/videodl/internal/config"
	"github.com/jmylchreest/videodl/internal/progress"
)

// proResQualityFlags is the default quality block injected for ProRes
// outputs at 1080p and below, in place of the encoder's own flags.
var proResQualityFlags = []string{"-profile:v", "0", "-qscale:v", "4"}

// TranscodeJob describes one ffmpeg run over a downloaded file.
type TranscodeJob struct {
	Input    string
	Decision Decision

	// Encoder and QualityFlags come from the selector; both are unused when
	// the decision copies the video stream.
	Encoder      string
	QualityFlags []string

	Height          int
	BigDimension    bool
	DurationSeconds int
}

// TempPath returns the intermediate output path for an input file:
// <stem>.tmp<newExt> next to the input.
func TempPath(input, newExt string) string {
	return strippedExt(input) + ".tmp" + newExt
}

// FinalPath returns the post-processing destination for an input file.
func FinalPath(input, newExt string) string {
	return strippedExt(input) + newExt
}

func strippedExt(path string) string {
	if i := strings.LastIndex(path, "."); i > strings.LastIndexByte(path, os.PathSeparator) {
		return path[:i]
	}
	return path
}

// BuildArgs assembles the ffmpeg argument vector for a transcode job. The
// order is fixed: input, audio codec, video codec, metadata, quality flags
// (only above 1080p, CRF-adapted; ProRes gets its default block below that),
// progress pipe, output.
func BuildArgs(ffmpegPath string, job TranscodeJob) []string {
	acodec := "copy"
	if !job.Decision.CopyAudio {
		acodec = "aac"
	}
	vcodec := "copy"
	if !job.Decision.CopyVideo {
		vcodec = job.Encoder
	}

	args := []string{
		ffmpegPath,
		"-hide_banner",
		"-i", job.Input,
		"-c:a", acodec,
		"-c:v", vcodec,
		"-metadata", "creation_time=now",
	}
	if job.BigDimension {
		args = append(args, AdaptCRF(job.QualityFlags, job.Height)...)
	} else if job.Decision.TargetVCodec == config.VideoProRes {
		args = append(args, proResQualityFlags...)
	}
	args = append(args, "-progress", "pipe:1", "-y", TempPath(job.Input, job.Decision.Ext))
	return args
}

// Transcoder runs ffmpeg over downloaded files with live progress capture
// and cancellation-aware cleanup.
type Transcoder struct {
	FFmpegPath string
	Log        *slog.Logger

	// Verbose raises ffmpeg's own loglevel, independent of the application
	// logger.
	Verbose bool

	// command builds the process; tests substitute a fake.
	command func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewTranscoder creates a Transcoder using the given ffmpeg binary.
func NewTranscoder(ffmpegPath string, log *slog.Logger) *Transcoder {
	if log == nil {
		log = slog.Default()
	}
	return &Transcoder{
		FFmpegPath: ffmpegPath,
		Log:        log,
		command:    exec.CommandContext,
	}
}

// buildArgs is BuildArgs plus the runner-level verbosity switch.
func (t *Transcoder) buildArgs(job TranscodeJob) []string {
	args := BuildArgs(t.FFmpegPath, job)
	if !t.Verbose {
		return args
	}
	out := make([]string, 0, len(args)+2)
	out = append(out, args[0], "-hide_banner", "-loglevel", "verbose")
	return append(out, args[2:]...)
}

// Run executes the transcode, emitting process-phase events on each progress
// block and consulting the cancel token on every tick. On success the input
// file is removed and the temp output atomically renamed over the final
// path. On cancellation the temp file is removed, the input is left in
// place and progress.ErrCancelled is returned. A non-zero exit yields a
// *TranscodeError carrying the tool's recent stderr.
func (t *Transcoder) Run(ctx context.Context, job TranscodeJob, cancel *progress.CancelToken, sink progress.Sink) error {
	args := t.buildArgs(job)
	tmpPath := TempPath(job.Input, job.Decision.Ext)
	action := job.Decision.Action()

	t.Log.Debug("running ffmpeg", "args", strings.Join(args[1:], " "))

	cmd := t.command(ctx, args[0], args[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &TranscodeError{Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &TranscodeError{Err: err}
	}
	if err := cmd.Start(); err != nil {
		return &TranscodeError{Err: err}
	}

	// Capture recent stderr for failure reports.
	var stderrTail tailBuffer
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		stderrTail.consume(stderr)
	}()

	t.consumeProgress(stdout, job, cancel, sink, string(action), cmd)

	// Wait closes the pipes, so the stderr reader must finish first.
	wg.Wait()
	waitErr := cmd.Wait()

	if cancel.Cancelled() {
		removeIfExists(tmpPath)
		return progress.ErrCancelled
	}
	if waitErr != nil {
		rc := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			rc = exitErr.ExitCode()
		}
		return &TranscodeError{ReturnCode: rc, Stderr: stderrTail.String()}
	}
	if _, err := os.Stat(tmpPath); err != nil {
		return &TranscodeError{Err: errors.New("output file missing after ffmpeg exited cleanly")}
	}

	sink.OnProcessProgress(progress.Event{
		Phase:            progress.PhaseProcess,
		Status:           "finished",
		ProgressFraction: progress.Fraction(1.0),
		ActionLabel:      string(action),
	})

	// Swap: drop the input, then rename temp over the final path. The
	// rename is atomic on the same filesystem and replaces any existing
	// file.
	if err := os.Remove(job.Input); err != nil {
		removeIfExists(tmpPath)
		return &TranscodeError{Err: err}
	}
	if err := os.Rename(tmpPath, FinalPath(job.Input, job.Decision.Ext)); err != nil {
		return &TranscodeError{Err: err}
	}
	return nil
}

// consumeProgress parses the -progress pipe:1 key-value stream, emitting one
// event per progress block and killing the process when cancellation is
// observed.
func (t *Transcoder) consumeProgress(r io.Reader, job TranscodeJob, cancel *progress.CancelToken, sink progress.Sink, action string, cmd *exec.Cmd) {
	scanner := bufio.NewScanner(r)
	var outSeconds float64
	var totalSize int64
	var speedBps float64
	killed := false

	for scanner.Scan() {
		if cancel.Cancelled() && !killed {
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
			killed = true
			continue
		}

		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "out_time_us", "out_time_ms":
			// Both fields carry microseconds.
			if us, err := strconv.ParseInt(value, 10, 64); err == nil {
				outSeconds = float64(us) / 1e6
			}
		case "out_time":
			if s, ok := parseClockTime(value); ok {
				outSeconds = s
			}
		case "total_size":
			if n, err := strconv.ParseInt(value, 10, 64); err == nil {
				totalSize = n
			}
		case "bitrate":
			speedBps = parseBitrate(value)
		case "progress":
			// End of one block: emit an event.
			frac := 0.0
			if job.DurationSeconds > 0 {
				frac = min(max(outSeconds/float64(job.DurationSeconds), 0), 0.99)
			}
			sink.OnProcessProgress(progress.Event{
				Phase:            progress.PhaseProcess,
				Status:           "processing",
				ProcessedBytes:   totalSize,
				SpeedBps:         speedBps,
				ProgressFraction: progress.Fraction(frac),
				ActionLabel:      action,
			})
		}
	}
}

// parseClockTime parses "HH:MM:SS.micro" into seconds.
func parseClockTime(s string) (float64, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	sec, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}
	return float64(h)*3600 + float64(m)*60 + sec, true
}

// parseBitrate parses ffmpeg's "bitrate= 923.4kbits/s" value into bits/s.
func parseBitrate(s string) float64 {
	s = strings.TrimSpace(s)
	mult := 1.0
	switch {
	case strings.HasSuffix(s, "kbits/s"):
		mult = 1e3
		s = strings.TrimSuffix(s, "kbits/s")
	case strings.HasSuffix(s, "mbits/s"):
		mult = 1e6
		s = strings.TrimSuffix(s, "mbits/s")
	case strings.HasSuffix(s, "bits/s"):
		s = strings.TrimSuffix(s, "bits/s")
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v * mult
}

func removeIfExists(path string) {
	if _, err := os.Stat(path); err == nil {
		_ = os.Remove(path)
	}
}

// tailBuffer keeps the most recent lines read from a stream.
type tailBuffer struct {
	mu    sync.Mutex
	lines []string
}

const tailBufferMax = 100

func (b *tailBuffer) consume(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		b.mu.Lock()
		if len(b.lines) >= tailBufferMax {
			b.lines = b.lines[1:]
		}
		b.lines = append(b.lines, scanner.Text())
		b.mu.Unlock()
	}
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.lines, "\n")
}
