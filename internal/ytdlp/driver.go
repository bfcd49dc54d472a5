package ytdlp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/jmylchreest/videodl/internal/progress"
)

// Retry policy for stall-class failures.
const (
	MaxRetries  = 3
	BaseBackoff = 5 * time.Second

	// pollInterval is how often the retry loop checks for cancellation and
	// stalls while the extractor runs.
	pollInterval = 5 * time.Second

	// killGrace is how long to wait for the extractor to die after a kill.
	killGrace = 10 * time.Second
)

// errStalled marks an attempt broken by the stall watchdog; it never leaves
// the retry loop.
var errStalled = errors.New("extractor stalled")

// Progress templates make the extractor emit machine-readable progress lines
// on stdout, one JSON object per update, tagged with a phase prefix.
const (
	downloadTemplate = `download:{"status":"%(progress.status|)s",` +
		`"downloaded_bytes":%(progress.downloaded_bytes|0)d,` +
		`"total_bytes":%(progress.total_bytes|0)d,` +
		`"total_bytes_estimate":%(progress.total_bytes_estimate|0)d,` +
		`"speed":%(progress.speed|0)f,` +
		`"autonumber":%(info.playlist_autonumber|0)d,` +
		`"n_entries":%(info.n_entries|0)d}`

	postprocessTemplate = `postprocess:{"status":"%(progress.status|)s"}`

	// filePrintTemplate surfaces each entry's final path after all moves.
	filePrintTemplate = "after_move:FILE=%(filepath)s"
	filePrefix        = "FILE="
)

// wireProgress is the JSON shape emitted by the progress templates.
type wireProgress struct {
	Status             string  `json:"status"`
	DownloadedBytes    int64   `json:"downloaded_bytes"`
	TotalBytes         int64   `json:"total_bytes"`
	TotalBytesEstimate int64   `json:"total_bytes_estimate"`
	Speed              float64 `json:"speed"`
	Autonumber         int     `json:"autonumber"`
	NEntries           int     `json:"n_entries"`
}

// extractResult is what one successful extractor run produced.
type extractResult struct {
	files []string
}

// Session drives the external extractor for a batch of URLs. It is built
// once per download session so browser-cookie extraction happens once, and
// reused across the batch's URLs.
type Session struct {
	ID        uuid.UUID
	Opts      OptionMap
	YtDlpPath string
	Log       *slog.Logger
	Bridge    *LogBridge

	// Verbose makes the extractor itself chatty (its -v flag), on top of
	// whatever level the application logger runs at.
	Verbose bool

	// PostProcess is invoked for every downloaded file after a successful
	// extraction; the orchestrator wires the probe/transcode phase here.
	PostProcess func(ctx context.Context, path string) error

	// Tunables, defaulted by NewSession; tests shrink them.
	MaxRetries   int
	BaseBackoff  time.Duration
	StallTimeout time.Duration
	PollInterval time.Duration

	// command builds the extractor process; tests substitute a fake.
	command func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewSession creates a reusable extractor session.
func NewSession(opts OptionMap, ytdlpPath string, log *slog.Logger, status progress.StatusSink) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		ID:           uuid.New(),
		Opts:         opts,
		YtDlpPath:    ytdlpPath,
		Log:          log,
		Bridge:       NewLogBridge(log, status),
		MaxRetries:   MaxRetries,
		BaseBackoff:  BaseBackoff,
		StallTimeout: StallTimeout,
		PollInterval: pollInterval,
		command:      exec.CommandContext,
	}
}

// audioOnly reports whether the session's options request audio extraction,
// which short-circuits post-processing.
func (s *Session) audioOnly() bool {
	v, ok := s.Opts["extract_audio"].(bool)
	return ok && v
}

// progressHooks returns the installed download progress hooks.
func (s *Session) progressHooks() []Hook {
	hooks, _ := s.Opts[keyProgressHooks].([]Hook)
	return hooks
}

// postprocessorHooks returns the installed post-processor hooks.
func (s *Session) postprocessorHooks() []Hook {
	hooks, _ := s.Opts[keyPostprocessorHooks].([]Hook)
	return hooks
}

// Download extracts and downloads one URL, retrying stalled attempts with
// exponential backoff, then hands every produced file to PostProcess.
//
// Returns progress.ErrCancelled when the token was set, ErrPlaylistNotFound
// when extraction yielded nothing, *DownloadTimeoutError after exhausting
// retries on stalls, and the extractor's error otherwise.
func (s *Session) Download(ctx context.Context, url string, cancel *progress.CancelToken, sink progress.Sink) error {
	stall := NewStallDetector(s.StallTimeout)
	s.Bridge.OnActivity = stall.Tick

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.BaseBackoff
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = time.Duration(1<<uint(s.MaxRetries)) * s.BaseBackoff
	bo.MaxElapsedTime = 0
	bo.Reset()

	for attempt := 0; attempt < s.MaxRetries; attempt++ {
		if cancel.Cancelled() {
			return progress.ErrCancelled
		}
		stall.Tick()

		result, err := s.runAttempt(ctx, url, stall, cancel)
		if errors.Is(err, errStalled) {
			wait := bo.NextBackOff()
			s.Log.Warn("no extractor progress, retrying",
				"url", url, "attempt", attempt+1, "max", s.MaxRetries, "backoff", wait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		if err != nil {
			return err
		}
		if cancel.Cancelled() {
			return progress.ErrCancelled
		}
		return s.finishDownload(ctx, result, cancel, sink)
	}
	return &DownloadTimeoutError{URL: url}
}

// runAttempt runs the extractor once, polling for cancellation and stalls
// while it lives. Children spawned during the attempt are reaped when the
// attempt is cut short.
func (s *Session) runAttempt(ctx context.Context, url string, stall *StallDetector, cancel *progress.CancelToken) (*extractResult, error) {
	args := ArgsFromOptions(s.Opts)
	if s.Verbose {
		args = append(args, "-v")
	}
	args = append(args,
		"--newline",
		"--no-colors",
		"--no-quiet",
		"--progress-template", downloadTemplate,
		"--progress-template", postprocessTemplate,
		"--print", filePrintTemplate,
		url,
	)
	s.Log.Debug("running extractor", "session", s.ID.String(), "args", strings.Join(args, " "))

	cmd := s.command(ctx, s.YtDlpPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	// Snapshot the extractor's children now that it has a PID; anything it
	// spawns later (ffmpeg as external downloader, aria2c) is reaped by the
	// diff when the attempt is cut short.
	extractorPID := int32(cmd.Process.Pid)
	before := childPIDs(ctx, extractorPID)

	result := &extractResult{}
	var stderrTail tailLines
	var hookErr error
	var hookErrMu sync.Mutex

	done := make(chan error, 1)
	go func() {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			err := s.consumeStdout(stdout, stall, result)
			if err != nil {
				hookErrMu.Lock()
				hookErr = err
				hookErrMu.Unlock()
				_ = cmd.Process.Kill()
			}
		}()
		go func() {
			defer wg.Done()
			s.consumeStderr(stderr, &stderrTail)
		}()
		wg.Wait()
		done <- cmd.Wait()
	}()

	kill := func() {
		reapNewChildren(ctx, s.Log, extractorPID, before)
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		// Close our read ends too: a surviving grandchild could otherwise
		// hold the write end open and block the scanners past the kill.
		_ = stdout.Close()
		_ = stderr.Close()
	}

	ticker := time.NewTicker(s.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case waitErr := <-done:
			hookErrMu.Lock()
			raised := hookErr
			hookErrMu.Unlock()
			if raised != nil {
				// A hook aborted the run; its sentinel wins over the exit
				// status of the killed process.
				return nil, raised
			}
			if waitErr != nil {
				if stall.Stalled() {
					return nil, errStalled
				}
				rc := -1
				var exitErr *exec.ExitError
				if errors.As(waitErr, &exitErr) {
					rc = exitErr.ExitCode()
				}
				return nil, &ExtractorError{ReturnCode: rc, Stderr: stderrTail.String()}
			}
			return result, nil

		case <-ticker.C:
			if cancel.Cancelled() {
				kill()
				s.awaitExit(done)
				return nil, progress.ErrCancelled
			}
			if stall.Stalled() {
				s.Log.Warn("no progress from extractor, killing child processes", "url", url)
				kill()
				s.awaitExit(done)
				return nil, errStalled
			}
		}
	}
}

// awaitExit waits briefly for the worker to acknowledge the kill.
func (s *Session) awaitExit(done <-chan error) {
	select {
	case <-done:
	case <-time.After(killGrace):
	}
}

// consumeStdout parses the extractor's stdout: tagged progress JSON, final
// file paths, and everything else through the log bridge. A hook error
// aborts the run and is returned.
func (s *Session) consumeStdout(r io.Reader, stall *StallDetector, result *extractResult) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "download:"):
			stall.Tick()
			if err := s.dispatchProgress(line[len("download:"):], progress.PhaseDownload, s.progressHooks()); err != nil {
				return err
			}
		case strings.HasPrefix(line, "postprocess:"):
			stall.Tick()
			if err := s.dispatchProgress(line[len("postprocess:"):], progress.PhaseProcess, s.postprocessorHooks()); err != nil {
				return err
			}
		case strings.HasPrefix(line, filePrefix):
			result.files = append(result.files, strings.TrimPrefix(line, filePrefix))
		default:
			if line != "" {
				s.Bridge.Info(line)
			}
		}
	}
	return nil
}

// dispatchProgress decodes one wire progress object and feeds the hooks.
func (s *Session) dispatchProgress(payload string, phase progress.Phase, hooks []Hook) error {
	var wire wireProgress
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		// Malformed template output is log noise, not a failure.
		s.Log.Debug("unparseable progress line", "payload", payload)
		return nil
	}
	ev := progress.Event{
		Phase:              phase,
		Status:             wire.Status,
		DownloadedBytes:    wire.DownloadedBytes,
		TotalBytes:         wire.TotalBytes,
		TotalBytesEstimate: wire.TotalBytesEstimate,
		SpeedBps:           wire.Speed,
		PlaylistIndex:      wire.Autonumber,
		PlaylistCount:      wire.NEntries,
	}
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		if err := hook(ev); err != nil {
			return err
		}
	}
	return nil
}

// consumeStderr routes extractor log lines through the bridge, keeping a
// tail for error reports.
func (s *Session) consumeStderr(r io.Reader, tail *tailLines) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		tail.add(line)
		switch {
		case strings.HasPrefix(line, "ERROR:"):
			s.Bridge.Error(line)
		case strings.HasPrefix(line, "WARNING:"):
			s.Bridge.Warning(line)
		default:
			s.Bridge.Debug(line)
		}
	}
}

// finishDownload validates the extraction result and hands each produced
// file to the post-processing phase, checking cancellation between entries.
func (s *Session) finishDownload(ctx context.Context, result *extractResult, cancel *progress.CancelToken, sink progress.Sink) error {
	if len(result.files) == 0 {
		return ErrPlaylistNotFound
	}
	if s.audioOnly() {
		return nil
	}

	sink.OnDownloadProgress(progress.Event{
		Phase:            progress.PhaseDownload,
		Status:           "finished",
		ProgressFraction: progress.Fraction(1.0),
	})

	for _, file := range result.files {
		if cancel.Cancelled() {
			return progress.ErrCancelled
		}
		if s.PostProcess != nil {
			if err := s.PostProcess(ctx, file); err != nil {
				return err
			}
		}
	}
	if cancel.Cancelled() {
		return progress.ErrCancelled
	}
	return nil
}

// tailLines keeps the most recent stderr lines.
type tailLines struct {
	mu    sync.Mutex
	lines []string
}

const tailMax = 50

func (t *tailLines) add(line string) {
	t.mu.Lock()
	if len(t.lines) >= tailMax {
		t.lines = t.lines[1:]
	}
	t.lines = append(t.lines, line)
	t.mu.Unlock()
}

func (t *tailLines) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}
