package downloader

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/videodl/internal/config"
	"github.com/jmylchreest/videodl/internal/ffmpeg"
	"github.com/jmylchreest/videodl/internal/progress"
	"github.com/jmylchreest/videodl/internal/runner"
	"github.com/jmylchreest/videodl/internal/ytdlp"
)

// Result is what a batch run produced: one report per failed URL, the URLs
// that completed, and the queue entries left for a later retry.
type Result struct {
	Reports        []ErrorReport
	Jobs           []*Job
	CompletedURLs  []string
	RemainingQueue []string
}

// Succeeded reports whether every URL completed without a report.
func (r Result) Succeeded() bool {
	return len(r.Reports) == 0
}

// Orchestrator consumes the URL queue and drives the extraction and
// post-processing phases per URL, applying the continuation policy from the
// error classifier.
type Orchestrator struct {
	Config *config.DownloadConfig
	Tools  config.ToolsConfig
	Runner runner.ToolRunner
	Sink   progress.Sink
	Status progress.StatusSink
	Cancel *progress.CancelToken
	Log    *slog.Logger

	// Verbose makes the external tools themselves chatty (yt-dlp -v,
	// ffmpeg -loglevel verbose), beyond the application log level.
	Verbose bool

	// OnFinished is the open-folder affordance: invoked with the
	// destination directory when the whole batch succeeded.
	OnFinished func(destDir string)

	// download runs one URL through a session; tests substitute a stub.
	download func(ctx context.Context, url string, job *Job) error

	currentJob *Job
}

// NewOrchestrator wires an orchestrator for a validated config.
func NewOrchestrator(cfg *config.DownloadConfig, tools config.ToolsConfig, run runner.ToolRunner, sink progress.Sink, status progress.StatusSink, cancel *progress.CancelToken, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	o := &Orchestrator{
		Config: cfg,
		Tools:  tools,
		Runner: run,
		Sink:   sink,
		Status: status,
		Cancel: cancel,
		Log:    log,
	}
	return o
}

// Run processes the main URL plus the queue, strictly in order, one at a
// time. An empty batch is a no-op with no status change.
func (o *Orchestrator) Run(ctx context.Context) Result {
	urls := o.Config.URLs()
	result := Result{RemainingQueue: append([]string(nil), o.Config.Queue...)}
	if len(urls) == 0 {
		return result
	}

	if o.download == nil {
		session := o.buildSession()
		o.download = func(ctx context.Context, url string, job *Job) error {
			return session.Download(ctx, url, o.Cancel, o.Sink)
		}
	}

	total := len(urls)
	for i, url := range urls {
		job := NewJob(url)
		result.Jobs = append(result.Jobs, job)
		o.currentJob = job

		o.resetProgress()
		if total == 1 {
			o.status("Preparing...")
		} else {
			o.status(fmt.Sprintf("%d/%d - %s", i+1, total, url))
		}

		job.MarkStarted()
		err := o.download(ctx, url, job)
		if err == nil {
			job.MarkDone()
			result.CompletedURLs = append(result.CompletedURLs, url)
			continue
		}

		report := BuildErrorReport(err)
		result.Reports = append(result.Reports, report)
		o.status(report.ShortMessage)
		if report.ShouldBreak {
			job.MarkCancelled()
			o.Log.Info("download cancelled by user", "url", url)
			break
		}
		job.MarkFailed(err)
		o.Log.Error("download failed", "url", url, "error", err)
	}
	o.currentJob = nil

	// Drop only completed URLs: failed, cancelled-in-flight and never-reached
	// URLs stay queued, so cancellation leaves the rest of the queue ready
	// for retry.
	completed := make(map[string]bool, len(result.CompletedURLs))
	for _, u := range result.CompletedURLs {
		completed[u] = true
	}
	remaining := result.RemainingQueue[:0]
	for _, u := range result.RemainingQueue {
		if !completed[u] {
			remaining = append(remaining, u)
		}
	}
	result.RemainingQueue = remaining

	if result.Succeeded() {
		o.Log.Info("all downloads completed")
		o.status("Download finished")
		if o.OnFinished != nil {
			o.OnFinished(o.Config.DestDir)
		}
	}
	return result
}

// buildSession constructs the extractor session shared by the whole batch,
// wiring the progress hooks and the post-processing phase.
func (o *Orchestrator) buildSession() *ytdlp.Session {
	progressHook := func(ev progress.Event) error {
		if o.Cancel.Cancelled() {
			return progress.ErrCancelled
		}
		if job := o.currentJob; job != nil && ev.Status == "downloading" {
			job.Advance(JobStatusDownloading)
		}
		o.Sink.OnDownloadProgress(ev)
		return nil
	}
	postprocessHook := func(ev progress.Event) error {
		if o.Cancel.Cancelled() {
			return progress.ErrCancelled
		}
		o.Sink.OnProcessProgress(ev)
		return nil
	}

	opts := ytdlp.BuildOptions(o.Config, o.Tools.FFmpegPath, progressHook, postprocessHook)
	session := ytdlp.NewSession(opts, o.Tools.YtDlpPath, o.Log, o.Status)
	session.Verbose = o.Verbose

	pp := ffmpeg.NewPostProcessor(o.Runner, o.Tools.FFmpegPath, o.Tools.FFprobePath, o.Log)
	pp.Transcoder.Verbose = o.Verbose
	session.PostProcess = func(ctx context.Context, path string) error {
		if job := o.currentJob; job != nil {
			job.Advance(JobStatusProbing)
		}
		return pp.Process(ctx, path, o.Config.TargetVCodec, o.Cancel, o.transcodeSink())
	}
	return session
}

// transcodeSink forwards process events, advancing the active job on the
// first one.
func (o *Orchestrator) transcodeSink() progress.Sink {
	return progress.SinkFunc{
		Process: func(ev progress.Event) {
			if job := o.currentJob; job != nil {
				job.Advance(JobStatusTranscoding)
			}
			o.Sink.OnProcessProgress(ev)
		},
	}
}

// resetProgress zeroes both phase bars before a URL starts.
func (o *Orchestrator) resetProgress() {
	zero := progress.Fraction(0)
	o.Sink.OnDownloadProgress(progress.Event{
		Phase: progress.PhaseDownload, Status: "reset", ProgressFraction: zero,
	})
	o.Sink.OnProcessProgress(progress.Event{
		Phase: progress.PhaseProcess, Status: "reset", ProgressFraction: zero,
	})
}

func (o *Orchestrator) status(msg string) {
	if o.Status != nil {
		o.Status.OnStatus(msg)
	}
}
