package ffmpeg

import (
	"context"
	"log/slog"

	"github.com/jmylchreest/videodl/internal/config"
	"github.com/jmylchreest/videodl/internal/progress"
	"github.com/jmylchreest/videodl/internal/runner"
)

// PostProcessor chains probe, decision, encoder selection and transcode for
// one downloaded file.
type PostProcessor struct {
	Prober     *Prober
	Selector   *Selector
	Transcoder *Transcoder
	Log        *slog.Logger
}

// NewPostProcessor wires the post-processing phase for the given tool paths.
// Probe and encoder enumeration run through the tool runner; the transcode
// itself owns its process for live progress capture.
func NewPostProcessor(run runner.ToolRunner, ffmpegPath, ffprobePath string, log *slog.Logger) *PostProcessor {
	if log == nil {
		log = slog.Default()
	}
	return &PostProcessor{
		Prober:     NewProber(run, ffprobePath),
		Selector:   NewSelector(run, ffmpegPath, log),
		Transcoder: NewTranscoder(ffmpegPath, log),
		Log:        log,
	}
}

// Process remuxes or re-encodes path to the target codec mode. Target Best
// skips post-processing entirely.
func (p *PostProcessor) Process(ctx context.Context, path string, target config.VideoCodec, cancel *progress.CancelToken, sink progress.Sink) error {
	if target == config.VideoBest {
		return nil
	}

	result, err := p.Prober.Probe(ctx, path)
	if err != nil {
		return err
	}
	summary := Summarize(result)

	decision, ok := Decide(target, summary)
	if !ok {
		return nil
	}

	job := TranscodeJob{
		Input:           path,
		Decision:        decision,
		Height:          summary.Height,
		BigDimension:    summary.BigDimension,
		DurationSeconds: summary.DurationSeconds,
	}
	if !decision.CopyVideo {
		encoder, flags, err := p.Selector.FastestEncoder(ctx, decision.TargetVCodec)
		if err != nil {
			return err
		}
		job.Encoder = encoder
		job.QualityFlags = flags
	}

	p.Log.Info("post-processing",
		"path", path,
		"action", string(decision.Action()),
		"target", string(decision.TargetVCodec),
		"copy_video", decision.CopyVideo,
		"copy_audio", decision.CopyAudio)

	return p.Transcoder.Run(ctx, job, cancel, sink)
}
