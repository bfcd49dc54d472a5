package ffmpeg

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/jmylchreest/videodl/internal/runner"
)

// ProbeResult contains the ffprobe output for a local file.
type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

// ProbeFormat contains container format information.
type ProbeFormat struct {
	Filename   string `json:"filename"`
	NumStreams int    `json:"nb_streams"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

// ProbeStream contains stream information.
type ProbeStream struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"` // video, audio, subtitle, data
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	BitRate   string `json:"bit_rate,omitempty"`
}

// Prober handles ffprobe operations through the tool runner seam.
type Prober struct {
	Runner      runner.ToolRunner
	FFprobePath string
}

// NewProber creates a new file prober.
func NewProber(run runner.ToolRunner, ffprobePath string) *Prober {
	return &Prober{Runner: run, FFprobePath: ffprobePath}
}

// Probe runs ffprobe on the specified file and parses its JSON output.
// Any failure is a *ProbeError and fatal to the owning job.
func (p *Prober) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	argv := []string{p.FFprobePath, "-show_format", "-show_streams", "-of", "json", path}

	res, err := p.Runner.PopenCommunicate(ctx, argv)
	if err != nil {
		return nil, &ProbeError{Path: path, Err: err}
	}
	if res.ReturnCode != 0 {
		return nil, &ProbeError{Path: path, Stderr: strings.TrimSpace(res.Stderr)}
	}

	var result ProbeResult
	if err := json.Unmarshal([]byte(res.Stdout), &result); err != nil {
		return nil, &ProbeError{Path: path, Err: err}
	}
	return &result, nil
}

// StreamSummary is the distilled view of a probe used by the encode
// decision: first video and audio stream codecs, dimensions and duration.
type StreamSummary struct {
	VCodec          string
	ACodec          string
	Width           int
	Height          int
	DurationSeconds int

	// BigDimension is true when the smaller edge exceeds 1080 lines; it
	// gates injection of the encoder quality-flag block.
	BigDimension bool
}

// nleCompatibleVCodecs and nleCompatibleACodecs list the codec names a
// non-linear editor imports without transcoding.
var nleCompatibleVCodecs = map[string]bool{
	"avc1": true, "h264": true, "hevc": true, "h265": true, "prores": true,
}

var nleCompatibleACodecs = map[string]bool{
	"aac": true, "mp3": true, "mp4a": true, "pcm_s16le": true, "pcm_s24le": true,
}

// VCodecNLECompatible reports whether a video codec name needs no re-encode
// for NLE use.
func VCodecNLECompatible(codec string) bool {
	return nleCompatibleVCodecs[strings.ToLower(codec)]
}

// ACodecNLECompatible reports whether an audio codec name needs no re-encode
// for NLE use.
func ACodecNLECompatible(codec string) bool {
	return nleCompatibleACodecs[strings.ToLower(codec)]
}

// Summarize extracts the first audio and video streams and the container
// duration from a probe result. Codecs default to "na" when the stream kind
// is absent, matching the decision table's treatment of missing streams.
func Summarize(r *ProbeResult) StreamSummary {
	s := StreamSummary{VCodec: "na", ACodec: "na"}
	if d, err := strconv.ParseFloat(r.Format.Duration, 64); err == nil {
		s.DurationSeconds = int(d)
	}
	var haveAudio, haveVideo bool
	for _, stream := range r.Streams {
		switch stream.CodecType {
		case "audio":
			if haveAudio {
				continue
			}
			haveAudio = true
			s.ACodec = stream.CodecName
		case "video":
			if haveVideo {
				continue
			}
			haveVideo = true
			s.VCodec = stream.CodecName
			s.Width = stream.Width
			s.Height = stream.Height
			s.BigDimension = min(stream.Width, stream.Height) > 1080
		}
	}
	return s
}
