package ffmpeg

import (
	"strings"

	"github.com/jmylchreest/videodl/internal/config"
)

// vcodecNameToTarget maps ffprobe codec names onto the concrete target they
// already satisfy. Unknown codecs resolve to x264.
var vcodecNameToTarget = map[string]config.VideoCodec{
	"avc1":   config.VideoX264,
	"h264":   config.VideoX264,
	"hevc":   config.VideoX265,
	"h265":   config.VideoX265,
	"prores": config.VideoProRes,
}

// targetToVCodecName is the inverse mapping: target codec to canonical
// ffprobe name.
var targetToVCodecName = map[config.VideoCodec]string{
	config.VideoX264:   "avc1",
	config.VideoX265:   "hevc",
	config.VideoProRes: "prores",
	config.VideoAV1:    "av1",
}

// Action labels the kind of post-processing a decision results in.
type Action string

// Post-processing actions.
const (
	ActionRemux    Action = "Remuxing"
	ActionReencode Action = "Re-encoding"
)

// Decision captures what the post-processing phase must do with a downloaded
// file: copy or re-encode each stream, which concrete codec to target, and
// the resulting container extension.
type Decision struct {
	CopyVideo    bool
	CopyAudio    bool
	TargetVCodec config.VideoCodec
	Ext          string
}

// Action is Remux when both streams are copied, Reencode otherwise.
func (d Decision) Action() Action {
	if d.CopyVideo && d.CopyAudio {
		return ActionRemux
	}
	return ActionReencode
}

// resolveInputTarget maps the probed video codec to the target it satisfies.
func resolveInputTarget(vcodec string) config.VideoCodec {
	if t, ok := vcodecNameToTarget[strings.ToLower(vcodec)]; ok {
		return t
	}
	return config.VideoX264
}

// Decide applies the decision table for a target mode and probed streams.
// The second return value is false when post-processing must be skipped
// entirely (target Best).
func Decide(target config.VideoCodec, s StreamSummary) (Decision, bool) {
	if target == config.VideoBest {
		return Decision{}, false
	}

	var d Decision
	switch target {
	case config.VideoOriginal:
		// Pure remux: copy both streams into a fresh container.
		d.CopyVideo = true
		d.CopyAudio = true
		d.TargetVCodec = resolveInputTarget(s.VCodec)

	case config.VideoNLE:
		d.CopyAudio = ACodecNLECompatible(s.ACodec)
		if VCodecNLECompatible(s.VCodec) {
			d.CopyVideo = true
			d.TargetVCodec = resolveInputTarget(s.VCodec)
		} else {
			d.CopyVideo = false
			d.TargetVCodec = config.VideoX264
		}

	default:
		// Specific codec target: copy when the input already is the target.
		d.TargetVCodec = target
		d.CopyVideo = targetToVCodecName[target] == strings.ToLower(s.VCodec)
		d.CopyAudio = ACodecNLECompatible(s.ACodec)
	}

	d.Ext = ".mp4"
	if d.TargetVCodec == config.VideoProRes {
		d.Ext = ".mov"
	}
	return d, true
}
