package ffmpeg

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jmylchreest/videodl/internal/config"
	"github.com/jmylchreest/videodl/internal/runner"
)

// PlatformFamily identifies a hardware encoder family. The declaration order
// in the registry encodes selection priority; CPU is the universal fallback
// and is always present for every target.
type PlatformFamily string

// Platform families in stable priority order.
const (
	FamilyQuickSync  PlatformFamily = "QuickSync"
	FamilyNVENC      PlatformFamily = "NVENC"
	FamilyAMF        PlatformFamily = "AMF"
	FamilyApple      PlatformFamily = "Apple"
	FamilyRaspberry  PlatformFamily = "Raspberry"
	FamilyMediaCodec PlatformFamily = "MediaCodec"
	FamilyCPU        PlatformFamily = "CPU"
)

// EncoderEntry maps a platform family to the encoder name and quality flags
// used for a target codec. An empty Name marks the family as absent for the
// target and is skipped during selection.
type EncoderEntry struct {
	Family       PlatformFamily
	Name         string
	QualityFlags []string
}

// encoderRegistry maps each target vcodec to its encoder candidates in
// priority order. On typical hosts at most one hardware family is usable and
// the quality delta between hardware families is negligible, so the first
// available entry wins.
var encoderRegistry = map[config.VideoCodec][]EncoderEntry{
	config.VideoX264: {
		{FamilyQuickSync, "h264_qsv", []string{"-global_quality", "20", "-look_ahead", "1"}},
		{FamilyNVENC, "h264_nvenc", []string{
			"-preset:v", "p7", "-tune:v", "hq", "-rc:v", "vbr",
			"-cq:v", "19", "-b:v", "0", "-profile:v", "high",
		}},
		{FamilyAMF, "h264_amf", []string{"-quality", "quality"}},
		{FamilyApple, "h264_videotoolbox", []string{"-q:v", "35"}},
		{FamilyRaspberry, "h264_v4l2m2m", nil},
		{FamilyMediaCodec, "h264_mediacodec", nil},
		{FamilyCPU, "libx264", []string{"-crf", "20"}},
	},
	config.VideoX265: {
		{FamilyQuickSync, "hevc_qsv", []string{"-global_quality", "20", "-look_ahead", "1"}},
		{FamilyNVENC, "hevc_nvenc", []string{
			"-preset:v", "p7", "-tune:v", "hq", "-rc:v", "vbr",
			"-cq:v", "19", "-b:v", "0", "-profile:v", "high",
		}},
		{FamilyAMF, "hevc_amf", []string{"-quality", "quality"}},
		{FamilyApple, "hevc_videotoolbox", []string{"-q:v", "35"}},
		{FamilyRaspberry, "hevc_v4l2m2m", nil},
		{FamilyMediaCodec, "hevc_mediacodec", nil},
		{FamilyCPU, "libx265", []string{"-crf", "20"}},
	},
	config.VideoProRes: {
		{FamilyQuickSync, "", nil},
		{FamilyNVENC, "", nil},
		{FamilyAMF, "", nil},
		{FamilyApple, "prores_videotoolbox", []string{"-profile:v", "0", "-qscale:v", "4"}},
		{FamilyRaspberry, "", nil},
		{FamilyMediaCodec, "", nil},
		{FamilyCPU, "prores_ks", []string{"-profile:v", "0", "-qscale:v", "4"}},
	},
	config.VideoAV1: {
		{FamilyQuickSync, "av1_qsv", nil},
		{FamilyNVENC, "av1_nvenc", nil},
		{FamilyAMF, "", nil},
		{FamilyApple, "", nil},
		{FamilyRaspberry, "", nil},
		{FamilyMediaCodec, "av1_mediacodec", nil},
		{FamilyCPU, "libsvtav1", []string{"-crf", "23"}},
	},
}

// RegistryEntries returns the candidate entries for a target codec in
// priority order, or nil for targets without a registry (Best, NLE,
// Original resolve to one of the four concrete targets before selection).
func RegistryEntries(target config.VideoCodec) []EncoderEntry {
	return encoderRegistry[target]
}

// encoderListTimeout bounds the -encoders enumeration run.
const encoderListTimeout = 10 * time.Second

// Selector resolves target codecs to usable encoders. The available-encoder
// set is populated once per process (lazily, singleflight-deduplicated) and
// read-only thereafter; enumeration failures yield the empty set, which
// makes selection fall through to CPU.
type Selector struct {
	Runner     runner.ToolRunner
	FFmpegPath string
	Log        *slog.Logger

	sf        singleflight.Group
	mu        sync.RWMutex
	available map[string]struct{}
}

// NewSelector creates a Selector enumerating encoders through run.
func NewSelector(run runner.ToolRunner, ffmpegPath string, log *slog.Logger) *Selector {
	if log == nil {
		log = slog.Default()
	}
	return &Selector{Runner: run, FFmpegPath: ffmpegPath, Log: log}
}

// Available returns the set of encoder names this ffmpeg build supports,
// enumerating them on first use.
func (s *Selector) Available(ctx context.Context) map[string]struct{} {
	s.mu.RLock()
	set := s.available
	s.mu.RUnlock()
	if set != nil {
		return set
	}

	v, _, _ := s.sf.Do("encoders", func() (any, error) {
		set := s.enumerate(ctx)
		s.mu.Lock()
		if s.available == nil {
			s.available = set
		}
		set = s.available
		s.mu.Unlock()
		return set, nil
	})
	return v.(map[string]struct{})
}

// enumerate parses `ffmpeg -encoders -hide_banner` output. Each encoder line
// starts with a six-character capability token followed by the encoder name;
// everything else is header noise and is skipped.
func (s *Selector) enumerate(ctx context.Context) map[string]struct{} {
	set := make(map[string]struct{})
	res, err := s.Runner.Run(ctx, []string{s.FFmpegPath, "-encoders", "-hide_banner"},
		runner.RunOptions{Timeout: encoderListTimeout})
	if err != nil {
		s.Log.Warn("could not query ffmpeg encoders", "error", err)
		return set
	}
	for _, line := range strings.Split(res.Stdout, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && len(fields[0]) == 6 {
			set[fields[1]] = struct{}{}
		}
	}
	s.Log.Info("available encoders", "count", len(set))
	return set
}

// FastestEncoder returns the first registry entry for the target whose
// encoder is present in this build, with its quality flags.
func (s *Selector) FastestEncoder(ctx context.Context, target config.VideoCodec) (string, []string, error) {
	available := s.Available(ctx)
	for _, entry := range encoderRegistry[target] {
		if entry.Name == "" {
			continue
		}
		if _, ok := available[entry.Name]; ok {
			s.Log.Info("selected encoder",
				"encoder", entry.Name, "family", string(entry.Family), "target", string(target))
			return entry.Name, entry.QualityFlags, nil
		}
	}
	return "", nil, ErrNoValidEncoder
}

// AdaptCRF adjusts a software encoder's -crf value to the output height:
// above 1080 lines the factor tightens (min 15), at 720 or below it relaxes
// (max 30), in between it is unchanged. Flags without a -crf pass through
// untouched; the input slice is never modified.
func AdaptCRF(flags []string, height int) []string {
	out := make([]string, len(flags))
	copy(out, flags)
	for i := 0; i < len(out)-1; i++ {
		if out[i] != "-crf" {
			continue
		}
		n, err := strconv.Atoi(out[i+1])
		if err != nil {
			return out
		}
		switch {
		case height > 1080:
			n = max(n-2, 15)
		case height <= 720:
			n = min(n+3, 30)
		}
		out[i+1] = strconv.Itoa(n)
		return out
	}
	return out
}
