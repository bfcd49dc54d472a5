// Package ytdlp wraps the external yt-dlp extractor: option construction,
// argv translation, the download driver with its stall watchdog, and the
// log bridge feeding status text back to the host.
package ytdlp

import (
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/jmylchreest/videodl/internal/config"
	"github.com/jmylchreest/videodl/internal/progress"
)

// OptionMap is the extractor option map. Keys follow yt-dlp's own option
// schema; the driver translates them to the process argv.
type OptionMap map[string]any

// Hook is a progress callback installed into the option map. Returning an
// error aborts the in-flight extractor run; the driver translates
// progress.ErrCancelled back to the session's cancellation result.
type Hook func(ev progress.Event) error

// Option map keys for the hook slots.
const (
	keyProgressHooks      = "progress_hooks"
	keyPostprocessorHooks = "postprocessor_hooks"
)

// Merge unions option fragments; later fragments win on key conflicts.
// Fragments built from disjoint concerns merge order-independently.
func Merge(fragments ...OptionMap) OptionMap {
	out := make(OptionMap)
	for _, frag := range fragments {
		for k, v := range frag {
			out[k] = v
		}
	}
	return out
}

// FileParams parameterizes FileOptions.
type FileParams struct {
	Playlist        bool
	DestDir         string
	IndicesEnabled  bool
	IndicesValue    string
	FFmpegPath      string
	ProgressHook    Hook
	PostprocessHook Hook
}

// FileOptions builds the file and playlist option fragment: output template,
// overwrite and truncation policy, playlist error continuation, and the two
// progress hooks.
//
// The "only_download" value for ignoreerrors is the extractor's own playlist
// continuation mode and is passed through verbatim.
func FileOptions(p FileParams) OptionMap {
	opts := OptionMap{
		"noplaylist":          !p.Playlist,
		"ignoreerrors":        false,
		"overwrites":          true,
		"trim_file_name":      250,
		"outtmpl":             filepath.Join(p.DestDir, "%(title).100s - %(uploader)s.%(ext)s"),
		keyProgressHooks:      []Hook{p.ProgressHook},
		keyPostprocessorHooks: []Hook{p.PostprocessHook},
	}
	if p.Playlist {
		opts["ignoreerrors"] = "only_download"
	}
	if p.IndicesEnabled {
		if p.IndicesValue != "" {
			opts["playlist_items"] = p.IndicesValue
		} else {
			opts["playlist_items"] = 1
		}
	}
	if p.FFmpegPath != "" && p.FFmpegPath != "ffmpeg" {
		opts["ffmpeg_location"] = p.FFmpegPath
	}
	return opts
}

// AVOptions builds the audio/video format selection fragment.
//
// Audio-only requests the best audio stream (optionally filtered by codec)
// and installs the FFmpegExtractAudio post-processor. Video requests prefer
// an NLE-friendly avc1/h264 stream at the requested height with an
// aac-family audio track, merged into mp4.
func AVOptions(audioOnly bool, acodec config.AudioCodec, maxHeight, framerate string) OptionMap {
	opts := make(OptionMap)
	if audioOnly {
		formatOpt := "ba/ba*"
		if acodec != config.AudioAuto {
			formatOpt = fmt.Sprintf("ba[acodec*=%s]/%s", acodec, formatOpt)
		}
		postprocessor := map[string]any{"key": "FFmpegExtractAudio"}
		if acodec != config.AudioAuto {
			postprocessor["preferredcodec"] = string(acodec)
		}
		opts["extract_audio"] = true
		opts["postprocessors"] = []map[string]any{postprocessor}
		opts["format"] = formatOpt
		return opts
	}

	const vcodecRe = "vcodec~='avc1|h264'"
	const acodecRe = "acodec~='aac|mp3|mp4a'"
	opts["format"] = fmt.Sprintf(
		"((bv[%s][height=%s]/bv[height=%s]/bv)+(ba[%s]/ba))/b",
		vcodecRe, maxHeight, maxHeight, acodecRe,
	)
	opts["format_sort"] = []string{"res:" + maxHeight, "fps:" + framerate}
	opts["merge_output_format"] = "mp4"
	return opts
}

// OriginalOptions builds the fragment for Original mode with specific stream
// selection. The format expression depends on which of the two ids the user
// picked; absent ids fall back to the best stream of that kind.
func OriginalOptions(videoID, audioID string, audioOnly bool) OptionMap {
	var formatOpt string
	switch {
	case audioOnly && audioID != "":
		formatOpt = audioID
	case videoID != "" && audioID != "":
		formatOpt = videoID + "+" + audioID
	case videoID != "":
		formatOpt = videoID + "+ba"
	case audioID != "":
		formatOpt = "bv+" + audioID
	default:
		formatOpt = "bv+ba/b"
	}
	return OptionMap{"format": formatOpt, "merge_output_format": "mp4"}
}

// TrimOptions builds the trim fragment. Trimming routes the download through
// ffmpeg as external downloader with -ss/-to input arguments. On Windows the
// external downloader cannot rely on PATH, so the ffmpeg location is set
// explicitly.
func TrimOptions(start, end *config.Timecode, goos, ffmpegPath string) OptionMap {
	if start == nil && end == nil {
		return OptionMap{}
	}
	startArg := "00:00:00"
	if start != nil {
		startArg = start.String()
	}
	ffmpegArgs := []string{"-ss", startArg}
	if end != nil {
		ffmpegArgs = append(ffmpegArgs, "-to", end.String())
	}
	opts := OptionMap{
		"external_downloader":      "ffmpeg",
		"external_downloader_args": map[string][]string{"ffmpeg_i": ffmpegArgs},
	}
	if goos == "windows" {
		opts["ffmpeg_location"] = ffmpegPath
	}
	return opts
}

// SubtitleOptions builds the subtitle fragment.
func SubtitleOptions(enabled bool) OptionMap {
	if !enabled {
		return OptionMap{}
	}
	return OptionMap{"subtitleslangs": []string{"all"}, "writesubtitles": true}
}

// CookieOptions builds the browser-cookie fragment. An empty browser name
// means no cookie extraction.
func CookieOptions(browser string) OptionMap {
	if browser == "" {
		return OptionMap{}
	}
	return OptionMap{"cookiesfrombrowser": []string{browser}}
}

// DefaultSponsorBlockCategories are the non-music segments removed in
// song-only mode.
var DefaultSponsorBlockCategories = []string{"music_offtopic", "intro", "outro", "sponsor", "selfpromo"}

// SponsorBlockOptions builds the song-only fragment: a SponsorBlock
// pre-process pass plus a ModifyChapters pass removing the categories.
func SponsorBlockOptions(songOnly bool, categories []string) OptionMap {
	if !songOnly {
		return OptionMap{}
	}
	if categories == nil {
		categories = DefaultSponsorBlockCategories
	}
	return OptionMap{
		"postprocessors": []map[string]any{
			{"key": "SponsorBlock", "when": "pre_process"},
			{"key": "ModifyChapters", "SponsorBlock": categories},
		},
	}
}

// EffectiveVCodec resolves the target codec mode from the user's choices:
// Original wins, then an explicit codec, then the NLE flag, then Best.
func EffectiveVCodec(originalOn bool, vcodec config.VideoCodec, nleReady bool) config.VideoCodec {
	if originalOn {
		return config.VideoOriginal
	}
	if vcodec != "" && vcodec != "Auto" {
		return vcodec
	}
	if nleReady {
		return config.VideoNLE
	}
	return config.VideoBest
}

// IndicatorState previews what post-processing a choice will cause, for the
// host's encode indicator.
type IndicatorState string

// Indicator states.
const (
	IndicatorNone     IndicatorState = "none"
	IndicatorRemux    IndicatorState = "remux"
	IndicatorReencode IndicatorState = "reencode"
)

// EncodeIndicatorState returns the indicator for the current codec choices
// and whether the indicator is visible at all.
func EncodeIndicatorState(originalOn bool, vcodec config.VideoCodec, nleReady bool) (IndicatorState, bool) {
	if originalOn {
		return IndicatorRemux, true
	}
	if vcodec == "Auto" || vcodec == "" {
		if nleReady {
			return IndicatorRemux, true
		}
		return IndicatorNone, false
	}
	return IndicatorReencode, true
}

// BuildOptions composes the full option map for a download config, merging
// the per-concern fragments. Original mode replaces the generic A/V format
// selection with explicit stream ids.
func BuildOptions(cfg *config.DownloadConfig, ffmpegPath string, progressHook, postprocessHook Hook) OptionMap {
	fileOpts := FileOptions(FileParams{
		Playlist:        cfg.Playlist,
		DestDir:         cfg.DestDir,
		IndicesEnabled:  cfg.IndicesEnabled,
		IndicesValue:    cfg.PlaylistIndices,
		FFmpegPath:      ffmpegPath,
		ProgressHook:    progressHook,
		PostprocessHook: postprocessHook,
	})

	var avOpts OptionMap
	if cfg.TargetVCodec == config.VideoOriginal {
		avOpts = OriginalOptions(cfg.VideoFormatID, cfg.AudioFormatID, cfg.AudioOnly)
	} else {
		avOpts = AVOptions(cfg.AudioOnly, cfg.TargetACodec, cfg.MaxHeightValue(), cfg.Framerate)
	}

	return Merge(
		fileOpts,
		avOpts,
		TrimOptions(cfg.TrimStart, cfg.TrimEnd, runtime.GOOS, ffmpegPath),
		SubtitleOptions(cfg.Subtitles),
		CookieOptions(cfg.CookiesBrowser),
		SponsorBlockOptions(cfg.SongOnly, nil),
	)
}
