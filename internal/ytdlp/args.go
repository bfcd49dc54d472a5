package ytdlp

import (
	"fmt"
	"sort"
	"strings"
)

// ArgsFromOptions translates an option map into the extractor's command-line
// argument vector. Only the keys the option builder produces are understood;
// hook slots are consumed by the driver and skipped here. The output order
// is deterministic.
func ArgsFromOptions(opts OptionMap) []string {
	var args []string

	appendFlag := func(flags ...string) {
		args = append(args, flags...)
	}

	if v, ok := opts["noplaylist"].(bool); ok {
		if v {
			appendFlag("--no-playlist")
		} else {
			appendFlag("--yes-playlist")
		}
	}
	if v, ok := opts["ignoreerrors"].(string); ok && v == "only_download" {
		// The extractor's own playlist continuation mode, passed verbatim.
		appendFlag("--ignore-errors")
	}
	if v, ok := opts["overwrites"].(bool); ok && v {
		appendFlag("--force-overwrites")
	}
	if v, ok := opts["trim_file_name"].(int); ok {
		appendFlag("--trim-filenames", fmt.Sprint(v))
	}
	if v, ok := opts["outtmpl"].(string); ok {
		appendFlag("-o", v)
	}
	if v, ok := opts["playlist_items"]; ok {
		appendFlag("--playlist-items", fmt.Sprint(v))
	}
	if v, ok := opts["ffmpeg_location"].(string); ok {
		appendFlag("--ffmpeg-location", v)
	}
	if v, ok := opts["format"].(string); ok {
		appendFlag("-f", v)
	}
	if v, ok := opts["format_sort"].([]string); ok {
		appendFlag("-S", strings.Join(v, ","))
	}
	if v, ok := opts["merge_output_format"].(string); ok {
		appendFlag("--merge-output-format", v)
	}
	if v, ok := opts["extract_audio"].(bool); ok && v {
		appendFlag("-x")
	}
	if pps, ok := opts["postprocessors"].([]map[string]any); ok {
		args = append(args, postprocessorArgs(pps)...)
	}
	if v, ok := opts["external_downloader"].(string); ok {
		appendFlag("--downloader", v)
	}
	if v, ok := opts["external_downloader_args"].(map[string][]string); ok {
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			appendFlag("--downloader-args", k+":"+strings.Join(v[k], " "))
		}
	}
	if v, ok := opts["subtitleslangs"].([]string); ok {
		appendFlag("--sub-langs", strings.Join(v, ","))
	}
	if v, ok := opts["writesubtitles"].(bool); ok && v {
		appendFlag("--write-subs")
	}
	if v, ok := opts["cookiesfrombrowser"].([]string); ok && len(v) > 0 {
		appendFlag("--cookies-from-browser", strings.ToLower(v[0]))
	}

	return args
}

// postprocessorArgs translates post-processor descriptors to flags.
func postprocessorArgs(pps []map[string]any) []string {
	var args []string
	for _, pp := range pps {
		switch pp["key"] {
		case "FFmpegExtractAudio":
			if codec, ok := pp["preferredcodec"].(string); ok {
				args = append(args, "--audio-format", strings.ToLower(codec))
			}
		case "ModifyChapters":
			if cats, ok := pp["SponsorBlock"].([]string); ok && len(cats) > 0 {
				args = append(args, "--sponsorblock-remove", strings.Join(cats, ","))
			}
		case "SponsorBlock":
			// Covered by --sponsorblock-remove on the ModifyChapters pass.
		}
	}
	return args
}
