package ytdlp

import (
	"fmt"
	"sort"
	"strings"
)

// Format is one raw format descriptor from the extractor's format list.
// VCodec/ACodec are "none" for streams lacking that kind.
type Format struct {
	FormatID string
	VCodec   string
	ACodec   string
	Height   int
	ABR      float64
}

// FormatChoice is a picker entry for Original-mode stream selection.
type FormatChoice struct {
	FormatID string
	Label    string
}

func codecFamily(codec string) string {
	family, _, _ := strings.Cut(codec, ".")
	return family
}

// FilterFormats organizes a raw format list into picker entries: within each
// codec family only the best-quality representative survives (highest height
// for video, highest average bitrate for audio), sorted descending by
// quality. Muxed formats count as video; the audio list holds audio-only
// streams.
func FilterFormats(formats []Format) (video, audio []FormatChoice) {
	type videoBest struct {
		formatID string
		height   int
	}
	type audioBest struct {
		formatID string
		abr      float64
	}
	videoSeen := make(map[string]videoBest)
	audioSeen := make(map[string]audioBest)

	for _, f := range formats {
		hasVideo := f.VCodec != "" && f.VCodec != "none"
		hasAudio := f.ACodec != "" && f.ACodec != "none"

		if hasVideo {
			key := codecFamily(f.VCodec)
			if best, ok := videoSeen[key]; !ok || f.Height > best.height {
				videoSeen[key] = videoBest{formatID: f.FormatID, height: f.Height}
			}
		}
		if hasAudio && !hasVideo {
			key := codecFamily(f.ACodec)
			if best, ok := audioSeen[key]; !ok || f.ABR > best.abr {
				audioSeen[key] = audioBest{formatID: f.FormatID, abr: f.ABR}
			}
		}
	}

	videoKeys := make([]string, 0, len(videoSeen))
	for k := range videoSeen {
		videoKeys = append(videoKeys, k)
	}
	sort.Slice(videoKeys, func(i, j int) bool {
		a, b := videoSeen[videoKeys[i]], videoSeen[videoKeys[j]]
		if a.height != b.height {
			return a.height > b.height
		}
		return videoKeys[i] < videoKeys[j]
	})
	for _, k := range videoKeys {
		v := videoSeen[k]
		video = append(video, FormatChoice{
			FormatID: v.formatID,
			Label:    fmt.Sprintf("%s - %dp", k, v.height),
		})
	}

	audioKeys := make([]string, 0, len(audioSeen))
	for k := range audioSeen {
		audioKeys = append(audioKeys, k)
	}
	sort.Slice(audioKeys, func(i, j int) bool {
		a, b := audioSeen[audioKeys[i]], audioSeen[audioKeys[j]]
		if a.abr != b.abr {
			return a.abr > b.abr
		}
		return audioKeys[i] < audioKeys[j]
	})
	for _, k := range audioKeys {
		a := audioSeen[k]
		label := k
		if a.abr > 0 {
			label = fmt.Sprintf("%s - %dkbps", k, int(a.abr))
		}
		audio = append(audio, FormatChoice{FormatID: a.formatID, Label: label})
	}

	return video, audio
}
