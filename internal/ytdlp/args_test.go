package ytdlp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jmylchreest/videodl/internal/config"
)

func argsString(opts OptionMap) string {
	return strings.Join(ArgsFromOptions(opts), " ")
}

func TestArgsFromOptionsFileConcerns(t *testing.T) {
	opts := FileOptions(FileParams{
		Playlist:       true,
		DestDir:        "/media",
		IndicesEnabled: true,
		IndicesValue:   "2-4",
		FFmpegPath:     "/opt/ffmpeg",
	})
	s := argsString(opts)
	assert.Contains(t, s, "--yes-playlist")
	assert.Contains(t, s, "--ignore-errors")
	assert.Contains(t, s, "--force-overwrites")
	assert.Contains(t, s, "--trim-filenames 250")
	assert.Contains(t, s, "-o /media/%(title).100s - %(uploader)s.%(ext)s")
	assert.Contains(t, s, "--playlist-items 2-4")
	assert.Contains(t, s, "--ffmpeg-location /opt/ffmpeg")
}

func TestArgsFromOptionsNoPlaylist(t *testing.T) {
	s := argsString(OptionMap{"noplaylist": true, "ignoreerrors": false})
	assert.Contains(t, s, "--no-playlist")
	assert.NotContains(t, s, "--ignore-errors")
}

func TestArgsFromOptionsAV(t *testing.T) {
	opts := AVOptions(false, config.AudioAuto, "1080", "60")
	args := ArgsFromOptions(opts)
	s := strings.Join(args, " ")
	assert.Contains(t, s, "-S res:1080,fps:60")
	assert.Contains(t, s, "--merge-output-format mp4")
	assert.Contains(t, args, "-f")
}

func TestArgsFromOptionsAudioOnly(t *testing.T) {
	opts := AVOptions(true, config.AudioOPUS, "1080", "60")
	s := argsString(opts)
	assert.Contains(t, s, "-x")
	assert.Contains(t, s, "--audio-format opus")
}

func TestArgsFromOptionsTrim(t *testing.T) {
	start := config.Timecode{Minutes: 1}
	end := config.Timecode{Minutes: 2}
	opts := TrimOptions(&start, &end, "linux", "ffmpeg")
	s := argsString(opts)
	assert.Contains(t, s, "--downloader ffmpeg")
	assert.Contains(t, s, "--downloader-args ffmpeg_i:-ss 00:01:00 -to 00:02:00")
}

func TestArgsFromOptionsSubtitlesCookiesSponsorBlock(t *testing.T) {
	opts := Merge(
		SubtitleOptions(true),
		CookieOptions("Firefox"),
		SponsorBlockOptions(true, []string{"sponsor", "intro"}),
	)
	s := argsString(opts)
	assert.Contains(t, s, "--sub-langs all")
	assert.Contains(t, s, "--write-subs")
	assert.Contains(t, s, "--cookies-from-browser firefox")
	assert.Contains(t, s, "--sponsorblock-remove sponsor,intro")
}

func TestArgsFromOptionsSkipsHookSlots(t *testing.T) {
	opts := OptionMap{
		keyProgressHooks:      []Hook{nil},
		keyPostprocessorHooks: []Hook{nil},
	}
	assert.Empty(t, ArgsFromOptions(opts))
}
