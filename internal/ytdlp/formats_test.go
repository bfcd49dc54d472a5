package ytdlp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterFormatsBestPerFamily(t *testing.T) {
	formats := []Format{
		{FormatID: "18", VCodec: "avc1.42001E", ACodec: "mp4a.40.2", Height: 360},   // muxed
		{FormatID: "137", VCodec: "avc1.640028", ACodec: "none", Height: 1080},
		{FormatID: "136", VCodec: "avc1.4d401f", ACodec: "none", Height: 720},
		{FormatID: "248", VCodec: "vp9", ACodec: "none", Height: 1080},
		{FormatID: "140", VCodec: "none", ACodec: "mp4a.40.2", ABR: 129.5},
		{FormatID: "139", VCodec: "none", ACodec: "mp4a.40.5", ABR: 48.0},
		{FormatID: "251", VCodec: "none", ACodec: "opus", ABR: 160.0},
	}

	video, audio := FilterFormats(formats)

	// One entry per video codec family, best height kept, sorted descending.
	require.Len(t, video, 2)
	assert.Equal(t, "137", video[0].FormatID)
	assert.Equal(t, "avc1 - 1080p", video[0].Label)
	assert.Equal(t, "248", video[1].FormatID)

	// Muxed format 18 must not appear in the audio list; best abr per family.
	require.Len(t, audio, 2)
	assert.Equal(t, "251", audio[0].FormatID)
	assert.Equal(t, "opus - 160kbps", audio[0].Label)
	assert.Equal(t, "140", audio[1].FormatID)
	assert.Equal(t, "mp4a - 129kbps", audio[1].Label)
}

func TestFilterFormatsEmpty(t *testing.T) {
	video, audio := FilterFormats(nil)
	assert.Empty(t, video)
	assert.Empty(t, audio)
}

func TestFilterFormatsAudioWithoutABR(t *testing.T) {
	_, audio := FilterFormats([]Format{
		{FormatID: "x", VCodec: "none", ACodec: "opus"},
	})
	require.Len(t, audio, 1)
	assert.Equal(t, "opus", audio[0].Label)
}
