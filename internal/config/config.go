// Package config provides configuration management for videodl using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

// VideoCodec is a target video codec mode.
type VideoCodec string

// Target video codec modes.
const (
	VideoBest     VideoCodec = "Best"
	VideoOriginal VideoCodec = "Original"
	VideoNLE      VideoCodec = "NLE"
	VideoX264     VideoCodec = "x264"
	VideoX265     VideoCodec = "x265"
	VideoProRes   VideoCodec = "ProRes"
	VideoAV1      VideoCodec = "AV1"
)

// AudioCodec is a target audio codec mode.
type AudioCodec string

// Target audio codec modes.
const (
	AudioAuto   AudioCodec = "Auto"
	AudioAAC    AudioCodec = "AAC"
	AudioALAC   AudioCodec = "ALAC"
	AudioFLAC   AudioCodec = "FLAC"
	AudioOPUS   AudioCodec = "OPUS"
	AudioMP3    AudioCodec = "MP3"
	AudioVORBIS AudioCodec = "VORBIS"
	AudioWAV    AudioCodec = "WAV"
)

var validVideoCodecs = map[VideoCodec]bool{
	VideoBest: true, VideoOriginal: true, VideoNLE: true,
	VideoX264: true, VideoX265: true, VideoProRes: true, VideoAV1: true,
}

var validAudioCodecs = map[AudioCodec]bool{
	AudioAuto: true, AudioAAC: true, AudioALAC: true, AudioFLAC: true,
	AudioOPUS: true, AudioMP3: true, AudioVORBIS: true, AudioWAV: true,
}

// DownloadConfig is the immutable input to the pipeline core. It is shared
// read-only between the orchestrator and both phases.
type DownloadConfig struct {
	URL   string   `mapstructure:"url"`
	Queue []string `mapstructure:"queue"`

	DestDir   string `mapstructure:"dest_dir"`
	AudioOnly bool   `mapstructure:"audio_only"`

	TargetVCodec VideoCodec `mapstructure:"target_vcodec"`
	TargetACodec AudioCodec `mapstructure:"target_acodec"`

	// Explicit stream selection for Original mode; empty means best.
	VideoFormatID string `mapstructure:"video_format_id"`
	AudioFormatID string `mapstructure:"audio_format_id"`

	MaxHeight string `mapstructure:"max_height"` // e.g. "1080p"
	Framerate string `mapstructure:"framerate"`  // "30" or "60"

	// Trim endpoints; nil means disabled.
	TrimStart *Timecode `mapstructure:"-"`
	TrimEnd   *Timecode `mapstructure:"-"`

	Subtitles      bool   `mapstructure:"subtitles"`
	SongOnly       bool   `mapstructure:"song_only"`
	CookiesBrowser string `mapstructure:"cookies_browser"` // empty means none

	Playlist        bool   `mapstructure:"playlist"`
	IndicesEnabled  bool   `mapstructure:"indices_enabled"`
	PlaylistIndices string `mapstructure:"playlist_indices"`
}

// MaxHeightValue returns MaxHeight with a trailing "p" removed ("1080p" and
// "1080" both yield "1080"). The value is not parsed or validated; an unset
// MaxHeight yields "".
func (c *DownloadConfig) MaxHeightValue() string {
	h := strings.TrimSuffix(c.MaxHeight, "p")
	return h
}

// URLs returns the main URL (when set) followed by the queue, in order.
func (c *DownloadConfig) URLs() []string {
	urls := make([]string, 0, len(c.Queue)+1)
	if c.URL != "" {
		urls = append(urls, c.URL)
	}
	return append(urls, c.Queue...)
}

// Validate checks the config invariants:
// indices require playlist mode, song-only requires audio-only, trim
// endpoints must be monotonic, and every URL must be a well-formed absolute
// URL with a scheme and authority.
func (c *DownloadConfig) Validate() error {
	if c.TargetVCodec != "" && !validVideoCodecs[c.TargetVCodec] {
		return fmt.Errorf("target_vcodec %q is not a valid codec mode", c.TargetVCodec)
	}
	if c.TargetACodec != "" && !validAudioCodecs[c.TargetACodec] {
		return fmt.Errorf("target_acodec %q is not a valid codec mode", c.TargetACodec)
	}
	if c.IndicesEnabled && !c.Playlist {
		return errors.New("playlist indices require playlist mode")
	}
	if c.SongOnly && !c.AudioOnly {
		return errors.New("song-only requires audio-only")
	}
	if c.TrimStart != nil && c.TrimEnd != nil && !c.TrimStart.Before(*c.TrimEnd) {
		return fmt.Errorf("trim start %s must be before trim end %s", c.TrimStart, c.TrimEnd)
	}
	for _, u := range c.URLs() {
		if err := ValidateURL(u); err != nil {
			return err
		}
	}
	return nil
}

// ValidateURL checks that u is an absolute URL with a scheme and authority.
func ValidateURL(u string) error {
	parsed, err := url.Parse(u)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", u, err)
	}
	if !parsed.IsAbs() || parsed.Host == "" {
		return fmt.Errorf("invalid URL %q: need an absolute URL with a host", u)
	}
	return nil
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// ToolsConfig holds external tool locations. Empty paths mean the bare
// command name, resolved on PATH at spawn time.
type ToolsConfig struct {
	FFmpegPath  string `mapstructure:"ffmpeg_path"`
	FFprobePath string `mapstructure:"ffprobe_path"`
	YtDlpPath   string `mapstructure:"ytdlp_path"`
}

// Config holds all configuration for the application.
type Config struct {
	Download DownloadConfig `mapstructure:"download"`
	Tools    ToolsConfig    `mapstructure:"tools"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration and are
// prefixed with VIDEODL_, using underscores for nesting.
// Example: VIDEODL_DOWNLOAD_DEST_DIR=/tmp/media.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.videodl")
		v.AddConfigPath("/etc/videodl")
	}

	v.SetEnvPrefix("VIDEODL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("download.dest_dir", ".")
	v.SetDefault("download.target_vcodec", string(VideoBest))
	v.SetDefault("download.target_acodec", string(AudioAuto))
	v.SetDefault("download.max_height", "1080p")
	v.SetDefault("download.framerate", "60")

	v.SetDefault("tools.ffmpeg_path", "")
	v.SetDefault("tools.ffprobe_path", "")
	v.SetDefault("tools.ytdlp_path", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", "")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}
	if c.Download.DestDir == "" {
		return fmt.Errorf("download.dest_dir is required")
	}
	return nil
}
