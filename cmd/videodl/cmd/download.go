package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/videodl/internal/config"
	"github.com/jmylchreest/videodl/internal/downloader"
	"github.com/jmylchreest/videodl/internal/progress"
	"github.com/jmylchreest/videodl/internal/runner"
	"github.com/jmylchreest/videodl/internal/util"
)

var downloadFlags struct {
	destDir    string
	audioOnly  bool
	vcodec     string
	acodec     string
	maxHeight  string
	framerate  string
	trimStart  string
	trimEnd    string
	subtitles  bool
	songOnly   bool
	cookies    string
	playlist   bool
	indices    string
	videoID    string
	audioID    string
}

var downloadCmd = &cobra.Command{
	Use:   "download URL [URL...]",
	Short: "Download one or more URLs and post-process them",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDownload,
}

func init() {
	f := downloadCmd.Flags()
	f.StringVarP(&downloadFlags.destDir, "dest", "d", "", "destination directory (default from config)")
	f.BoolVar(&downloadFlags.audioOnly, "audio-only", false, "download audio only")
	f.StringVar(&downloadFlags.vcodec, "vcodec", "", "target video codec mode (Best, Original, NLE, x264, x265, ProRes, AV1)")
	f.StringVar(&downloadFlags.acodec, "acodec", "", "target audio codec mode (Auto, AAC, ALAC, FLAC, OPUS, MP3, VORBIS, WAV)")
	f.StringVar(&downloadFlags.maxHeight, "max-height", "", "maximum video height, e.g. 1080p")
	f.StringVar(&downloadFlags.framerate, "framerate", "", "maximum framerate (30 or 60)")
	f.StringVar(&downloadFlags.trimStart, "trim-start", "", "trim start timecode (H:M:S)")
	f.StringVar(&downloadFlags.trimEnd, "trim-end", "", "trim end timecode (H:M:S)")
	f.BoolVar(&downloadFlags.subtitles, "subtitles", false, "download subtitles")
	f.BoolVar(&downloadFlags.songOnly, "song-only", false, "cut non-music segments (implies audio-only)")
	f.StringVar(&downloadFlags.cookies, "cookies-from", "", "browser to extract cookies from")
	f.BoolVar(&downloadFlags.playlist, "playlist", false, "treat the URL as a playlist")
	f.StringVar(&downloadFlags.indices, "playlist-items", "", "playlist indices to fetch (implies --playlist)")
	f.StringVar(&downloadFlags.videoID, "video-format-id", "", "explicit video format id (Original mode)")
	f.StringVar(&downloadFlags.audioID, "audio-format-id", "", "explicit audio format id (Original mode)")

	mustBindPFlag("download.dest_dir", f.Lookup("dest"))
	mustBindPFlag("download.max_height", f.Lookup("max-height"))
	mustBindPFlag("download.framerate", f.Lookup("framerate"))

	rootCmd.AddCommand(downloadCmd)
}

func runDownload(cmd *cobra.Command, args []string) error {
	cfg, err := buildDownloadConfig(args)
	if err != nil {
		return err
	}

	tools := config.ToolsConfig{
		FFmpegPath:  viper.GetString("tools.ffmpeg_path"),
		FFprobePath: viper.GetString("tools.ffprobe_path"),
		YtDlpPath:   viper.GetString("tools.ytdlp_path"),
	}
	if tools.FFmpegPath == "" {
		tools.FFmpegPath = util.FindBinaryOrDefault("ffmpeg", "VIDEODL_FFMPEG")
	}
	if tools.FFprobePath == "" {
		tools.FFprobePath = util.FindBinaryOrDefault("ffprobe", "VIDEODL_FFPROBE")
	}
	if tools.YtDlpPath == "" {
		tools.YtDlpPath = util.FindBinaryOrDefault("yt-dlp", "VIDEODL_YTDLP")
	}

	cancel := progress.NewCancelToken()

	// Ctrl-C cancels the session cooperatively; a second one force-exits
	// because the first restores the default signal behaviour.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		cancel.Cancel()
		stop()
	}()

	printer := newProgressPrinter(cmd.OutOrStdout())
	printer.Start()
	defer printer.Stop()

	orch := downloader.NewOrchestrator(cfg, tools, runner.ExecRunner{}, printer, printer, cancel, slog.Default())
	orch.Verbose = verbose
	orch.OnFinished = func(destDir string) {
		fmt.Fprintf(cmd.OutOrStdout(), "Files saved to %s\n", destDir)
	}

	result := orch.Run(context.WithoutCancel(ctx))
	for _, report := range result.Reports {
		if report.HasDetail {
			slog.Debug("error detail", "detail", report.Detail)
		}
	}
	if !result.Succeeded() {
		return errors.New("one or more downloads failed")
	}
	return nil
}

// buildDownloadConfig merges config-file defaults with command-line flags.
func buildDownloadConfig(urls []string) (*config.DownloadConfig, error) {
	cfg := &config.DownloadConfig{
		URL:            urls[0],
		Queue:          urls[1:],
		DestDir:        stringOr(downloadFlags.destDir, viper.GetString("download.dest_dir")),
		AudioOnly:      downloadFlags.audioOnly || downloadFlags.songOnly,
		TargetVCodec:   config.VideoCodec(stringOr(downloadFlags.vcodec, viper.GetString("download.target_vcodec"))),
		TargetACodec:   config.AudioCodec(stringOr(downloadFlags.acodec, viper.GetString("download.target_acodec"))),
		VideoFormatID:  downloadFlags.videoID,
		AudioFormatID:  downloadFlags.audioID,
		MaxHeight:      stringOr(downloadFlags.maxHeight, viper.GetString("download.max_height")),
		Framerate:      stringOr(downloadFlags.framerate, viper.GetString("download.framerate")),
		Subtitles:      downloadFlags.subtitles,
		SongOnly:       downloadFlags.songOnly,
		CookiesBrowser: downloadFlags.cookies,
		Playlist:       downloadFlags.playlist || downloadFlags.indices != "",
		IndicesEnabled: downloadFlags.indices != "",
		PlaylistIndices: downloadFlags.indices,
	}
	if downloadFlags.trimStart != "" {
		tc, err := config.ParseTimecode(downloadFlags.trimStart)
		if err != nil {
			return nil, err
		}
		cfg.TrimStart = &tc
	}
	if downloadFlags.trimEnd != "" {
		tc, err := config.ParseTimecode(downloadFlags.trimEnd)
		if err != nil {
			return nil, err
		}
		cfg.TrimEnd = &tc
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func stringOr(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// progressPrinter renders progress to the terminal through the refresh
// coalescer, so a chatty extractor still yields at most five redraws per
// second.
type progressPrinter struct {
	out io.Writer

	mu           sync.Mutex
	status       string
	downloadLine string
	processLine  string

	coalescer *progress.Coalescer
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	p := &progressPrinter{out: out}
	p.coalescer = progress.NewCoalescer(p.flush, progress.DefaultFlushInterval)
	return p
}

func (p *progressPrinter) Start() { p.coalescer.Start() }
func (p *progressPrinter) Stop()  { p.coalescer.Stop() }

func (p *progressPrinter) OnDownloadProgress(ev progress.Event) {
	p.mu.Lock()
	p.downloadLine = renderEvent("download", ev)
	p.mu.Unlock()
	if ev.Status == "finished" {
		p.coalescer.Flush()
	} else {
		p.coalescer.Mark()
	}
}

func (p *progressPrinter) OnProcessProgress(ev progress.Event) {
	p.mu.Lock()
	p.processLine = renderEvent("process", ev)
	p.mu.Unlock()
	if ev.Status == "finished" {
		p.coalescer.Flush()
	} else {
		p.coalescer.Mark()
	}
}

func (p *progressPrinter) OnStatus(message string) {
	p.mu.Lock()
	p.status = message
	p.mu.Unlock()
	p.coalescer.Flush()
}

func (p *progressPrinter) flush() {
	p.mu.Lock()
	status, dl, proc := p.status, p.downloadLine, p.processLine
	p.mu.Unlock()
	if status != "" {
		fmt.Fprintln(p.out, status)
		p.mu.Lock()
		p.status = ""
		p.mu.Unlock()
	}
	if dl != "" {
		fmt.Fprintln(p.out, dl)
	}
	if proc != "" {
		fmt.Fprintln(p.out, proc)
	}
}

var lastFraction struct {
	sync.Mutex
	download float64
	process  float64
}

func renderEvent(kind string, ev progress.Event) string {
	lastFraction.Lock()
	last := lastFraction.download
	if ev.Phase == progress.PhaseProcess {
		last = lastFraction.process
	}
	value, newLast := progress.ComputeProgress(ev.ProgressFraction, ev.DownloadedBytes, totalOf(ev), last)
	if ev.Phase == progress.PhaseProcess {
		lastFraction.process = newLast
	} else {
		lastFraction.download = newLast
	}
	lastFraction.Unlock()

	label := ev.ActionLabel
	if label == "" {
		label = ev.Status
	}
	line := fmt.Sprintf("[%s] %s %3.0f%% %s", kind, label, value*100, progress.FormatSpeed(ev.SpeedBps, ev.Phase))
	if ev.PlaylistCount > 1 {
		line += fmt.Sprintf(" (%d/%d)", ev.PlaylistIndex, ev.PlaylistCount)
	}
	return line
}

func totalOf(ev progress.Event) int64 {
	if ev.TotalBytes > 0 {
		return ev.TotalBytes
	}
	return ev.TotalBytesEstimate
}
