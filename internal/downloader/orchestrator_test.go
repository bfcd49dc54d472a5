package downloader

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/videodl/internal/config"
	"github.com/jmylchreest/videodl/internal/progress"
	"github.com/jmylchreest/videodl/internal/runner"
	"github.com/jmylchreest/videodl/internal/ytdlp"
)

type statusRecorder struct {
	mu       sync.Mutex
	messages []string
}

func (r *statusRecorder) OnStatus(message string) {
	r.mu.Lock()
	r.messages = append(r.messages, message)
	r.mu.Unlock()
}

func (r *statusRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

func testOrchestrator(cfg *config.DownloadConfig, download func(ctx context.Context, url string, job *Job) error) (*Orchestrator, *statusRecorder) {
	status := &statusRecorder{}
	o := NewOrchestrator(cfg, config.ToolsConfig{}, runner.ExecRunner{}, progress.NopSink{}, status, progress.NewCancelToken(), slog.Default())
	o.download = download
	return o, status
}

func TestOrchestratorEmptyBatchIsNoOp(t *testing.T) {
	cfg := &config.DownloadConfig{DestDir: "."}
	o, status := testOrchestrator(cfg, func(context.Context, string, *Job) error {
		t.Fatal("download must not run")
		return nil
	})
	result := o.Run(context.Background())
	assert.Empty(t, result.Reports)
	assert.Empty(t, result.Jobs)
	assert.Empty(t, status.all(), "no status change on an empty batch")
}

func TestOrchestratorSingleURLSuccess(t *testing.T) {
	cfg := &config.DownloadConfig{URL: "https://example.com/1", DestDir: "/media"}
	var finished string
	o, status := testOrchestrator(cfg, func(_ context.Context, url string, _ *Job) error {
		return nil
	})
	o.OnFinished = func(destDir string) { finished = destDir }

	result := o.Run(context.Background())
	require.True(t, result.Succeeded())
	assert.Equal(t, []string{"https://example.com/1"}, result.CompletedURLs)
	assert.Equal(t, "/media", finished)

	messages := status.all()
	require.NotEmpty(t, messages)
	assert.Equal(t, "Preparing...", messages[0])
	assert.Equal(t, "Download finished", messages[len(messages)-1])

	require.Len(t, result.Jobs, 1)
	assert.Equal(t, JobStatusDone, result.Jobs[0].Status)
}

func TestOrchestratorBatchShowsCounters(t *testing.T) {
	cfg := &config.DownloadConfig{
		URL:   "https://example.com/1",
		Queue: []string{"https://example.com/2"},
	}
	o, status := testOrchestrator(cfg, func(context.Context, string, *Job) error { return nil })
	o.Run(context.Background())

	messages := status.all()
	assert.Contains(t, messages, "1/2 - https://example.com/1")
	assert.Contains(t, messages, "2/2 - https://example.com/2")
	assert.NotContains(t, messages, "Preparing...")
}

func TestOrchestratorContinuesPastPerURLFailures(t *testing.T) {
	cfg := &config.DownloadConfig{
		URL:   "https://example.com/1",
		Queue: []string{"https://example.com/2", "https://example.com/3"},
	}
	var attempted []string
	o, _ := testOrchestrator(cfg, func(_ context.Context, url string, _ *Job) error {
		attempted = append(attempted, url)
		if url == "https://example.com/2" {
			return ytdlp.ErrPlaylistNotFound
		}
		return nil
	})

	result := o.Run(context.Background())
	assert.Len(t, attempted, 3, "failure must not stop the batch")
	assert.False(t, result.Succeeded())
	require.Len(t, result.Reports, 1)
	assert.False(t, result.Reports[0].ShouldBreak)

	// Completed URLs leave the queue; the failed one stays.
	assert.Equal(t, []string{"https://example.com/2"}, result.RemainingQueue)
}

func TestOrchestratorCancellationBreaksBatch(t *testing.T) {
	cfg := &config.DownloadConfig{
		URL:   "https://example.com/1",
		Queue: []string{"https://example.com/2", "https://example.com/3"},
	}
	var attempted []string
	o, _ := testOrchestrator(cfg, func(_ context.Context, url string, _ *Job) error {
		attempted = append(attempted, url)
		if url == "https://example.com/2" {
			return progress.ErrCancelled
		}
		return nil
	})

	result := o.Run(context.Background())
	assert.Equal(t, []string{"https://example.com/1", "https://example.com/2"}, attempted,
		"cancellation stops the batch")
	require.Len(t, result.Reports, 1)
	assert.True(t, result.Reports[0].ShouldBreak)

	// URL 1 completed and leaves the queue; the cancelled URL 2 and the
	// never-reached URL 3 stay queued for retry.
	assert.Equal(t, []string{"https://example.com/2", "https://example.com/3"}, result.RemainingQueue)

	require.Len(t, result.Jobs, 2)
	assert.Equal(t, JobStatusDone, result.Jobs[0].Status)
	assert.Equal(t, JobStatusCancelled, result.Jobs[1].Status)
}

func TestOrchestratorStrictOrder(t *testing.T) {
	cfg := &config.DownloadConfig{
		URL:   "https://example.com/1",
		Queue: []string{"https://example.com/2", "https://example.com/3"},
	}
	var order []string
	o, _ := testOrchestrator(cfg, func(_ context.Context, url string, _ *Job) error {
		order = append(order, url)
		return nil
	})
	o.Run(context.Background())
	assert.Equal(t, []string{
		"https://example.com/1",
		"https://example.com/2",
		"https://example.com/3",
	}, order)
}

func TestOrchestratorFailureStatusSurfaced(t *testing.T) {
	cfg := &config.DownloadConfig{URL: "https://example.com/1"}
	o, status := testOrchestrator(cfg, func(context.Context, string, *Job) error {
		return errors.New("ERROR: boom")
	})
	result := o.Run(context.Background())
	assert.False(t, result.Succeeded())
	messages := status.all()
	assert.Contains(t, messages, "An error occurred during the download: boom")
	assert.NotContains(t, messages, "Download finished")
}
