package progress

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCancelTokenIdempotent(t *testing.T) {
	token := NewCancelToken()
	assert.False(t, token.Cancelled())
	token.Cancel()
	assert.True(t, token.Cancelled())
	token.Cancel()
	assert.True(t, token.Cancelled())
}

func TestCancelTokenConcurrent(t *testing.T) {
	token := NewCancelToken()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token.Cancel()
			_ = token.Cancelled()
		}()
	}
	wg.Wait()
	assert.True(t, token.Cancelled())
}

func TestComputeProgress(t *testing.T) {
	tests := []struct {
		name       string
		fraction   *float64
		downloaded int64
		total      int64
		last       float64
		wantValue  float64
		wantLast   float64
	}{
		{"explicit fraction wins unclamped", Fraction(1.0), 0, 0, 0.5, 1.0, 0.5},
		{"explicit zero fraction", Fraction(0), 10, 100, 0.5, 0, 0.5},
		{"derived fraction", nil, 50, 100, 0, 0.5, 0.5},
		{"derived fraction clamps at 0.99", nil, 100, 100, 0, 0.99, 0.99},
		{"derived above total clamps", nil, 150, 100, 0, 0.99, 0.99},
		{"zero total keeps last", nil, 10, 0, 0.42, 0.42, 0.42},
		{"negative downloaded keeps last", nil, -1, 100, 0.3, 0.3, 0.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, last := ComputeProgress(tt.fraction, tt.downloaded, tt.total, tt.last)
			assert.InDelta(t, tt.wantValue, value, 1e-9)
			assert.InDelta(t, tt.wantLast, last, 1e-9)
		})
	}
}

func TestFormatSpeed(t *testing.T) {
	assert.Equal(t, "-", FormatSpeed(0, PhaseDownload))
	assert.Equal(t, "-", FormatSpeed(-1, PhaseProcess))

	// Download speeds are already bytes/s.
	assert.Equal(t, "1.0 MB/s", FormatSpeed(1_000_000, PhaseDownload))

	// Process speeds arrive as bits/s and are divided by eight to get bytes.
	assert.Equal(t, "1.0 MB/s", FormatSpeed(8_000_000, PhaseProcess))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "-", FormatBytes(0))
	assert.Equal(t, "1.0 MB", FormatBytes(1_000_000))
}

func TestSinkFunc(t *testing.T) {
	var gotDownload, gotProcess bool
	sink := SinkFunc{
		Download: func(Event) { gotDownload = true },
		Process:  func(Event) { gotProcess = true },
	}
	sink.OnDownloadProgress(Event{})
	sink.OnProcessProgress(Event{})
	assert.True(t, gotDownload)
	assert.True(t, gotProcess)

	// Nil members must be safe.
	empty := SinkFunc{}
	empty.OnDownloadProgress(Event{})
	empty.OnProcessProgress(Event{})
}
