//go:build unix

package ytdlp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/videodl/internal/progress"
)

func TestStallReapsExtractorGrandchildren(t *testing.T) {
	cancel := progress.NewCancelToken()
	sink := &eventRecorder{}
	dir := t.TempDir()
	counter := filepath.Join(dir, "attempts")
	pidFile := filepath.Join(dir, "grandchild.pid")
	// Attempt 1 plays a stuck extractor whose own child (a sleep standing
	// in for an ffmpeg trim download) must be reaped along with it.
	script := fmt.Sprintf(`echo x >> %q
n=$(wc -l < %q)
if [ "$n" -ge 2 ]; then
  echo "FILE=/media/late.mp4"
  exit 0
fi
sleep 600 > /dev/null 2>&1 &
echo $! > %q
while :; do :; done`, counter, counter, pidFile)
	s, _ := fakeSession(t, script, cancel, sink)

	err := s.Download(context.Background(), "https://example.com/v", cancel, sink)
	require.NoError(t, err)

	data, readErr := os.ReadFile(pidFile)
	require.NoError(t, readErr)
	pid, convErr := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, convErr)

	assert.Eventually(t, func() bool {
		// Signal 0 probes existence without touching the process.
		return syscall.Kill(pid, 0) != nil
	}, 5*time.Second, 50*time.Millisecond, "grandchild %d survived the reap", pid)
}
