package ytdlp

import (
	"context"
	"log/slog"

	"github.com/shirou/gopsutil/v4/process"
)

// childPIDs snapshots the PIDs of the extractor process's direct children.
// The extractor runs as its own process here, so everything it spawns
// (ffmpeg as external downloader, aria2c) hangs off its PID, not ours.
// Failures yield an empty set, which turns the later diff into "everything
// spawned since", still scoped to the extractor's own children.
func childPIDs(ctx context.Context, extractorPID int32) map[int32]struct{} {
	pids := make(map[int32]struct{})
	parent, err := process.NewProcessWithContext(ctx, extractorPID)
	if err != nil {
		return pids
	}
	children, err := parent.ChildrenWithContext(ctx)
	if err != nil {
		return pids
	}
	for _, child := range children {
		pids[child.Pid] = struct{}{}
	}
	return pids
}

// reapNewChildren terminates the extractor's children spawned since the
// before snapshot. The snapshot/diff keeps long-lived helpers the extractor
// started earlier out of the blast radius; the extractor process itself is
// killed separately by the caller.
func reapNewChildren(ctx context.Context, log *slog.Logger, extractorPID int32, before map[int32]struct{}) {
	parent, err := process.NewProcessWithContext(ctx, extractorPID)
	if err != nil {
		return
	}
	children, err := parent.ChildrenWithContext(ctx)
	if err != nil {
		return
	}
	for _, child := range children {
		if _, ok := before[child.Pid]; ok {
			continue
		}
		log.Debug("terminating stuck child process", "pid", child.Pid)
		if err := child.TerminateWithContext(ctx); err != nil {
			log.Debug("terminate failed", "pid", child.Pid, "error", err)
		}
	}
}
