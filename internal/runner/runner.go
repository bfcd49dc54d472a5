// Package runner abstracts external tool execution so hosts can swap the
// process backend. Desktop builds shell out through os/exec; embedded hosts
// inject their own implementation.
package runner

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// Result is a platform-agnostic result from a completed process.
type Result struct {
	ReturnCode int
	Stdout     string
	Stderr     string
}

// RunOptions controls a single Run invocation.
type RunOptions struct {
	// Timeout bounds the process lifetime. Zero means no timeout.
	Timeout time.Duration
}

// ToolRunner executes external tools and reports their output.
//
// A non-zero exit status is not an error at this seam: it is reported via
// Result.ReturnCode. Errors are reserved for failures to spawn or to
// communicate with the process (binary missing, context cancelled, timeout).
type ToolRunner interface {
	Run(ctx context.Context, argv []string, opts RunOptions) (Result, error)
	PopenCommunicate(ctx context.Context, argv []string) (Result, error)
}

// ErrEmptyArgv is returned when an empty argument vector is supplied.
var ErrEmptyArgv = errors.New("runner: empty argv")

// ExecRunner runs tools through os/exec. It is the desktop implementation.
type ExecRunner struct{}

var _ ToolRunner = ExecRunner{}

// Run executes argv, waits for completion and captures stdout/stderr.
func (ExecRunner) Run(ctx context.Context, argv []string, opts RunOptions) (Result, error) {
	if len(argv) == 0 {
		return Result{}, ErrEmptyArgv
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.ReturnCode = 0
	case errors.As(err, &exitErr):
		res.ReturnCode = exitErr.ExitCode()
	default:
		// Spawn or I/O failure; prefer the context error when it caused it.
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		return res, err
	}

	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	return res, nil
}

// PopenCommunicate runs argv to completion with no timeout, capturing both
// output streams.
func (r ExecRunner) PopenCommunicate(ctx context.Context, argv []string) (Result, error) {
	return r.Run(ctx, argv, RunOptions{})
}
