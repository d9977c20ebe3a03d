// Package ffmpeg wraps the ffprobe and ffmpeg binaries used to check and
// repair recordings.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/yoyostream/transcoderd/internal/metrics"
	"github.com/yoyostream/transcoderd/internal/procgroup"
)

var (
	// ErrProbeFailed is returned when ffprobe fails or prints nothing usable.
	ErrProbeFailed = errors.New("ffprobe failed")
	// ErrRepairFailed is returned when a remux does not produce a file.
	ErrRepairFailed = errors.New("repair failed")
	// ErrTimeout is returned when a tool exceeds its time budget.
	ErrTimeout = errors.New("media tool timed out")
)

const (
	maxStderr = 4096
	// termGrace is how long a cancelled tool gets to exit on SIGTERM.
	termGrace = time.Second
	waitDelay = 3 * time.Second
)

// command prepares bin in its own process group bound to ctx.
func command(ctx context.Context, bin string, args ...string) *exec.Cmd {
	// #nosec G204 -- binary comes from config, args are built here
	cmd := exec.CommandContext(ctx, bin, args...)
	procgroup.Set(cmd, termGrace)
	cmd.WaitDelay = waitDelay
	return cmd
}

// run executes bin with a timeout and returns its stdout.
func run(ctx context.Context, tool, bin string, timeout time.Duration, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := command(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &limitedWriter{w: &stderr, n: maxStderr}

	err := cmd.Run()
	if err != nil {
		return stdout.Bytes(), toolError(ctx, tool, err, stderr.String())
	}
	metrics.IncMediaTool(tool, "ok")
	return stdout.Bytes(), nil
}

func toolError(ctx context.Context, tool string, err error, stderr string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		metrics.IncMediaTool(tool, "timeout")
		return fmt.Errorf("%s: %w", tool, ErrTimeout)
	}
	metrics.IncMediaTool(tool, "error")
	if stderr != "" {
		return fmt.Errorf("%s: %w (stderr: %s)", tool, err, stderr)
	}
	return fmt.Errorf("%s: %w", tool, err)
}

// limitedWriter keeps the first n bytes and discards the rest.
type limitedWriter struct {
	w io.Writer
	n int
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if l.n <= 0 {
		return len(p), nil
	}
	chunk := p
	if len(chunk) > l.n {
		chunk = chunk[:l.n]
	}
	n, err := l.w.Write(chunk)
	l.n -= n
	if err != nil {
		return n, err
	}
	return len(p), nil
}
