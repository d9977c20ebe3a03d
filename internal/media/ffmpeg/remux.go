package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/afero"

	xglog "github.com/yoyostream/transcoderd/internal/log"
	"github.com/yoyostream/transcoderd/internal/media/ffmpeg/watchdog"
	"github.com/yoyostream/transcoderd/internal/metrics"
)

const (
	defaultRepairTimeout = 5 * time.Minute
	// RepairSuffix is appended to the source path for the remux output.
	RepairSuffix = ".repair.mp4"
)

// Remuxer rewrites a recording with stream copy and a front-loaded moov
// atom, replacing the original on success.
type Remuxer struct {
	Bin          string
	Timeout      time.Duration
	StartTimeout time.Duration
	StallTimeout time.Duration
	Fs           afero.Fs
}

// NewRemuxer returns a remuxer for bin (default "ffmpeg") on fs.
func NewRemuxer(bin string, timeout time.Duration, fs afero.Fs) *Remuxer {
	if bin == "" {
		bin = "ffmpeg"
	}
	if timeout <= 0 {
		timeout = defaultRepairTimeout
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Remuxer{
		Bin:          bin,
		Timeout:      timeout,
		StartTimeout: 30 * time.Second,
		StallTimeout: time.Minute,
		Fs:           fs,
	}
}

// Remux repairs path in place. On failure the partial output is removed
// and the original is left untouched. The modification time of path is
// preserved because it carries the recording's end time.
func (r *Remuxer) Remux(ctx context.Context, path string) error {
	logger := xglog.WithComponent("ffmpeg").With().Str(xglog.FieldPath, path).Logger()

	info, err := r.Fs.Stat(path)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	mtime := info.ModTime()
	tmp := path + RepairSuffix

	started := time.Now()
	if err := r.exec(ctx, path, tmp); err != nil {
		if rmErr := r.Fs.Remove(tmp); rmErr != nil && !errors.Is(rmErr, afero.ErrFileNotFound) {
			logger.Warn().Err(rmErr).Str(xglog.FieldTargetPath, tmp).Msg("failed to remove partial repair output")
		}
		return err
	}

	if _, err := r.Fs.Stat(tmp); err != nil {
		metrics.IncMediaTool("ffmpeg", "error")
		return fmt.Errorf("%w: no output written", ErrRepairFailed)
	}
	if err := r.Fs.Rename(tmp, path); err != nil {
		_ = r.Fs.Remove(tmp)
		return fmt.Errorf("%w: replace original: %w", ErrRepairFailed, err)
	}
	if err := r.Fs.Chtimes(path, mtime, mtime); err != nil {
		logger.Warn().Err(err).Msg("failed to restore modification time after repair")
	}

	logger.Info().
		Dur(xglog.FieldDuration, time.Since(started)).
		Str(xglog.FieldEvent, "recovery.file_repaired").
		Msg("recording remuxed")
	return nil
}

func (r *Remuxer) exec(parent context.Context, src, dst string) error {
	ctx, cancel := context.WithTimeout(parent, r.Timeout)
	defer cancel()

	wdCtx, stopWatchdog := context.WithCancel(ctx)
	defer stopWatchdog()

	cmd := command(ctx, r.Bin,
		"-hide_banner",
		"-nostats",
		"-progress", "pipe:1",
		"-i", src,
		"-c", "copy",
		"-movflags", "faststart",
		"-y",
		dst,
	)
	var stderr strings.Builder
	cmd.Stderr = &limitedWriter{w: &stderr, n: maxStderr}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: stdout pipe: %w", ErrRepairFailed, err)
	}
	if err := cmd.Start(); err != nil {
		metrics.IncMediaTool("ffmpeg", "error")
		return fmt.Errorf("%w: start: %w", ErrRepairFailed, err)
	}

	wd := watchdog.New(r.StartTimeout, r.StallTimeout)
	wdErr := make(chan error, 1)
	go func() {
		err := wd.Run(wdCtx)
		if err != nil {
			cancel()
		}
		wdErr <- err
	}()

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		wd.ParseLine(scanner.Text())
	}

	waitErr := cmd.Wait()
	stopWatchdog()
	if err := <-wdErr; err != nil {
		metrics.IncMediaTool("ffmpeg", "stalled")
		return fmt.Errorf("%w: %w", ErrRepairFailed, err)
	}
	if waitErr != nil {
		return fmt.Errorf("%w: %w", ErrRepairFailed, toolError(ctx, "ffmpeg", waitErr, stderr.String()))
	}
	metrics.IncMediaTool("ffmpeg", "ok")
	return nil
}
