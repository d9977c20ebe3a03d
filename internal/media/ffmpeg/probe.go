package ffmpeg

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	xglog "github.com/yoyostream/transcoderd/internal/log"
)

const defaultProbeTimeout = 5 * time.Second

// Prober asks ffprobe about recordings.
type Prober struct {
	Bin     string
	Timeout time.Duration
}

// NewProber returns a prober for bin (default "ffprobe").
func NewProber(bin string, timeout time.Duration) *Prober {
	if bin == "" {
		bin = "ffprobe"
	}
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &Prober{Bin: bin, Timeout: timeout}
}

// Playable reports whether the first video stream has a decodable codec.
// Timeouts and failures count as not playable.
func (p *Prober) Playable(ctx context.Context, path string) bool {
	out, err := run(ctx, "ffprobe", p.Bin, p.Timeout,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_name",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		logger := xglog.WithComponent("ffprobe")
		logger.Debug().
			Err(err).
			Str(xglog.FieldPath, path).
			Msg("probe failed, treating file as not playable")
		return false
	}
	return strings.TrimSpace(string(out)) != ""
}

// Duration returns the container duration. Unknown durations ("N/A")
// are reported as zero.
func (p *Prober) Duration(ctx context.Context, path string) (time.Duration, error) {
	out, err := run(ctx, "ffprobe", p.Bin, p.Timeout,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrProbeFailed, err)
	}
	secs, perr := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if perr != nil || secs < 0 {
		return 0, nil
	}
	return time.Duration(secs * float64(time.Second)), nil
}
