//go:build unix

package ffmpeg

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTool writes an executable shell script standing in for ffprobe/ffmpeg.
func fakeTool(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tool")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestProber_Playable(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		body string
		want bool
	}{
		{"codec printed", `echo h264`, true},
		{"no video stream", `exit 0`, false},
		{"probe error", `echo "moov atom not found" >&2; exit 1`, false},
		{"timeout", `sleep 5; echo h264`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProber(fakeTool(t, tt.body), 200*time.Millisecond)
			start := time.Now()
			assert.Equal(t, tt.want, p.Playable(ctx, "/recordings/a.mp4"))
			assert.Less(t, time.Since(start), 4*time.Second)
		})
	}
}

func TestProber_PassesArguments(t *testing.T) {
	p := NewProber(fakeTool(t, `[ "$4" = "v:0" ] && [ "$9" = "/x/a.mp4" ] && echo h264`), time.Second)
	assert.True(t, p.Playable(context.Background(), "/x/a.mp4"))
}

func TestProber_Duration(t *testing.T) {
	ctx := context.Background()

	d, err := NewProber(fakeTool(t, `echo 3600.500000`), time.Second).Duration(ctx, "a.mp4")
	require.NoError(t, err)
	assert.Equal(t, 3600500*time.Millisecond, d)

	d, err = NewProber(fakeTool(t, `echo N/A`), time.Second).Duration(ctx, "a.mp4")
	require.NoError(t, err)
	assert.Zero(t, d)

	_, err = NewProber(fakeTool(t, `exit 1`), time.Second).Duration(ctx, "a.mp4")
	assert.ErrorIs(t, err, ErrProbeFailed)

	_, err = NewProber(fakeTool(t, `sleep 5`), 100*time.Millisecond).Duration(ctx, "a.mp4")
	assert.ErrorIs(t, err, ErrTimeout)
}

const copyScript = `
prev=""
for a in "$@"; do
  if [ "$prev" = "-i" ]; then in="$a"; fi
  prev="$a"
  out="$a"
done
echo "out_time_us=1000"
echo "total_size=10"
cp "$in" "$out"
printf 'fixed' >> "$out"
echo "progress=end"
`

func writeRecording(t *testing.T, content string, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chan_c1_20240101_080000_temp_001.mp4")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

func TestRemuxer_ReplacesAndKeepsMtime(t *testing.T) {
	mtime := time.Date(2024, 1, 1, 9, 30, 0, 0, time.Local)
	path := writeRecording(t, "broken", mtime)

	r := NewRemuxer(fakeTool(t, copyScript), 5*time.Second, afero.NewOsFs())
	require.NoError(t, r.Remux(context.Background(), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "brokenfixed", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(mtime), "mtime %v, want %v", info.ModTime(), mtime)

	_, err = os.Stat(path + RepairSuffix)
	assert.True(t, os.IsNotExist(err))
}

func TestRemuxer_FailureKeepsOriginal(t *testing.T) {
	path := writeRecording(t, "broken", time.Now().Add(-time.Hour))

	// Writes a partial output then fails.
	r := NewRemuxer(fakeTool(t, `for a in "$@"; do out="$a"; done; echo partial > "$out"; exit 1`), 5*time.Second, afero.NewOsFs())
	err := r.Remux(context.Background(), path)
	require.ErrorIs(t, err, ErrRepairFailed)

	data, rerr := os.ReadFile(path)
	require.NoError(t, rerr)
	assert.Equal(t, "broken", string(data))
	_, serr := os.Stat(path + RepairSuffix)
	assert.True(t, os.IsNotExist(serr), "partial output must be removed")
}

func TestRemuxer_Timeout(t *testing.T) {
	path := writeRecording(t, "broken", time.Now())

	r := NewRemuxer(fakeTool(t, `echo out_time_us=1; sleep 10`), 200*time.Millisecond, afero.NewOsFs())
	start := time.Now()
	err := r.Remux(context.Background(), path)
	require.ErrorIs(t, err, ErrRepairFailed)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRemuxer_NoOutput(t *testing.T) {
	path := writeRecording(t, "broken", time.Now())

	r := NewRemuxer(fakeTool(t, `exit 0`), time.Second, afero.NewOsFs())
	assert.ErrorIs(t, r.Remux(context.Background(), path), ErrRepairFailed)
}

func TestRemuxer_MissingSource(t *testing.T) {
	r := NewRemuxer("ffmpeg", time.Second, afero.NewMemMapFs())
	assert.Error(t, r.Remux(context.Background(), "/nope.mp4"))
}

func TestLimitedWriter(t *testing.T) {
	var sb []byte
	w := &limitedWriter{w: writerFunc(func(p []byte) (int, error) { sb = append(sb, p...); return len(p), nil }), n: 4}
	n, err := w.Write([]byte("abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	_, _ = w.Write([]byte("gh"))
	assert.Equal(t, "abcd", string(sb))
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
