package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoyostream/transcoderd/internal/session"
)

type fakeSource struct {
	urls map[string]string
}

func (f fakeSource) PreloadConfigs(context.Context) ([]Config, error) { return nil, nil }
func (f fakeSource) RecordConfigs(context.Context) ([]Config, error)  { return nil, nil }
func (f fakeSource) ChannelSourceURL(_ context.Context, id string) (string, error) {
	if u, ok := f.urls[id]; ok {
		return u, nil
	}
	return "", errors.New("not found")
}

type fakeSession struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeSession) log(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, s)
}

func (f *fakeSession) StartPreload(_ context.Context, id, url string) error {
	f.log("startPreload " + id + " " + url)
	return nil
}
func (f *fakeSession) StopPreload(_ context.Context, id string) error {
	f.log("stopPreload " + id)
	return nil
}
func (f *fakeSession) EnableRecording(_ context.Context, id string, cfg session.RecordingConfig) error {
	f.log("enableRecording " + id + " " + cfg.EndTime)
	return nil
}
func (f *fakeSession) DisableRecording(_ context.Context, id string) error {
	f.log("disableRecording " + id)
	return nil
}
func (f *fakeSession) StopChannel(_ context.Context, id string) error {
	f.log("stopChannel " + id)
	return nil
}
func (f *fakeSession) IsRecording(context.Context, string) (bool, error) { return false, nil }

type fixedOracle bool

func (o fixedOracle) IsWorkday(context.Context, time.Time) bool { return bool(o) }

func TestPreloadBinding(t *testing.T) {
	sm := &fakeSession{}
	b := PreloadBinding(fakeSource{urls: map[string]string{"c1": "rtmp://src/c1"}}, sm)
	ctx := context.Background()

	require.NoError(t, b.OnEnter(ctx, cfg("c1", "08:00", "09:00")))
	require.NoError(t, b.OnExit(ctx, cfg("c1", "08:00", "09:00")))
	err := b.OnEnter(ctx, cfg("missing", "08:00", "09:00"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve source url")

	assert.Equal(t, []string{"startPreload c1 rtmp://src/c1", "stopPreload c1"}, sm.calls)
	assert.Nil(t, b.Gate)
	assert.Equal(t, NamePreload, b.Name)
}

func TestRecordBinding(t *testing.T) {
	sm := &fakeSession{}
	b := RecordBinding(fakeSource{}, sm, fixedOracle(false))
	ctx := context.Background()

	c := cfg("c1", "08:00", "20:00")
	require.NoError(t, b.OnEnter(ctx, c))
	require.NoError(t, b.OnExit(ctx, c))
	assert.Equal(t, []string{"enableRecording c1 20:00", "disableRecording c1"}, sm.calls)

	assert.True(t, b.Gate(ctx, c, time.Now()))
	c.WorkdaysOnly = true
	assert.False(t, b.Gate(ctx, c, time.Now()))
	assert.True(t, WorkdayGate(fixedOracle(true))(ctx, c, time.Now()))
}
