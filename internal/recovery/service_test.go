package recovery

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoyostream/transcoderd/internal/schedule"
)

var shanghai = time.FixedZone("CST", 8*3600)

func at(day, hh, mm, ss int) time.Time {
	return time.Date(2024, 1, day, hh, mm, ss, 0, shanghai)
}

type fakeProber struct {
	mu        sync.Mutex
	broken    map[string]bool
	durations map[string]time.Duration
	durErr    error
}

func (p *fakeProber) Playable(_ context.Context, path string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.broken[filepath.Base(path)]
}

func (p *fakeProber) Duration(_ context.Context, path string) (time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.durErr != nil {
		return 0, p.durErr
	}
	return p.durations[filepath.Base(path)], nil
}

type fakeRepairer struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (r *fakeRepairer) Remux(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, filepath.Base(path))
	return r.err
}

type fakeSessions struct {
	recording map[string]bool
	err       error
}

func (f fakeSessions) IsRecording(_ context.Context, id string) (bool, error) {
	return f.recording[id], f.err
}

type fakeConfigs []schedule.Config

func (f fakeConfigs) Configs() []schedule.Config { return f }

type fakeSink struct {
	mu      sync.Mutex
	reports []Report
}

func (f *fakeSink) SaveReport(_ context.Context, r Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, r)
	return nil
}

type env struct {
	fs       afero.Fs
	svc      *Service
	prober   *fakeProber
	repairer *fakeRepairer
	sink     *fakeSink
}

const root = "/rec"

func newEnv(t *testing.T, now time.Time, configs fakeConfigs, sessions RecordingState) *env {
	t.Helper()
	e := &env{
		fs:       afero.NewMemMapFs(),
		prober:   &fakeProber{broken: map[string]bool{}, durations: map[string]time.Duration{}},
		repairer: &fakeRepairer{},
		sink:     &fakeSink{},
	}
	require.NoError(t, e.fs.MkdirAll(root, 0o755))
	var cp ConfigProvider
	if configs != nil {
		cp = configs
	}
	e.svc = New(Options{
		Enabled:          true,
		RecordingsPath:   root,
		ScanRecentHours:  48,
		ScanDateDirs:     3,
		ConfirmDelay:     30 * time.Second,
		ProtectionPeriod: 30 * time.Second,
		EndTimeTolerance: 300 * time.Second,
		Location:         shanghai,
	}, Deps{
		Fs:       e.fs,
		Prober:   e.prober,
		Repairer: e.repairer,
		Sessions: sessions,
		Configs:  cp,
		Sink:     e.sink,
	})
	e.svc.now = func() time.Time { return now }
	e.svc.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return e
}

func (e *env) write(t *testing.T, channel, date, name string, size int, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(root, channel, date, name)
	require.NoError(t, e.fs.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, afero.WriteFile(e.fs, path, make([]byte, size), 0o644))
	require.NoError(t, e.fs.Chtimes(path, mtime, mtime))
	return path
}

func (e *env) files(t *testing.T, channel, date string) []string {
	t.Helper()
	entries, err := afero.ReadDir(e.fs, filepath.Join(root, channel, date))
	require.NoError(t, err)
	var names []string
	for _, en := range entries {
		names = append(names, en.Name())
	}
	sort.Strings(names)
	return names
}

func c1Config() fakeConfigs {
	return fakeConfigs{{ChannelID: "c1", ChannelName: "chan", StartTime: "08:00", EndTime: "20:00", StoragePath: root}}
}

func TestRunImmediate_EndToEndRename(t *testing.T) {
	e := newEnv(t, at(1, 10, 30, 0), c1Config(), fakeSessions{})
	e.write(t, "c1", "20240101", "chan_c1_20240101_080000_temp_001.mp4", 1024, at(1, 9, 30, 0))

	r, err := e.svc.RunImmediate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"chan_c1_20240101_080000_to_093000.mp4"}, e.files(t, "c1", "20240101"))
	assert.Equal(t, 1, r.Scanned)
	assert.Equal(t, 1, r.Fixed)
	assert.Equal(t, 1, r.Renamed)
	assert.Zero(t, r.Repaired)
	assert.Zero(t, r.Failed)
	assert.Empty(t, e.repairer.calls)
	assert.Equal(t, ModeImmediate, r.Mode)
	assert.NotEmpty(t, r.ID)

	require.Len(t, e.sink.reports, 1)
	assert.Equal(t, r.ID, e.sink.reports[0].ID)
	st := e.svc.Status()
	assert.False(t, st.Running)
	require.NotNil(t, st.LastReport)
	assert.Equal(t, 1, st.LastReport.Renamed)
}

func TestRunImmediate_RepairsCorruptFileBeforeRename(t *testing.T) {
	e := newEnv(t, at(1, 10, 30, 0), c1Config(), fakeSessions{})
	e.write(t, "c1", "20240101", "chan_c1_20240101_080000_temp_001.mp4", 10, at(1, 9, 0, 0))
	e.prober.broken["chan_c1_20240101_080000_temp_001.mp4"] = true

	r, err := e.svc.RunImmediate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"chan_c1_20240101_080000_temp_001.mp4"}, e.repairer.calls)
	assert.Equal(t, 1, r.Repaired)
	assert.Equal(t, 1, r.Renamed)
	assert.Equal(t, []string{"chan_c1_20240101_080000_to_090000.mp4"}, e.files(t, "c1", "20240101"))
}

func TestRunImmediate_RepairFailureKeepsFile(t *testing.T) {
	e := newEnv(t, at(1, 10, 30, 0), c1Config(), fakeSessions{})
	e.write(t, "c1", "20240101", "chan_c1_20240101_080000_temp_001.mp4", 10, at(1, 9, 0, 0))
	e.write(t, "c1", "20240101", "chan_c1_20240101_090000_temp_002.mp4", 10, at(1, 10, 0, 0))
	e.prober.broken["chan_c1_20240101_080000_temp_001.mp4"] = true
	e.repairer.err = errors.New("moov atom not found")

	r, err := e.svc.RunImmediate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, r.Failed)
	assert.Equal(t, 1, r.Renamed)
	assert.Equal(t, []string{
		"chan_c1_20240101_080000_temp_001.mp4",
		"chan_c1_20240101_090000_to_100000.mp4",
	}, e.files(t, "c1", "20240101"))
}

func TestRunImmediate_LegacyNameUsesProbedDuration(t *testing.T) {
	e := newEnv(t, at(1, 12, 0, 0), c1Config(), fakeSessions{})
	e.write(t, "c1", "20240101", "chan_c1_20240101_temp_001.mp4", 10, at(1, 10, 0, 0))
	e.prober.durations["chan_c1_20240101_temp_001.mp4"] = time.Hour

	r, err := e.svc.RunImmediate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, r.Renamed)
	assert.Equal(t, []string{"chan_c1_20240101_090000_to_100000.mp4"}, e.files(t, "c1", "20240101"))
}

func TestRunImmediate_NeverOverwrites(t *testing.T) {
	e := newEnv(t, at(1, 12, 0, 0), c1Config(), fakeSessions{})
	e.write(t, "c1", "20240101", "chan_c1_20240101_080000_temp_001.mp4", 10, at(1, 9, 30, 0))
	existing := e.write(t, "c1", "20240101", "chan_c1_20240101_080000_to_093000.mp4", 99, at(1, 9, 30, 0))

	r, err := e.svc.RunImmediate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, r.Collisions)
	assert.Zero(t, r.Renamed)

	info, err := e.fs.Stat(existing)
	require.NoError(t, err)
	assert.Equal(t, int64(99), info.Size())
	assert.Len(t, e.files(t, "c1", "20240101"), 2)
}

func TestRunImmediate_SkipsRecentAndRecordingChannels(t *testing.T) {
	now := at(1, 12, 0, 0)
	configs := fakeConfigs{
		{ChannelID: "c1", ChannelName: "chan", StartTime: "08:00", EndTime: "20:00", StoragePath: root},
		{ChannelID: "c2", ChannelName: "chan", StartTime: "08:00", EndTime: "20:00"},
	}
	e := newEnv(t, now, configs, fakeSessions{recording: map[string]bool{"c2": true}})
	e.write(t, "c1", "20240101", "chan_c1_20240101_110000_temp_001.mp4", 10, now.Add(-10*time.Second))
	e.write(t, "c2", "20240101", "chan_c2_20240101_080000_temp_001.mp4", 10, at(1, 9, 0, 0))

	r, err := e.svc.RunImmediate(context.Background())
	require.NoError(t, err)
	assert.Zero(t, r.Fixed)
	assert.Equal(t, []string{"chan_c1_20240101_110000_temp_001.mp4"}, e.files(t, "c1", "20240101"))
	assert.Equal(t, []string{"chan_c2_20240101_080000_temp_001.mp4"}, e.files(t, "c2", "20240101"))
}

func TestRunImmediate_UnknownRecordingStateIsTreatedAsActive(t *testing.T) {
	e := newEnv(t, at(1, 12, 0, 0), c1Config(), fakeSessions{err: errors.New("session manager down")})
	e.write(t, "c1", "20240101", "chan_c1_20240101_080000_temp_001.mp4", 10, at(1, 9, 0, 0))

	r, err := e.svc.RunImmediate(context.Background())
	require.NoError(t, err)
	assert.Zero(t, r.Fixed)
	assert.Equal(t, []string{"chan_c1_20240101_080000_temp_001.mp4"}, e.files(t, "c1", "20240101"))
}

func TestRunImmediate_FixesScheduledEndTime(t *testing.T) {
	configs := fakeConfigs{
		{ChannelID: "c1", ChannelName: "chan", StartTime: "08:00", EndTime: "20:00", StoragePath: root},
		{ChannelID: "c9", ChannelName: "late", StartTime: "22:00", EndTime: "02:00", StoragePath: root},
	}
	e := newEnv(t, at(3, 11, 0, 0), configs, fakeSessions{})
	e.write(t, "c1", "20240101", "chan_c1_20240101_080000_to_200000.mp4", 10, at(1, 12, 0, 0))
	e.write(t, "c1", "20240102", "chan_c1_20240102_080000_to_200000.mp4", 10, at(2, 20, 0, 0))
	e.write(t, "c9", "20240101", "late_c9_20240101_220000_to_020000.mp4", 10, at(2, 2, 0, 0))
	e.prober.durations["chan_c1_20240101_080000_to_200000.mp4"] = 4 * time.Hour
	e.prober.durations["chan_c1_20240102_080000_to_200000.mp4"] = 12 * time.Hour
	e.prober.durations["late_c9_20240101_220000_to_020000.mp4"] = 4*time.Hour - time.Minute

	r, err := e.svc.RunImmediate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, r.EndTimeFixed)
	assert.Equal(t, 1, r.Fixed)
	assert.Equal(t, []string{"chan_c1_20240101_080000_to_120000.mp4"}, e.files(t, "c1", "20240101"))
	assert.Equal(t, []string{"chan_c1_20240102_080000_to_200000.mp4"}, e.files(t, "c1", "20240102"))
	assert.Equal(t, []string{"late_c9_20240101_220000_to_020000.mp4"}, e.files(t, "c9", "20240101"))
}

func TestRunImmediate_IsIdempotent(t *testing.T) {
	e := newEnv(t, at(1, 12, 0, 0), c1Config(), fakeSessions{})
	e.write(t, "c1", "20240101", "chan_c1_20240101_080000_to_093000.mp4", 10, at(1, 9, 30, 0))

	for i := 0; i < 2; i++ {
		r, err := e.svc.RunImmediate(context.Background())
		require.NoError(t, err)
		assert.Zero(t, r.Fixed)
		assert.Zero(t, r.Failed)
	}
	assert.Equal(t, []string{"chan_c1_20240101_080000_to_093000.mp4"}, e.files(t, "c1", "20240101"))
	assert.Empty(t, e.repairer.calls)
}

func TestRunWithSizeCheck_OnlyStalledFilesAreFixed(t *testing.T) {
	e := newEnv(t, at(1, 12, 0, 0), c1Config(), nil)
	e.write(t, "c1", "20240101", "chan_c1_20240101_080000_temp_001.mp4", 100, at(1, 9, 0, 0))
	growing := e.write(t, "c1", "20240101", "chan_c1_20240101_100000_temp_002.mp4", 100, at(1, 11, 59, 0))
	vanishing := e.write(t, "c1", "20240101", "chan_c1_20240101_110000_temp_003.mp4", 100, at(1, 11, 0, 0))
	e.write(t, "c1", "20240101", "chan_c1_20240101_060000_to_070000.mp4", 100, at(1, 7, 0, 0))

	var waited time.Duration
	e.svc.sleep = func(_ context.Context, d time.Duration) error {
		waited = d
		require.NoError(t, afero.WriteFile(e.fs, growing, make([]byte, 200), 0o644))
		require.NoError(t, e.fs.Remove(vanishing))
		return nil
	}

	r, err := e.svc.RunWithSizeCheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, waited)
	assert.Equal(t, 3, r.Scanned)
	assert.Equal(t, 1, r.Fixed)
	assert.Equal(t, 1, r.Renamed)
	assert.Equal(t, ModeSizeCheck, r.Mode)
	assert.Equal(t, []string{
		"chan_c1_20240101_060000_to_070000.mp4",
		"chan_c1_20240101_080000_to_090000.mp4",
		"chan_c1_20240101_100000_temp_002.mp4",
	}, e.files(t, "c1", "20240101"))
}

func TestRunWithSizeCheck_NoTempFilesSkipsWait(t *testing.T) {
	e := newEnv(t, at(1, 12, 0, 0), c1Config(), nil)
	e.svc.sleep = func(context.Context, time.Duration) error {
		t.Fatal("must not wait without temp files")
		return nil
	}
	r, err := e.svc.RunWithSizeCheck(context.Background())
	require.NoError(t, err)
	assert.Zero(t, r.Scanned)
}

func TestRunWithSizeCheck_Cancelled(t *testing.T) {
	e := newEnv(t, at(1, 12, 0, 0), c1Config(), nil)
	e.write(t, "c1", "20240101", "chan_c1_20240101_080000_temp_001.mp4", 100, at(1, 9, 0, 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r, err := e.svc.RunWithSizeCheck(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, r.Cancelled)
	assert.Equal(t, []string{"chan_c1_20240101_080000_temp_001.mp4"}, e.files(t, "c1", "20240101"))
}

func TestSweep_SingleFlight(t *testing.T) {
	e := newEnv(t, at(1, 12, 0, 0), c1Config(), nil)
	e.write(t, "c1", "20240101", "chan_c1_20240101_080000_temp_001.mp4", 100, at(1, 9, 0, 0))

	e.svc.now = func() time.Time { return at(1, 12, 0, 0).UTC() }
	entered := make(chan struct{})
	release := make(chan struct{})
	e.svc.sleep = func(context.Context, time.Duration) error {
		close(entered)
		<-release
		return nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := e.svc.RunWithSizeCheck(context.Background())
		done <- err
	}()
	<-entered

	assert.True(t, e.svc.Status().Running)
	assert.Equal(t, ModeSizeCheck, e.svc.Status().Mode)
	assert.Equal(t, "2024-01-01T12:00:00+08:00", e.svc.Status().RunningSince)
	_, err := e.svc.RunImmediate(context.Background())
	assert.ErrorIs(t, err, ErrSweepRunning)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, e.svc.Running())
}

func TestDiscovery_FallsBackToStreamDirectories(t *testing.T) {
	e := newEnv(t, at(1, 12, 0, 0), nil, nil)
	e.write(t, "stream_a", "20240101", "a_stream_a_20240101_080000_temp_001.mp4", 10, at(1, 9, 0, 0))
	e.write(t, "other", "20240101", "o_other_20240101_080000_temp_001.mp4", 10, at(1, 9, 0, 0))

	r, err := e.svc.RunImmediate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, r.Renamed)
	assert.Equal(t, []string{"a_stream_a_20240101_080000_to_090000.mp4"}, e.files(t, "stream_a", "20240101"))
	assert.Equal(t, []string{"o_other_20240101_080000_temp_001.mp4"}, e.files(t, "other", "20240101"))
}

func TestDiscovery_RecentDateDirsAndCutoff(t *testing.T) {
	e := newEnv(t, at(5, 12, 0, 0), c1Config(), nil)
	for _, d := range []string{"20240101", "20240102", "20240103", "20240104"} {
		day := int(d[7] - '0')
		e.write(t, "c1", d, "chan_c1_"+d+"_080000_temp_001.mp4", 10, at(day, 13, 0, 0))
	}
	// notes/ is not a date dir and must be ignored.
	require.NoError(t, e.fs.MkdirAll(filepath.Join(root, "c1", "notes"), 0o755))

	arts := e.svc.scan(Channel{ID: "c1", StoragePath: root}, e.svc.cutoff(), isTempName)
	var names []string
	for _, a := range arts {
		names = append(names, filepath.Base(a.Path))
	}
	// 20240101 is outside the newest three dirs, 20240102 is older than 48h.
	assert.Equal(t, []string{
		"chan_c1_20240103_080000_temp_001.mp4",
		"chan_c1_20240104_080000_temp_001.mp4",
	}, names)
}

func TestStartup(t *testing.T) {
	e := newEnv(t, at(1, 12, 0, 0), c1Config(), nil)
	e.write(t, "c1", "20240101", "chan_c1_20240101_080000_temp_001.mp4", 100, at(1, 9, 0, 0))

	e.svc.Startup(context.Background())
	e.svc.Wait()

	require.Len(t, e.sink.reports, 1)
	assert.Equal(t, ModeSizeCheck, e.sink.reports[0].Mode)
	assert.Equal(t, 1, e.sink.reports[0].Renamed)
}

func TestStartup_Disabled(t *testing.T) {
	e := newEnv(t, at(1, 12, 0, 0), c1Config(), nil)
	e.svc.opts.Enabled = false
	e.svc.Startup(context.Background())
	e.svc.Wait()
	assert.Empty(t, e.sink.reports)
}

func TestReportJSONRoundTripKeepsDuration(t *testing.T) {
	in := Report{ID: "x", Mode: ModeImmediate, Duration: 1500 * time.Millisecond, Renamed: 2}
	b, err := in.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(b), `"durationSeconds":1.5`)

	var out Report
	require.NoError(t, out.UnmarshalJSON(b))
	assert.Equal(t, in.Duration, out.Duration)
	assert.Equal(t, 2, out.Renamed)
}
