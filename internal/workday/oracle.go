package workday

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/yoyostream/transcoderd/internal/cache"
	xglog "github.com/yoyostream/transcoderd/internal/log"
	"github.com/yoyostream/transcoderd/internal/metrics"
	"github.com/yoyostream/transcoderd/internal/resilience"
)

const (
	cacheKeyPrefix = "workday:"
	// loadTimeout bounds a shared calendar load, which outlives any one caller.
	loadTimeout = 30 * time.Second
)

// Options configures an Oracle.
type Options struct {
	Source   Source
	Cache    cache.Cache
	CacheTTL time.Duration
	// SnapshotDir holds persisted calendars; empty disables persistence.
	SnapshotDir string
	Location    *time.Location
	Breaker     *resilience.CircuitBreaker
	// WeekdaysOnly skips the calendar and applies the Monday-Friday rule.
	WeekdaysOnly bool
	Now          func() time.Time
}

// Status is a point-in-time view of the oracle.
type Status struct {
	Initialized bool   `json:"initialized"`
	Degraded    bool   `json:"degraded"`
	LoadedYears []int  `json:"loadedYears"`
	LastError   string `json:"lastError,omitempty"`
	Source      string `json:"source"`
}

// Oracle answers "is this date a workday" for the record scheduler gate.
// Lookups never fail: an unknown calendar answers false and marks the
// oracle degraded.
type Oracle struct {
	opts   Options
	logger zerolog.Logger
	group  singleflight.Group
	initMu sync.Mutex

	mu          sync.Mutex
	initialized bool
	degraded    bool
	lastErr     error
	loaded      map[int]struct{}
}

// NewOracle creates an oracle. Initialize should be called once before use.
func NewOracle(opts Options) *Oracle {
	if opts.Cache == nil {
		opts.Cache = cache.NewMemoryCache(0)
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 24 * time.Hour
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Oracle{
		opts:   opts,
		logger: xglog.WithComponent("workday"),
		loaded: make(map[int]struct{}),
	}
}

// Initialize loads the calendar of the current year. It is idempotent and
// only logs failures; the oracle stays usable in degraded mode.
func (o *Oracle) Initialize(ctx context.Context) error {
	o.initMu.Lock()
	defer o.initMu.Unlock()

	o.mu.Lock()
	done := o.initialized
	o.mu.Unlock()
	if done {
		return nil
	}

	if !o.opts.WeekdaysOnly {
		year := o.opts.Now().In(o.opts.Location).Year()
		if _, err := o.calendar(ctx, year); err != nil {
			o.logger.Warn().
				Err(err).
				Int("year", year).
				Str(xglog.FieldEvent, "workday.init_degraded").
				Msg("workday calendar not available, workday-only schedules will be skipped")
		}
	}

	o.mu.Lock()
	o.initialized = true
	o.mu.Unlock()
	o.logger.Info().
		Bool("weekdays_only", o.opts.WeekdaysOnly).
		Str(xglog.FieldEvent, "workday.initialized").
		Msg("workday oracle initialized")
	return nil
}

// IsWorkday reports whether t (zero means now) is a workday in the
// platform timezone.
func (o *Oracle) IsWorkday(ctx context.Context, t time.Time) bool {
	if t.IsZero() {
		t = o.opts.Now()
	}
	t = t.In(o.opts.Location)

	if o.opts.WeekdaysOnly {
		return isWeekday(t)
	}

	cal, err := o.calendar(ctx, t.Year())
	if err != nil {
		o.logger.Warn().
			Err(err).
			Str("date", t.Format(dateLayout)).
			Str(xglog.FieldEvent, "workday.lookup_degraded").
			Msg("workday unknown, treating as non-workday")
		return false
	}
	return cal.IsWorkday(t)
}

// calendar returns the calendar of year from cache, source or snapshot.
func (o *Oracle) calendar(ctx context.Context, year int) (Calendar, error) {
	key := cacheKeyPrefix + strconv.Itoa(year)
	if cal, ok := cache.GetJSON[Calendar](o.opts.Cache, key); ok {
		return cal, nil
	}

	ch := o.group.DoChan(key, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		return o.load(lctx, year)
	})
	select {
	case <-ctx.Done():
		// The load keeps going for the other waiters.
		return Calendar{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			o.markDegraded(res.Err)
			return Calendar{}, res.Err
		}
		return res.Val.(Calendar), nil
	}
}

func (o *Oracle) load(ctx context.Context, year int) (Calendar, error) {
	key := cacheKeyPrefix + strconv.Itoa(year)

	cal, fetchErr := o.fetch(ctx, year)
	if fetchErr == nil {
		o.store(key, cal)
		if o.opts.SnapshotDir != "" {
			if err := writeSnapshot(o.opts.SnapshotDir, cal); err != nil {
				o.logger.Warn().Err(err).Int("year", year).Msg("failed to persist workday calendar")
			}
		}
		o.logger.Info().
			Int("year", year).
			Int("exceptions", len(cal.Days)).
			Str(xglog.FieldEvent, "workday.calendar_loaded").
			Msg("workday calendar loaded")
		return cal, nil
	}

	if o.opts.SnapshotDir != "" {
		snap, err := readSnapshot(o.opts.SnapshotDir, year)
		if err == nil {
			o.store(key, snap)
			o.logger.Warn().
				Err(fetchErr).
				Int("year", year).
				Str(xglog.FieldEvent, "workday.snapshot_used").
				Msg("calendar source failed, using persisted snapshot")
			return snap, nil
		}
	}

	return Calendar{}, fmt.Errorf("%w: year %d: %w", ErrCalendarUnavailable, year, fetchErr)
}

func (o *Oracle) fetch(ctx context.Context, year int) (Calendar, error) {
	if o.opts.Source == nil {
		return Calendar{}, errors.New("no calendar source configured")
	}
	var cal Calendar
	call := func() error {
		var err error
		cal, err = o.opts.Source.Fetch(ctx, year)
		return err
	}
	if o.opts.Breaker != nil {
		return cal, o.opts.Breaker.Execute(call)
	}
	return cal, call()
}

func (o *Oracle) store(key string, cal Calendar) {
	if err := cache.SetJSON(o.opts.Cache, key, cal, o.opts.CacheTTL); err != nil {
		o.logger.Warn().Err(err).Msg("failed to cache workday calendar")
	}
	o.mu.Lock()
	o.loaded[cal.Year] = struct{}{}
	o.degraded = false
	o.lastErr = nil
	o.mu.Unlock()
	metrics.SetWorkdayDegraded(false)
}

func (o *Oracle) markDegraded(err error) {
	o.mu.Lock()
	o.degraded = true
	o.lastErr = err
	o.mu.Unlock()
	metrics.SetWorkdayDegraded(true)
}

// Invalidate drops cached calendars so the next lookup refetches.
func (o *Oracle) Invalidate() {
	o.opts.Cache.Invalidate(cacheKeyPrefix)
}

// Degraded reports whether the last calendar load failed.
func (o *Oracle) Degraded() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.degraded
}

// Status returns a snapshot for the admin API.
func (o *Oracle) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	years := make([]int, 0, len(o.loaded))
	for y := range o.loaded {
		years = append(years, y)
	}
	sort.Ints(years)

	st := Status{
		Initialized: o.initialized,
		Degraded:    o.degraded,
		LoadedYears: years,
		Source:      "calendar",
	}
	if o.opts.WeekdaysOnly {
		st.Source = "weekdays"
	}
	if o.lastErr != nil {
		st.LastError = o.lastErr.Error()
	}
	return st
}
