// Package window implements the daily time-window arithmetic shared by the
// schedulers and the recording recovery service.
package window

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"
)

// ErrInvalidTime is returned for times outside 00:00-23:59 or not in HH:MM form.
var ErrInvalidTime = errors.New("invalid time of day")

// MinutesPerDay is the length of a day in minutes.
const MinutesPerDay = 24 * 60

// TimeOfDay is a wall-clock time with minute resolution.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" (a single-digit hour is accepted).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(hh) < 1 || len(hh) > 2 || len(mm) != 2 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	t := TimeOfDay{Hour: h, Minute: m}
	if !t.Valid() {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return t, nil
}

// MustParse is ParseTimeOfDay for constants and tests.
func MustParse(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

// Of returns the wall-clock time of day of t in loc.
func Of(t time.Time, loc *time.Location) TimeOfDay {
	if loc != nil {
		t = t.In(loc)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}
}

// Valid reports whether t lies within 00:00-23:59.
func (t TimeOfDay) Valid() bool {
	return t.Hour >= 0 && t.Hour < 24 && t.Minute >= 0 && t.Minute < 60
}

// Minutes returns minutes since midnight.
func (t TimeOfDay) Minutes() int { return t.Hour*60 + t.Minute }

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// HHMMSS renders the time as a filename stamp ("083000").
func (t TimeOfDay) HHMMSS() string { return fmt.Sprintf("%02d%02d00", t.Hour, t.Minute) }

// CronExpr returns the daily cron expression firing at t.
func (t TimeOfDay) CronExpr() string { return fmt.Sprintf("%d %d * * *", t.Minute, t.Hour) }

// Next returns the first occurrence of t strictly after ref, in ref's location.
func (t TimeOfDay) Next(ref time.Time) (time.Time, error) {
	expr := t.CronExpr()
	if !gronx.IsValid(expr) {
		return time.Time{}, fmt.Errorf("%w: %s", ErrInvalidTime, t)
	}
	return gronx.NextTickAfter(expr, ref, false)
}

// Window is a daily interval [Start, End). End before Start crosses
// midnight; Start equal to End covers the whole day.
type Window struct {
	Start TimeOfDay
	End   TimeOfDay
}

// Parse builds a window from two "HH:MM" strings.
func Parse(start, end string) (Window, error) {
	s, err := ParseTimeOfDay(start)
	if err != nil {
		return Window{}, fmt.Errorf("start: %w", err)
	}
	e, err := ParseTimeOfDay(end)
	if err != nil {
		return Window{}, fmt.Errorf("end: %w", err)
	}
	return Window{Start: s, End: e}, nil
}

// FullDay reports whether the window is always on.
func (w Window) FullDay() bool { return w.Start == w.End }

// CrossesMidnight reports whether the window wraps past 00:00.
func (w Window) CrossesMidnight() bool { return w.End.Minutes() < w.Start.Minutes() }

// Contains reports whether cur lies inside the window.
func (w Window) Contains(cur TimeOfDay) bool {
	c, s, e := cur.Minutes(), w.Start.Minutes(), w.End.Minutes()
	switch {
	case s == e:
		return true
	case e < s:
		return c >= s || c < e
	default:
		return c >= s && c < e
	}
}

// ContainsTime reports whether t, read as wall-clock time in loc, lies inside the window.
func (w Window) ContainsTime(t time.Time, loc *time.Location) bool {
	return w.Contains(Of(t, loc))
}

// Duration is the nominal length of the window. A full-day window is 24h.
func (w Window) Duration() time.Duration {
	d := w.End.Minutes() - w.Start.Minutes()
	if d <= 0 {
		d += MinutesPerDay
	}
	return time.Duration(d) * time.Minute
}

func (w Window) String() string { return w.Start.String() + "-" + w.End.String() }
