// Package workday decides whether a calendar date is a working day, using
// a published holiday calendar with make-up workdays.
package workday

import "time"

const dateLayout = "2006-01-02"

// Day is one calendar exception: a public holiday (IsOffDay) or a
// weekend shifted to a working day.
type Day struct {
	Name     string `json:"name"`
	Date     string `json:"date"`
	IsOffDay bool   `json:"isOffDay"`
}

// Calendar lists the exceptions of one year.
type Calendar struct {
	Year int   `json:"year"`
	Days []Day `json:"days"`
}

// lookup returns the exception for date, if any.
func (c Calendar) lookup(date string) (Day, bool) {
	for _, d := range c.Days {
		if d.Date == date {
			return d, true
		}
	}
	return Day{}, false
}

// IsWorkday applies the calendar to a date: listed days follow their
// IsOffDay flag, unlisted days are workdays Monday to Friday.
func (c Calendar) IsWorkday(t time.Time) bool {
	if d, ok := c.lookup(t.Format(dateLayout)); ok {
		return !d.IsOffDay
	}
	return isWeekday(t)
}

func isWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}
