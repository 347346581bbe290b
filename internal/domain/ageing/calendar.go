// Package ageing classifies credit-card expenses against the entry SLA and
// the invoice-later escalation ladder.
package ageing

import (
	"time"

	"github.com/eshaffer321/recon-monitor/internal/domain/txn"
)

const dateLayout = "2006-01-02"

// Calendar knows which days are working days. Weekends and listed holidays
// are not.
type Calendar struct {
	holidays map[string]bool
	loc      *time.Location
}

// NewCalendar builds a calendar from ISO (YYYY-MM-DD) holiday dates.
// Unparseable entries are ignored.
func NewCalendar(holidays []string, loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	set := make(map[string]bool, len(holidays))
	for _, h := range holidays {
		d, err := time.Parse(dateLayout, h)
		if err != nil {
			continue
		}
		set[d.Format(dateLayout)] = true
	}
	return &Calendar{holidays: set, loc: loc}
}

// Location returns the calendar's timezone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// IsWorkingDay reports whether t's local date is a weekday and not a holiday.
func (c *Calendar) IsWorkingDay(t time.Time) bool {
	d := txn.DateOf(t, c.loc)
	if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		return false
	}
	return !c.holidays[d.Format(dateLayout)]
}

// AddWorkingDays returns the date n working days after start.
func (c *Calendar) AddWorkingDays(start time.Time, n int) time.Time {
	d := txn.DateOf(start, c.loc)
	for added := 0; added < n; {
		d = d.AddDate(0, 0, 1)
		if c.IsWorkingDay(d) {
			added++
		}
	}
	return d
}

// WorkingDaysBetween counts working days in (start, end]. It is zero when
// end is not after start.
func (c *Calendar) WorkingDaysBetween(start, end time.Time) int {
	d := txn.DateOf(start, c.loc)
	last := txn.DateOf(end, c.loc)
	count := 0
	for d.Before(last) {
		d = d.AddDate(0, 0, 1)
		if c.IsWorkingDay(d) {
			count++
		}
	}
	return count
}
