// Package recurrence decides whether a weekday schedule fires at a given instant.
//
// Evaluation is stateless: no next-fire time is persisted, so an edited schedule
// takes effect on the very next tick. All calendar arithmetic happens in an
// explicit *time.Location supplied by the caller.
package recurrence

import (
	"strings"
	"time"

	"github.com/notifyhub/mailqueue/internal/domain"
)

// Layouts carrying their own offset.
var zonedLayouts = []string{
	time.RFC3339Nano,
	"Mon Jan 02 2006 15:04:05 GMT-0700", // JavaScript Date#toString
}

// Layouts interpreted in the evaluation location.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006",
}

// ParseStopDate parses a raw stop date. A date without time or offset means
// the start of that day in loc. ok is false when the value is empty or
// unparseable; callers degrade to send-once semantics in both cases.
func ParseStopDate(raw string, loc *time.Location) (t time.Time, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	// "Tue Oct 13 2026 00:00:00 GMT+0200 (Central European Summer Time)"
	if i := strings.Index(raw, " ("); i > 0 && strings.HasSuffix(raw, ")") {
		raw = raw[:i]
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// IsRecurring reports whether s is a usable repeating schedule at now: the stop
// date parses, lies strictly after now, and at least one weekday is flagged.
// Anything else means send-once.
func IsRecurring(s domain.Schedule, now time.Time, loc *time.Location) bool {
	if s.Weekdays.Empty() {
		return false
	}
	stop, ok := ParseStopDate(s.StopDate, loc)
	if !ok {
		return false
	}
	return stop.After(now)
}

// IsDue reports whether the schedule fires on now's calendar day in loc.
// It has no side effects.
func IsDue(s domain.Schedule, now time.Time, loc *time.Location) bool {
	if !IsRecurring(s, now, loc) {
		return false
	}
	return s.Weekdays.Has(now.In(loc).Weekday())
}

// SameDay reports whether a and b fall on the same calendar day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// Occurrence names the calendar day of now in loc, e.g. "2026-10-14".
func Occurrence(now time.Time, loc *time.Location) string {
	return now.In(loc).Format("2006-01-02")
}
