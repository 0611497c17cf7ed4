package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Weekdays is a set of days of the week, one bit per time.Weekday.
type Weekdays uint8

// dayNames is indexed by time.Weekday (Sunday == 0).
var dayNames = [7]string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"}

// NewWeekdays builds a set from the given days.
func NewWeekdays(days ...time.Weekday) Weekdays {
	var w Weekdays
	for _, d := range days {
		w = w.With(d)
	}
	return w
}

// With returns a copy of w that also contains d.
func (w Weekdays) With(d time.Weekday) Weekdays {
	if d < time.Sunday || d > time.Saturday {
		return w
	}
	return w | 1<<uint(d)
}

// Has reports whether d is flagged.
func (w Weekdays) Has(d time.Weekday) bool {
	if d < time.Sunday || d > time.Saturday {
		return false
	}
	return w&(1<<uint(d)) != 0
}

// Empty reports whether no day is flagged.
func (w Weekdays) Empty() bool { return w&0x7f == 0 }

// Names lists the flagged days, Monday first.
func (w Weekdays) Names() []string {
	names := make([]string, 0, 7)
	for i := 1; i <= 7; i++ {
		d := time.Weekday(i % 7)
		if w.Has(d) {
			names = append(names, dayNames[d])
		}
	}
	return names
}

func (w Weekdays) String() string { return strings.Join(w.Names(), ",") }

func (w Weekdays) MarshalJSON() ([]byte, error) { return json.Marshal(w.Names()) }

func (w *Weekdays) UnmarshalJSON(b []byte) error {
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return err
	}
	var out Weekdays
	for _, n := range names {
		if d, ok := ParseWeekday(n); ok {
			out = out.With(d)
		}
	}
	*w = out
	return nil
}

// ParseWeekday accepts the three-letter lowercase names used by the intake forms.
func ParseWeekday(name string) (time.Weekday, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range dayNames {
		if n == name {
			return time.Weekday(i), true
		}
	}
	return 0, false
}

// Schedule is the recurrence definition of a record. StopDate is kept exactly
// as submitted; whether it parses is decided at evaluation time.
type Schedule struct {
	Weekdays Weekdays `json:"weekdays"`
	StopDate string   `json:"stopDate,omitempty"`
}
