package domain

import (
	"strings"
	"time"
)

// Status tracks the lifecycle of a queue record.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusQueued  Status = "QUEUED"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusQueued, StatusSent, StatusFailed:
		return true
	}
	return false
}

// IsIntake reports whether s is one of the two synonymous not-yet-attempted states.
func (s Status) IsIntake() bool {
	return s == StatusPending || s == StatusQueued
}

// Dispatchable reports whether a dispatch cycle has to read r. Everything not
// yet sent is, and so is a SENT record whose schedule can fire again. A SENT
// one-off record is terminal. Stores filter on the same rule.
func (r *QueueRecord) Dispatchable() bool {
	switch r.Status {
	case StatusPending, StatusQueued, StatusFailed:
		return true
	case StatusSent:
		return !r.Schedule.Weekdays.Empty() && strings.Trim(r.Schedule.StopDate, " ") != ""
	}
	return false
}

// QueueRecord is the unit of work: one email, its schedule and its delivery state.
type QueueRecord struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Type      string    `json:"type"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to"`
	Cc        string    `json:"cc,omitempty"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Schedule  Schedule  `json:"schedule"`
	Status    Status    `json:"status"`

	// Attempts counts dispatch claims. Together with Status it keys every
	// conditional write made by a dispatch cycle.
	Attempts      int        `json:"attempts"`
	LastAttemptAt *time.Time `json:"lastAttemptAt,omitempty"`
	ClaimedAt     *time.Time `json:"claimedAt,omitempty"`
	LastError     string     `json:"lastError,omitempty"`

	Meta map[string]string `json:"meta,omitempty"`
}

// Expectation is the prior state a conditional write must still observe.
type Expectation struct {
	Status   Status
	Attempts int
}

// Expect returns the expectation matching r as it was read.
func (r *QueueRecord) Expect() Expectation {
	return Expectation{Status: r.Status, Attempts: r.Attempts}
}

// DispatchFields is the complete set of fields a dispatch cycle may write.
// Every conditional update overwrites all of them.
type DispatchFields struct {
	Status        Status
	Attempts      int
	LastAttemptAt *time.Time
	ClaimedAt     *time.Time
	LastError     string
}

// Apply copies f onto r.
func (r *QueueRecord) Apply(f DispatchFields) {
	r.Status = f.Status
	r.Attempts = f.Attempts
	r.LastAttemptAt = f.LastAttemptAt
	r.ClaimedAt = f.ClaimedAt
	r.LastError = f.LastError
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (r *QueueRecord) Clone() *QueueRecord {
	c := *r
	if r.LastAttemptAt != nil {
		t := *r.LastAttemptAt
		c.LastAttemptAt = &t
	}
	if r.ClaimedAt != nil {
		t := *r.ClaimedAt
		c.ClaimedAt = &t
	}
	if r.Meta != nil {
		c.Meta = make(map[string]string, len(r.Meta))
		for k, v := range r.Meta {
			c.Meta[k] = v
		}
	}
	return &c
}
