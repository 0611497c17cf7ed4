// Package guard decides whether a queue record may be dispatched now and
// produces the conditional writes that make a dispatch safe to race.
//
// A dispatch takes two compare-and-swap writes keyed on (status, attempts):
//
//	claim:   {status, attempts}   -> {attempts+1, claimedAt=now}
//	resolve: {status, attempts+1} -> {SENT|FAILED, lastAttemptAt=now, claimedAt=nil}
//
// A cycle that loses the claim never calls the transport. The store is the only
// authority; nothing here holds a lock.
package guard

import (
	"time"

	"github.com/notifyhub/mailqueue/internal/domain"
	"github.com/notifyhub/mailqueue/internal/recurrence"
)

// Skip and dispatch reasons, also used as metric labels.
const (
	ReasonSendOnce     = "send_once"
	ReasonRetry        = "retry"
	ReasonOccurrence   = "occurrence"
	ReasonInFlight     = "in_flight"
	ReasonAlreadySent  = "already_sent"
	ReasonSentToday    = "sent_today"
	ReasonNotScheduled = "not_scheduled_today"
	ReasonUnknown      = "unknown_status"
)

// Decision is the outcome of Evaluate.
type Decision struct {
	Due       bool
	Recurring bool
	Reason    string
}

// Guard evaluates records against a fixed location and claim lease.
type Guard struct {
	loc      *time.Location
	claimTTL time.Duration
}

// New returns a guard. loc must not be nil; a non-positive claimTTL disables
// lease expiry, so an abandoned claim is never taken over.
func New(loc *time.Location, claimTTL time.Duration) *Guard {
	return &Guard{loc: loc, claimTTL: claimTTL}
}

// Location is the timezone calendar days are computed in.
func (g *Guard) Location() *time.Location { return g.loc }

// Evaluate decides whether r is due at now.
func (g *Guard) Evaluate(r *domain.QueueRecord, now time.Time) Decision {
	if !r.Status.IsValid() {
		return Decision{Reason: ReasonUnknown}
	}
	if g.claimLive(r, now) {
		return Decision{Reason: ReasonInFlight}
	}

	if !recurrence.IsRecurring(r.Schedule, now, g.loc) {
		switch r.Status {
		case domain.StatusSent:
			return Decision{Reason: ReasonAlreadySent}
		case domain.StatusFailed:
			return Decision{Due: true, Reason: ReasonRetry}
		default:
			return Decision{Due: true, Reason: ReasonSendOnce}
		}
	}

	if !recurrence.IsDue(r.Schedule, now, g.loc) {
		return Decision{Recurring: true, Reason: ReasonNotScheduled}
	}
	if r.Status == domain.StatusSent && r.LastAttemptAt != nil &&
		recurrence.SameDay(*r.LastAttemptAt, now, g.loc) {
		return Decision{Recurring: true, Reason: ReasonSentToday}
	}
	if r.Status == domain.StatusFailed {
		return Decision{Due: true, Recurring: true, Reason: ReasonRetry}
	}
	return Decision{Due: true, Recurring: true, Reason: ReasonOccurrence}
}

func (g *Guard) claimLive(r *domain.QueueRecord, now time.Time) bool {
	if r.ClaimedAt == nil {
		return false
	}
	if g.claimTTL <= 0 {
		return true
	}
	return now.Sub(*r.ClaimedAt) < g.claimTTL
}

// Claim returns the conditional write that takes ownership of r's current
// occurrence. Status and delivery fields are left as read.
func (g *Guard) Claim(r *domain.QueueRecord, now time.Time) (domain.Expectation, domain.DispatchFields) {
	claimedAt := now
	return r.Expect(), domain.DispatchFields{
		Status:        r.Status,
		Attempts:      r.Attempts + 1,
		LastAttemptAt: r.LastAttemptAt,
		ClaimedAt:     &claimedAt,
		LastError:     r.LastError,
	}
}

// Release returns the conditional write handing back a claim whose send never
// started. Status, lastAttemptAt and lastError stay as read; attempts keeps
// the claimed value so writers holding the older snapshot still lose.
func (g *Guard) Release(r *domain.QueueRecord) (domain.Expectation, domain.DispatchFields) {
	return domain.Expectation{Status: r.Status, Attempts: r.Attempts + 1}, domain.DispatchFields{
		Status:        r.Status,
		Attempts:      r.Attempts + 1,
		LastAttemptAt: r.LastAttemptAt,
		LastError:     r.LastError,
	}
}

// Resolve returns the conditional write recording the send outcome for a
// record previously claimed with Claim. r is the record as read before the claim.
func (g *Guard) Resolve(r *domain.QueueRecord, now time.Time, sendErr error) (domain.Expectation, domain.DispatchFields) {
	attemptAt := now
	fields := domain.DispatchFields{
		Status:        domain.StatusSent,
		Attempts:      r.Attempts + 1,
		LastAttemptAt: &attemptAt,
	}
	if sendErr != nil {
		fields.Status = domain.StatusFailed
		fields.LastError = sendErr.Error()
	}
	return domain.Expectation{Status: r.Status, Attempts: r.Attempts + 1}, fields
}
