package queue

import "github.com/notifyhub/mailqueue/internal/domain"

// Tier separates first attempts from retries of FAILED records.
type Tier string

const (
	TierFirst Tier = "first"
	TierRetry Tier = "retry"
)

// TierFor returns the tier a due record belongs on.
func TierFor(r *domain.QueueRecord) Tier {
	if r.Status == domain.StatusFailed {
		return TierRetry
	}
	return TierFirst
}

// Item is one unit of dispatch work. Record is the snapshot read at the start
// of the cycle; its status and attempts are the expectation for the claim.
type Item struct {
	Record *domain.QueueRecord
	Tier   Tier
}
