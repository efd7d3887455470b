package outreach

import "fmt"

// maxActiveRequests caps active (pending or accepted) match requests per
// (sponsor, deal, target type).
const maxActiveRequests = 3

// QuotaExceededError reports how many slots remain so callers can render an
// actionable message.
type QuotaExceededError struct {
	Remaining int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("outreach quota exceeded: you have %d slot(s) remaining", e.Remaining)
}

// checkQuota admits n new targets iff active+n stays within the cap. It must
// run before any write. The check-then-write pair is not serialized against
// concurrent calls for the same key; see the advisory lock in the postgres
// adapter for the single-database mitigation.
func checkQuota(active, n int) error {
	if active+n > maxActiveRequests {
		remaining := maxActiveRequests - active
		if remaining < 0 {
			remaining = 0
		}
		return &QuotaExceededError{Remaining: remaining}
	}
	return nil
}
