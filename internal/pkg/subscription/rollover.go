package subscription

import (
	"time"

	"github.com/ManuelReschke/StudyFox/app/models"
)

// RolloverOutcome describes what the period boundary does to a subscription.
type RolloverOutcome int

const (
	// RolloverNotDue means the current period has not ended yet.
	RolloverNotDue RolloverOutcome = iota
	// RolloverRenewed means the subscription moved to a fresh period with
	// zeroed usage counters.
	RolloverRenewed
	// RolloverExpired means the subscription lapsed: it was pending
	// cancellation or its commitment ran out. The active row is retired and
	// the next EnsureSubscription provisions a free tier.
	RolloverExpired
)

// NextPeriod maps the current period bounds to the next ones. Catch-up is
// built in: if several boundaries were missed the bounds advance until the
// new period contains now, so usage counters are not reset more than once.
func NextPeriod(periodEnd, now time.Time) (start, end time.Time) {
	start = periodEnd
	end = models.PeriodEnd(start)
	for !now.Before(end) {
		start = end
		end = models.PeriodEnd(start)
	}
	return start, end
}

// Rollover is the pure period-boundary transition. It inspects the
// subscription against now and returns the outcome plus the new period
// bounds when renewing. It never mutates its input; persisting the decision
// is the caller's job.
func Rollover(sub *models.Subscription, now time.Time) (RolloverOutcome, time.Time, time.Time) {
	if now.Before(sub.PeriodEndDate) {
		return RolloverNotDue, time.Time{}, time.Time{}
	}
	if sub.CancelAtPeriodEnd {
		return RolloverExpired, time.Time{}, time.Time{}
	}
	if sub.EndDate != nil && !now.Before(*sub.EndDate) {
		return RolloverExpired, time.Time{}, time.Time{}
	}
	if sub.SubscriptionEndDate != nil && !now.Before(*sub.SubscriptionEndDate) {
		return RolloverExpired, time.Time{}, time.Time{}
	}
	start, end := NextPeriod(sub.PeriodEndDate, now)
	return RolloverRenewed, start, end
}
