package subscription

import "errors"

var (
	// ErrNoActiveSubscription is returned when an operation requires an
	// active subscription and the user has none.
	ErrNoActiveSubscription = errors.New("no active subscription")

	// ErrConcurrentModification signals a lost race on a read-modify-write
	// operation. A single retry is safe.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrInvalidSelection is returned when a grade/subject choice violates
	// the tier's selection rules or bounds.
	ErrInvalidSelection = errors.New("invalid selection")

	// ErrNotPendingCancellation is returned when Reactivate is called on a
	// subscription that is not scheduled to cancel.
	ErrNotPendingCancellation = errors.New("subscription is not pending cancellation")

	// ErrUnknownTier is returned when a tier reference cannot be resolved.
	ErrUnknownTier = errors.New("unknown tier")
)
