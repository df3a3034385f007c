package referral

import "errors"

var (
	// ErrInsufficientPoints is returned when a redemption costs more than
	// the user's current balance.
	ErrInsufficientPoints = errors.New("insufficient points")

	// ErrTierNotRedeemable is returned for tiers with a zero points cost.
	ErrTierNotRedeemable = errors.New("tier cannot be redeemed with points")

	// ErrNoPendingReservation is returned when finalization is attempted
	// without an open reservation.
	ErrNoPendingReservation = errors.New("no pending reservation")

	// ErrReservationExpired is returned when the reservation lapsed before
	// finalization; the point debit has been refunded.
	ErrReservationExpired = errors.New("reservation expired")
)
