package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	ReservationStatusPending   = "pending"
	ReservationStatusFinalized = "finalized"
	ReservationStatusReleased  = "released"
)

// DefaultReservationTTL bounds how long a two-phase redemption may sit
// between the point debit and the grade/subject selection.
const DefaultReservationTTL = 30 * time.Minute

// TierReservation holds a redeemed-but-not-yet-activated tier while the user
// supplies the grade/subject selection the tier requires. The unique index on
// PendingUserID allows at most one pending reservation per user; the column
// is cleared when the reservation is finalized or released.
type TierReservation struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"not null;index" json:"user_id"`
	PendingUserID *uint     `gorm:"uniqueIndex:ux_tier_reservations_pending_user" json:"-"`
	TierID        uint      `gorm:"not null" json:"tier_id"`
	Tier          Tier      `gorm:"foreignKey:TierID" json:"tier,omitempty"`
	Code          string    `gorm:"type:varchar(36);not null;uniqueIndex" json:"code"`
	PointsDebited int64     `gorm:"not null" json:"points_debited"`
	Status        string    `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	ExpiresAt     time.Time `gorm:"type:timestamp;not null;index" json:"expires_at"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsPending reports whether the reservation is still awaiting finalization.
func (r *TierReservation) IsPending() bool {
	return r.Status == ReservationStatusPending
}

// IsExpired reports whether the reservation has passed its deadline.
func (r *TierReservation) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// NewTierReservation builds a pending reservation for a redeemed tier.
func NewTierReservation(userID uint, tier *Tier, pointsDebited int64, now time.Time) *TierReservation {
	uid := userID
	return &TierReservation{
		UserID:        userID,
		PendingUserID: &uid,
		TierID:        tier.ID,
		Code:          strings.ToLower(uuid.NewString()),
		PointsDebited: pointsDebited,
		Status:        ReservationStatusPending,
		ExpiresAt:     now.Add(DefaultReservationTTL),
	}
}
