package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusInactive = "inactive"
)

const (
	BillingCycleMonthly  = "monthly"
	BillingCycleYearly   = "yearly"
	BillingCycleLifetime = "lifetime"
)

// Subscription is a user's plan membership. At most one row per user may be
// active at any time; the constraint is enforced by the unique index on
// ActiveUserID, which mirrors UserID while the row is active and is NULL once
// the row has been retired. Retired rows are kept as history, never deleted.
type Subscription struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	UserID       uint   `gorm:"not null;index" json:"user_id"`
	ActiveUserID *uint  `gorm:"uniqueIndex:ux_subscriptions_active_user" json:"-"`
	TierID       uint   `gorm:"not null;index" json:"tier_id"`
	Tier         Tier   `gorm:"foreignKey:TierID" json:"tier,omitempty"`
	Status       string `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`

	PeriodStartDate   time.Time `gorm:"type:timestamp;not null" json:"period_start_date"`
	PeriodEndDate     time.Time `gorm:"type:timestamp;not null;index" json:"period_end_date"`
	CancelAtPeriodEnd bool      `gorm:"default:false" json:"cancel_at_period_end"`
	CancelReason      string    `gorm:"type:varchar(255);default:''" json:"cancel_reason,omitempty"`

	BillingCycle    string `gorm:"type:varchar(16);not null;default:'monthly'" json:"billing_cycle"`
	IsRecurring     bool   `gorm:"default:false" json:"is_recurring"`
	PaymentProvider string `gorm:"type:varchar(40);default:''" json:"payment_provider,omitempty"`
	// EndDate is the hard stop for non-recurring purchases.
	EndDate *time.Time `gorm:"type:timestamp;default:null" json:"end_date,omitempty"`
	// SubscriptionEndDate bounds yearly commitments whose token quota still
	// refills monthly inside the longer term.
	SubscriptionEndDate *time.Time `gorm:"type:timestamp;default:null" json:"subscription_end_date,omitempty"`

	TokensUsedCurrentPeriod     int64  `gorm:"not null;default:0" json:"tokens_used_current_period"`
	TokenLimitOverride          *int64 `gorm:"default:null" json:"token_limit_override,omitempty"`
	PapersAccessedCurrentPeriod int    `gorm:"not null;default:0" json:"papers_accessed_current_period"`

	SelectedGradeID    *uint  `gorm:"default:null" json:"selected_grade_id,omitempty"`
	SelectedSubjectIDs string `gorm:"type:text" json:"-"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsActive reports whether the row is the user's current subscription.
func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive
}

// IsPendingCancellation reports whether the subscription will lapse at the
// period boundary instead of rolling over.
func (s *Subscription) IsPendingCancellation() bool {
	return s.IsActive() && s.CancelAtPeriodEnd
}

// SubjectIDs decodes the selected subject set. An empty column yields nil.
func (s *Subscription) SubjectIDs() []uint {
	if s.SelectedSubjectIDs == "" {
		return nil
	}
	var ids []uint
	if err := json.Unmarshal([]byte(s.SelectedSubjectIDs), &ids); err != nil {
		return nil
	}
	return ids
}

// SetSubjectIDs encodes the selected subject set, deduplicating ids.
func (s *Subscription) SetSubjectIDs(ids []uint) error {
	if len(ids) == 0 {
		s.SelectedSubjectIDs = ""
		return nil
	}
	seen := make(map[uint]struct{}, len(ids))
	unique := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	raw, err := json.Marshal(unique)
	if err != nil {
		return err
	}
	s.SelectedSubjectIDs = string(raw)
	return nil
}

// NewSubscription builds an active subscription row for the given tier with
// period bounds derived from the billing cycle.
func NewSubscription(userID uint, tier *Tier, billingCycle string, now time.Time) *Subscription {
	uid := userID
	return &Subscription{
		UserID:          userID,
		ActiveUserID:    &uid,
		TierID:          tier.ID,
		Status:          SubscriptionStatusActive,
		BillingCycle:    billingCycle,
		PeriodStartDate: now,
		PeriodEndDate:   PeriodEnd(now),
	}
}

// PeriodEnd returns the end of the metering period starting at start. Usage
// counters reset monthly regardless of billing cycle; yearly and lifetime
// commitments are bounded separately via SubscriptionEndDate / EndDate.
func PeriodEnd(start time.Time) time.Time {
	return start.AddDate(0, 1, 0)
}

// GetActiveSubscription loads the user's single active subscription with its
// tier preloaded.
func GetActiveSubscription(db *gorm.DB, userID uint) (*Subscription, error) {
	var sub Subscription
	err := db.Preload("Tier").
		Where("user_id = ? AND status = ?", userID, SubscriptionStatusActive).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// RetireActiveSubscription marks the user's active row inactive and clears
// the active marker so a successor can be inserted. Returns
// gorm.ErrRecordNotFound when there is nothing to retire.
func RetireActiveSubscription(db *gorm.DB, userID uint) error {
	res := db.Model(&Subscription{}).
		Where("user_id = ? AND status = ?", userID, SubscriptionStatusActive).
		Updates(map[string]interface{}{
			"status":         SubscriptionStatusInactive,
			"active_user_id": nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ReplaceActiveSubscription retires the user's current active row (if any)
// and inserts next as the new active subscription, all on the given handle.
// Callers run it inside a transaction when composing with other writes.
func ReplaceActiveSubscription(db *gorm.DB, userID uint, next *Subscription) error {
	if err := RetireActiveSubscription(db, userID); err != nil && err != gorm.ErrRecordNotFound {
		return err
	}
	return db.Create(next).Error
}
