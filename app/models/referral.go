package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ReferralTxTypeEarn         = "earn"
	ReferralTxTypeRedeemDebit  = "redeem_debit"
	ReferralTxTypeRedeemRefund = "redeem_refund"
)

// ReferralPointsBalance is the per-user points account. PointsBalance never
// goes negative; debits are guarded at the storage layer.
type ReferralPointsBalance struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	UserID              uint      `gorm:"not null;uniqueIndex" json:"user_id"`
	ReferralCode        string    `gorm:"type:varchar(36);not null;uniqueIndex" json:"referral_code"`
	PointsBalance       int64     `gorm:"not null;default:0" json:"points_balance"`
	TotalEarned         int64     `gorm:"not null;default:0" json:"total_earned"`
	TotalSpent          int64     `gorm:"not null;default:0" json:"total_spent"`
	TotalReferrals      int       `gorm:"not null;default:0" json:"total_referrals"`
	SuccessfulReferrals int       `gorm:"not null;default:0" json:"successful_referrals"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ReferralTransaction is an immutable ledger entry. The sum of PointsDelta
// for a user must equal the current PointsBalance.
type ReferralTransaction struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"not null;index" json:"user_id"`
	Type        string    `gorm:"type:varchar(32);not null;index" json:"type"`
	PointsDelta int64     `gorm:"not null" json:"points_delta"`
	Description string    `gorm:"type:varchar(255);not null;default:''" json:"description"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// ReferralConversion records a referred user's first paid conversion. The
// unique index on ReferredUserID guarantees a referrer is credited at most
// once per referred user.
type ReferralConversion struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ReferrerUserID uint      `gorm:"not null;index" json:"referrer_user_id"`
	ReferredUserID uint      `gorm:"not null;uniqueIndex" json:"referred_user_id"`
	TierID         uint      `gorm:"not null" json:"tier_id"`
	PointsAwarded  int64     `gorm:"not null" json:"points_awarded"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// NewReferralCode returns a fresh referral code.
func NewReferralCode() string {
	return strings.ToLower(uuid.NewString())
}

// GetOrCreateReferralBalance returns the user's points account, creating an
// empty one with a fresh referral code on first use.
func GetOrCreateReferralBalance(db *gorm.DB, userID uint) (*ReferralPointsBalance, error) {
	var bal ReferralPointsBalance
	if err := db.Where("user_id = ?", userID).First(&bal).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			bal = ReferralPointsBalance{UserID: userID, ReferralCode: NewReferralCode()}
			if err := db.Create(&bal).Error; err != nil {
				return nil, err
			}
			return &bal, nil
		}
		return nil, err
	}
	return &bal, nil
}
