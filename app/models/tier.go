package models

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	TierFree       = "free"
	TierPremium    = "premium"
	TierPremiumMax = "premium_max"
)

// Tier is the read-only plan catalog entry. Rows are reference data
// maintained by administrators; nil limits mean unlimited.
type Tier struct {
	ID                    uint      `gorm:"primaryKey" json:"id"`
	Name                  string    `gorm:"type:varchar(50);not null;uniqueIndex" json:"name" validate:"required,min=2,max=50"`
	DisplayName           string    `gorm:"type:varchar(100);not null" json:"display_name" validate:"required,max=100"`
	PriceCents            int64     `gorm:"not null;default:0" json:"price_cents" validate:"gte=0"`
	TokenLimit            *int64    `gorm:"default:null" json:"token_limit,omitempty"`
	PapersLimit           *int      `gorm:"default:null" json:"papers_limit,omitempty"`
	MaxStudyPlans         *int      `gorm:"default:null" json:"max_study_plans,omitempty"`
	MaxSubjects           *int      `gorm:"default:null" json:"max_subjects,omitempty"`
	CanSelectGrade        bool      `gorm:"default:false" json:"can_select_grade"`
	CanSelectSubjects     bool      `gorm:"default:false" json:"can_select_subjects"`
	ChapterWiseAccess     bool      `gorm:"default:false" json:"chapter_wise_access"`
	CanAccessStudyPlan    bool      `gorm:"default:false" json:"can_access_study_plan"`
	PointsCost            int64     `gorm:"not null;default:0" json:"points_cost" validate:"gte=0"`
	ReferralPointsAwarded int64     `gorm:"not null;default:0" json:"referral_points_awarded" validate:"gte=0"`
	IsActive              bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt             time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsRedeemable reports whether the tier can be acquired with referral points.
func (t *Tier) IsRedeemable() bool {
	return t.PointsCost > 0
}

// RequiresSelection reports whether activating this tier needs a grade or
// subject choice from the user before it can go live.
func (t *Tier) RequiresSelection() bool {
	return t.CanSelectGrade || t.CanSelectSubjects
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

// DefaultTiers returns the built-in catalog used to seed fresh databases.
func DefaultTiers() []Tier {
	return []Tier{
		{
			Name:                  TierFree,
			DisplayName:           "Free",
			PriceCents:            0,
			TokenLimit:            int64Ptr(50000),
			PapersLimit:           intPtr(5),
			MaxStudyPlans:         intPtr(1),
			CanAccessStudyPlan:    true,
			ReferralPointsAwarded: 0,
			IsActive:              true,
		},
		{
			Name:                  TierPremium,
			DisplayName:           "Premium",
			PriceCents:            999,
			TokenLimit:            int64Ptr(500000),
			PapersLimit:           intPtr(50),
			MaxStudyPlans:         intPtr(3),
			MaxSubjects:           intPtr(3),
			CanSelectGrade:        true,
			CanSelectSubjects:     true,
			ChapterWiseAccess:     true,
			CanAccessStudyPlan:    true,
			PointsCost:            500,
			ReferralPointsAwarded: 100,
			IsActive:              true,
		},
		{
			Name:                  TierPremiumMax,
			DisplayName:           "Premium Max",
			PriceCents:            1999,
			TokenLimit:            nil, // unlimited
			PapersLimit:           nil,
			MaxStudyPlans:         nil,
			MaxSubjects:           intPtr(6),
			CanSelectGrade:        true,
			CanSelectSubjects:     true,
			ChapterWiseAccess:     true,
			CanAccessStudyPlan:    true,
			PointsCost:            1200,
			ReferralPointsAwarded: 250,
			IsActive:              true,
		},
	}
}

// SeedDefaultTiers inserts the built-in catalog, leaving existing rows
// untouched so admin edits survive restarts.
func SeedDefaultTiers(db *gorm.DB) error {
	tiers := DefaultTiers()
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&tiers).Error
}
