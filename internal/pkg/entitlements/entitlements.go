package entitlements

import (
	"github.com/ManuelReschke/StudyFox/app/models"
)

// Resolution is the consolidated entitlement view for one subscription.
// Every screen and gate derives limits from here instead of re-doing the
// carryover arithmetic locally. Nil limits mean unlimited.
type Resolution struct {
	TierName           string `json:"tier_name"`
	TierDisplayName    string `json:"tier_display_name"`
	TokenLimit         *int64 `json:"token_limit"`
	TokensUsed         int64  `json:"tokens_used"`
	TokensRemaining    *int64 `json:"tokens_remaining"`
	Carryover          int64  `json:"carryover"`
	PapersLimit        *int   `json:"papers_limit"`
	PapersAccessed     int    `json:"papers_accessed"`
	PapersRemaining    *int   `json:"papers_remaining"`
	MaxStudyPlans      *int   `json:"max_study_plans"`
	MaxSubjects        *int   `json:"max_subjects"`
	CanSelectGrade     bool   `json:"can_select_grade"`
	CanSelectSubjects  bool   `json:"can_select_subjects"`
	ChapterWiseAccess  bool   `json:"chapter_wise_access"`
	CanAccessStudyPlan bool   `json:"can_access_study_plan"`
}

// EffectiveTokenLimit returns the subscription's token ceiling: the admin
// override when present, otherwise the tier's base limit. Nil = unlimited.
func EffectiveTokenLimit(tier *models.Tier, sub *models.Subscription) *int64 {
	if sub != nil && sub.TokenLimitOverride != nil {
		v := *sub.TokenLimitOverride
		return &v
	}
	if tier == nil || tier.TokenLimit == nil {
		return nil
	}
	v := *tier.TokenLimit
	return &v
}

// Carryover returns the extra quota above the tier's base limit granted via
// an override. It is never negative and never stored, only derived.
func Carryover(tier *models.Tier, sub *models.Subscription) int64 {
	if sub == nil || sub.TokenLimitOverride == nil || tier == nil || tier.TokenLimit == nil {
		return 0
	}
	diff := *sub.TokenLimitOverride - *tier.TokenLimit
	if diff < 0 {
		return 0
	}
	return diff
}

// Resolve derives the full entitlement view for a subscription and its tier.
func Resolve(tier *models.Tier, sub *models.Subscription) Resolution {
	res := Resolution{
		TierName:           tier.Name,
		TierDisplayName:    tier.DisplayName,
		TokenLimit:         EffectiveTokenLimit(tier, sub),
		Carryover:          Carryover(tier, sub),
		PapersLimit:        tier.PapersLimit,
		MaxStudyPlans:      tier.MaxStudyPlans,
		MaxSubjects:        tier.MaxSubjects,
		CanSelectGrade:     tier.CanSelectGrade,
		CanSelectSubjects:  tier.CanSelectSubjects,
		ChapterWiseAccess:  tier.ChapterWiseAccess,
		CanAccessStudyPlan: tier.CanAccessStudyPlan,
	}
	if sub != nil {
		res.TokensUsed = sub.TokensUsedCurrentPeriod
		res.PapersAccessed = sub.PapersAccessedCurrentPeriod
	}
	if res.TokenLimit != nil {
		remaining := *res.TokenLimit - res.TokensUsed
		if remaining < 0 {
			remaining = 0
		}
		res.TokensRemaining = &remaining
	}
	if res.PapersLimit != nil {
		remaining := *res.PapersLimit - res.PapersAccessed
		if remaining < 0 {
			remaining = 0
		}
		res.PapersRemaining = &remaining
	}
	return res
}

// TokensAvailable reports whether a charge of amount fits under the
// effective limit. Unlimited tiers always fit.
func TokensAvailable(tier *models.Tier, sub *models.Subscription, amount int64) bool {
	limit := EffectiveTokenLimit(tier, sub)
	if limit == nil {
		return true
	}
	return sub.TokensUsedCurrentPeriod+amount <= *limit
}
