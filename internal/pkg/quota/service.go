package quota

import (
	"context"
	"errors"
	"strings"

	"github.com/ManuelReschke/StudyFox/app/models"
	"github.com/ManuelReschke/StudyFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/StudyFox/internal/pkg/subscription"
	"gorm.io/gorm"
)

// ErrQuotaExceeded is returned when a charge would push a consumable counter
// past its effective limit.
var ErrQuotaExceeded = errors.New("quota exceeded")

// ErrStudyPlanNotPermitted is returned when the tier does not include study
// plan access at all.
var ErrStudyPlanNotPermitted = errors.New("tier does not include study plans")

// Service meters consumable usage against the active subscription's
// effective limits. All increments are guarded at the storage layer so
// concurrent callers cannot jointly overflow a quota.
type Service struct {
	repo Repository
}

// NewService creates a quota service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// NewServiceFromDB creates a quota service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// ChargeResult reports the counter state after a token charge.
type ChargeResult struct {
	Charged         int64  `json:"charged"`
	TokensUsed      int64  `json:"tokens_used"`
	TokenLimit      *int64 `json:"token_limit"`
	TokensRemaining *int64 `json:"tokens_remaining"`
	Bypassed        bool   `json:"bypassed"`
}

// ChargeTokens atomically adds amount to the period's token counter. The
// charge is rejected with ErrQuotaExceeded when the post-increment value
// would exceed the effective limit, unless bypass is set: privileged
// accounts still meter true usage for cost accounting but are never blocked.
func (s *Service) ChargeTokens(ctx context.Context, userID uint, amount int64, bypass bool) (*ChargeResult, error) {
	_ = ctx
	if amount < 0 {
		return nil, errors.New("charge amount must not be negative")
	}
	sub, err := s.repo.GetActiveByUser(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, subscription.ErrNoActiveSubscription
		}
		return nil, err
	}

	limit := entitlements.EffectiveTokenLimit(&sub.Tier, sub)
	guard := limit
	if bypass {
		guard = nil
	}
	ok, err := s.repo.IncrementTokens(sub.ID, amount, guard)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrQuotaExceeded
	}

	// Re-read for an accurate post-increment view under concurrency.
	after, err := s.repo.GetActiveByUser(userID)
	if err != nil {
		return nil, err
	}
	res := entitlements.Resolve(&after.Tier, after)
	return &ChargeResult{
		Charged:         amount,
		TokensUsed:      res.TokensUsed,
		TokenLimit:      res.TokenLimit,
		TokensRemaining: res.TokensRemaining,
		Bypassed:        bypass,
	}, nil
}

// PaperAccessResult reports whether an access consumed quota.
type PaperAccessResult struct {
	PaperID         string `json:"paper_id"`
	Counted         bool   `json:"counted"`
	PapersAccessed  int    `json:"papers_accessed"`
	PapersLimit     *int   `json:"papers_limit"`
	PapersRemaining *int   `json:"papers_remaining"`
}

// RecordPaperAccess counts the first access to a paper within the current
// period; repeat opens of the same paper are free. Once the papers limit is
// reached, first-time accesses are rejected with ErrQuotaExceeded.
func (s *Service) RecordPaperAccess(ctx context.Context, userID uint, paperID string) (*PaperAccessResult, error) {
	_ = ctx
	paperID = strings.TrimSpace(paperID)
	if paperID == "" {
		return nil, errors.New("paper_id is required")
	}
	sub, err := s.repo.GetActiveByUser(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, subscription.ErrNoActiveSubscription
		}
		return nil, err
	}

	counted, err := s.repo.RecordPaperAccess(sub, paperID, sub.Tier.PapersLimit)
	if err != nil {
		return nil, err
	}

	after, err := s.repo.GetActiveByUser(userID)
	if err != nil {
		return nil, err
	}
	res := entitlements.Resolve(&after.Tier, after)
	return &PaperAccessResult{
		PaperID:         paperID,
		Counted:         counted,
		PapersAccessed:  res.PapersAccessed,
		PapersLimit:     res.PapersLimit,
		PapersRemaining: res.PapersRemaining,
	}, nil
}

// StudyPlanQuota is the display/gating view for study plan creation.
type StudyPlanQuota struct {
	Limit     *int  `json:"limit"`
	Used      int64 `json:"used"`
	Remaining *int  `json:"remaining"`
	Allowed   bool  `json:"allowed"`
}

// CheckStudyPlanQuota compares the user's lifetime study plan count against
// the tier's bound. This call is informational; CreateStudyPlan re-verifies
// inside the transaction that performs the insert.
func (s *Service) CheckStudyPlanQuota(ctx context.Context, userID uint) (*StudyPlanQuota, error) {
	_ = ctx
	sub, err := s.repo.GetActiveByUser(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, subscription.ErrNoActiveSubscription
		}
		return nil, err
	}
	if !sub.Tier.CanAccessStudyPlan {
		return nil, ErrStudyPlanNotPermitted
	}

	used, err := s.repo.CountStudyPlans(userID)
	if err != nil {
		return nil, err
	}

	q := &StudyPlanQuota{Used: used, Limit: sub.Tier.MaxStudyPlans, Allowed: true}
	if q.Limit != nil {
		remaining := *q.Limit - int(used)
		if remaining < 0 {
			remaining = 0
		}
		q.Remaining = &remaining
		q.Allowed = remaining > 0
	}
	return q, nil
}

// CreateStudyPlan inserts a study plan after the authoritative in-transaction
// quota recheck. The informational CheckStudyPlanQuota result may be stale by
// the time the user commits; this one is load-bearing.
func (s *Service) CreateStudyPlan(ctx context.Context, userID uint, subjectID, gradeID uint, title string) (*models.StudyPlanSchedule, error) {
	_ = ctx
	sub, err := s.repo.GetActiveByUser(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, subscription.ErrNoActiveSubscription
		}
		return nil, err
	}
	if !sub.Tier.CanAccessStudyPlan {
		return nil, ErrStudyPlanNotPermitted
	}

	plan := &models.StudyPlanSchedule{
		UserID:    userID,
		SubjectID: subjectID,
		GradeID:   gradeID,
		Title:     strings.TrimSpace(title),
		IsActive:  true,
	}
	created, err := s.repo.CreateStudyPlan(plan, sub.Tier.MaxStudyPlans)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, ErrQuotaExceeded
	}
	return plan, nil
}
