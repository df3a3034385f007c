package subscription

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/ManuelReschke/StudyFox/app/models"
	"gorm.io/gorm"
)

// Service owns the single-active-subscription-per-user invariant and all
// lifecycle transitions.
type Service struct {
	repo Repository
}

// NewService creates a lifecycle service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// NewServiceFromDB creates a lifecycle service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// Activation carries the payment-gateway outcome (or redemption result) that
// drives a tier transition. The engine never initiates charges itself.
type Activation struct {
	BillingCycle        string
	IsRecurring         bool
	PaymentProvider     string
	EndDate             *time.Time
	SubscriptionEndDate *time.Time
	GradeID             *uint
	SubjectIDs          []uint
}

// EnsureSubscription returns the user's active subscription, provisioning a
// free-tier row on first need. It is idempotent and race-safe: the unique
// active-user index rejects a second insert, in which case the winner's row
// is fetched. Exactly one retry, never more.
func (s *Service) EnsureSubscription(ctx context.Context, userID uint) (*models.Subscription, error) {
	_ = ctx
	sub, err := s.repo.GetActiveByUser(userID)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	tier, err := s.repo.GetTierByName(models.TierFree)
	if err != nil {
		return nil, err
	}

	fresh := models.NewSubscription(userID, tier, models.BillingCycleMonthly, time.Now())
	if err := s.repo.CreateActive(fresh); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost the race against a concurrent ensure; the winner's row
			// is authoritative.
			winner, ferr := s.repo.GetActiveByUser(userID)
			if ferr == nil {
				return winner, nil
			}
			if errors.Is(ferr, gorm.ErrRecordNotFound) {
				return nil, ErrConcurrentModification
			}
			return nil, ferr
		}
		return nil, err
	}
	fresh.Tier = *tier
	return fresh, nil
}

// CancelAtPeriodEnd flags the active subscription to lapse at the period
// boundary. Access and quotas remain unchanged until then.
func (s *Service) CancelAtPeriodEnd(ctx context.Context, userID uint, reason string) (*models.Subscription, error) {
	_ = ctx
	sub, err := s.repo.GetActiveByUser(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoActiveSubscription
		}
		return nil, err
	}
	sub.CancelAtPeriodEnd = true
	sub.CancelReason = strings.TrimSpace(reason)
	if err := s.repo.Save(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Reactivate clears a pending cancellation. Period bounds are untouched.
func (s *Service) Reactivate(ctx context.Context, userID uint) (*models.Subscription, error) {
	_ = ctx
	sub, err := s.repo.GetActiveByUser(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoActiveSubscription
		}
		return nil, err
	}
	if !sub.CancelAtPeriodEnd {
		return nil, ErrNotPendingCancellation
	}
	sub.CancelAtPeriodEnd = false
	sub.CancelReason = ""
	if err := s.repo.Save(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// ValidateSelection checks a grade/subject choice against the tier's rules.
func ValidateSelection(tier *models.Tier, gradeID *uint, subjectIDs []uint) error {
	if !tier.RequiresSelection() {
		return ErrInvalidSelection
	}
	if gradeID != nil && !tier.CanSelectGrade {
		return ErrInvalidSelection
	}
	if len(subjectIDs) > 0 && !tier.CanSelectSubjects {
		return ErrInvalidSelection
	}
	if tier.MaxSubjects != nil {
		seen := make(map[uint]struct{}, len(subjectIDs))
		for _, id := range subjectIDs {
			seen[id] = struct{}{}
		}
		if len(seen) > *tier.MaxSubjects {
			return ErrInvalidSelection
		}
	}
	return nil
}

// UpdateSelections stores the user's grade/subject choice on the active
// subscription after validating it against the tier.
func (s *Service) UpdateSelections(ctx context.Context, userID uint, gradeID *uint, subjectIDs []uint) (*models.Subscription, error) {
	_ = ctx
	sub, err := s.repo.GetActiveByUser(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoActiveSubscription
		}
		return nil, err
	}
	if err := ValidateSelection(&sub.Tier, gradeID, subjectIDs); err != nil {
		return nil, err
	}
	sub.SelectedGradeID = gradeID
	if err := sub.SetSubjectIDs(subjectIDs); err != nil {
		return nil, err
	}
	if err := s.repo.Save(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// ActivateTier replaces the user's active subscription with a new row on the
// given tier, retiring the old row to history. It records what the payment
// gateway reported; it never charges.
func (s *Service) ActivateTier(ctx context.Context, userID uint, tierName string, in Activation) (*models.Subscription, error) {
	_ = ctx
	tier, err := s.repo.GetTierByName(tierName)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownTier
		}
		return nil, err
	}

	if in.GradeID != nil || len(in.SubjectIDs) > 0 {
		if err := ValidateSelection(tier, in.GradeID, in.SubjectIDs); err != nil {
			return nil, err
		}
	}

	cycle := in.BillingCycle
	if cycle == "" {
		cycle = models.BillingCycleMonthly
	}

	next := models.NewSubscription(userID, tier, cycle, time.Now())
	next.IsRecurring = in.IsRecurring
	next.PaymentProvider = in.PaymentProvider
	next.EndDate = in.EndDate
	next.SubscriptionEndDate = in.SubscriptionEndDate
	next.SelectedGradeID = in.GradeID
	if err := next.SetSubjectIDs(in.SubjectIDs); err != nil {
		return nil, err
	}

	if err := s.repo.ReplaceActive(userID, next); err != nil {
		return nil, err
	}
	next.Tier = *tier
	return next, nil
}

// GrantTokenOverride sets an admin-granted token ceiling (carryover) on the
// active subscription. A nil override removes the grant.
func (s *Service) GrantTokenOverride(ctx context.Context, userID uint, override *int64) (*models.Subscription, error) {
	_ = ctx
	sub, err := s.repo.GetActiveByUser(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoActiveSubscription
		}
		return nil, err
	}
	sub.TokenLimitOverride = override
	if err := s.repo.Save(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// History lists every subscription row the user ever held, newest first.
func (s *Service) History(ctx context.Context, userID uint) ([]models.Subscription, error) {
	_ = ctx
	return s.repo.ListByUser(userID)
}

// RolloverStats summarizes one rollover sweep.
type RolloverStats struct {
	Renewed int `json:"renewed"`
	Expired int `json:"expired"`
}

// RolloverDue applies the period-boundary transition to every subscription
// whose period has ended. Invoked by the external clock collaborator; the
// per-row updates are guarded on the old period end so overlapping sweeps
// cannot double-reset counters.
func (s *Service) RolloverDue(ctx context.Context, now time.Time) (RolloverStats, error) {
	_ = ctx
	var stats RolloverStats

	due, err := s.repo.ListDueForRollover(now)
	if err != nil {
		return stats, err
	}

	for i := range due {
		sub := &due[i]
		outcome, start, end := Rollover(sub, now)
		switch outcome {
		case RolloverRenewed:
			applied, err := s.repo.ApplyRollover(sub.ID, sub.PeriodEndDate, start, end)
			if err != nil {
				return stats, err
			}
			if applied {
				stats.Renewed++
			}
		case RolloverExpired:
			if err := s.repo.RetireByID(sub.ID); err != nil {
				return stats, err
			}
			stats.Expired++
		default:
			log.Printf("rollover: subscription %d listed as due but not due at %s", sub.ID, now)
		}
	}
	return stats, nil
}
