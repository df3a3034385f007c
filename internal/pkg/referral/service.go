package referral

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/StudyFox/app/models"
	"github.com/ManuelReschke/StudyFox/internal/pkg/subscription"
	"gorm.io/gorm"
)

// PaymentProviderPoints marks subscriptions acquired via point redemption
// rather than a payment gateway.
const PaymentProviderPoints = "referral_points"

// Service owns the points ledger and the redemption flow. Every mutating
// operation runs as one transaction: no path leaves a point debit without a
// matching entitlement or open reservation.
type Service struct {
	repo Repository
}

// NewService creates a referral service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// NewServiceFromDB creates a referral service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// Balance returns the user's points account, creating it on first use.
func (s *Service) Balance(ctx context.Context, userID uint) (*models.ReferralPointsBalance, error) {
	_ = ctx
	return s.repo.GetOrCreateBalance(userID)
}

// Transactions lists the user's ledger entries, newest first.
func (s *Service) Transactions(ctx context.Context, userID uint) ([]models.ReferralTransaction, error) {
	_ = ctx
	return s.repo.ListTransactions(userID)
}

// RegisterSignup counts a new sign-up against the owner of the referral
// code. No points are awarded until the referred user's first paid
// conversion.
func (s *Service) RegisterSignup(ctx context.Context, referralCode string) error {
	_ = ctx
	code := strings.ToLower(strings.TrimSpace(referralCode))
	if code == "" {
		return errors.New("referral code is required")
	}
	bal, err := s.repo.GetBalanceByCode(code)
	if err != nil {
		return err
	}
	return s.repo.IncrementTotalReferrals(bal.UserID)
}

// CreditReferral awards the tier's referral points to the referrer on the
// referred user's first paid conversion. Later conversions by the same user
// are no-ops; the conversion table's unique index enforces at-most-once.
func (s *Service) CreditReferral(ctx context.Context, referralCode string, referredUserID uint, tier *models.Tier) (bool, error) {
	_ = ctx
	code := strings.ToLower(strings.TrimSpace(referralCode))
	if code == "" || referredUserID == 0 || tier == nil {
		return false, errors.New("referral code, referred user and tier are required")
	}
	if tier.ReferralPointsAwarded <= 0 {
		return false, nil
	}

	referrer, err := s.repo.GetBalanceByCode(code)
	if err != nil {
		return false, err
	}
	if referrer.UserID == referredUserID {
		// Self-referrals earn nothing.
		return false, nil
	}

	credited := false
	err = s.repo.Transaction(func(tx Repository) error {
		created, err := tx.CreateConversion(&models.ReferralConversion{
			ReferrerUserID: referrer.UserID,
			ReferredUserID: referredUserID,
			TierID:         tier.ID,
			PointsAwarded:  tier.ReferralPointsAwarded,
		})
		if err != nil {
			return err
		}
		if !created {
			return nil
		}
		if err := tx.CreditPoints(referrer.UserID, tier.ReferralPointsAwarded); err != nil {
			return err
		}
		if err := tx.IncrementSuccessfulReferrals(referrer.UserID); err != nil {
			return err
		}
		if err := tx.AppendTransaction(&models.ReferralTransaction{
			UserID:      referrer.UserID,
			Type:        models.ReferralTxTypeEarn,
			PointsDelta: tier.ReferralPointsAwarded,
			Description: fmt.Sprintf("Referral reward for %s conversion", tier.Name),
		}); err != nil {
			return err
		}
		credited = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return credited, nil
}

// RedeemResult is the outcome of a redeem call: either the subscription went
// live immediately, or a reservation awaits the grade/subject selection.
type RedeemResult struct {
	Activated    bool                    `json:"activated"`
	Subscription *models.Subscription    `json:"subscription,omitempty"`
	Reservation  *models.TierReservation `json:"reservation,omitempty"`
}

// Redeem spends points to acquire a tier. Tiers without selection
// requirements activate immediately; tiers that need a grade/subject choice
// return a pending reservation instead, finalized by FinalizeRedemption.
// A still-pending prior reservation is superseded: its debit is refunded
// before the new one is taken.
func (s *Service) Redeem(ctx context.Context, userID uint, tierID uint) (*RedeemResult, error) {
	_ = ctx
	tier, err := s.repo.GetTierByID(tierID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, subscription.ErrUnknownTier
		}
		return nil, err
	}
	if !tier.IsActive || !tier.IsRedeemable() {
		return nil, ErrTierNotRedeemable
	}

	if _, err := s.repo.GetOrCreateBalance(userID); err != nil {
		return nil, err
	}

	now := time.Now()
	result := &RedeemResult{}
	err = s.repo.Transaction(func(tx Repository) error {
		if prior, err := tx.GetPendingReservation(userID); err == nil {
			if err := s.releaseWithRefund(tx, prior, "superseded by new redemption"); err != nil {
				return err
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		debited, err := tx.DebitPoints(userID, tier.PointsCost)
		if err != nil {
			return err
		}
		if !debited {
			return ErrInsufficientPoints
		}
		if err := tx.AppendTransaction(&models.ReferralTransaction{
			UserID:      userID,
			Type:        models.ReferralTxTypeRedeemDebit,
			PointsDelta: -tier.PointsCost,
			Description: fmt.Sprintf("Redeemed %s tier", tier.Name),
		}); err != nil {
			return err
		}

		if tier.RequiresSelection() {
			res := models.NewTierReservation(userID, tier, tier.PointsCost, now)
			if err := tx.CreateReservation(res); err != nil {
				return err
			}
			res.Tier = *tier
			result.Reservation = res
			return nil
		}

		sub, err := s.activateRedeemedTier(tx, userID, tier, nil, nil)
		if err != nil {
			return err
		}
		result.Activated = true
		result.Subscription = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// FinalizeRedemption completes a two-phase redemption: it validates the
// grade/subject selection and performs the tier transition in the same
// transaction that consumes the reservation. An expired reservation is
// refunded instead.
func (s *Service) FinalizeRedemption(ctx context.Context, userID uint, gradeID *uint, subjectIDs []uint) (*models.Subscription, error) {
	_ = ctx
	now := time.Now()

	var activated *models.Subscription
	var expired bool
	err := s.repo.Transaction(func(tx Repository) error {
		res, err := tx.GetPendingReservation(userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoPendingReservation
			}
			return err
		}
		if res.IsExpired(now) {
			// Returning the sentinel from here would roll the refund back,
			// so the closure commits and the sentinel is surfaced after.
			if err := s.releaseWithRefund(tx, res, "reservation expired"); err != nil {
				return err
			}
			expired = true
			return nil
		}

		tier, err := tx.GetTierByID(res.TierID)
		if err != nil {
			return err
		}
		if err := subscription.ValidateSelection(tier, gradeID, subjectIDs); err != nil {
			// Selection errors keep the reservation open so the user can
			// correct the input and retry.
			return err
		}

		consumed, err := tx.FinalizeReservation(res.ID)
		if err != nil {
			return err
		}
		if !consumed {
			return subscription.ErrConcurrentModification
		}

		sub, err := s.activateRedeemedTier(tx, userID, tier, gradeID, subjectIDs)
		if err != nil {
			return err
		}
		activated = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, ErrReservationExpired
	}
	return activated, nil
}

// ReleaseExpiredReservations refunds the point debit of every pending
// reservation past its deadline. Invoked by the external clock collaborator.
func (s *Service) ReleaseExpiredReservations(ctx context.Context, now time.Time) (int, error) {
	_ = ctx
	expired, err := s.repo.ListExpiredPending(now)
	if err != nil {
		return 0, err
	}

	released := 0
	for i := range expired {
		res := expired[i]
		err := s.repo.Transaction(func(tx Repository) error {
			return s.releaseWithRefund(tx, &res, "reservation expired")
		})
		if err != nil {
			return released, err
		}
		released++
	}
	return released, nil
}

// releaseWithRefund releases a pending reservation and returns its debit to
// the user's balance. Safe against double releases: the guarded status
// transition only refunds once.
func (s *Service) releaseWithRefund(tx Repository, res *models.TierReservation, reason string) error {
	released, err := tx.ReleaseReservation(res.ID)
	if err != nil {
		return err
	}
	if !released {
		return nil
	}
	if err := tx.RefundPoints(res.UserID, res.PointsDebited); err != nil {
		return err
	}
	return tx.AppendTransaction(&models.ReferralTransaction{
		UserID:      res.UserID,
		Type:        models.ReferralTxTypeRedeemRefund,
		PointsDelta: res.PointsDebited,
		Description: fmt.Sprintf("Redemption refund: %s", reason),
	})
}

// activateRedeemedTier performs the tier transition for a successful
// redemption on the transaction handle. Redeemed tiers are non-recurring and
// run for exactly one period.
func (s *Service) activateRedeemedTier(tx Repository, userID uint, tier *models.Tier, gradeID *uint, subjectIDs []uint) (*models.Subscription, error) {
	next := models.NewSubscription(userID, tier, models.BillingCycleMonthly, time.Now())
	next.PaymentProvider = PaymentProviderPoints
	end := next.PeriodEndDate
	next.EndDate = &end
	next.SelectedGradeID = gradeID
	if err := next.SetSubjectIDs(subjectIDs); err != nil {
		return nil, err
	}
	if err := tx.ReplaceActiveSubscription(userID, next); err != nil {
		return nil, err
	}
	next.Tier = *tier
	return next, nil
}
