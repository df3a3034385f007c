package referral

import (
	"time"

	"github.com/ManuelReschke/StudyFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the referral service.
// Transaction yields a repository bound to a DB transaction; returning an
// error from fn rolls everything back.
type Repository interface {
	Transaction(fn func(tx Repository) error) error

	GetOrCreateBalance(userID uint) (*models.ReferralPointsBalance, error)
	GetBalanceByCode(code string) (*models.ReferralPointsBalance, error)
	ListTransactions(userID uint) ([]models.ReferralTransaction, error)
	AppendTransaction(txn *models.ReferralTransaction) error

	// DebitPoints subtracts amount only while the balance stays
	// non-negative; the bool reports whether the debit applied.
	DebitPoints(userID uint, amount int64) (bool, error)
	CreditPoints(userID uint, amount int64) error
	RefundPoints(userID uint, amount int64) error
	IncrementTotalReferrals(userID uint) error
	IncrementSuccessfulReferrals(userID uint) error

	// CreateConversion inserts a first-conversion marker; the bool is false
	// when the referred user already converted once.
	CreateConversion(conv *models.ReferralConversion) (bool, error)

	GetPendingReservation(userID uint) (*models.TierReservation, error)
	CreateReservation(res *models.TierReservation) error
	// FinalizeReservation / ReleaseReservation are guarded pending-state
	// transitions; the bool reports whether this call won the transition.
	FinalizeReservation(resID uint) (bool, error)
	ReleaseReservation(resID uint) (bool, error)
	ListExpiredPending(now time.Time) ([]models.TierReservation, error)

	GetTierByID(id uint) (*models.Tier, error)
	ReplaceActiveSubscription(userID uint, next *models.Subscription) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a referral repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Transaction(fn func(tx Repository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

func (r *gormRepository) GetOrCreateBalance(userID uint) (*models.ReferralPointsBalance, error) {
	return models.GetOrCreateReferralBalance(r.db, userID)
}

func (r *gormRepository) GetBalanceByCode(code string) (*models.ReferralPointsBalance, error) {
	var bal models.ReferralPointsBalance
	if err := r.db.Where("referral_code = ?", code).First(&bal).Error; err != nil {
		return nil, err
	}
	return &bal, nil
}

func (r *gormRepository) ListTransactions(userID uint) ([]models.ReferralTransaction, error) {
	var txns []models.ReferralTransaction
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC, id DESC").Find(&txns).Error
	return txns, err
}

func (r *gormRepository) AppendTransaction(txn *models.ReferralTransaction) error {
	return r.db.Create(txn).Error
}

func (r *gormRepository) DebitPoints(userID uint, amount int64) (bool, error) {
	res := r.db.Model(&models.ReferralPointsBalance{}).
		Where("user_id = ? AND points_balance >= ?", userID, amount).
		Updates(map[string]interface{}{
			"points_balance": gorm.Expr("points_balance - ?", amount),
			"total_spent":    gorm.Expr("total_spent + ?", amount),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) CreditPoints(userID uint, amount int64) error {
	return r.db.Model(&models.ReferralPointsBalance{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"points_balance": gorm.Expr("points_balance + ?", amount),
			"total_earned":   gorm.Expr("total_earned + ?", amount),
		}).Error
}

func (r *gormRepository) RefundPoints(userID uint, amount int64) error {
	return r.db.Model(&models.ReferralPointsBalance{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"points_balance": gorm.Expr("points_balance + ?", amount),
			"total_spent":    gorm.Expr("total_spent - ?", amount),
		}).Error
}

func (r *gormRepository) IncrementTotalReferrals(userID uint) error {
	return r.db.Model(&models.ReferralPointsBalance{}).
		Where("user_id = ?", userID).
		Update("total_referrals", gorm.Expr("total_referrals + 1")).Error
}

func (r *gormRepository) IncrementSuccessfulReferrals(userID uint) error {
	return r.db.Model(&models.ReferralPointsBalance{}).
		Where("user_id = ?", userID).
		Update("successful_referrals", gorm.Expr("successful_referrals + 1")).Error
}

func (r *gormRepository) CreateConversion(conv *models.ReferralConversion) (bool, error) {
	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "referred_user_id"}},
		DoNothing: true,
	}).Create(conv)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) GetPendingReservation(userID uint) (*models.TierReservation, error) {
	var res models.TierReservation
	err := r.db.Preload("Tier").
		Where("user_id = ? AND status = ?", userID, models.ReservationStatusPending).
		First(&res).Error
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *gormRepository) CreateReservation(res *models.TierReservation) error {
	return r.db.Create(res).Error
}

func (r *gormRepository) FinalizeReservation(resID uint) (bool, error) {
	return r.transitionReservation(resID, models.ReservationStatusFinalized)
}

func (r *gormRepository) ReleaseReservation(resID uint) (bool, error) {
	return r.transitionReservation(resID, models.ReservationStatusReleased)
}

func (r *gormRepository) transitionReservation(resID uint, to string) (bool, error) {
	res := r.db.Model(&models.TierReservation{}).
		Where("id = ? AND status = ?", resID, models.ReservationStatusPending).
		Updates(map[string]interface{}{
			"status":          to,
			"pending_user_id": nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) ListExpiredPending(now time.Time) ([]models.TierReservation, error) {
	var out []models.TierReservation
	err := r.db.Where("status = ? AND expires_at <= ?", models.ReservationStatusPending, now).
		Find(&out).Error
	return out, err
}

func (r *gormRepository) GetTierByID(id uint) (*models.Tier, error) {
	var t models.Tier
	if err := r.db.First(&t, id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *gormRepository) ReplaceActiveSubscription(userID uint, next *models.Subscription) error {
	return models.ReplaceActiveSubscription(r.db, userID, next)
}
