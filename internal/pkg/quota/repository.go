package quota

import (
	"github.com/ManuelReschke/StudyFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides the guarded counter operations the quota service
// relies on. Implementations must make each operation atomic.
type Repository interface {
	GetActiveByUser(userID uint) (*models.Subscription, error)
	// IncrementTokens adds amount to the period counter. With a non-nil
	// limit the increment only applies when the post-increment value stays
	// within it; the bool reports whether the row was updated.
	IncrementTokens(subID uint, amount int64, limit *int64) (bool, error)
	// RecordPaperAccess dedups by paper id within the period and bumps the
	// counter only for first accesses. Returns whether quota was consumed;
	// ErrQuotaExceeded when a first access no longer fits.
	RecordPaperAccess(sub *models.Subscription, paperID string, limit *int) (bool, error)
	CountStudyPlans(userID uint) (int64, error)
	// CreateStudyPlan inserts the plan if the lifetime count is still under
	// limit, serialized per user. The bool reports whether it was created.
	CreateStudyPlan(plan *models.StudyPlanSchedule, limit *int) (bool, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a quota repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetActiveByUser(userID uint) (*models.Subscription, error) {
	return models.GetActiveSubscription(r.db, userID)
}

func (r *gormRepository) IncrementTokens(subID uint, amount int64, limit *int64) (bool, error) {
	q := r.db.Model(&models.Subscription{}).
		Where("id = ? AND status = ?", subID, models.SubscriptionStatusActive)
	if limit != nil {
		q = q.Where("tokens_used_current_period + ? <= ?", amount, *limit)
	}
	res := q.Update("tokens_used_current_period", gorm.Expr("tokens_used_current_period + ?", amount))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) RecordPaperAccess(sub *models.Subscription, paperID string, limit *int) (bool, error) {
	counted := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		access := &models.PaperAccess{
			SubscriptionID:  sub.ID,
			UserID:          sub.UserID,
			PeriodStartDate: sub.PeriodStartDate,
			PaperID:         paperID,
		}
		ins := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "subscription_id"},
				{Name: "period_start_date"},
				{Name: "paper_id"},
			},
			DoNothing: true,
		}).Create(access)
		if ins.Error != nil {
			return ins.Error
		}
		if ins.RowsAffected == 0 {
			// Already accessed this period; no quota consumed.
			return nil
		}

		q := tx.Model(&models.Subscription{}).
			Where("id = ? AND status = ?", sub.ID, models.SubscriptionStatusActive)
		if limit != nil {
			q = q.Where("papers_accessed_current_period + 1 <= ?", *limit)
		}
		res := q.Update("papers_accessed_current_period", gorm.Expr("papers_accessed_current_period + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Rolls back the dedup row as well.
			return ErrQuotaExceeded
		}
		counted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return counted, nil
}

func (r *gormRepository) CountStudyPlans(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.StudyPlanSchedule{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}

func (r *gormRepository) CreateStudyPlan(plan *models.StudyPlanSchedule, limit *int) (bool, error) {
	if limit == nil {
		if err := r.db.Create(plan).Error; err != nil {
			return false, err
		}
		return true, nil
	}

	created := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		// Lock the user's active subscription row to serialize concurrent
		// creations for the same user, then recheck the lifetime count.
		var sub models.Subscription
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND status = ?", plan.UserID, models.SubscriptionStatusActive).
			First(&sub).Error; err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&models.StudyPlanSchedule{}).
			Where("user_id = ?", plan.UserID).
			Count(&count).Error; err != nil {
			return err
		}
		if count >= int64(*limit) {
			return nil
		}
		if err := tx.Create(plan).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}
