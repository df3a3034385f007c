package subscription

import (
	"time"

	"github.com/ManuelReschke/StudyFox/app/models"
	"gorm.io/gorm"
)

// Repository provides DB operations used by the lifecycle service.
type Repository interface {
	GetTierByID(id uint) (*models.Tier, error)
	GetTierByName(name string) (*models.Tier, error)
	GetActiveByUser(userID uint) (*models.Subscription, error)
	CreateActive(sub *models.Subscription) error
	Save(sub *models.Subscription) error
	ReplaceActive(userID uint, next *models.Subscription) error
	RetireByID(subID uint) error
	ListByUser(userID uint) ([]models.Subscription, error)
	ListDueForRollover(now time.Time) ([]models.Subscription, error)
	ApplyRollover(subID uint, oldPeriodEnd, newStart, newEnd time.Time) (bool, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a lifecycle repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetTierByID(id uint) (*models.Tier, error) {
	var t models.Tier
	if err := r.db.First(&t, id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *gormRepository) GetTierByName(name string) (*models.Tier, error) {
	var t models.Tier
	if err := r.db.Where("name = ?", name).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *gormRepository) GetActiveByUser(userID uint) (*models.Subscription, error) {
	return models.GetActiveSubscription(r.db, userID)
}

func (r *gormRepository) CreateActive(sub *models.Subscription) error {
	return r.db.Create(sub).Error
}

func (r *gormRepository) Save(sub *models.Subscription) error {
	return r.db.Save(sub).Error
}

func (r *gormRepository) ReplaceActive(userID uint, next *models.Subscription) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return models.ReplaceActiveSubscription(tx, userID, next)
	})
}

func (r *gormRepository) RetireByID(subID uint) error {
	return r.db.Model(&models.Subscription{}).
		Where("id = ? AND status = ?", subID, models.SubscriptionStatusActive).
		Updates(map[string]interface{}{
			"status":         models.SubscriptionStatusInactive,
			"active_user_id": nil,
		}).Error
}

func (r *gormRepository) ListByUser(userID uint) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Preload("Tier").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&subs).Error
	return subs, err
}

func (r *gormRepository) ListDueForRollover(now time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Preload("Tier").
		Where("status = ? AND period_end_date <= ?", models.SubscriptionStatusActive, now).
		Find(&subs).Error
	return subs, err
}

// ApplyRollover advances the period bounds and zeroes the usage counters.
// The WHERE clause on the old period end makes the update a compare-and-swap,
// so overlapping sweeps apply the transition at most once.
func (r *gormRepository) ApplyRollover(subID uint, oldPeriodEnd, newStart, newEnd time.Time) (bool, error) {
	res := r.db.Model(&models.Subscription{}).
		Where("id = ? AND status = ? AND period_end_date = ?", subID, models.SubscriptionStatusActive, oldPeriodEnd).
		Updates(map[string]interface{}{
			"period_start_date":              newStart,
			"period_end_date":                newEnd,
			"tokens_used_current_period":     0,
			"papers_accessed_current_period": 0,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
