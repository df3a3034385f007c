package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ManuelReschke/StudyFox/app/models"
	"github.com/ManuelReschke/StudyFox/internal/pkg/cache"
	"gorm.io/gorm"
)

const tierCacheTTL = 10 * time.Minute

// tierRepository implements the TierRepository interface with a Redis
// read-through cache on name lookups, the hot path of every quota check.
type tierRepository struct {
	db *gorm.DB
}

// NewTierRepository creates a new tier repository instance
func NewTierRepository(db *gorm.DB) TierRepository {
	return &tierRepository{db: db}
}

// GetByID retrieves a tier by its ID
func (r *tierRepository) GetByID(id uint) (*models.Tier, error) {
	var tier models.Tier
	err := r.db.First(&tier, id).Error
	if err != nil {
		return nil, err
	}
	return &tier, nil
}

// GetByName retrieves a tier by its unique name, cache first.
func (r *tierRepository) GetByName(name string) (*models.Tier, error) {
	key := tierCacheKey(name)
	if cached, err := cache.Get(key); err == nil && cached != "" {
		var tier models.Tier
		if err := json.Unmarshal([]byte(cached), &tier); err == nil {
			return &tier, nil
		}
		// Unreadable cache entries are dropped and reloaded.
		_ = cache.Delete(key)
	}

	var tier models.Tier
	if err := r.db.Where("name = ?", name).First(&tier).Error; err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(&tier); err == nil {
		_ = cache.Set(key, string(payload), tierCacheTTL)
	}
	return &tier, nil
}

// List returns the purchasable tier catalog ordered by price. Retired tiers
// stay out of the listing but their subscriptions keep resolving by id.
func (r *tierRepository) List() ([]models.Tier, error) {
	var tiers []models.Tier
	err := r.db.Where("is_active = ?", true).Order("price_cents ASC").Find(&tiers).Error
	return tiers, err
}

// Save persists a tier and invalidates its cache entry
func (r *tierRepository) Save(tier *models.Tier) error {
	if err := r.db.Save(tier).Error; err != nil {
		return err
	}
	return r.InvalidateCache(tier.Name)
}

// InvalidateCache drops the cached entry for a tier name
func (r *tierRepository) InvalidateCache(name string) error {
	return cache.Delete(tierCacheKey(name))
}

func tierCacheKey(name string) string {
	return fmt.Sprintf("tier:name:%s", name)
}
