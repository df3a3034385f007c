package repository

import (
	"time"

	"github.com/ManuelReschke/StudyFox/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, error)
	Update(user *models.User) error
	Delete(id uint) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
	Search(query string) ([]models.User, error)
}

// TierRepository defines the interface for tier catalog access. Reads are
// served from cache where possible since the catalog changes rarely.
type TierRepository interface {
	GetByID(id uint) (*models.Tier, error)
	GetByName(name string) (*models.Tier, error)
	List() ([]models.Tier, error)
	Save(tier *models.Tier) error
	InvalidateCache(name string) error
}

// CacheRepository defines the interface for cache administration operations
type CacheRepository interface {
	GetValue(key string) (string, error)
	GetTTL(key string) (time.Duration, error)
	FindKeysByPatterns(patterns []string) ([]string, error)
	DeleteKeys(keys []string) (int64, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	User  UserRepository
	Tier  TierRepository
	Cache CacheRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:  NewUserRepository(db),
		Tier:  NewTierRepository(db),
		Cache: NewCacheRepository(),
	}
}
