package payment

import (
	"time"

	"github.com/ManuelReschke/StudyFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the payment service.
type Repository interface {
	// CreateWebhookEventIfNotExists inserts the event unless the same
	// provider event was already stored; the bool reports whether this
	// call created the row.
	CreateWebhookEventIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
	// RevalidateWebhookEvent upgrades an event that was first stored with a
	// failed signature check: the verified payload replaces the stored one
	// and the processing outcome is reset.
	RevalidateWebhookEvent(id uint, payloadJSON string) error
	ListUnprocessed(limit int) ([]models.PaymentWebhookEvent, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a payment repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.PaymentWebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.PaymentWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) RevalidateWebhookEvent(id uint, payloadJSON string) error {
	updates := map[string]interface{}{
		"signature_valid":  true,
		"payload_json":     payloadJSON,
		"processed_at":     nil,
		"processing_error": "",
	}
	return r.db.Model(&models.PaymentWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) ListUnprocessed(limit int) ([]models.PaymentWebhookEvent, error) {
	var events []models.PaymentWebhookEvent
	err := r.db.Where("processed_at IS NULL AND signature_valid = ?", true).
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}
