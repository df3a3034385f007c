package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ManuelReschke/StudyFox/app/models"
	"github.com/ManuelReschke/StudyFox/internal/pkg/referral"
	"github.com/ManuelReschke/StudyFox/internal/pkg/subscription"
	"gorm.io/gorm"
)

// Service turns verified payment-gateway webhooks into tier transitions.
// Events are stored before processing so a crash between the two steps can
// be recovered by replaying unprocessed rows.
type Service struct {
	repo Repository
	subs *subscription.Service
	refs *referral.Service
}

// NewService creates a payment service from injected collaborators.
func NewService(repo Repository, subs *subscription.Service, refs *referral.Service) *Service {
	return &Service{repo: repo, subs: subs, refs: refs}
}

// NewServiceFromDB creates a payment service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db), subscription.NewServiceFromDB(db), referral.NewServiceFromDB(db))
}

// RecordWebhookEvent persists webhook payloads idempotently. Events without
// a provider event id are deduplicated by payload hash.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.PaymentWebhookEvent, error) {
	_ = ctx
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.PaymentWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	_ = ctx
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, errMsg)
}

// HandleWebhook is the full intake path: store the event, process it when it
// is new, and record the outcome. Duplicate deliveries return accepted=false
// without side effects.
func (s *Service) HandleWebhook(ctx context.Context, in WebhookEventInput) (bool, error) {
	created, stored, err := s.RecordWebhookEvent(ctx, in)
	if err != nil {
		return false, err
	}
	if !created {
		if !in.SignatureValid || stored.SignatureValid {
			return false, nil
		}
		// First delivery failed verification; a correctly signed retry of
		// the same event upgrades the stored row and gets processed.
		if err := s.repo.RevalidateWebhookEvent(stored.ID, in.PayloadJSON); err != nil {
			return false, err
		}
		stored.SignatureValid = true
		stored.PayloadJSON = in.PayloadJSON
		stored.ProcessedAt = nil
		stored.ProcessingError = ""
	}
	if !stored.SignatureValid {
		return false, s.MarkWebhookProcessed(ctx, stored.ID, errors.New("invalid signature"))
	}

	procErr := s.ProcessEvent(ctx, stored)
	if err := s.MarkWebhookProcessed(ctx, stored.ID, procErr); err != nil {
		return true, err
	}
	return true, procErr
}

// ProcessEvent applies a stored webhook event. Unknown event types are
// skipped, not failed, so new gateway events never block the queue.
func (s *Service) ProcessEvent(ctx context.Context, event *models.PaymentWebhookEvent) error {
	switch event.EventType {
	case EventCheckoutCompleted:
		var checkout NormalizedCheckout
		if err := json.Unmarshal([]byte(event.PayloadJSON), &checkout); err != nil {
			return fmt.Errorf("decode checkout payload: %w", err)
		}
		_, err := s.ApplyCheckout(ctx, event.Provider, checkout)
		return err
	case EventSubscriptionCancelled:
		var cancel NormalizedCancellation
		if err := json.Unmarshal([]byte(event.PayloadJSON), &cancel); err != nil {
			return fmt.Errorf("decode cancellation payload: %w", err)
		}
		if cancel.UserID == 0 {
			return errors.New("cancellation payload missing user_id")
		}
		_, err := s.subs.CancelAtPeriodEnd(ctx, cancel.UserID, cancel.Reason)
		if errors.Is(err, subscription.ErrNoActiveSubscription) {
			return nil
		}
		return err
	default:
		return nil
	}
}

// ApplyCheckout activates the paid tier and credits the referrer when the
// checkout carried a referral code. The referral credit is best effort: a
// bad code never fails an otherwise valid activation.
func (s *Service) ApplyCheckout(ctx context.Context, provider string, in NormalizedCheckout) (*models.Subscription, error) {
	if in.UserID == 0 {
		return nil, errors.New("checkout payload missing user_id")
	}
	if strings.TrimSpace(in.Tier) == "" {
		return nil, errors.New("checkout payload missing tier")
	}

	sub, err := s.subs.ActivateTier(ctx, in.UserID, in.Tier, subscription.Activation{
		BillingCycle:        in.BillingCycle,
		IsRecurring:         in.IsRecurring,
		PaymentProvider:     strings.ToLower(strings.TrimSpace(provider)),
		SubscriptionEndDate: in.SubscriptionEndDate,
		GradeID:             in.GradeID,
		SubjectIDs:          in.SubjectIDs,
	})
	if err != nil {
		return nil, err
	}

	if code := strings.TrimSpace(in.ReferralCode); code != "" {
		if _, err := s.refs.CreditReferral(ctx, code, in.UserID, &sub.Tier); err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return sub, err
			}
		}
	}
	return sub, nil
}

// ReplayUnprocessed re-runs stored signature-valid events that never got a
// processing outcome, usually after a crash mid intake.
func (s *Service) ReplayUnprocessed(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	events, err := s.repo.ListUnprocessed(limit)
	if err != nil {
		return 0, err
	}
	processed := 0
	for i := range events {
		event := &events[i]
		procErr := s.ProcessEvent(ctx, event)
		if err := s.MarkWebhookProcessed(ctx, event.ID, procErr); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}
