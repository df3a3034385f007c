package controllers

import (
	"encoding/json"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/StudyFox/internal/pkg/env"
	"github.com/ManuelReschke/StudyFox/internal/pkg/payment"
)

// HandlePaymentWebhook ingests payment-gateway callbacks. Every delivery is
// stored for audit; only signature-valid, first-seen events are processed.
// The gateway always gets a 200 for stored events so it stops retrying.
func HandlePaymentWebhook(c *fiber.Ctx) error {
	provider := strings.ToLower(strings.TrimSpace(c.Params("provider")))
	if provider == "" {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "provider is required")
	}

	body := c.Body()
	secret := env.GetEnv("PAYMENT_WEBHOOK_SECRET", "")
	signatureValid := payment.VerifyWebhookSignature(body, c.Get("X-Webhook-Signature"), secret)

	eventID := strings.TrimSpace(c.Get("X-Webhook-Event-Id"))
	eventType := strings.TrimSpace(c.Get("X-Webhook-Event-Type"))
	if eventID == "" || eventType == "" {
		var envelope struct {
			EventID   string `json:"event_id"`
			EventType string `json:"event_type"`
		}
		if err := json.Unmarshal(body, &envelope); err == nil {
			if eventID == "" {
				eventID = envelope.EventID
			}
			if eventType == "" {
				eventType = envelope.EventType
			}
		}
	}

	accepted, err := paymentService.HandleWebhook(c.Context(), payment.WebhookEventInput{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       eventType,
		PayloadJSON:     string(body),
		SignatureValid:  signatureValid,
	})
	if err != nil {
		log.Printf("payment webhook %s/%s failed: %v", provider, eventID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Webhook processing failed")
	}

	if !signatureValid {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Invalid webhook signature")
	}
	return c.JSON(fiber.Map{"accepted": accepted})
}
