package controllers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/ManuelReschke/StudyFox/internal/pkg/quota"
	"github.com/ManuelReschke/StudyFox/internal/pkg/referral"
	"github.com/ManuelReschke/StudyFox/internal/pkg/subscription"
)

func jsonError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
}

// respondDomainError maps service sentinel errors onto HTTP responses so
// every controller reports the same shape for the same failure.
func respondDomainError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, subscription.ErrNoActiveSubscription):
		return jsonError(c, fiber.StatusNotFound, "no_active_subscription", "No active subscription")
	case errors.Is(err, subscription.ErrUnknownTier):
		return jsonError(c, fiber.StatusNotFound, "unknown_tier", "Tier does not exist")
	case errors.Is(err, subscription.ErrInvalidSelection):
		return jsonError(c, fiber.StatusUnprocessableEntity, "invalid_selection", err.Error())
	case errors.Is(err, subscription.ErrNotPendingCancellation):
		return jsonError(c, fiber.StatusConflict, "not_pending_cancellation", "Subscription is not pending cancellation")
	case errors.Is(err, subscription.ErrConcurrentModification):
		return jsonError(c, fiber.StatusConflict, "concurrent_modification", "Subscription changed concurrently, retry")
	case errors.Is(err, quota.ErrQuotaExceeded):
		return jsonError(c, fiber.StatusTooManyRequests, "quota_exceeded", "Quota for the current period is exhausted")
	case errors.Is(err, quota.ErrStudyPlanNotPermitted):
		return jsonError(c, fiber.StatusForbidden, "study_plan_not_permitted", "Current tier does not include study plans")
	case errors.Is(err, referral.ErrInsufficientPoints):
		return jsonError(c, fiber.StatusUnprocessableEntity, "insufficient_points", "Not enough referral points")
	case errors.Is(err, referral.ErrTierNotRedeemable):
		return jsonError(c, fiber.StatusUnprocessableEntity, "tier_not_redeemable", "Tier cannot be redeemed with points")
	case errors.Is(err, referral.ErrNoPendingReservation):
		return jsonError(c, fiber.StatusNotFound, "no_pending_reservation", "No pending redemption to finalize")
	case errors.Is(err, referral.ErrReservationExpired):
		return jsonError(c, fiber.StatusGone, "reservation_expired", "Redemption reservation expired, points refunded")
	case errors.Is(err, gorm.ErrRecordNotFound):
		return jsonError(c, fiber.StatusNotFound, "not_found", "Resource not found")
	default:
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Unexpected error")
	}
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// GetClientIP determines the actual client IP address considering proxies.
func GetClientIP(c *fiber.Ctx) string {
	if cfIP := strings.TrimSpace(c.Get("CF-Connecting-IP")); cfIP != "" {
		return cfIP
	}
	if xff := c.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 && strings.TrimSpace(parts[0]) != "" {
			return strings.TrimSpace(parts[0])
		}
	}
	if realIP := strings.TrimSpace(c.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	return c.IP()
}
