package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/ManuelReschke/StudyFox/app/models"
	"github.com/ManuelReschke/StudyFox/app/repository"
	"github.com/ManuelReschke/StudyFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/StudyFox/internal/pkg/usercontext"
)

// HandleGetUserAccount returns account information for the authenticated user.
func HandleGetUserAccount(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing or invalid authentication")
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	account, err := repo.GetByID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "User not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load user")
	}

	sub, err := subscriptionService.EnsureSubscription(c.Context(), userCtx.UserID)
	if err != nil {
		return respondDomainError(c, err)
	}
	balance, err := referralService.Balance(c.Context(), userCtx.UserID)
	if err != nil {
		return respondDomainError(c, err)
	}

	res := entitlements.Resolve(&sub.Tier, sub)
	response := fiber.Map{
		"id":                   account.ID,
		"username":             account.Name,
		"email":                account.Email,
		"status":               account.Status,
		"tier":                 sub.Tier.Name,
		"is_admin":             account.Role == models.ROLE_ADMIN,
		"token_bypass":         account.TokenBypass,
		"created_at":           account.CreatedAt.UTC().Format(time.RFC3339),
		"last_login_at":        formatTimePtr(account.LastLoginAt),
		"api_key_last_used_at": formatTimePtr(account.APIKeyLastUsedAt),
		"subscription": fiber.Map{
			"status":               sub.Status,
			"billing_cycle":        sub.BillingCycle,
			"period_start_date":    sub.PeriodStartDate.UTC(),
			"period_end_date":      sub.PeriodEndDate.UTC(),
			"cancel_at_period_end": sub.CancelAtPeriodEnd,
		},
		"entitlements": res,
		"referral": fiber.Map{
			"code":                 balance.ReferralCode,
			"points_balance":       balance.PointsBalance,
			"total_referrals":      balance.TotalReferrals,
			"successful_referrals": balance.SuccessfulReferrals,
		},
	}

	return c.JSON(response)
}
