package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/StudyFox/app/models"
	"github.com/ManuelReschke/StudyFox/app/repository"
	"github.com/ManuelReschke/StudyFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/StudyFox/internal/pkg/usercontext"
)

// HandleGetSubscription returns the caller's active subscription with its
// resolved entitlements. A free-tier subscription is provisioned on first
// call when the user has none.
func HandleGetSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	sub, err := subscriptionService.EnsureSubscription(c.Context(), userCtx.UserID)
	if err != nil {
		return respondDomainError(c, err)
	}
	return c.JSON(subscriptionResponse(sub))
}

// HandleListTiers returns the tier catalog.
func HandleListTiers(c *fiber.Ctx) error {
	tiers, err := repository.GetGlobalFactory().GetTierRepository().List()
	if err != nil {
		return respondDomainError(c, err)
	}
	return c.JSON(fiber.Map{"tiers": tiers})
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// HandleCancelSubscription flags the active subscription to lapse at the end
// of the current period. Entitlements stay live until then.
func HandleCancelSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	var req cancelRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid JSON body")
	}
	sub, err := subscriptionService.CancelAtPeriodEnd(c.Context(), userCtx.UserID, req.Reason)
	if err != nil {
		return respondDomainError(c, err)
	}
	return c.JSON(subscriptionResponse(sub))
}

// HandleReactivateSubscription clears a pending cancellation.
func HandleReactivateSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	sub, err := subscriptionService.Reactivate(c.Context(), userCtx.UserID)
	if err != nil {
		return respondDomainError(c, err)
	}
	return c.JSON(subscriptionResponse(sub))
}

type selectionRequest struct {
	GradeID    *uint  `json:"grade_id"`
	SubjectIDs []uint `json:"subject_ids"`
}

// HandleUpdateSelections replaces the grade/subject selection on the active
// subscription, enforcing the tier's selection rights and subject cap.
func HandleUpdateSelections(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	var req selectionRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid JSON body")
	}
	sub, err := subscriptionService.UpdateSelections(c.Context(), userCtx.UserID, req.GradeID, req.SubjectIDs)
	if err != nil {
		return respondDomainError(c, err)
	}
	return c.JSON(subscriptionResponse(sub))
}

// HandleGetSubscriptionHistory lists every subscription the user ever held,
// newest first.
func HandleGetSubscriptionHistory(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	subs, err := subscriptionService.History(c.Context(), userCtx.UserID)
	if err != nil {
		return respondDomainError(c, err)
	}
	items := make([]fiber.Map, 0, len(subs))
	for i := range subs {
		items = append(items, subscriptionResponse(&subs[i]))
	}
	return c.JSON(fiber.Map{"subscriptions": items})
}

func subscriptionResponse(sub *models.Subscription) fiber.Map {
	res := entitlements.Resolve(&sub.Tier, sub)
	return fiber.Map{
		"id":                    sub.ID,
		"status":                sub.Status,
		"tier":                  sub.Tier.Name,
		"billing_cycle":         sub.BillingCycle,
		"is_recurring":          sub.IsRecurring,
		"payment_provider":      sub.PaymentProvider,
		"period_start_date":     sub.PeriodStartDate.UTC(),
		"period_end_date":       sub.PeriodEndDate.UTC(),
		"cancel_at_period_end":  sub.CancelAtPeriodEnd,
		"cancel_reason":         sub.CancelReason,
		"end_date":              formatTimePtr(sub.EndDate),
		"subscription_end_date": formatTimePtr(sub.SubscriptionEndDate),
		"selected_grade_id":     sub.SelectedGradeID,
		"selected_subject_ids":  sub.SubjectIDs(),
		"entitlements":          res,
	}
}
