package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/StudyFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/StudyFox/internal/pkg/usercontext"
)

type chargeTokensRequest struct {
	Amount int64 `json:"amount"`
}

// HandleChargeTokens meters token consumption against the current period.
// Privileged accounts (token bypass) are metered but never rejected.
func HandleChargeTokens(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	var req chargeTokensRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid JSON body")
	}
	if req.Amount < 0 {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "amount must not be negative")
	}
	result, err := quotaService.ChargeTokens(c.Context(), userCtx.UserID, req.Amount, userCtx.TokenBypass)
	if err != nil {
		return respondDomainError(c, err)
	}
	return c.JSON(result)
}

// HandleRecordPaperAccess counts the first open of a paper this period.
// Reopening an already counted paper is free.
func HandleRecordPaperAccess(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	paperID := c.Params("paperID")
	result, err := quotaService.RecordPaperAccess(c.Context(), userCtx.UserID, paperID)
	if err != nil {
		return respondDomainError(c, err)
	}
	return c.JSON(result)
}

// HandleGetUsage returns the caller's consolidated usage and limits for the
// current period.
func HandleGetUsage(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	sub, err := subscriptionService.EnsureSubscription(c.Context(), userCtx.UserID)
	if err != nil {
		return respondDomainError(c, err)
	}
	res := entitlements.Resolve(&sub.Tier, sub)
	return c.JSON(fiber.Map{
		"period_start_date": sub.PeriodStartDate.UTC(),
		"period_end_date":   sub.PeriodEndDate.UTC(),
		"token_bypass":      userCtx.TokenBypass,
		"entitlements":      res,
	})
}

// HandleGetStudyPlanQuota reports how many study plans the user may still
// create. Informational; creation re-checks inside its transaction.
func HandleGetStudyPlanQuota(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	q, err := quotaService.CheckStudyPlanQuota(c.Context(), userCtx.UserID)
	if err != nil {
		return respondDomainError(c, err)
	}
	return c.JSON(q)
}

type createStudyPlanRequest struct {
	SubjectID uint   `json:"subject_id"`
	GradeID   uint   `json:"grade_id"`
	Title     string `json:"title"`
}

// HandleCreateStudyPlan creates a study plan, counting it against the
// lifetime quota. Deactivating a plan later does not refund the slot.
func HandleCreateStudyPlan(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	var req createStudyPlanRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid JSON body")
	}
	if req.SubjectID == 0 || req.GradeID == 0 {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "subject_id and grade_id are required")
	}
	plan, err := quotaService.CreateStudyPlan(c.Context(), userCtx.UserID, req.SubjectID, req.GradeID, req.Title)
	if err != nil {
		return respondDomainError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(plan)
}
