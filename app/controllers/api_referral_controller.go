package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/StudyFox/internal/pkg/usercontext"
)

// HandleGetReferralBalance returns the caller's points account including
// their shareable referral code.
func HandleGetReferralBalance(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	balance, err := referralService.Balance(c.Context(), userCtx.UserID)
	if err != nil {
		return respondDomainError(c, err)
	}
	return c.JSON(balance)
}

// HandleListReferralTransactions returns the caller's points ledger.
func HandleListReferralTransactions(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	txns, err := referralService.Transactions(c.Context(), userCtx.UserID)
	if err != nil {
		return respondDomainError(c, err)
	}
	return c.JSON(fiber.Map{"transactions": txns})
}

type redeemRequest struct {
	TierID uint `json:"tier_id"`
}

// HandleRedeemTier spends points on a tier. Tiers needing a grade/subject
// choice come back as a pending reservation to finalize within its TTL.
func HandleRedeemTier(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	var req redeemRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid JSON body")
	}
	if req.TierID == 0 {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "tier_id is required")
	}
	result, err := referralService.Redeem(c.Context(), userCtx.UserID, req.TierID)
	if err != nil {
		return respondDomainError(c, err)
	}
	return c.JSON(result)
}

type finalizeRedemptionRequest struct {
	GradeID    *uint  `json:"grade_id"`
	SubjectIDs []uint `json:"subject_ids"`
}

// HandleFinalizeRedemption completes a pending redemption with the user's
// grade/subject selection.
func HandleFinalizeRedemption(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	var req finalizeRedemptionRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid JSON body")
	}
	sub, err := referralService.FinalizeRedemption(c.Context(), userCtx.UserID, req.GradeID, req.SubjectIDs)
	if err != nil {
		return respondDomainError(c, err)
	}
	return c.JSON(subscriptionResponse(sub))
}

type referralSignupRequest struct {
	ReferralCode string `json:"referral_code"`
}

// HandleReferralSignup records that the caller signed up via a referral
// code. Points are only credited later on the first paid conversion.
func HandleReferralSignup(c *fiber.Ctx) error {
	var req referralSignupRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid JSON body")
	}
	if req.ReferralCode == "" {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "referral_code is required")
	}
	if err := referralService.RegisterSignup(c.Context(), req.ReferralCode); err != nil {
		return respondDomainError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Referral signup recorded"})
}
