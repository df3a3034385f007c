package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to existing controllers to keep behavior consistent
	"github.com/ManuelReschke/StudyFox/app/controllers"
)

// Pong is the health check response body.
type Pong struct {
	Ping string `json:"ping"`
}

// APIServer implements the ServerInterface
type APIServer struct{}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// GetUserProfile returns account information for the authenticated user (API key).
// Security is enforced via API key middleware attached in the router.
func (s *APIServer) GetUserProfile(c *fiber.Ctx) error {
	return controllers.HandleGetUserAccount(c)
}

// GetSubscription returns the caller's active subscription with entitlements.
func (s *APIServer) GetSubscription(c *fiber.Ctx) error {
	return controllers.HandleGetSubscription(c)
}

// GetSubscriptionHistory lists the caller's full subscription history.
func (s *APIServer) GetSubscriptionHistory(c *fiber.Ctx) error {
	return controllers.HandleGetSubscriptionHistory(c)
}

// PostSubscriptionCancel flags the subscription to lapse at period end.
func (s *APIServer) PostSubscriptionCancel(c *fiber.Ctx) error {
	return controllers.HandleCancelSubscription(c)
}

// PostSubscriptionReactivate clears a pending cancellation.
func (s *APIServer) PostSubscriptionReactivate(c *fiber.Ctx) error {
	return controllers.HandleReactivateSubscription(c)
}

// PutSubscriptionSelections replaces the grade/subject selection.
func (s *APIServer) PutSubscriptionSelections(c *fiber.Ctx) error {
	return controllers.HandleUpdateSelections(c)
}

// GetTiers returns the tier catalog. Public, no API key required.
func (s *APIServer) GetTiers(c *fiber.Ctx) error {
	return controllers.HandleListTiers(c)
}

// GetUsage returns the caller's consolidated usage summary.
func (s *APIServer) GetUsage(c *fiber.Ctx) error {
	return controllers.HandleGetUsage(c)
}

// PostUsageTokens meters token consumption.
func (s *APIServer) PostUsageTokens(c *fiber.Ctx) error {
	return controllers.HandleChargeTokens(c)
}

// PostUsagePaper counts a paper access.
func (s *APIServer) PostUsagePaper(c *fiber.Ctx, paperID string) error {
	// Controller reads paperID from route params; wrapper already set it.
	return controllers.HandleRecordPaperAccess(c)
}

// GetStudyPlanQuota reports remaining study plan slots.
func (s *APIServer) GetStudyPlanQuota(c *fiber.Ctx) error {
	return controllers.HandleGetStudyPlanQuota(c)
}

// PostStudyPlans creates a study plan against the lifetime quota.
func (s *APIServer) PostStudyPlans(c *fiber.Ctx) error {
	return controllers.HandleCreateStudyPlan(c)
}

// GetReferral returns the caller's points balance and referral code.
func (s *APIServer) GetReferral(c *fiber.Ctx) error {
	return controllers.HandleGetReferralBalance(c)
}

// GetReferralTransactions returns the caller's points ledger.
func (s *APIServer) GetReferralTransactions(c *fiber.Ctx) error {
	return controllers.HandleListReferralTransactions(c)
}

// PostReferralRedeem spends points on a tier.
func (s *APIServer) PostReferralRedeem(c *fiber.Ctx) error {
	return controllers.HandleRedeemTier(c)
}

// PostReferralFinalize completes a pending redemption.
func (s *APIServer) PostReferralFinalize(c *fiber.Ctx) error {
	return controllers.HandleFinalizeRedemption(c)
}

// PostReferralSignup records a signup attributed to a referral code.
func (s *APIServer) PostReferralSignup(c *fiber.Ctx) error {
	return controllers.HandleReferralSignup(c)
}

// PostPaymentWebhook ingests a payment-gateway callback. Authenticated by
// HMAC signature, not by API key.
func (s *APIServer) PostPaymentWebhook(c *fiber.Ctx, provider string) error {
	// Controller reads provider from route params; wrapper already set it.
	return controllers.HandlePaymentWebhook(c)
}
