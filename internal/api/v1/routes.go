package apiv1

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/StudyFox/internal/pkg/middleware"
)

// RegisterHandlers attaches all v1 routes to the given router group. API key
// auth protects everything except ping, the tier catalog, referral signup
// and the signature-checked payment webhook.
func RegisterHandlers(router fiber.Router, si *APIServer) {
	router.Get("/ping", si.GetPing)
	router.Get("/tiers", si.GetTiers)
	router.Post("/referral/signup", si.PostReferralSignup)
	router.Post("/webhooks/payment/:provider", func(c *fiber.Ctx) error {
		return si.PostPaymentWebhook(c, c.Params("provider"))
	})

	authed := router.Group("", middleware.APIKeyAuthMiddleware())

	authed.Get("/user/profile", si.GetUserProfile)

	authed.Get("/subscription", si.GetSubscription)
	authed.Get("/subscription/history", si.GetSubscriptionHistory)
	authed.Post("/subscription/cancel", si.PostSubscriptionCancel)
	authed.Post("/subscription/reactivate", si.PostSubscriptionReactivate)
	authed.Put("/subscription/selections", si.PutSubscriptionSelections)

	authed.Get("/usage", si.GetUsage)
	authed.Post("/usage/tokens", si.PostUsageTokens)
	authed.Post("/usage/papers/:paperID", func(c *fiber.Ctx) error {
		return si.PostUsagePaper(c, c.Params("paperID"))
	})

	authed.Get("/study-plans/quota", si.GetStudyPlanQuota)
	authed.Post("/study-plans", si.PostStudyPlans)

	authed.Get("/referral", si.GetReferral)
	authed.Get("/referral/transactions", si.GetReferralTransactions)
	authed.Post("/referral/redeem", si.PostReferralRedeem)
	authed.Post("/referral/redeem/finalize", si.PostReferralFinalize)
}
