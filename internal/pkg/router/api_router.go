package router

import (
	apiv1 "github.com/ManuelReschke/StudyFox/internal/api/v1"
	"github.com/ManuelReschke/StudyFox/app/controllers"
	"github.com/ManuelReschke/StudyFox/internal/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:     120,
		Storage: NewRateLimitStorage(),
		KeyGenerator: func(c *fiber.Ctx) string {
			// Keyed by API key when present so NAT'd clients don't share a bucket.
			if key := c.Get("X-API-Key"); key != "" {
				return key
			}
			return controllers.GetClientIP(c)
		},
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1")
	apiServer := apiv1.NewAPIServer()
	apiv1.RegisterHandlers(v1, apiServer)

	// Admin routes: API key auth plus admin role.
	admin := v1.Group("/admin", middleware.APIKeyAuthMiddleware(), middleware.RequireAdminMiddleware())
	admin.Get("/users", controllers.HandleAdminListUsers)
	admin.Post("/users", controllers.HandleAdminCreateUser)
	admin.Delete("/users/:id", controllers.HandleAdminDeleteUser)
	admin.Get("/users/:id/subscriptions", controllers.HandleAdminGetUserSubscriptions)
	admin.Put("/users/:id/token-override", controllers.HandleAdminGrantTokenOverride)
	admin.Put("/users/:id/token-bypass", controllers.HandleAdminSetTokenBypass)
	admin.Post("/users/:id/api-key", controllers.HandleAdminIssueAPIKey)
	admin.Delete("/users/:id/api-key", controllers.HandleAdminRevokeAPIKey)
	admin.Post("/rollover", controllers.HandleAdminRollover)
	admin.Post("/reservations/release", controllers.HandleAdminReleaseReservations)
	admin.Post("/webhooks/replay", controllers.HandleAdminReplayWebhooks)
	admin.Get("/rate-limits/inspect", controllers.HandleAdminInspectRateLimit)
	admin.Post("/rate-limits/purge", controllers.HandleAdminPurgeRateLimits)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
