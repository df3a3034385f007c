package controllers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/ManuelReschke/StudyFox/app/models"
	"github.com/ManuelReschke/StudyFox/app/repository"
	"github.com/ManuelReschke/StudyFox/internal/pkg/usercontext"
)

// HandleAdminListUsers returns a paginated user list, optionally filtered by
// a name/email search query.
func HandleAdminListUsers(c *fiber.Ctx) error {
	repo := repository.GetGlobalFactory().GetUserRepository()

	if query := c.Query("q"); query != "" {
		users, err := repo.Search(query)
		if err != nil {
			return respondDomainError(c, err)
		}
		return c.JSON(fiber.Map{"users": users})
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	if limit < 1 || limit > 200 {
		limit = 50
	}
	users, err := repo.List((page-1)*limit, limit)
	if err != nil {
		return respondDomainError(c, err)
	}
	total, err := repo.Count()
	if err != nil {
		return respondDomainError(c, err)
	}
	return c.JSON(fiber.Map{"users": users, "total": total, "page": page, "limit": limit})
}

type createUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Admin    bool   `json:"admin"`
}

// HandleAdminCreateUser provisions a user account. API keys are issued
// separately so the raw secret only ever travels through the key endpoint.
func HandleAdminCreateUser(c *fiber.Ctx) error {
	var req createUserRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid JSON body")
	}
	user, err := models.CreateUser(req.Name, req.Email, req.Password)
	if err != nil {
		return jsonError(c, fiber.StatusUnprocessableEntity, "invalid_input", err.Error())
	}
	if req.Admin {
		user.Role = models.ROLE_ADMIN
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	if _, err := repo.GetByEmail(user.Email); err == nil {
		return jsonError(c, fiber.StatusConflict, "email_taken", "A user with this email already exists")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return respondDomainError(c, err)
	}
	if err := repo.Create(user); err != nil {
		return respondDomainError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(user)
}

// HandleAdminDeleteUser soft deletes a user account. Their API key stops
// resolving immediately; subscription rows stay for the books.
func HandleAdminDeleteUser(c *fiber.Ctx) error {
	userID, err := paramUint(c, "id")
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid user id")
	}
	repo := repository.GetGlobalFactory().GetUserRepository()
	if _, err := repo.GetByID(userID); err != nil {
		return respondDomainError(c, err)
	}
	if err := repo.Delete(userID); err != nil {
		return respondDomainError(c, err)
	}
	return c.JSON(fiber.Map{"deleted": userID})
}

// HandleAdminInspectRateLimit shows the current counter and remaining TTL of
// a single limiter key, for support diagnosis before a purge.
func HandleAdminInspectRateLimit(c *fiber.Ctx) error {
	key := c.Query("key")
	if key == "" {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "key is required")
	}
	cacheRepo := repository.GetGlobalFactory().GetCacheRepository()
	value, err := cacheRepo.GetValue(key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "No such rate limit key")
		}
		return respondDomainError(c, err)
	}
	ttl, err := cacheRepo.GetTTL(key)
	if err != nil {
		return respondDomainError(c, err)
	}
	return c.JSON(fiber.Map{"key": key, "value": value, "ttl_seconds": int64(ttl.Seconds())})
}

// HandleAdminGetUserSubscriptions returns the full subscription history for a
// user, newest first.
func HandleAdminGetUserSubscriptions(c *fiber.Ctx) error {
	userID, err := paramUint(c, "id")
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid user id")
	}
	subs, err := subscriptionService.History(c.Context(), userID)
	if err != nil {
		return respondDomainError(c, err)
	}
	items := make([]fiber.Map, 0, len(subs))
	for i := range subs {
		items = append(items, subscriptionResponse(&subs[i]))
	}
	return c.JSON(fiber.Map{"user_id": userID, "subscriptions": items})
}

type tokenOverrideRequest struct {
	TokenLimitOverride *int64 `json:"token_limit_override"`
}

// HandleAdminGrantTokenOverride sets or clears the token ceiling override on
// a user's active subscription. Anything above the tier's base limit acts as
// carryover for the running period.
func HandleAdminGrantTokenOverride(c *fiber.Ctx) error {
	userID, err := paramUint(c, "id")
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid user id")
	}
	var req tokenOverrideRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid JSON body")
	}
	if req.TokenLimitOverride != nil && *req.TokenLimitOverride < 0 {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "token_limit_override must not be negative")
	}
	sub, err := subscriptionService.GrantTokenOverride(c.Context(), userID, req.TokenLimitOverride)
	if err != nil {
		return respondDomainError(c, err)
	}
	return c.JSON(subscriptionResponse(sub))
}

type tokenBypassRequest struct {
	TokenBypass bool `json:"token_bypass"`
}

// HandleAdminSetTokenBypass toggles the metered-but-never-blocked flag on a
// user account.
func HandleAdminSetTokenBypass(c *fiber.Ctx) error {
	userID, err := paramUint(c, "id")
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid user id")
	}
	var req tokenBypassRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid JSON body")
	}
	repo := repository.GetGlobalFactory().GetUserRepository()
	user, err := repo.GetByID(userID)
	if err != nil {
		return respondDomainError(c, err)
	}
	user.TokenBypass = req.TokenBypass
	if err := repo.Update(user); err != nil {
		return respondDomainError(c, err)
	}
	return c.JSON(fiber.Map{"user_id": user.ID, "token_bypass": user.TokenBypass})
}

// HandleAdminIssueAPIKey issues a fresh API key for a user; the raw secret
// is only ever returned here.
func HandleAdminIssueAPIKey(c *fiber.Ctx) error {
	userID, err := paramUint(c, "id")
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid user id")
	}
	repo := repository.GetGlobalFactory().GetUserRepository()
	user, err := repo.GetByID(userID)
	if err != nil {
		return respondDomainError(c, err)
	}
	rawKey, err := user.IssueAPIKey()
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to generate API key")
	}
	if err := repo.Update(user); err != nil {
		return respondDomainError(c, err)
	}
	return c.JSON(fiber.Map{
		"user_id":    user.ID,
		"api_key":    rawKey,
		"prefix":     user.APIKeyPrefix,
		"created_at": formatTimePtr(user.APIKeyCreatedAt),
	})
}

// HandleAdminRevokeAPIKey revokes a user's API key.
func HandleAdminRevokeAPIKey(c *fiber.Ctx) error {
	userID, err := paramUint(c, "id")
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid user id")
	}
	repo := repository.GetGlobalFactory().GetUserRepository()
	user, err := repo.GetByID(userID)
	if err != nil {
		return respondDomainError(c, err)
	}
	user.RevokeAPIKey()
	if err := repo.Update(user); err != nil {
		return respondDomainError(c, err)
	}
	return c.JSON(fiber.Map{"user_id": user.ID, "message": "API key revoked"})
}

// HandleAdminRollover runs one rollover sweep: renews due periods and
// retires subscriptions whose end conditions are met. Normally triggered by
// the external scheduler, exposed here for manual operation.
func HandleAdminRollover(c *fiber.Ctx) error {
	stats, err := subscriptionService.RolloverDue(c.Context(), time.Now())
	if err != nil {
		return respondDomainError(c, err)
	}
	return c.JSON(stats)
}

// HandleAdminReleaseReservations refunds all expired pending redemption
// reservations.
func HandleAdminReleaseReservations(c *fiber.Ctx) error {
	released, err := referralService.ReleaseExpiredReservations(c.Context(), time.Now())
	if err != nil {
		return respondDomainError(c, err)
	}
	return c.JSON(fiber.Map{"released": released})
}

// HandleAdminReplayWebhooks re-runs stored webhook events that never got a
// processing outcome.
func HandleAdminReplayWebhooks(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "100"))
	processed, err := paymentService.ReplayUnprocessed(c.Context(), limit)
	if err != nil {
		return respondDomainError(c, err)
	}
	return c.JSON(fiber.Map{"processed": processed})
}

// HandleAdminPurgeRateLimits deletes the caller-specified rate limiter keys
// from the cache, e.g. after unblocking a customer.
func HandleAdminPurgeRateLimits(c *fiber.Ctx) error {
	var req struct {
		Patterns []string `json:"patterns"`
	}
	if err := c.BodyParser(&req); err != nil || len(req.Patterns) == 0 {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "patterns are required")
	}
	cacheRepo := repository.GetGlobalFactory().GetCacheRepository()
	keys, err := cacheRepo.FindKeysByPatterns(req.Patterns)
	if err != nil {
		return respondDomainError(c, err)
	}
	deleted, err := cacheRepo.DeleteKeys(keys)
	if err != nil {
		return respondDomainError(c, err)
	}
	return c.JSON(fiber.Map{"deleted": deleted, "requested_by": usercontext.GetUsername(c)})
}

func paramUint(c *fiber.Ctx, name string) (uint, error) {
	v, err := strconv.ParseUint(c.Params(name), 10, 32)
	if err != nil || v == 0 {
		return 0, fiber.ErrBadRequest
	}
	return uint(v), nil
}
