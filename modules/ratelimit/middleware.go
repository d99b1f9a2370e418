package ratelimit

import (
	"fmt"
	"strconv"
	"time"

	"github.com/example/campusmesh-dm/modules/auth"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
)

// PerUser returns middleware that limits requests by the authenticated user.
// Requests without a user id pass through. Limiter failures let the request
// through and are logged.
func PerUser(limiter Limiter, limit int, logger types.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := c.Locals(auth.UserIDLocal).(string)
		if !ok || userID == "" {
			return c.Next()
		}

		result, err := limiter.Allow(c.UserContext(), userID)
		if err != nil {
			logger.Warn("Rate limiter unavailable", "userID", userID, "error", err)
			return c.Next()
		}

		setRateLimitHeaders(c, result, limit)
		if !result.Allowed {
			return sendRateLimitExceeded(c, result)
		}
		return c.Next()
	}
}

// RetryAfterSeconds rounds a wait up to whole seconds, at least one.
func RetryAfterSeconds(result *Result) int {
	retryAfter := int((result.RetryAfter + time.Second - 1) / time.Second)
	if retryAfter < 1 {
		retryAfter = 1
	}
	return retryAfter
}

func setRateLimitHeaders(c *fiber.Ctx, result *Result, limit int) {
	c.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	c.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func sendRateLimitExceeded(c *fiber.Ctx, result *Result) error {
	retryAfter := RetryAfterSeconds(result)
	c.Set("Retry-After", strconv.Itoa(retryAfter))

	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
		"error":       "Too Many Requests",
		"message":     fmt.Sprintf("Rate limit exceeded. Please retry after %d seconds.", retryAfter),
		"retry_after": retryAfter,
	})
}
