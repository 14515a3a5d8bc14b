package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/phonewallet/internal/identity"
)

const rateLimitPrefix = "rl:phone:"

// PhoneRateLimit caps requests per phone number per minute using a fixed
// Redis window. Requests without a parseable phone are keyed by client IP.
// Without Redis, or when Redis fails, requests pass through.
func PhoneRateLimit(cache *redis.Client, maxPerMin int, logger *slog.Logger) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 10
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		var req struct {
			Phone string `json:"phone"`
		}
		_ = c.BodyParser(&req)
		subject, err := identity.Canonicalize(req.Phone)
		if err != nil {
			subject = "ip:" + c.IP()
		}
		key := rateLimitPrefix + strings.TrimPrefix(c.Route().Path, "/") + ":" + subject

		ctx := c.UserContext()
		cnt, err := cache.Incr(ctx, key).Result()
		if err != nil {
			if logger != nil {
				logger.Warn("rate limit lookup failed", slog.String("key", key), slog.Any("error", err))
			}
			return c.Next()
		}
		if cnt == 1 {
			cache.Expire(ctx, key, time.Minute)
		}
		if cnt > int64(maxPerMin) {
			c.Set(fiber.HeaderRetryAfter, "60")
			return fiber.NewError(http.StatusTooManyRequests, "too many requests for this phone, try again later")
		}
		return c.Next()
	}
}
