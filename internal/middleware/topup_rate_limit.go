package middleware

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// TopUpRateLimit caps top-up attempts per user per minute using Redis if
// available. Retries of the same logical request are already deduplicated by
// the idempotency key, so the cap only guards against runaway clients.
func TopUpRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 30
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next() // no-op without Redis
		}
		subject := c.Params("userId")
		if subject == "" {
			subject = c.IP()
		}
		key := "rl:topup:" + subject
		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err != nil {
			return c.Next() // fail-open on cache errors
		}
		if cnt == 1 {
			cache.Expire(c.UserContext(), key, time.Minute)
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many top-up attempts, try again later")
		}
		return c.Next()
	}
}
