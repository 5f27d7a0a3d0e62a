package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyPrefix    = "idempotency:v1:"
	redisOpTimeout       = 2 * time.Second
)

type storedResponse struct {
	Status int    `json:"status"`
	Body   string `json:"body"`
}

// IdempotencyReplay short-circuits retried unsafe requests by replaying the
// previously completed response from Redis, keyed by the Idempotency-Key
// header. It is purely a replay optimization: requests without the header
// pass through, failures are never cached, and the unique idempotency key in
// the transaction store remains the mechanism that guarantees exactly-once
// application.
func IdempotencyReplay(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch strings.ToUpper(c.Method()) {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		key := c.Get(idempotencyKeyHeader)
		if key == "" {
			return c.Next()
		}

		cacheKey := idempotencyPrefix + c.Path() + ":" + key

		ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
		defer cancel()

		cached, err := cache.Get(ctx, cacheKey).Result()
		if err == nil {
			var stored storedResponse
			if jerr := json.Unmarshal([]byte(cached), &stored); jerr == nil {
				c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
				return c.Status(stored.Status).SendString(stored.Body)
			}
			logger.Warn("discarding undecodable replay entry", slog.String("key", key))
		} else if !errors.Is(err, redis.Nil) {
			// fail open: the transaction store still dedups
			logger.Warn("idempotency replay lookup failed", slog.String("key", key), slog.Any("error", err))
		}

		if err := c.Next(); err != nil {
			return err
		}

		status := c.Response().StatusCode()
		if status < 200 || status >= 300 {
			return nil
		}

		payload, err := json.Marshal(storedResponse{Status: status, Body: string(c.Response().Body())})
		if err != nil {
			logger.Warn("failed to encode replay entry", slog.String("key", key), slog.Any("error", err))
			return nil
		}

		persistCtx, persistCancel := context.WithTimeout(context.Background(), redisOpTimeout)
		defer persistCancel()
		if err := cache.Set(persistCtx, cacheKey, payload, ttl).Err(); err != nil {
			logger.Warn("failed to persist replay entry", slog.String("key", key), slog.Any("error", err))
		}

		return nil
	}
}
