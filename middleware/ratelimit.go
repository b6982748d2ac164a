package middleware

import (
	"strconv"

	"realty-messenger/ratelimit"
	"realty-messenger/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// RateLimit throttles a route per authenticated user. The limiter is
// advisory: when its backend fails the request goes through.
func RateLimit(limiter ratelimit.Limiter, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := utils.UserID(c)
		if err != nil {
			return invalidToken(c)
		}

		allowed, err := limiter.Allow(c.UserContext(), strconv.FormatUint(uint64(id), 10))
		if err != nil {
			log.Warn("rate limiter unavailable", zap.Error(err), zap.Uint("user_id", id))
			return c.Next()
		}

		if !allowed {
			return reject(c, fiber.StatusTooManyRequests, "Too many messages")
		}

		return c.Next()
	}
}
