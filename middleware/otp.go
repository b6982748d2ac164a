package middleware

import (
	"realty-messenger/utils"

	"github.com/gofiber/fiber/v2"
)

// OTP rejects tokens issued before the second factor was validated.
func OTP() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := utils.Metadata(c)
		if err != nil {
			return invalidToken(c)
		}
		if claims.Otp {
			return reject(c, fiber.StatusBadRequest, "2FA required")
		}
		return c.Next()
	}
}
