package middleware

import "github.com/gofiber/fiber/v2"

// reject ends the request with the API's error envelope.
func reject(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"status":  "error",
		"message": message,
		"data":    nil,
	})
}

func invalidToken(c *fiber.Ctx) error {
	return reject(c, fiber.StatusUnauthorized, "Invalid or expired JWT")
}
