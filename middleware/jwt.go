package middleware

import (
	"errors"

	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
)

// JWT verifies the HS512 bearer token and stores it under c.Locals("user").
// A missing header is a client error; a bad signature or expiry is 401.
func JWT(key string) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey: jwtware.SigningKey{
			JWTAlg: "HS512",
			Key:    []byte(key),
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if errors.Is(err, jwtware.ErrJWTMissingOrMalformed) {
				return reject(c, fiber.StatusBadRequest, "Missing or malformed JWT")
			}
			return invalidToken(c)
		},
	})
}
