package middleware

import (
	"realty-messenger/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Enforcer is satisfied by *casbin.SyncedEnforcer. Policies are loaded at
// startup and refreshed by a scheduled job, never per request.
type Enforcer interface {
	Enforce(rvals ...interface{}) (bool, error)
}

// RBAC checks the token's role against the casbin policy for the request path.
func RBAC(enforcer Enforcer, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := utils.Metadata(c)
		if err != nil {
			return invalidToken(c)
		}

		accepted, err := enforcer.Enforce(claims.Role, c.Path(), c.Method())
		if err != nil {
			log.Error("enforcing casbin policy", zap.Error(err), zap.String("role", claims.Role))
			return reject(c, fiber.StatusInternalServerError, "Internal server error")
		}
		if !accepted {
			return reject(c, fiber.StatusForbidden, "Unauthorized")
		}

		return c.Next()
	}
}
