package middleware

import (
	"mci-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

const userLocal = "user"

// RequireAuth ensures a user is in the session. Returns 401 with the
// standard error format if not.
func RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := GetSessionUser(c)
		if user == nil {
			return response.Unauthorized(c, "Unauthorized")
		}
		c.Locals("auth", user)
		return c.Next()
	}
}

// GetUser returns the raw session user from Locals (nil if not logged in).
func GetUser(c *fiber.Ctx) interface{} {
	return c.Locals(userLocal)
}
