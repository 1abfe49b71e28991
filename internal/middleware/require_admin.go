package middleware

import (
	"mci-backend/internal/application/session"
	"mci-backend/internal/domain"
	"mci-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// RequireAdmin gates a route on the resolved profile role. It resolves
// through the session resolver so a fresh sign-in that has not been resolved
// yet still gets the bounded-retry lookup rather than a flat denial.
func RequireAdmin(resolver *session.Resolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := GetSessionUser(c)
		if user == nil {
			return response.Unauthorized(c, "Unauthorized")
		}
		state := resolver.Resolve(c.Context(), domain.Identity{ID: user.IdentityID, Email: user.Email, Confirmed: true})
		if !state.IsAdmin() {
			return response.Error(c, "User is Forbidden from performing this action", fiber.StatusForbidden, nil)
		}
		return c.Next()
	}
}
