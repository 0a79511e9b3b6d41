package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// PrincipalKey is the fiber.Locals key holding the *domain.Principal.
const PrincipalKey = "principal"

// Middleware resolves the principal of an incoming upgrade request from a
// bearer header or a token query parameter (browsers cannot set headers on
// websocket upgrades).
// Without a token the request goes on anonymous. With a bad token it is
// rejected when required, otherwise treated as anonymous.
func Middleware(tokens TokenService, required bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := extractToken(c)
		if tokenStr == "" {
			if required {
				return fiber.ErrForbidden
			}
			return c.Next()
		}

		principal, err := tokens.ValidateToken(tokenStr)
		if err != nil {
			if required {
				return fiber.ErrForbidden
			}
			return c.Next()
		}
		c.Locals(PrincipalKey, principal)
		return c.Next()
	}
}

func extractToken(c *fiber.Ctx) string {
	if header := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("token")
}
