package auth

import (
	"github.com/gofiber/fiber/v2"
)

// UserIDLocalKey is where the authenticated user id is stored in fiber locals.
const UserIDLocalKey = "user_id"

// Middleware rejects requests without a valid bearer token with 401 and an
// {"error": ...} body. On success the user id is available via UserID(c).
func Middleware(v *Verifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		uid, err := v.UserID(BearerToken(c.Get(fiber.HeaderAuthorization)))
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "unauthorized",
				"code":  "UNAUTHENTICATED",
			})
		}
		c.Locals(UserIDLocalKey, uid)
		return c.Next()
	}
}

// UserID returns the user id stored by Middleware, or "".
func UserID(c *fiber.Ctx) string {
	if s, ok := c.Locals(UserIDLocalKey).(string); ok {
		return s
	}
	return ""
}
