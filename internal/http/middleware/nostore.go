package middleware

import "github.com/gofiber/fiber/v2"

// NoStore marks responses as uncacheable. Responses under /functions carry
// presigned URLs that must not outlive their signature in a shared cache.
func NoStore() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		c.Set(fiber.HeaderCacheControl, "no-store")
		return err
	}
}
