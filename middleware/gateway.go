package middleware

import (
	"log"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ServiceTokenMiddleware validates the Bearer token on admin routes.
func ServiceTokenMiddleware() fiber.Handler {
	expectedToken := os.Getenv("GAME_SERVICE_TOKEN")

	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			log.Printf("🚫 [ADMIN_AUTH] Missing Authorization header for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "service token missing",
			})
		}

		// Accept "Bearer <token>" or the raw token value.
		token := strings.TrimPrefix(authHeader, "Bearer ")

		if expectedToken == "" || token != expectedToken {
			log.Printf("❌ [ADMIN_AUTH] Invalid token for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid service token",
			})
		}

		return c.Next()
	}
}
