package handlers

import (
	"log"
	"os"
	"time"

	"cyber-duel-server/middleware"
	"cyber-duel-server/services"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

var startedAt = time.Now()

// SetupRoutes wires the websocket endpoint, the health probe, and the
// token-guarded admin surface.
func SetupRoutes(app *fiber.App, ws *WSHandler, store *services.SessionStore) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":        "ok",
			"uptime_sec":    int(time.Since(startedAt).Seconds()),
			"live_sessions": store.Len(),
		})
	})

	// Plain HTTP requests on the ws path get a 426 instead of a hang.
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/:sessionId", websocket.New(ws.Handle))

	if os.Getenv("GAME_SERVICE_TOKEN") == "" {
		log.Println("⚠️  GAME_SERVICE_TOKEN not set — admin routes disabled")
		return
	}
	admin := app.Group("/admin", middleware.ServiceTokenMiddleware())
	admin.Get("/sessions", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"sessions": store.Stats()})
	})
}
