package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/exam-prep-api/database"
	"github.com/sahilchouksey/exam-prep-api/utils/response"
)

// HandleCheckHealth reports liveness
func HandleCheckHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// HandleReadiness reports whether the database is reachable
func HandleReadiness(store database.Storage) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := store.HealthCheck(ctx); err != nil {
			return response.ServiceUnavailable(c, "Database unavailable")
		}
		return c.JSON(fiber.Map{"status": "ok", "database": "ok"})
	}
}
