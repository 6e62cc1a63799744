package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"gympulse/utils"
)

// RunRateLimiter caps on-demand cycle runs per gym and endpoint. storage may
// be nil for in-memory counting.
func RunRateLimiter(max int, storage fiber.Storage) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			gymID, _ := c.Locals("gymID").(uint)
			return fmt.Sprintf("rl:run:%d:%s", gymID, c.Path())
		},
		LimitReached: func(c *fiber.Ctx) error {
			gymID, _ := c.Locals("gymID").(uint)
			utils.LogEvent("rate_limit_hit", map[string]interface{}{
				"gym_id":     gymID,
				"endpoint":   c.Path(),
				"ip":         c.IP(),
				"user_agent": c.Get("User-Agent"),
			})

			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many run requests. Please wait before running again.",
				"retry_after": "1 minute",
			})
		},
		Storage: storage,
	})
}
