package controller

import (
	"github.com/gofiber/fiber/v2"
)

// gymID and userID are set by middleware.Protected.
func gymID(c *fiber.Ctx) uint {
	id, _ := c.Locals("gymID").(uint)
	return id
}

func userID(c *fiber.Ctx) uint {
	id, _ := c.Locals("userID").(uint)
	return id
}
