package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"gympulse/config"
	controller "gympulse/controllers"
	"gympulse/middleware"
	"gympulse/models"
	"gympulse/worker"
)

// Deps carries the long-lived services the HTTP layer hands to controllers.
type Deps struct {
	DB        *gorm.DB
	Runner    *worker.Runner
	Hub       *controller.AlertHub
	Logger    logrus.FieldLogger
	Config    config.Config
	RateStore fiber.Storage
}

func SetupAPIRoutes(app *fiber.App, d Deps) {
	retentionController := controller.NewRetentionController(d.DB, d.Runner, d.Logger.WithField("component", "retention"))
	automationController := controller.NewAutomationController(d.DB, d.Runner, d.Logger.WithField("component", "automation"))

	// API group with versioning and protection
	api := app.Group("/api/v1", middleware.Protected(d.DB, d.Config.JWTSecret), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	runLimit := middleware.RunRateLimiter(d.Config.RunRateLimitPerMinute, d.RateStore)
	managers := middleware.RequireRole(models.RoleOwner, models.RoleManager)

	// Retention routes
	retention := api.Group("/retention")
	retention.Post("/run", managers, runLimit, retentionController.RunRetention)

	alerts := api.Group("/risk-alerts")
	alerts.Post("/:id/resolve", retentionController.ResolveAlert)

	// Automation routes
	automations := api.Group("/automations")
	automations.Post("/run", managers, runLimit, automationController.RunAutomations)
	automations.Post("/seed-defaults", managers, automationController.SeedDefaults)
	automations.Get("/rules", automationController.ListRules)
	automations.Patch("/rules/:id", managers, automationController.UpdateRule)
}

func SetupWebSocketRoutes(app *fiber.App, d Deps) {
	ws := app.Group("/ws", middleware.Protected(d.DB, d.Config.JWTSecret))

	ws.Use("/alerts", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	ws.Get("/alerts", websocket.New(d.Hub.HandleAlertsWS))
}

// SetupRoutes configures all application routes
func SetupRoutes(app *fiber.App, d Deps) {
	SetupAPIRoutes(app, d)
	SetupWebSocketRoutes(app, d)
}
