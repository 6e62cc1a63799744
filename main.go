package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"

	"gympulse/config"
	controller "gympulse/controllers"
	"gympulse/dispatch"
	"gympulse/middleware"
	"gympulse/routes"
	"gympulse/utils"
	"gympulse/worker"
)

func main() {
	// Load configuration
	if err := config.LoadConfig(); err != nil {
		utils.InitLogger("info", "text").Fatalf("Failed to load configuration: %v", err)
	}
	cfg := config.AppConfig

	logger := utils.InitLogger(cfg.LogLevel, cfg.LogFormat)

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Environment,
		}); err != nil {
			logger.WithError(err).Warn("Sentry initialization failed")
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Outbound channels and dispatchers
	channels := []dispatch.Channel{
		utils.NewSMTPChannel(cfg.SMTP),
		utils.NewWhatsAppChannel(cfg.WhatsApp),
	}
	dispatchers := dispatch.Dispatchers{
		Tasks: dispatch.NewTaskDispatcher(),
		Messages: dispatch.NewMessageDispatcher(logger.WithField("component", "dispatch"), channels,
			dispatch.WithRateLimit(cfg.MessageRateLimitPerHour),
			dispatch.WithCountryCode(cfg.WhatsApp.DefaultCountryCode),
		),
		Notifications: dispatch.NewNotificationDispatcher(),
	}

	hub := controller.NewAlertHub(logger.WithField("component", "alerts"))
	runnerOpts := []worker.RunnerOption{worker.WithPublisher(hub)}

	var rateStore fiber.Storage
	if cfg.Redis.Enabled {
		client := worker.NewRedisClient(cfg.Redis)
		if err := client.Ping(context.Background()).Err(); err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer client.Close()
		runnerOpts = append(runnerOpts, worker.WithLocker(worker.NewRedisLocker(client)))
		rateStore = middleware.NewRedisStorage(client)
	}

	runner := worker.NewRunner(config.DB, dispatchers, logger, runnerOpts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	riskWorker := worker.NewRiskWorker(config.DB, runner, cfg.RiskInterval, cfg.TenantConcurrency, logger.WithField("worker", "risk"))
	go riskWorker.Start(ctx)

	automationWorker := worker.NewAutomationWorker(config.DB, runner, cfg.AutomationInterval, cfg.TenantConcurrency, logger.WithField("worker", "automation"))
	go automationWorker.Start(ctx)

	// Create Fiber app
	app := fiber.New()
	app.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins)))

	// Health check endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	routes.SetupRoutes(app, routes.Deps{
		DB:        config.DB,
		Runner:    runner,
		Hub:       hub,
		Logger:    logger,
		Config:    cfg,
		RateStore: rateStore,
	})

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		logger.Info("Shutting down")
		cancel()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.WithError(err).Error("Server shutdown failed")
		}
	}()

	// Start server
	logger.Infof("Server starting on port %s", cfg.ServerPort)
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
