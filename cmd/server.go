package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Abraxas-365/cabina/pkg/config"
	"github.com/Abraxas-365/cabina/pkg/errx"
	"github.com/Abraxas-365/cabina/pkg/logx"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
)

func main() {
	cfg := config.Load()

	logx.Info("🚀 Starting Cabina auth gateway...")

	// 1. Initialize Dependency Container
	container := NewContainer(cfg)
	defer container.Cleanup()

	// 2. Create Fiber App with Config
	app := fiber.New(fiber.Config{
		AppName:               "Cabina Auth Gateway",
		DisableStartupMessage: true,
		ErrorHandler:          globalErrorHandler,
		IdleTimeout:           120 * time.Second,
	})

	// 3. Global Middleware
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	app.Use(requestid.New(requestid.Config{
		Header: "X-Request-ID",
		Generator: func() string {
			return uuid.NewString()
		},
	}))

	app.Use(cors.New(cors.Config{
		AllowOrigins: corsOrigins(cfg),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
		AllowMethods: "GET, POST, PUT, DELETE, PATCH, HEAD, OPTIONS",
		ExposeHeaders: "X-Request-ID",
	}))

	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path} | ${ip} | ${reqHeader:X-Request-ID}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "Local",
	}))

	// Tenant resolution runs on every request; a miss is not fatal.
	app.Use(container.IAM.TenantMiddleware.Resolve())

	// 4. Health Check
	app.Get("/health", healthCheckHandler(container))

	// 5. Register Routes
	container.IAM.AuthHandlers.RegisterRoutes(app, container.IAM.AuthMiddleware)
	logx.Info("✓ Auth routes registered")

	// 6. 404 Handler
	app.Use(notFoundHandler)

	// 7. Start Server with Graceful Shutdown
	startServer(app, cfg)
}

// ============================================================================
// Handler Functions
// ============================================================================

// healthCheckHandler reports process and dependency health
func healthCheckHandler(container *Container) fiber.Handler {
	return func(c *fiber.Ctx) error {
		health := fiber.Map{
			"status":  "healthy",
			"service": "cabina-auth-gateway",
		}

		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		if err := container.DB.PingContext(ctx); err != nil {
			health["status"] = "degraded"
			health["database"] = "unreachable"
		} else {
			health["database"] = "ok"
		}

		if container.Redis != nil {
			if err := container.Redis.Ping(ctx).Err(); err != nil {
				health["status"] = "degraded"
				health["redis"] = "unreachable"
			} else {
				health["redis"] = "ok"
			}
		}

		status := fiber.StatusOK
		if health["status"] != "healthy" {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(health)
	}
}

// notFoundHandler handles unmatched routes
func notFoundHandler(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"code":    "NOT_FOUND",
		"message": fmt.Sprintf("Route %s %s not found", c.Method(), c.Path()),
	})
}

// globalErrorHandler maps uncaught errors to the error taxonomy
func globalErrorHandler(c *fiber.Ctx, err error) error {
	var customErr *errx.Error
	if errx.As(err, &customErr) {
		return customErr.WriteFiber(c)
	}

	if fiberErr, ok := err.(*fiber.Error); ok {
		return c.Status(fiberErr.Code).JSON(fiber.Map{
			"code":    "HTTP_ERROR",
			"message": fiberErr.Message,
		})
	}

	logx.WithError(err).Error("unhandled error")
	return errx.Internal("Internal server error").WriteFiber(c)
}

// ============================================================================
// Server Lifecycle
// ============================================================================

func startServer(app *fiber.App, cfg *config.Config) {
	addr := fmt.Sprintf(":%d", cfg.App.Port)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-shutdown
		logx.Info("🛑 Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logx.Errorf("Server shutdown error: %v", err)
		}
	}()

	logx.Infof("✅ Listening on %s (base domain: %s)", addr, cfg.App.BaseDomain)
	if err := app.Listen(addr); err != nil {
		logx.Fatalf("Server error: %v", err)
	}
}

func corsOrigins(cfg *config.Config) string {
	origins := ""
	for i, o := range cfg.App.CORSOrigins {
		if i > 0 {
			origins += ", "
		}
		origins += o
	}
	return origins
}
