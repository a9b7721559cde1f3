package api

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/BroWo1/factcheck-backend/internal/api/handlers"
	"github.com/BroWo1/factcheck-backend/internal/metrics"
	"github.com/BroWo1/factcheck-backend/internal/middleware/ratelimit"
	"github.com/BroWo1/factcheck-backend/internal/middleware/security"
	"github.com/BroWo1/factcheck-backend/internal/middleware/validation"
	"github.com/BroWo1/factcheck-backend/pkg/config"
	"github.com/BroWo1/factcheck-backend/pkg/logger"
)

type Deps struct {
	Server  config.ServerConfig
	Storage config.StorageConfig
	Store   handlers.SessionStore
	Queue   handlers.Submitter
	Hub     handlers.Subscriber
	Checks  map[string]handlers.Pinger
	// AccessLog enables the per-request access log.
	AccessLog bool
}

// NewServer builds the fiber app with every route mounted.
func NewServer(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:           time.Duration(d.Server.ReadTimeout) * time.Second,
		WriteTimeout:          time.Duration(d.Server.WriteTimeout) * time.Second,
		BodyLimit:             d.Server.BodyLimit,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	if d.AccessLog {
		app.Use(fiberlogger.New())
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins(d.Server.AllowedOrigins),
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: d.Server.AllowedOrigins,
	}))

	sessions := handlers.NewSessionHandler(d.Store, d.Queue, d.Storage.UploadDir, d.Storage.MaxImageBytes)
	health := handlers.NewHealthHandler(d.Checks)
	ws := handlers.NewWebSocketHandler(d.Store, d.Hub)

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: d.Server.RateLimitPerMinute,
		Logger:               logger.GetLogger(),
	})
	validate := validation.Middleware(validation.Config{
		AllowedContentTypes: []string{fiber.MIMEApplicationJSON, fiber.MIMEMultipartForm},
		Logger:              logger.GetLogger(),
	})

	api := app.Group("/api/v1")

	api.Post("/fact-check", limiter.Middleware(), validate, sessions.Create)
	api.Get("/fact-check", sessions.List)
	api.Get("/fact-check/:id/status", sessions.Status)
	api.Get("/fact-check/:id/results", sessions.Results)
	api.Get("/fact-check/:id/steps", sessions.Steps)
	api.Delete("/fact-check/:id", sessions.Delete)

	api.Get("/health", health.Health)
	api.Get("/ready", health.Ready)

	app.Get("/metrics", metrics.MetricsHandler())

	app.Use("/ws", ws.Upgrade)
	app.Get("/ws/fact-check/:id", websocket.New(ws.HandleConnection))

	return app
}

func allowOrigins(origins []string) string {
	if len(origins) == 0 {
		return "*"
	}
	return strings.Join(origins, ", ")
}
