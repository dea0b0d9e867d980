package server

import (
	"log"
	"time"

	"ai-answer-engine-be/internal/bootstrap"
	"ai-answer-engine-be/internal/config"
	"ai-answer-engine-be/internal/pkg/serverutils"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

const shutdownGrace = 10 * time.Second

type Server struct {
	app       *fiber.App
	cfg       *config.Config
	container *bootstrap.Container
}

func New(cfg *config.Config, container *bootstrap.Container) *Server {
	app := fiber.New(fiber.Config{
		AppName: "ai-answer-engine",
		// Query payloads are small JSON bodies; no upload endpoints exist.
		BodyLimit:             1 * 1024 * 1024,
		DisableStartupMessage: true,
	})

	// Middleware
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.App.CorsAllowedOrigins,
		AllowCredentials: true,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization",
	}))

	// OpenTelemetry tracing middleware (traces all HTTP requests)
	app.Use(otelfiber.Middleware())

	app.Use(serverutils.ErrorHandlerMiddleware())

	registerRoutes(app, container)

	return &Server{
		app:       app,
		cfg:       cfg,
		container: container,
	}
}

func (s *Server) GetApp() *fiber.App {
	return s.app
}

func (s *Server) Run() error {
	log.Printf("✅ Server is running on http://localhost:%s", s.cfg.App.Port)
	return s.app.Listen(":" + s.cfg.App.Port)
}

// Shutdown stops the listener and drains in-flight requests. Streaming
// sessions past the grace window are cut off.
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(shutdownGrace)
}

func registerRoutes(app *fiber.App, c *bootstrap.Container) {
	app.Get("/health", healthHandler)

	api := app.Group("/api")

	c.QueryController.RegisterRoutes(api)
	c.AdminController.RegisterRoutes(api)
}

func healthHandler(ctx *fiber.Ctx) error {
	return ctx.JSON(fiber.Map{"status": "ok"})
}
