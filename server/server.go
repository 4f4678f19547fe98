package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/poiesic/docflow/config"
)

// HttpServer is the HTTP boundary of the pipeline: task submission,
// status polling and catalog search.
type HttpServer struct {
	cfg    config.Config
	app    *fiber.App
	router fiber.Router
	logger *slog.Logger
}

func NewHttpServer(cfg config.Config) *HttpServer {
	app := fiber.New(fiber.Config{
		AppName: "docflow",
	})

	// middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format:     "${time} ${status} - ${method} ${path}\n",
		TimeFormat: "2006/01/02 15:04:05",
	}))

	// health check route
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ping": "pong"})
	})

	apiGroup := app.Group("/api/v1")

	return &HttpServer{
		cfg:    cfg,
		app:    app,
		router: apiGroup,
		logger: slog.Default().With("component", "server"),
	}
}

func (s *HttpServer) SetupRoute(taskHandler *TaskHandler) {
	s.router.Post("/tasks", taskHandler.Submit)
	s.router.Get("/tasks/:taskId", taskHandler.Status)
	s.router.Get("/search", taskHandler.Search)
}

// App exposes the underlying fiber app for tests.
func (s *HttpServer) App() *fiber.App {
	return s.app
}

func (s *HttpServer) Start() {
	serverAddr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	go func() {
		if err := s.app.Listen(serverAddr); err != nil {
			s.logger.Error("http server stopped", "err", err)
		}
	}()
}

func (s *HttpServer) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
