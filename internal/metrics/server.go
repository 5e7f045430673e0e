package metrics

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server exposes /metrics and /health for the lifetime of a command.
// Long poll and delete runs are scraped like any other service; the
// listener dies with the process.
type Server struct {
	app    *fiber.App
	port   int
	logger *zap.Logger
}

// NewServer builds the listener for the given port.
func NewServer(port int, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	return &Server{app: app, port: port, logger: logger}
}

// Start serves in the background. Listen failures are logged, not fatal:
// losing the scrape endpoint must never kill a delete run.
func (s *Server) Start() {
	go func() {
		s.logger.Info("metrics.listening", zap.Int("port", s.port))
		if err := s.app.Listen(fmt.Sprintf(":%d", s.port)); err != nil {
			s.logger.Warn("metrics.listen_failed", zap.Error(err))
		}
	}()
}

// Shutdown stops the listener, waiting up to ctx for in-flight scrapes.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
