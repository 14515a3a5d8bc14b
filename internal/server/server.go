package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/phonewallet/internal/logging"
	"github.com/congo-pay/phonewallet/internal/routes"
)

// Server wraps the Fiber application and shared dependencies.
type Server struct {
	app  *fiber.App
	addr string
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(deps routes.Deps) *Server {
	app := fiber.New(fiber.Config{
		AppName:      deps.Cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: ErrorHandler(deps.Logger),
	})

	routes.Setup(app, deps)

	return &Server{app: app, addr: deps.Cfg.Address()}
}

// App exposes the underlying Fiber application, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.addr)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// ErrorHandler renders errors as {"error": message}. Service unavailability
// is marked retryable; unexpected errors hide their message.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	logger = logging.Component(logger, "http")
	return func(c *fiber.Ctx, err error) error {
		code := http.StatusInternalServerError
		message := http.StatusText(code)

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		} else {
			logger.Error("unhandled error", slog.String("path", c.Path()), slog.Any("error", err))
		}

		body := fiber.Map{"error": message}
		if code == http.StatusServiceUnavailable {
			body["retryable"] = true
		}
		return c.Status(code).JSON(body)
	}
}
