package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/phonewallet/internal/app"
	"github.com/congo-pay/phonewallet/internal/balance"
	"github.com/congo-pay/phonewallet/internal/config"
	"github.com/congo-pay/phonewallet/internal/confirmation"
	"github.com/congo-pay/phonewallet/internal/identity"
	"github.com/congo-pay/phonewallet/internal/intent"
	"github.com/congo-pay/phonewallet/internal/metrics"
	"github.com/congo-pay/phonewallet/internal/middleware"
	"github.com/congo-pay/phonewallet/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Events   EventConn
	Services *app.Services
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(fiberApp *fiber.App, d Deps) {
	fiberApp.Use(recover.New())
	fiberApp.Use(middleware.RequestID())
	fiberApp.Use(middleware.Audit(d.Logger))
	fiberApp.Use(middleware.HTTPMetrics(d.Metrics))

	RegisterHealthRoutes(fiberApp, d)
	if d.Gatherer != nil {
		fiberApp.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	api := fiberApp.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals(middleware.RequestIDHeader).(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	limit := middleware.PhoneRateLimit(d.Cache, d.Cfg.RateLimit, d.Logger)
	var idempotent fiber.Handler
	if d.Cache != nil {
		idempotent = middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	}

	s := d.Services
	RegisterIdentityRoutes(api, identity.NewHandler(s.Identity, d.Cfg.WebhookSecret), limit)
	RegisterWalletRoutes(api, wallet.NewHandler(s.Wallets), balance.NewHandler(s.Balances), intent.NewHandler(s.Intents), limit)
	RegisterTransactionRoutes(api, confirmation.NewHandler(s.Tracker), limit, idempotent)
}

func chain(handlers ...fiber.Handler) []fiber.Handler {
	out := make([]fiber.Handler, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}
