package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/phonewallet/internal/confirmation"
)

// RegisterTransactionRoutes wires transfer submission and confirmation lookups.
func RegisterTransactionRoutes(r fiber.Router, h *confirmation.Handler, limit, idempotent fiber.Handler) {
	r.Post("/transactions", chain(limit, idempotent, h.Submit)...)
	r.Get("/transactions/:hash", h.Confirm)
}
