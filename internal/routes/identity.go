package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/phonewallet/internal/identity"
)

// RegisterIdentityRoutes wires phone verification and the provider webhook.
func RegisterIdentityRoutes(r fiber.Router, h *identity.Handler, limit fiber.Handler) {
	r.Post("/identity/verify", chain(limit, h.Verify)...)
	r.Post("/webhooks/verification", h.Webhook)
}
