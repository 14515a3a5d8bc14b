package identity

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/phonewallet/internal/verification"
)

// WebhookSecretHeader carries the shared secret on verification provider callbacks.
const WebhookSecretHeader = "X-Webhook-Secret"

// Handler exposes identity endpoints.
type Handler struct {
	service       *Service
	webhookSecret string
}

// NewHandler constructs an identity HTTP handler. An empty webhookSecret
// accepts unauthenticated provider callbacks.
func NewHandler(service *Service, webhookSecret string) *Handler {
	return &Handler{service: service, webhookSecret: webhookSecret}
}

type phoneRequest struct {
	Phone string `json:"phone"`
}

type identityResponse struct {
	Phone      string     `json:"phone"`
	Verified   bool       `json:"verified"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}

func toResponse(p PhoneIdentity) identityResponse {
	return identityResponse{Phone: p.Phone, Verified: p.Verified(), VerifiedAt: p.VerifiedAt}
}

// Verify reports whether the caller's phone is verified.
func (h *Handler) Verify(c *fiber.Ctx) error {
	var req phoneRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	p, err := h.service.Verify(c.UserContext(), req.Phone)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(toResponse(p))
}

// Webhook receives ownership confirmations from the verification provider.
func (h *Handler) Webhook(c *fiber.Ctx) error {
	if h.webhookSecret != "" {
		got := c.Get(WebhookSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.webhookSecret)) != 1 {
			return fiber.NewError(http.StatusUnauthorized, "invalid webhook secret")
		}
	}
	var req phoneRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	p, err := h.service.Confirm(c.UserContext(), req.Phone)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(toResponse(p))
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidPhone):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrConfirmUnsupported):
		return fiber.NewError(http.StatusNotImplemented, err.Error())
	case errors.Is(err, verification.ErrUnavailable):
		return fiber.NewError(http.StatusServiceUnavailable, "verification channel unavailable")
	default:
		return err
	}
}
