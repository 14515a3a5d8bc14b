package intent

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/phonewallet/internal/identity"
)

// Handler exposes payment intent presentation.
type Handler struct {
	builder *Builder
}

// NewHandler builds a payment intent HTTP handler.
func NewHandler(builder *Builder) *Handler {
	return &Handler{builder: builder}
}

type intentRequest struct {
	Phone  string `json:"phone"`
	Amount *int64 `json:"amount"`
	Memo   string `json:"memo"`
}

type intentResponse struct {
	Address        string    `json:"address"`
	Currency       string    `json:"currency"`
	Amount         *int64    `json:"amount,omitempty"`
	Memo           string    `json:"memo,omitempty"`
	PaymentURI     string    `json:"payment_uri"`
	ImageReference string    `json:"image_reference"`
	ExpiresAt      time.Time `json:"expires_at"`
	Fallback       bool      `json:"fallback"`
	Warning        string    `json:"warning,omitempty"`
}

// Present returns a payment intent for the caller's wallet.
func (h *Handler) Present(c *fiber.Ctx) error {
	var req intentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	p, err := h.builder.Present(c.UserContext(), req.Phone, req.Amount, req.Memo)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidPhone), errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidMemo):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, identity.ErrNoWallet):
			return fiber.NewError(http.StatusNotFound, err.Error())
		default:
			return err
		}
	}
	resp := intentResponse{
		Address:        p.Intent.Address,
		Currency:       p.Intent.Currency,
		Amount:         p.Intent.Amount,
		Memo:           p.Intent.Memo,
		PaymentURI:     p.Intent.URI(),
		ImageReference: p.ImageReference,
		ExpiresAt:      p.Intent.ExpiresAt,
		Fallback:       p.Fallback,
	}
	if p.RenderErr != nil {
		resp.Warning = p.RenderErr.Error()
	}
	return c.Status(http.StatusOK).JSON(resp)
}
