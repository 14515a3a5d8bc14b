package wallet

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/phonewallet/internal/identity"
	"github.com/congo-pay/phonewallet/internal/ledger"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type provisionRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type walletResponse struct {
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
}

// Provision creates the caller's wallet or returns the existing one.
func (h *Handler) Provision(c *fiber.Ctx) error {
	var req provisionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	w, err := h.service.Provision(c.UserContext(), req.Phone, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidPhone), errors.Is(err, ErrWeakCredential):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrIdentityNotVerified):
			return fiber.NewError(http.StatusForbidden, err.Error())
		case errors.Is(err, ledger.ErrUnavailable):
			return fiber.NewError(http.StatusServiceUnavailable, "ledger unavailable")
		default:
			return err
		}
	}
	return c.Status(http.StatusOK).JSON(walletResponse{
		Phone:     w.Phone,
		Address:   w.Address,
		Currency:  w.Currency,
		CreatedAt: w.CreatedAt,
	})
}
