package balance

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/phonewallet/internal/identity"
)

// Handler exposes balance inquiry.
type Handler struct {
	cache *Cache
}

// NewHandler builds a balance HTTP handler.
func NewHandler(cache *Cache) *Handler {
	return &Handler{cache: cache}
}

type balanceRequest struct {
	Phone string `json:"phone"`
}

type balanceResponse struct {
	Address   string    `json:"address"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	FetchedAt time.Time `json:"fetched_at"`
	Stale     bool      `json:"stale"`
}

// Balance returns the caller's wallet balance in minor units.
func (h *Handler) Balance(c *fiber.Ctx) error {
	var req balanceRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	snap, err := h.cache.Get(c.UserContext(), req.Phone)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidPhone):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, identity.ErrNoWallet):
			return fiber.NewError(http.StatusNotFound, err.Error())
		case errors.Is(err, ErrBalanceUnavailable):
			return fiber.NewError(http.StatusServiceUnavailable, "balance unavailable")
		default:
			return err
		}
	}
	return c.Status(http.StatusOK).JSON(balanceResponse{
		Address:   snap.Address,
		Amount:    snap.Amount,
		Currency:  snap.Currency,
		FetchedAt: snap.FetchedAt,
		Stale:     snap.Stale,
	})
}
