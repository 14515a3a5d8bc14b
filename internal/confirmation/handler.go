package confirmation

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/phonewallet/internal/identity"
	"github.com/congo-pay/phonewallet/internal/ledger"
)

// Handler exposes transaction submission and confirmation.
type Handler struct {
	tracker *Tracker
}

// NewHandler builds a transaction HTTP handler.
func NewHandler(tracker *Tracker) *Handler {
	return &Handler{tracker: tracker}
}

type submitRequest struct {
	Phone  string `json:"phone"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

type recordResponse struct {
	ID            string     `json:"id"`
	Hash          string     `json:"hash,omitempty"`
	From          string     `json:"from"`
	To            string     `json:"to"`
	Amount        int64      `json:"amount"`
	Status        State      `json:"status"`
	Reason        Reason     `json:"reason,omitempty"`
	Confirmations int        `json:"confirmations"`
	SubmittedAt   time.Time  `json:"submitted_at"`
	LastPolledAt  *time.Time `json:"last_polled_at,omitempty"`
	TerminalAt    *time.Time `json:"terminal_at,omitempty"`
}

func toResponse(r Record) recordResponse {
	return recordResponse{
		ID:            r.ID,
		Hash:          r.Hash,
		From:          r.From,
		To:            r.To,
		Amount:        r.Amount,
		Status:        r.State,
		Reason:        r.Reason,
		Confirmations: r.Confirmations,
		SubmittedAt:   r.SubmittedAt,
		LastPolledAt:  r.LastPolledAt,
		TerminalAt:    r.TerminalAt,
	}
}

// Submit broadcasts a transfer from the caller's wallet.
func (h *Handler) Submit(c *fiber.Ctx) error {
	var req submitRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	record, err := h.tracker.Submit(c.UserContext(), req.Phone, req.To, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidPhone), errors.Is(err, ErrInvalidTransfer):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, identity.ErrNoWallet):
			return fiber.NewError(http.StatusNotFound, err.Error())
		case errors.Is(err, ledger.ErrRejected):
			return c.Status(http.StatusUnprocessableEntity).JSON(toResponse(record))
		case errors.Is(err, ledger.ErrUnknownAccount):
			return fiber.NewError(http.StatusConflict, "signing key not loaded; provision the wallet again to restore it")
		case errors.Is(err, ledger.ErrUnavailable):
			return fiber.NewError(http.StatusServiceUnavailable, "ledger unavailable")
		default:
			return err
		}
	}
	return c.Status(http.StatusAccepted).JSON(toResponse(record))
}

// Confirm polls the ledger for the transaction and returns its current state.
func (h *Handler) Confirm(c *fiber.Ctx) error {
	record, err := h.tracker.Poll(c.UserContext(), c.Params("hash"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return fiber.NewError(http.StatusNotFound, err.Error())
		case errors.Is(err, ledger.ErrUnavailable):
			return fiber.NewError(http.StatusServiceUnavailable, "ledger unavailable")
		default:
			return err
		}
	}
	return c.Status(http.StatusOK).JSON(toResponse(record))
}
