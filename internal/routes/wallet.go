package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/phonewallet/internal/balance"
	"github.com/congo-pay/phonewallet/internal/intent"
	"github.com/congo-pay/phonewallet/internal/wallet"
)

// RegisterWalletRoutes wires provisioning, balance and payment intent endpoints.
func RegisterWalletRoutes(r fiber.Router, wallets *wallet.Handler, balances *balance.Handler, intents *intent.Handler, limit fiber.Handler) {
	r.Post("/wallets", chain(limit, wallets.Provision)...)
	r.Post("/wallets/balance", balances.Balance)
	r.Post("/wallets/intents", intents.Present)
}
