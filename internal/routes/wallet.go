package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/pochi-wallet/pochi/internal/wallet"
)

// RegisterWalletRoutes wires wallet ledger endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler, topUpLimit fiber.Handler) {
	r.Post("/wallets/:userId/topup", topUpLimit, h.TopUp)
	r.Get("/wallets/:userId/balance", h.Balance)
	r.Get("/wallets/:userId/transactions", h.Transactions)
}
