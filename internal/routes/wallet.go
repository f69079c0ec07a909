package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/note_wallet/internal/wallet"
)

// RegisterWalletRoutes wires account endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Post("/create-wallet", h.Create)
	r.Get("/accounts", h.Accounts)
}
