package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/note_wallet/internal/funding"
)

// RegisterFundingRoutes wires the faucet top-up endpoint.
func RegisterFundingRoutes(r fiber.Router, h *funding.Handler, limiter fiber.Handler) {
	r.Post("/:account_id/fund", limiter, h.Fund)
}
