package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/note_wallet/internal/batch"
	"github.com/congo-pay/note_wallet/internal/payments"
)

// RegisterPaymentRoutes wires transaction endpoints behind the rate limiter.
func RegisterPaymentRoutes(r fiber.Router, h *payments.Handler, b *batch.Handler, limiter fiber.Handler) {
	r.Post("/transfer", limiter, h.Transfer)
	r.Post("/batch-transfer", limiter, b.Transfer)
	r.Post("/:account_id/consume-available-notes", limiter, h.Consume)
	r.Get("/:account_id/transactions", h.Transactions)
}
