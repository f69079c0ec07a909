package batch

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes the batch transfer endpoint.
type Handler struct {
	coordinator *Coordinator
}

// NewHandler constructs a batch handler.
func NewHandler(coordinator *Coordinator) *Handler {
	return &Handler{coordinator: coordinator}
}

type batchRequest struct {
	Transfers []TransferRequest `json:"transfers"`
}

// Transfer processes every transfer in the body. Item failures are reported
// per item and the response is always 200.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req batchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	results := h.coordinator.Process(c.UserContext(), req.Transfers)
	return c.Status(http.StatusOK).JSON(fiber.Map{"results": results})
}
