package funding

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/note_wallet/internal/httperr"
	"github.com/congo-pay/note_wallet/internal/ledger"
)

// Handler exposes the faucet top-up endpoint.
type Handler struct {
	service *Service
}

// NewHandler constructs a funding handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type fundRequest struct {
	Amount   uint64 `json:"amount"`
	NoteType string `json:"note_type"`
}

// Fund mints faucet funds to the account in the path.
func (h *Handler) Fund(c *fiber.Ctx) error {
	id, err := ledger.ParseAccountID(c.Params("account_id"))
	if err != nil {
		return httperr.From(err)
	}
	var req fundRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	noteType, err := ledger.ParseNoteType(req.NoteType)
	if err != nil {
		return httperr.From(err)
	}

	res, err := h.service.Fund(c.UserContext(), Input{Account: id, Amount: req.Amount, NoteType: noteType})
	if err != nil {
		return httperr.From(err)
	}
	return c.Status(http.StatusCreated).JSON(res)
}
