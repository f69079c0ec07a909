package devnet

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/note_wallet/internal/ledger"
)

// Handler exposes a Node over the node RPC routes.
type Handler struct {
	node *Node
}

// NewHandler builds the RPC handler.
func NewHandler(node *Node) *Handler {
	return &Handler{node: node}
}

// Register mounts the RPC routes on r.
func (h *Handler) Register(r fiber.Router) {
	r.Get(ledger.PathStatus, h.Status)
	r.Post(ledger.PathSync, h.Sync)
	r.Post(ledger.PathTransactions, h.Submit)
	r.Post(ledger.PathNotesQuery, h.QueryNotes)
	r.Post(ledger.PathFaucetMint, h.Mint)
}

// Status returns the chain tip.
func (h *Handler) Status(c *fiber.Ctx) error {
	st, err := h.node.Status(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(st)
}

// Sync answers a state sync request.
func (h *Handler) Sync(c *fiber.Ctx) error {
	var req ledger.SyncRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, ledger.Reject(ledger.RejectMalformed, "%v", err))
	}
	resp, err := h.node.SyncState(c.UserContext(), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(resp)
}

// Submit applies a proven transaction.
func (h *Handler) Submit(c *fiber.Ctx) error {
	var tx ledger.ProvenTransaction
	if err := c.BodyParser(&tx); err != nil {
		return writeError(c, ledger.Reject(ledger.RejectMalformed, "%v", err))
	}
	res, err := h.node.SubmitTransaction(c.UserContext(), tx)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(http.StatusAccepted).JSON(res)
}

// QueryNotes reports note inclusion.
func (h *Handler) QueryNotes(c *fiber.Ctx) error {
	var req ledger.NotesQuery
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, ledger.Reject(ledger.RejectMalformed, "%v", err))
	}
	notes, err := h.node.GetNotes(c.UserContext(), req.NoteIDs)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(ledger.NotesQueryResponse{Notes: notes})
}

// Mint issues faucet funds.
func (h *Handler) Mint(c *fiber.Ctx) error {
	var req ledger.MintRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, ledger.Reject(ledger.RejectMalformed, "%v", err))
	}
	resp, err := h.node.Mint(c.UserContext(), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(resp)
}

func writeError(c *fiber.Ctx, err error) error {
	var rej *ledger.RejectionError
	switch {
	case errors.As(err, &rej):
		status := http.StatusUnprocessableEntity
		if rej.Code == ledger.RejectNonceConflict {
			status = http.StatusConflict
		}
		return c.Status(status).JSON(rej)
	case errors.Is(err, ledger.ErrValidation):
		return c.Status(http.StatusBadRequest).JSON(ledger.RejectionError{Code: ledger.RejectMalformed, Message: err.Error()})
	default:
		return c.Status(http.StatusInternalServerError).JSON(ledger.RejectionError{Code: "internal", Message: err.Error()})
	}
}
