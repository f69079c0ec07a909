package payments

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/note_wallet/internal/httperr"
	"github.com/congo-pay/note_wallet/internal/ledger"
)

// Handler exposes transfer and consumption endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type transferRequest struct {
	SenderWallet string `json:"sender_wallet"`
	TargetWallet string `json:"target_wallet"`
	Amount       uint64 `json:"amount"`
	NoteType     string `json:"note_type"`
	RecallHeight uint64 `json:"recall_height"`
}

type transferResponse struct {
	TxID         ledger.TransactionID `json:"tx_id"`
	SenderWallet ledger.AccountID     `json:"sender_wallet"`
	TargetWallet ledger.AccountID     `json:"target_wallet"`
	Amount       uint64               `json:"amount"`
	OutputNotes  []ledger.NoteID      `json:"output_notes"`
}

// Transfer submits a single payment.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	sender, err := ledger.ParseAccountID(req.SenderWallet)
	if err != nil {
		return httperr.From(err)
	}
	target, err := ledger.ParseAccountID(req.TargetWallet)
	if err != nil {
		return httperr.From(err)
	}
	noteType, err := ledger.ParseNoteType(req.NoteType)
	if err != nil {
		return httperr.From(err)
	}

	out, err := h.service.TransferAsset(c.UserContext(), sender, target, req.Amount,
		WithNoteType(noteType), WithRecallHeight(req.RecallHeight))
	if err != nil {
		return httperr.From(err)
	}
	return c.Status(http.StatusOK).JSON(transferResponse{
		TxID:         out.TxID,
		SenderWallet: out.Sender,
		TargetWallet: out.Target,
		Amount:       out.Amount,
		OutputNotes:  out.OutputNotes,
	})
}

type consumeRequest struct {
	NoteIDs []ledger.NoteID `json:"note_ids"`
}

// Consume consumes every available note of the account in the path, or the
// notes listed in the optional body.
func (h *Handler) Consume(c *fiber.Ctx) error {
	account, err := ledger.ParseAccountID(c.Params("account_id"))
	if err != nil {
		return httperr.From(err)
	}
	var req consumeRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return httperr.From(ledger.ErrInvalidNoteID)
		}
	}

	var out ConsumeOutcome
	if req.NoteIDs != nil {
		out, err = h.service.ConsumeNotes(c.UserContext(), account, req.NoteIDs)
	} else {
		out, err = h.service.ConsumeAvailableNotes(c.UserContext(), account)
	}
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(fiber.Map{
		"tx_ids":         out.TxIDs,
		"consumed_notes": out.ConsumedNotes,
	})
}

type transactionResponse struct {
	TxID        ledger.TransactionID `json:"tx_id"`
	InitNonce   uint64               `json:"init_nonce"`
	FinalNonce  uint64               `json:"final_nonce"`
	InputNotes  []ledger.NoteID      `json:"input_notes"`
	OutputNotes []ledger.NoteID      `json:"output_notes"`
	BlockNum    uint64               `json:"block_num"`
	SubmittedAt time.Time            `json:"submitted_at"`
}

// Transactions lists the transactions submitted for the account in the path.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	account, err := ledger.ParseAccountID(c.Params("account_id"))
	if err != nil {
		return httperr.From(err)
	}
	txs, err := h.service.History(c.UserContext(), account)
	if err != nil {
		return httperr.From(err)
	}
	out := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		resp := transactionResponse{
			TxID:        tx.ID,
			InitNonce:   tx.InitNonce,
			FinalNonce:  tx.FinalNonce,
			InputNotes:  tx.InputNotes,
			OutputNotes: []ledger.NoteID{},
			BlockNum:    tx.BlockNum,
			SubmittedAt: tx.SubmittedAt,
		}
		if resp.InputNotes == nil {
			resp.InputNotes = []ledger.NoteID{}
		}
		for _, n := range tx.OutputNotes {
			resp.OutputNotes = append(resp.OutputNotes, n.ID)
		}
		out = append(out, resp)
	}
	return c.JSON(fiber.Map{"account_id": account, "transactions": out})
}
