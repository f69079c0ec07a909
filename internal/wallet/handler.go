package wallet

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/note_wallet/internal/httperr"
	"github.com/congo-pay/note_wallet/internal/ledger"
	"github.com/congo-pay/note_wallet/internal/render"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
	faucet  ledger.AccountID
}

// NewHandler builds a wallet HTTP handler reporting balances of faucet.
func NewHandler(service *Service, faucet ledger.AccountID) *Handler {
	return &Handler{service: service, faucet: faucet}
}

type createRequest struct {
	AccountType string `json:"account_type"`
}

type accountResponse struct {
	Index       int                `json:"index"`
	AccountID   ledger.AccountID   `json:"account_id"`
	StorageMode ledger.StorageMode `json:"storage_mode"`
	Nonce       uint64             `json:"nonce"`
	Balance     uint64             `json:"balance"`
	Pending     uint64             `json:"pending"`
	Faucet      ledger.AccountID   `json:"faucet"`
}

// Create provisions a new account. The body is optional.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	mode, err := ledger.ParseStorageMode(req.AccountType)
	if err != nil {
		return httperr.From(err)
	}
	id, err := h.service.CreateAccount(c.UserContext(), mode)
	if err != nil {
		return httperr.From(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"wallet_id":    id,
		"account_type": mode,
	})
}

// Accounts lists every local account with its balance.
func (h *Handler) Accounts(c *fiber.Ctx) error {
	listing, err := h.service.ListAccountsWithBalances(c.UserContext(), h.faucet)
	if err != nil {
		return httperr.From(err)
	}
	if strings.Contains(c.Get(fiber.HeaderAccept), fiber.MIMETextPlain) {
		var buf bytes.Buffer
		render.Accounts(&buf, listing.Rows())
		c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
		return c.Send(buf.Bytes())
	}
	out := make([]accountResponse, 0, len(listing.Accounts))
	for _, acc := range listing.Accounts {
		out = append(out, accountResponse{
			Index:       acc.Index,
			AccountID:   acc.ID,
			StorageMode: acc.StorageMode,
			Nonce:       acc.Nonce,
			Balance:     acc.Balance,
			Pending:     acc.Pending,
			Faucet:      listing.Faucet,
		})
	}
	return c.JSON(fiber.Map{
		"accounts":    out,
		"sync_height": listing.SyncHeight,
		"stale":       listing.Stale,
	})
}
