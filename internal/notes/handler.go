package notes

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/note_wallet/internal/httperr"
	"github.com/congo-pay/note_wallet/internal/ledger"
	"github.com/congo-pay/note_wallet/internal/render"
)

// Handler exposes note selection and import endpoints.
type Handler struct {
	service     *Service
	importPaths []string
}

// NewHandler builds the note handler. importPaths are read by GET /import-notes.
func NewHandler(service *Service, importPaths []string) *Handler {
	return &Handler{service: service, importPaths: importPaths}
}

type assetResponse struct {
	Faucet ledger.AccountID `json:"faucet"`
	Amount uint64           `json:"amount"`
}

type relevanceResponse struct {
	AccountID ledger.AccountID `json:"account_id"`
	Relevance string           `json:"relevance"`
}

type noteResponse struct {
	NoteID     ledger.NoteID       `json:"note_id"`
	NoteType   ledger.NoteType     `json:"note_type"`
	Sender     ledger.AccountID    `json:"sender"`
	BlockNum   uint64              `json:"block_num"`
	Assets     []assetResponse     `json:"assets"`
	Relevances []relevanceResponse `json:"relevances"`
}

// Consumable lists the notes an account can consume.
func (h *Handler) Consumable(c *fiber.Ctx) error {
	id, err := ledger.ParseAccountID(c.Params("account_id"))
	if err != nil {
		return httperr.From(err)
	}
	notes, err := h.service.ConsumableNotes(c.UserContext(), &id)
	if err != nil {
		return httperr.From(err)
	}

	if strings.Contains(c.Get(fiber.HeaderAccept), fiber.MIMETextPlain) {
		var buf bytes.Buffer
		render.Notes(&buf, NoteRows(notes))
		c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
		return c.Send(buf.Bytes())
	}

	out := make([]noteResponse, 0, len(notes))
	for _, n := range notes {
		resp := noteResponse{
			NoteID:   n.Note.ID,
			NoteType: n.Note.Type,
			Sender:   n.Note.Sender,
			BlockNum: n.BlockNum,
		}
		for _, a := range n.Note.Assets {
			resp.Assets = append(resp.Assets, assetResponse{Faucet: a.Faucet, Amount: a.Amount})
		}
		for _, r := range n.Relevances {
			resp.Relevances = append(resp.Relevances, relevanceResponse{AccountID: r.Account, Relevance: r.Relevance.String()})
		}
		out = append(out, resp)
	}
	return c.JSON(fiber.Map{"account_id": id, "notes": out})
}

// NoteRows flattens consumable notes into table rows.
func NoteRows(notes []ConsumableNote) []render.NoteRow {
	var rows []render.NoteRow
	for _, n := range notes {
		for _, r := range n.Relevances {
			rows = append(rows, render.NoteRow{NoteID: n.Note.ID.String(), AccountID: r.Account.String(), Relevance: r.Relevance.String()})
		}
	}
	return rows
}

// ImportConfigured imports the configured note file paths.
func (h *Handler) ImportConfigured(c *fiber.Ctx) error {
	report, err := h.service.ImportFiles(c.UserContext(), h.importPaths)
	if err != nil {
		return httperr.From(err)
	}
	imported := make([]ledger.NoteID, 0, len(report.Imported))
	for _, r := range report.Imported {
		imported = append(imported, r.ID)
	}
	return c.JSON(fiber.Map{"imported": imported, "failed": report.Failed})
}

// ImportBody imports the note file carried in the request body.
func (h *Handler) ImportBody(c *fiber.Ctx) error {
	res, err := h.service.Import(c.UserContext(), c.Body())
	if err != nil {
		return httperr.From(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"note_id": res.ID, "status": res.Status.String()})
}

// Export returns a stored note as a note file.
func (h *Handler) Export(c *fiber.Ctx) error {
	id, err := ledger.ParseNoteID(c.Params("note_id"))
	if err != nil {
		return httperr.From(err)
	}
	data, err := h.service.Export(c.UserContext(), id)
	if err != nil {
		return httperr.From(err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+id.String()+`.mno"`)
	return c.Send(data)
}

// Sync pulls the latest network state.
func (h *Handler) Sync(c *fiber.Ctx) error {
	summary, err := h.service.SyncState(c.UserContext())
	if err != nil {
		return httperr.From(err)
	}
	return c.JSON(summary)
}
