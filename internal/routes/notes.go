package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/note_wallet/internal/notes"
)

// RegisterNoteRoutes wires note selection, import and sync endpoints.
func RegisterNoteRoutes(r fiber.Router, h *notes.Handler) {
	r.Get("/:account_id/get-consumable-notes", h.Consumable)
	r.Get("/import-notes", h.ImportConfigured)
	r.Post("/import-notes", h.ImportBody)
	r.Get("/notes/:note_id/export", h.Export)
	r.Post("/sync", h.Sync)
}
