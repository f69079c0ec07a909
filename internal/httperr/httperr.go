// Package httperr maps domain errors onto HTTP responses.
package httperr

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/note_wallet/internal/ledger"
	"github.com/congo-pay/note_wallet/internal/store"
)

// Status returns the HTTP status for err.
func Status(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, ledger.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrNoConsumableNotes),
		errors.Is(err, store.ErrNoteNotFound),
		errors.Is(err, store.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrSubmission):
		return http.StatusBadGateway
	case errors.Is(err, ledger.ErrSync), errors.Is(err, ledger.ErrSessionInit):
		return http.StatusServiceUnavailable
	case errors.Is(err, ledger.ErrExecution):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// From converts err into a *fiber.Error carrying the mapped status.
func From(err error) error {
	if err == nil {
		return nil
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe
	}
	return fiber.NewError(Status(err), err.Error())
}

// Handler renders errors returned by handlers as {"error": message}.
func Handler(c *fiber.Ctx, err error) error {
	status := Status(err)
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
