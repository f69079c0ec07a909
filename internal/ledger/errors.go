package ledger

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the orchestration packages wraps exactly
// one of these so callers can classify failures with errors.Is.
var (
	// ErrValidation marks malformed input rejected before any execution.
	ErrValidation = errors.New("validation error")
	// ErrSync marks a failure to pull the network view into the local store.
	ErrSync = errors.New("sync error")
	// ErrExecution marks a failure while executing a transaction locally.
	ErrExecution = errors.New("execution error")
	// ErrSubmission marks a rejection or timeout while submitting to the node.
	ErrSubmission = errors.New("submission error")
	// ErrSessionInit marks a session that could not be constructed.
	ErrSessionInit = errors.New("session init error")
	// ErrAccountCreation marks a failure to register a new account.
	ErrAccountCreation = errors.New("account creation error")
	// ErrNoConsumableNotes is returned when an account has nothing to consume.
	ErrNoConsumableNotes = errors.New("no consumable notes")
)

var (
	ErrInvalidAmount    = fmt.Errorf("%w: amount must be greater than zero", ErrValidation)
	ErrInvalidAccountID = fmt.Errorf("%w: invalid account id", ErrValidation)
	ErrInvalidNoteID    = fmt.Errorf("%w: invalid note id", ErrValidation)
	ErrEmptyNoteSet     = fmt.Errorf("%w: no note ids supplied", ErrValidation)

	ErrInsufficientBalance = fmt.Errorf("%w: insufficient balance", ErrExecution)
	ErrUnknownAccount      = fmt.Errorf("%w: unknown account", ErrExecution)
	ErrUnknownNote         = fmt.Errorf("%w: unknown or unconsumable note", ErrExecution)
	ErrNonceConflict       = fmt.Errorf("%w: nonce conflict", ErrExecution)
)

// Rejection codes returned by a node when it refuses a transaction.
const (
	RejectNonceConflict     = "nonce_conflict"
	RejectInvalidProof      = "invalid_proof"
	RejectInvalidSignature  = "invalid_signature"
	RejectUnknownNote       = "unknown_note"
	RejectInsufficientFunds = "insufficient_balance"
	RejectMalformed         = "malformed"
)

// RejectionError is a node's refusal of a submitted transaction.
type RejectionError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("node rejected transaction: %s: %s", e.Code, e.Message)
}

// Is lets a nonce conflict reported by the node match ErrNonceConflict.
func (e *RejectionError) Is(target error) bool {
	return e.Code == RejectNonceConflict && target == ErrNonceConflict
}

// Reject builds a RejectionError.
func Reject(code, format string, args ...any) *RejectionError {
	return &RejectionError{Code: code, Message: fmt.Sprintf(format, args...)}
}
