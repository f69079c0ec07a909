package store

import (
	"context"
	"errors"
	"time"

	"github.com/congo-pay/note_wallet/internal/ledger"
)

var (
	// ErrAccountNotFound is returned when no local account matches the id.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountExists is returned when inserting a duplicate account id.
	ErrAccountExists = errors.New("account exists")
	// ErrNoteNotFound is returned when no local note matches the id.
	ErrNoteNotFound = errors.New("note not found")
	// ErrNoteUnavailable is returned when a transaction references a note that
	// is not committed and unspent locally.
	ErrNoteUnavailable = errors.New("note not available for consumption")
	// ErrStaleNonce is returned when the stored nonce no longer matches the
	// nonce a transaction was executed against.
	ErrStaleNonce = errors.New("stale account nonce")

	errClosed = errors.New("store closed")
)

// NoteStatus tracks a note through its local lifecycle. Statuses only move
// forward: expected -> committed -> processing -> consumed.
type NoteStatus int

const (
	// NoteExpected is known locally but not yet observed on chain.
	NoteExpected NoteStatus = iota
	// NoteCommitted is on chain and unspent: the only consumable status.
	NoteCommitted
	// NoteProcessing has been consumed by a locally submitted transaction
	// that sync has not confirmed yet.
	NoteProcessing
	// NoteConsumed has a nullifier on chain.
	NoteConsumed
)

func (s NoteStatus) String() string {
	switch s {
	case NoteExpected:
		return "expected"
	case NoteCommitted:
		return "committed"
	case NoteProcessing:
		return "processing"
	case NoteConsumed:
		return "consumed"
	default:
		return "unknown"
	}
}

// AccountRecord is a locally tracked account together with its key seed.
type AccountRecord struct {
	ID        ledger.AccountID
	Mode      ledger.StorageMode
	Nonce     uint64
	Vault     ledger.Vault
	Seed      []byte
	PublicKey []byte
	CreatedAt time.Time
}

// NoteRecord is a locally known note.
type NoteRecord struct {
	Note      ledger.Note
	Status    NoteStatus
	BlockNum  uint64
	UpdatedAt time.Time
}

// TransactionRecord is a submitted transaction as applied to the store.
type TransactionRecord struct {
	ID          ledger.TransactionID
	AccountID   ledger.AccountID
	InitNonce   uint64
	FinalNonce  uint64
	FinalVault  ledger.Vault
	InputNotes  []ledger.NoteID
	OutputNotes []ledger.Note
	BlockNum    uint64
	SubmittedAt time.Time
}

// SyncUpdate is a node sync response ready to be applied.
type SyncUpdate struct {
	BlockNum   uint64
	Accounts   []ledger.AccountState
	Notes      []ledger.CommittedNote
	Nullifiers []ledger.Nullifier
}

// SyncResult counts what ApplySync changed.
type SyncResult struct {
	BlockNum        uint64
	NewNotes        int
	ConsumedNotes   int
	UpdatedAccounts int
}

// NoteFilter selects notes. Zero value selects everything.
type NoteFilter struct {
	Statuses []NoteStatus
	IDs      []ledger.NoteID
}

func (f NoteFilter) matches(rec NoteRecord) bool {
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if rec.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(f.IDs) > 0 {
		for _, id := range f.IDs {
			if rec.Note.ID == id {
				return true
			}
		}
		return false
	}
	return true
}

// Store is the local persistent view of accounts, notes and sync progress.
type Store interface {
	Ping(ctx context.Context) error

	InsertAccount(ctx context.Context, acc AccountRecord) error
	GetAccount(ctx context.Context, id ledger.AccountID) (AccountRecord, error)
	ListAccounts(ctx context.Context) ([]AccountRecord, error)

	// PutNote inserts a note or advances its status. Status never moves backwards.
	PutNote(ctx context.Context, rec NoteRecord) error
	GetNote(ctx context.Context, id ledger.NoteID) (NoteRecord, error)
	ListNotes(ctx context.Context, filter NoteFilter) ([]NoteRecord, error)

	// ApplyTransaction records a submitted transaction: the account advances to
	// FinalNonce/FinalVault, inputs become processing, outputs are recorded as
	// expected. Fails with ErrStaleNonce or ErrNoteUnavailable without changes.
	ApplyTransaction(ctx context.Context, tx TransactionRecord) error
	ListTransactions(ctx context.Context, account ledger.AccountID) ([]TransactionRecord, error)

	// ApplySync atomically applies a node sync response.
	ApplySync(ctx context.Context, update SyncUpdate) (SyncResult, error)
	SyncHeight(ctx context.Context) (uint64, error)

	Close()
}
