// Package funding tops up local accounts from a development node's faucet.
package funding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/congo-pay/note_wallet/internal/ledger"
	"github.com/congo-pay/note_wallet/internal/notes"
	"github.com/congo-pay/note_wallet/internal/session"
)

// Service mints faucet notes to local accounts.
type Service struct {
	minter   ledger.Minter
	sessions *session.Factory
	notes    *notes.Service
	faucet   ledger.AccountID
	logger   *slog.Logger
}

// NewService prepares a funding service for faucet.
func NewService(minter ledger.Minter, sessions *session.Factory, noteSvc *notes.Service, faucet ledger.AccountID, logger *slog.Logger) (*Service, error) {
	if minter == nil {
		return nil, fmt.Errorf("node does not run a faucet")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{minter: minter, sessions: sessions, notes: noteSvc, faucet: faucet, logger: logger.With("component", "funding")}, nil
}

// Input describes one top-up.
type Input struct {
	Account  ledger.AccountID
	Amount   uint64
	NoteType ledger.NoteType
}

// Result is the minted note. The account consumes it like any other note.
type Result struct {
	NoteID   ledger.NoteID `json:"note_id"`
	BlockNum uint64        `json:"block_num"`
	Amount   uint64        `json:"amount"`
	Synced   bool          `json:"synced"`
}

// Fund mints amount of the faucet asset to a local account and syncs so the
// note shows up as pending.
func (s *Service) Fund(ctx context.Context, in Input) (Result, error) {
	if in.Amount == 0 {
		return Result{}, ledger.ErrInvalidAmount
	}
	if in.NoteType == "" {
		in.NoteType = ledger.NotePrivate
	}

	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return Result{}, err
	}
	defer sess.Close()

	if _, err := sess.Store.GetAccount(ctx, in.Account); err != nil {
		return Result{}, err
	}

	minted, err := s.minter.Mint(ctx, ledger.MintRequest{Faucet: s.faucet, Target: in.Account, Amount: in.Amount, NoteType: in.NoteType})
	if err != nil {
		return Result{}, fmt.Errorf("%w: mint: %w", ledger.ErrSubmission, err)
	}

	res := Result{NoteID: minted.Note.ID, BlockNum: minted.BlockNum, Amount: in.Amount, Synced: true}
	if _, err := s.notes.Sync(ctx, sess); err != nil {
		s.logger.Warn("sync after mint failed", slog.String("account_id", in.Account.String()), slog.Any("error", err))
		res.Synced = false
	}
	s.logger.Info("account funded",
		slog.String("account_id", in.Account.String()),
		slog.String("note_id", minted.Note.ID.String()),
		slog.Uint64("amount", in.Amount),
	)
	return res, nil
}
