package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/congo-pay/note_wallet/internal/auth"
	"github.com/congo-pay/note_wallet/internal/ledger"
	"github.com/congo-pay/note_wallet/internal/notes"
	"github.com/congo-pay/note_wallet/internal/session"
	"github.com/congo-pay/note_wallet/internal/store"
)

const maxCreateAttempts = 3

var accountTemplate = []byte("note-wallet/basic-wallet/v1")

// Service creates accounts and reports their balances.
type Service struct {
	sessions *session.Factory
	notes    *notes.Service
	logger   *slog.Logger
}

// NewService builds the account manager.
func NewService(sessions *session.Factory, noteSvc *notes.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{sessions: sessions, notes: noteSvc, logger: logger.With("component", "wallet")}
}

// CreateAccount derives a new account from fresh session randomness and
// registers it in the local store.
func (s *Service) CreateAccount(ctx context.Context, mode ledger.StorageMode) (ledger.AccountID, error) {
	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return 0, err
	}
	defer sess.Close()

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		seed := make([]byte, auth.SeedSize)
		if _, err := sess.Read(seed); err != nil {
			return 0, fmt.Errorf("%w: %v", ledger.ErrAccountCreation, err)
		}
		publicKey, err := auth.DeriveKey(seed)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ledger.ErrAccountCreation, err)
		}
		id := DeriveAccountID(seed, mode)

		err = sess.Store.InsertAccount(ctx, store.AccountRecord{
			ID:        id,
			Mode:      mode,
			Vault:     ledger.Vault{},
			Seed:      seed,
			PublicKey: publicKey,
			CreatedAt: time.Now().UTC(),
		})
		if errors.Is(err, store.ErrAccountExists) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ledger.ErrAccountCreation, err)
		}
		s.logger.Info("account created", slog.String("account_id", id.String()), slog.String("storage_mode", string(mode)))
		return id, nil
	}
	return 0, fmt.Errorf("%w: no unique account id after %d attempts", ledger.ErrAccountCreation, maxCreateAttempts)
}

// DeriveAccountID maps a key seed to an account id with the storage mode bits set.
func DeriveAccountID(seed []byte, mode ledger.StorageMode) ledger.AccountID {
	h, _ := blake2b.New256(nil)
	h.Write(accountTemplate)
	h.Write(seed)
	sum := h.Sum(nil)
	var raw uint64
	for _, b := range sum[:8] {
		raw = raw<<8 | uint64(b)
	}
	return ledger.NewAccountID(raw, mode)
}

// ListAccountsWithBalances syncs on a best-effort basis and lists every local
// account with its faucet balance, in creation order.
func (s *Service) ListAccountsWithBalances(ctx context.Context, faucet ledger.AccountID) (Listing, error) {
	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return Listing{}, err
	}
	defer sess.Close()

	listing := Listing{Faucet: faucet, Accounts: []Account{}}
	if _, err := s.notes.Sync(ctx, sess); err != nil {
		s.logger.Warn("sync before listing failed, serving local state", slog.Any("error", err))
		listing.Stale = true
	}

	accounts, err := sess.Store.ListAccounts(ctx)
	if err != nil {
		return Listing{}, err
	}
	consumable, err := s.notes.Consumable(ctx, sess, nil)
	if err != nil {
		return Listing{}, err
	}
	pending := notes.Pending(consumable, faucet)
	if listing.SyncHeight, err = sess.Store.SyncHeight(ctx); err != nil {
		return Listing{}, err
	}

	for i, acc := range accounts {
		listing.Accounts = append(listing.Accounts, Account{
			Index:       i,
			ID:          acc.ID,
			StorageMode: acc.Mode,
			Nonce:       acc.Nonce,
			Balance:     acc.Vault.Balance(faucet),
			Pending:     pending[acc.ID],
			CreatedAt:   acc.CreatedAt,
		})
	}
	return listing, nil
}

// Balance returns the faucet balance of one account from local state.
func (s *Service) Balance(ctx context.Context, id, faucet ledger.AccountID) (Balance, error) {
	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return Balance{}, err
	}
	defer sess.Close()

	acc, err := sess.Store.GetAccount(ctx, id)
	if err != nil {
		return Balance{}, err
	}
	consumable, err := s.notes.Consumable(ctx, sess, &id)
	if err != nil {
		return Balance{}, err
	}
	return Balance{
		AccountID: id,
		Faucet:    faucet,
		Amount:    acc.Vault.Balance(faucet),
		Pending:   notes.Pending(consumable, faucet)[id],
		AsOf:      time.Now().UTC(),
	}, nil
}
