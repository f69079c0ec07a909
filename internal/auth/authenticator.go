package auth

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/congo-pay/note_wallet/internal/ledger"
	"github.com/congo-pay/note_wallet/internal/store"
)

// SeedSize is the length of an account key seed.
const SeedSize = ed25519.SeedSize

var (
	// ErrNoKey is returned when the store holds no usable key for an account.
	ErrNoKey = errors.New("no signing key for account")
)

// Authenticator signs executed transactions on behalf of an account.
type Authenticator interface {
	Sign(ctx context.Context, account ledger.AccountID, txID ledger.TransactionID) ([]byte, error)
	PublicKey(ctx context.Context, account ledger.AccountID) ([]byte, error)
}

// StoreAuthenticator derives keys from the seeds held in the local store.
type StoreAuthenticator struct {
	store store.Store
}

// NewStoreAuthenticator builds an authenticator backed by st.
func NewStoreAuthenticator(st store.Store) *StoreAuthenticator {
	return &StoreAuthenticator{store: st}
}

// Sign signs txID with the account key.
func (a *StoreAuthenticator) Sign(ctx context.Context, account ledger.AccountID, txID ledger.TransactionID) ([]byte, error) {
	key, err := a.privateKey(ctx, account)
	if err != nil {
		return nil, err
	}
	return ed25519.Sign(key, txID[:]), nil
}

// PublicKey returns the account's verification key.
func (a *StoreAuthenticator) PublicKey(ctx context.Context, account ledger.AccountID) ([]byte, error) {
	key, err := a.privateKey(ctx, account)
	if err != nil {
		return nil, err
	}
	return key.Public().(ed25519.PublicKey), nil
}

func (a *StoreAuthenticator) privateKey(ctx context.Context, account ledger.AccountID) (ed25519.PrivateKey, error) {
	acc, err := a.store.GetAccount(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("load key for %s: %w", account, err)
	}
	if len(acc.Seed) != SeedSize {
		return nil, fmt.Errorf("%w %s", ErrNoKey, account)
	}
	return ed25519.NewKeyFromSeed(acc.Seed), nil
}

// DeriveKey returns the public key for seed.
func DeriveKey(seed []byte) ([]byte, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	return ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey), nil
}

// Verify checks signature over txID against publicKey.
func Verify(publicKey []byte, txID ledger.TransactionID, signature []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(publicKey, txID[:], signature)
}
