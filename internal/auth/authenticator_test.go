package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/congo-pay/note_wallet/internal/ledger"
	"github.com/congo-pay/note_wallet/internal/store"
)

func TestStoreAuthenticatorSignsWithStoredSeed(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	id := ledger.NewAccountID(42, ledger.StoragePrivate)
	seed := make([]byte, SeedSize)
	seed[0] = 7
	pub, err := DeriveKey(seed)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if err := st.InsertAccount(ctx, store.AccountRecord{ID: id, Seed: seed, PublicKey: pub}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	a := NewStoreAuthenticator(st)
	txID := ledger.TransactionID{1, 2, 3}
	sig, err := a.Sign(ctx, id, txID)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !Verify(pub, txID, sig) {
		t.Fatalf("signature does not verify")
	}
	if Verify(pub, ledger.TransactionID{9}, sig) {
		t.Fatalf("signature verified for a different transaction")
	}

	got, err := a.PublicKey(ctx, id)
	if err != nil || string(got) != string(pub) {
		t.Fatalf("public key mismatch: %v", err)
	}
}

func TestStoreAuthenticatorUnknownAccount(t *testing.T) {
	a := NewStoreAuthenticator(store.NewMemory())
	_, err := a.Sign(context.Background(), ledger.NewAccountID(1, ledger.StoragePublic), ledger.TransactionID{})
	if !errors.Is(err, store.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestDeriveKeyRejectsShortSeed(t *testing.T) {
	if _, err := DeriveKey([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error for short seed")
	}
}
