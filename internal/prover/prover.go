package prover

import (
	"context"
	"crypto/subtle"

	"golang.org/x/crypto/blake2b"

	"github.com/congo-pay/note_wallet/internal/ledger"
)

var proofKey = []byte("note-wallet/proof/v1")

// Prover turns a signed, executed transaction into a proof artifact.
type Prover interface {
	Prove(ctx context.Context, body ledger.TransactionBody, signature []byte) ([]byte, error)
}

// Local proves transactions in-process.
type Local struct{}

// NewLocal constructs the in-process prover.
func NewLocal() *Local {
	return &Local{}
}

// Prove binds the transaction id and its signature into a keyed digest.
func (Local) Prove(ctx context.Context, body ledger.TransactionBody, signature []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return digest(ledger.ComputeTransactionID(body), signature), nil
}

// Verify checks the proof carried by tx.
func Verify(tx ledger.ProvenTransaction) bool {
	want := digest(ledger.ComputeTransactionID(tx.Body), tx.Signature)
	return subtle.ConstantTimeCompare(want, tx.Proof) == 1
}

func digest(id ledger.TransactionID, signature []byte) []byte {
	h, _ := blake2b.New256(proofKey)
	h.Write(id[:])
	h.Write(signature)
	return h.Sum(nil)
}
