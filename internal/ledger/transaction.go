package ledger

import (
	"golang.org/x/crypto/blake2b"
)

// TransactionBody is the effect of an executed transaction as the node sees
// it. The vault change is implied: inputs are credited, outputs debited.
type TransactionBody struct {
	AccountID   AccountID `json:"account_id"`
	InitNonce   uint64    `json:"init_nonce"`
	FinalNonce  uint64    `json:"final_nonce"`
	InputNotes  []NoteID  `json:"input_notes"`
	OutputNotes []Note    `json:"output_notes"`
	// PublicKey registers the account key with the node; required on the
	// account's first transaction (InitNonce zero).
	PublicKey []byte `json:"public_key,omitempty"`
	// BlockRef is the chain height the executor's view was synced to.
	BlockRef uint64 `json:"block_ref"`
}

// ComputeTransactionID derives the content address of body.
func ComputeTransactionID(body TransactionBody) TransactionID {
	h, _ := blake2b.New256(nil)
	h.Write([]byte("tx/v1"))
	writeUint64(h, uint64(body.AccountID))
	writeUint64(h, body.InitNonce)
	writeUint64(h, body.FinalNonce)
	writeUint64(h, body.BlockRef)
	writeUint64(h, uint64(len(body.InputNotes)))
	for _, id := range body.InputNotes {
		h.Write(id[:])
	}
	writeUint64(h, uint64(len(body.OutputNotes)))
	for _, n := range body.OutputNotes {
		id := ComputeNoteID(n)
		h.Write(id[:])
	}
	writeUint64(h, uint64(len(body.PublicKey)))
	h.Write(body.PublicKey)
	var id TransactionID
	copy(id[:], h.Sum(nil))
	return id
}

// VaultDelta applies the body's implied balance change to a copy of v.
func (body TransactionBody) VaultDelta(v Vault, inputs []Note) (Vault, error) {
	out := v.Clone()
	for _, n := range inputs {
		if err := out.Add(n.Assets...); err != nil {
			return nil, err
		}
	}
	for _, n := range body.OutputNotes {
		if err := out.Sub(n.Assets...); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ProvenTransaction is what gets submitted to the node.
type ProvenTransaction struct {
	ID        TransactionID   `json:"id"`
	Body      TransactionBody `json:"body"`
	Signature []byte          `json:"signature"`
	Proof     []byte          `json:"proof"`
}
