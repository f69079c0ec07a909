// Package devnet is a single-process ledger node for development and tests.
// Every applied transaction or mint produces one block.
package devnet

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/congo-pay/note_wallet/internal/auth"
	"github.com/congo-pay/note_wallet/internal/ledger"
	"github.com/congo-pay/note_wallet/internal/prover"
)

// Version is reported by Status.
const Version = "devnet/1"

type accountEntry struct {
	nonce     uint64
	vault     ledger.Vault
	publicKey []byte
}

type noteEntry struct {
	note       ledger.Note
	block      uint64
	consumedAt uint64
}

// Node simulates a ledger node in memory.
type Node struct {
	mu       sync.RWMutex
	tip      uint64
	accounts map[ledger.AccountID]*accountEntry
	notes    map[ledger.NoteID]*noteEntry
	order    []ledger.NoteID
}

// New creates an empty chain at block zero.
func New() *Node {
	return &Node{
		accounts: make(map[ledger.AccountID]*accountEntry),
		notes:    make(map[ledger.NoteID]*noteEntry),
	}
}

// Status reports the chain tip.
func (n *Node) Status(ctx context.Context) (ledger.NodeStatus, error) {
	if err := ctx.Err(); err != nil {
		return ledger.NodeStatus{}, err
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	return ledger.NodeStatus{ChainTip: n.tip, Version: Version}, nil
}

// Mint issues a note from a faucet to a target in a new block.
func (n *Node) Mint(ctx context.Context, req ledger.MintRequest) (ledger.MintResponse, error) {
	if err := ctx.Err(); err != nil {
		return ledger.MintResponse{}, err
	}
	if req.Amount == 0 {
		return ledger.MintResponse{}, ledger.ErrInvalidAmount
	}
	if req.Faucet == req.Target {
		return ledger.MintResponse{}, fmt.Errorf("%w: faucet cannot mint to itself", ledger.ErrInvalidAccountID)
	}
	noteType, err := ledger.ParseNoteType(string(req.NoteType))
	if err != nil {
		return ledger.MintResponse{}, err
	}
	note := ledger.Note{
		Type:   noteType,
		Sender: req.Faucet,
		Target: req.Target,
		Assets: []ledger.Asset{{Faucet: req.Faucet, Amount: req.Amount}},
	}
	if _, err := rand.Read(note.Serial[:]); err != nil {
		return ledger.MintResponse{}, fmt.Errorf("mint serial: %w", err)
	}
	note = note.Seal()

	n.mu.Lock()
	defer n.mu.Unlock()
	n.tip++
	n.addNoteLocked(note)
	return ledger.MintResponse{Note: note, BlockNum: n.tip}, nil
}

func (n *Node) addNoteLocked(note ledger.Note) {
	n.notes[note.ID] = &noteEntry{note: note, block: n.tip}
	n.order = append(n.order, note.ID)
}

// SyncState returns notes, nullifiers and account states relevant to
// req.Accounts committed after req.FromBlock.
func (n *Node) SyncState(ctx context.Context, req ledger.SyncRequest) (ledger.SyncResponse, error) {
	if err := ctx.Err(); err != nil {
		return ledger.SyncResponse{}, err
	}
	tracked := make(map[ledger.AccountID]struct{}, len(req.Accounts))
	for _, id := range req.Accounts {
		tracked[id] = struct{}{}
	}

	n.mu.RLock()
	defer n.mu.RUnlock()

	resp := ledger.SyncResponse{
		ChainTip:   n.tip,
		Accounts:   []ledger.AccountState{},
		Notes:      []ledger.CommittedNote{},
		Nullifiers: []ledger.Nullifier{},
	}
	for _, id := range req.Accounts {
		acc, ok := n.accounts[id]
		if !ok {
			continue
		}
		resp.Accounts = append(resp.Accounts, ledger.AccountState{ID: id, Nonce: acc.nonce, Vault: acc.vault.Clone()})
	}
	for _, id := range n.order {
		e := n.notes[id]
		if !relevant(e.note, tracked) {
			continue
		}
		if e.block > req.FromBlock {
			resp.Notes = append(resp.Notes, ledger.CommittedNote{Note: e.note, BlockNum: e.block})
		}
		if e.consumedAt > req.FromBlock {
			resp.Nullifiers = append(resp.Nullifiers, ledger.Nullifier{NoteID: id, BlockNum: e.consumedAt})
		}
	}
	return resp, nil
}

func relevant(note ledger.Note, tracked map[ledger.AccountID]struct{}) bool {
	if _, ok := tracked[note.Target]; ok {
		return true
	}
	if note.RecallHeight > 0 {
		_, ok := tracked[note.Sender]
		return ok
	}
	return false
}

// GetNotes reports the inclusion status of ids. Details are only revealed for
// public notes.
func (n *Node) GetNotes(ctx context.Context, ids []ledger.NoteID) ([]ledger.NoteInclusion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]ledger.NoteInclusion, 0, len(ids))
	for _, id := range ids {
		e, ok := n.notes[id]
		if !ok {
			out = append(out, ledger.NoteInclusion{ID: id, Status: ledger.InclusionUnknown})
			continue
		}
		inc := ledger.NoteInclusion{ID: id, Status: ledger.InclusionCommitted, BlockNum: e.block}
		if e.consumedAt > 0 {
			inc.Status = ledger.InclusionConsumed
		}
		if e.note.Type == ledger.NotePublic {
			note := e.note
			inc.Note = &note
		}
		out = append(out, inc)
	}
	return out, nil
}

// SubmitTransaction verifies tx and applies it in a new block. Refusals are
// returned as *ledger.RejectionError.
func (n *Node) SubmitTransaction(ctx context.Context, tx ledger.ProvenTransaction) (ledger.SubmitResult, error) {
	if err := ctx.Err(); err != nil {
		return ledger.SubmitResult{}, err
	}
	body := tx.Body
	if ledger.ComputeTransactionID(body) != tx.ID {
		return ledger.SubmitResult{}, ledger.Reject(ledger.RejectMalformed, "transaction id does not match body")
	}
	if body.FinalNonce != body.InitNonce+1 {
		return ledger.SubmitResult{}, ledger.Reject(ledger.RejectMalformed, "final nonce must be %d", body.InitNonce+1)
	}
	if len(body.InputNotes) == 0 && len(body.OutputNotes) == 0 {
		return ledger.SubmitResult{}, ledger.Reject(ledger.RejectMalformed, "transaction has no effect")
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	acc, known := n.accounts[body.AccountID]
	var current uint64
	if known {
		current = acc.nonce
	}
	if body.InitNonce != current {
		return ledger.SubmitResult{}, ledger.Reject(ledger.RejectNonceConflict, "account %s is at nonce %d, transaction starts at %d", body.AccountID, current, body.InitNonce)
	}

	publicKey := body.PublicKey
	if known {
		if len(publicKey) > 0 && string(publicKey) != string(acc.publicKey) {
			return ledger.SubmitResult{}, ledger.Reject(ledger.RejectInvalidSignature, "public key differs from registered key")
		}
		publicKey = acc.publicKey
	}
	if len(publicKey) == 0 {
		return ledger.SubmitResult{}, ledger.Reject(ledger.RejectInvalidSignature, "account %s has no registered key", body.AccountID)
	}
	if !auth.Verify(publicKey, tx.ID, tx.Signature) {
		return ledger.SubmitResult{}, ledger.Reject(ledger.RejectInvalidSignature, "signature does not verify")
	}
	if !prover.Verify(tx) {
		return ledger.SubmitResult{}, ledger.Reject(ledger.RejectInvalidProof, "proof does not verify")
	}

	inputs := make([]ledger.Note, 0, len(body.InputNotes))
	seen := make(map[ledger.NoteID]struct{}, len(body.InputNotes))
	for _, id := range body.InputNotes {
		if _, dup := seen[id]; dup {
			return ledger.SubmitResult{}, ledger.Reject(ledger.RejectMalformed, "note %s consumed twice", id)
		}
		seen[id] = struct{}{}
		e, ok := n.notes[id]
		if !ok || e.consumedAt > 0 {
			return ledger.SubmitResult{}, ledger.Reject(ledger.RejectUnknownNote, "note %s is unknown or already consumed", id)
		}
		if rel, ok := e.note.ConsumableBy(body.AccountID, n.tip); !ok || !rel.Now() {
			return ledger.SubmitResult{}, ledger.Reject(ledger.RejectUnknownNote, "note %s is not consumable by %s", id, body.AccountID)
		}
		inputs = append(inputs, e.note)
	}
	for _, out := range body.OutputNotes {
		if ledger.ComputeNoteID(out) != out.ID {
			return ledger.SubmitResult{}, ledger.Reject(ledger.RejectMalformed, "output note id %s does not match contents", out.ID)
		}
		if out.Sender != body.AccountID {
			return ledger.SubmitResult{}, ledger.Reject(ledger.RejectMalformed, "output note %s not sent by %s", out.ID, body.AccountID)
		}
		if _, exists := n.notes[out.ID]; exists {
			return ledger.SubmitResult{}, ledger.Reject(ledger.RejectMalformed, "output note %s already exists", out.ID)
		}
	}

	var vault ledger.Vault
	if known {
		vault = acc.vault
	}
	next, err := body.VaultDelta(vault, inputs)
	if err != nil {
		return ledger.SubmitResult{}, ledger.Reject(ledger.RejectInsufficientFunds, "%v", err)
	}

	n.tip++
	if !known {
		acc = &accountEntry{}
		n.accounts[body.AccountID] = acc
	}
	acc.nonce = body.FinalNonce
	acc.vault = next
	acc.publicKey = append([]byte(nil), publicKey...)
	for _, id := range body.InputNotes {
		n.notes[id].consumedAt = n.tip
	}
	for _, out := range body.OutputNotes {
		n.addNoteLocked(out)
	}
	return ledger.SubmitResult{BlockNum: n.tip}, nil
}

// Account returns the on-chain state of id.
func (n *Node) Account(id ledger.AccountID) (ledger.AccountState, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	acc, ok := n.accounts[id]
	if !ok {
		return ledger.AccountState{}, false
	}
	return ledger.AccountState{ID: id, Nonce: acc.nonce, Vault: acc.vault.Clone()}, true
}

var (
	_ ledger.Node   = (*Node)(nil)
	_ ledger.Minter = (*Node)(nil)
)
