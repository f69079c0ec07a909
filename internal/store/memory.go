package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/congo-pay/note_wallet/internal/ledger"
)

type memoryStore struct {
	mu           sync.RWMutex
	accounts     map[ledger.AccountID]AccountRecord
	order        []ledger.AccountID
	notes        map[ledger.NoteID]NoteRecord
	transactions []TransactionRecord
	height       uint64
	closed       bool
}

// NewMemory constructs a concurrency-safe in-memory store for development and tests.
func NewMemory() Store {
	return &memoryStore{
		accounts: make(map[ledger.AccountID]AccountRecord),
		notes:    make(map[ledger.NoteID]NoteRecord),
	}
}

func (s *memoryStore) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errClosed
	}
	return nil
}

func (s *memoryStore) InsertAccount(_ context.Context, acc AccountRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[acc.ID]; exists {
		return ErrAccountExists
	}
	acc = copyAccount(acc)
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = time.Now().UTC()
	}
	s.accounts[acc.ID] = acc
	s.order = append(s.order, acc.ID)
	return nil
}

func (s *memoryStore) GetAccount(_ context.Context, id ledger.AccountID) (AccountRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[id]
	if !ok {
		return AccountRecord{}, ErrAccountNotFound
	}
	return copyAccount(acc), nil
}

func (s *memoryStore) ListAccounts(_ context.Context) ([]AccountRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AccountRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, copyAccount(s.accounts[id]))
	}
	return out, nil
}

func (s *memoryStore) PutNote(_ context.Context, rec NoteRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putNoteLocked(rec)
	return nil
}

// putNoteLocked reports whether the note is new or moved to committed.
func (s *memoryStore) putNoteLocked(rec NoteRecord) bool {
	existing, ok := s.notes[rec.Note.ID]
	rec.UpdatedAt = time.Now().UTC()
	if !ok {
		s.notes[rec.Note.ID] = rec
		return true
	}
	if rec.Status <= existing.Status {
		if existing.BlockNum == 0 && rec.BlockNum > 0 {
			existing.BlockNum = rec.BlockNum
			s.notes[rec.Note.ID] = existing
		}
		return false
	}
	if rec.BlockNum == 0 {
		rec.BlockNum = existing.BlockNum
	}
	s.notes[rec.Note.ID] = rec
	return existing.Status == NoteExpected && rec.Status == NoteCommitted
}

func (s *memoryStore) GetNote(_ context.Context, id ledger.NoteID) (NoteRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.notes[id]
	if !ok {
		return NoteRecord{}, ErrNoteNotFound
	}
	return rec, nil
}

func (s *memoryStore) ListNotes(_ context.Context, filter NoteFilter) ([]NoteRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]NoteRecord, 0)
	for _, rec := range s.notes {
		if filter.matches(rec) {
			out = append(out, rec)
		}
	}
	sortNotes(out)
	return out, nil
}

func (s *memoryStore) ApplyTransaction(_ context.Context, tx TransactionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[tx.AccountID]
	if !ok {
		return ErrAccountNotFound
	}
	if acc.Nonce != tx.InitNonce {
		return ErrStaleNonce
	}
	for _, id := range tx.InputNotes {
		rec, ok := s.notes[id]
		if !ok || rec.Status != NoteCommitted {
			return ErrNoteUnavailable
		}
	}

	now := time.Now().UTC()
	acc.Nonce = tx.FinalNonce
	acc.Vault = tx.FinalVault.Clone()
	s.accounts[acc.ID] = acc
	for _, id := range tx.InputNotes {
		rec := s.notes[id]
		rec.Status = NoteProcessing
		rec.UpdatedAt = now
		s.notes[id] = rec
	}
	for _, n := range tx.OutputNotes {
		s.putNoteLocked(NoteRecord{Note: n, Status: NoteExpected})
	}
	tx.SubmittedAt = now
	s.transactions = append(s.transactions, tx)
	return nil
}

func (s *memoryStore) ListTransactions(_ context.Context, account ledger.AccountID) ([]TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TransactionRecord, 0)
	for _, tx := range s.transactions {
		if tx.AccountID == account {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *memoryStore) ApplySync(_ context.Context, update SyncUpdate) (SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := SyncResult{BlockNum: s.height}
	for _, st := range update.Accounts {
		acc, ok := s.accounts[st.ID]
		if !ok || st.Nonce <= acc.Nonce {
			continue
		}
		acc.Nonce = st.Nonce
		acc.Vault = st.Vault.Clone()
		s.accounts[st.ID] = acc
		res.UpdatedAccounts++
	}
	for _, cn := range update.Notes {
		if s.putNoteLocked(NoteRecord{Note: cn.Note, Status: NoteCommitted, BlockNum: cn.BlockNum}) {
			res.NewNotes++
		}
	}
	for _, nf := range update.Nullifiers {
		rec, ok := s.notes[nf.NoteID]
		if !ok || rec.Status == NoteConsumed {
			continue
		}
		rec.Status = NoteConsumed
		rec.UpdatedAt = time.Now().UTC()
		s.notes[nf.NoteID] = rec
		res.ConsumedNotes++
	}
	if update.BlockNum > s.height {
		s.height = update.BlockNum
	}
	res.BlockNum = s.height
	return res, nil
}

func (s *memoryStore) SyncHeight(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.height, nil
}

func (s *memoryStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func copyAccount(acc AccountRecord) AccountRecord {
	acc.Vault = acc.Vault.Clone()
	acc.Seed = append([]byte(nil), acc.Seed...)
	acc.PublicKey = append([]byte(nil), acc.PublicKey...)
	return acc
}

func sortNotes(notes []NoteRecord) {
	sort.Slice(notes, func(i, j int) bool {
		if notes[i].BlockNum != notes[j].BlockNum {
			return notes[i].BlockNum < notes[j].BlockNum
		}
		return notes[i].Note.ID.String() < notes[j].Note.ID.String()
	})
}
