package ledger

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"golang.org/x/crypto/blake2b"
)

// NoteType is the visibility of a note's details on the network.
type NoteType string

const (
	NotePrivate NoteType = "private"
	NotePublic  NoteType = "public"
)

// ParseNoteType accepts "private" or "public"; empty means private.
func ParseNoteType(s string) (NoteType, error) {
	switch NoteType(s) {
	case "", NotePrivate:
		return NotePrivate, nil
	case NotePublic:
		return NotePublic, nil
	default:
		return "", fmt.Errorf("%w: unknown note type %q", ErrValidation, s)
	}
}

// Asset is an amount of a fungible asset issued by Faucet.
type Asset struct {
	Faucet AccountID `json:"faucet"`
	Amount uint64    `json:"amount"`
}

// Vault holds fungible balances keyed by issuing faucet.
type Vault map[AccountID]uint64

// Balance returns the amount held for faucet, zero when absent.
func (v Vault) Balance(faucet AccountID) uint64 {
	return v[faucet]
}

// Clone returns an independent copy.
func (v Vault) Clone() Vault {
	out := make(Vault, len(v))
	for k, amt := range v {
		out[k] = amt
	}
	return out
}

// Add credits every asset into the vault.
func (v Vault) Add(assets ...Asset) error {
	for _, a := range assets {
		cur := v[a.Faucet]
		if cur+a.Amount < cur {
			return fmt.Errorf("vault overflow for faucet %s", a.Faucet)
		}
		v[a.Faucet] = cur + a.Amount
	}
	return nil
}

// Sub debits every asset, failing with ErrInsufficientBalance on underflow.
// The vault is left untouched when an error is returned.
func (v Vault) Sub(assets ...Asset) error {
	need := make(map[AccountID]uint64, len(assets))
	for _, a := range assets {
		need[a.Faucet] += a.Amount
	}
	for faucet, amt := range need {
		if v[faucet] < amt {
			return fmt.Errorf("%w: faucet %s has %d, need %d", ErrInsufficientBalance, faucet, v[faucet], amt)
		}
	}
	for faucet, amt := range need {
		v[faucet] -= amt
		if v[faucet] == 0 {
			delete(v, faucet)
		}
	}
	return nil
}

// Note is an immutable transfer of assets produced by a transaction. Target
// may consume it at any time; when RecallHeight is non-zero Sender may
// consume it once the chain reaches that height.
type Note struct {
	ID           NoteID    `json:"id"`
	Type         NoteType  `json:"type"`
	Sender       AccountID `json:"sender"`
	Target       AccountID `json:"target"`
	Assets       []Asset   `json:"assets"`
	Serial       Serial    `json:"serial"`
	RecallHeight uint64    `json:"recall_height,omitempty"`
}

// Amount sums the note's assets issued by faucet.
func (n Note) Amount(faucet AccountID) uint64 {
	var total uint64
	for _, a := range n.Assets {
		if a.Faucet == faucet {
			total += a.Amount
		}
	}
	return total
}

// ComputeNoteID derives the content address of n. The ID field is ignored.
func ComputeNoteID(n Note) NoteID {
	assets := append([]Asset(nil), n.Assets...)
	sort.Slice(assets, func(i, j int) bool { return assets[i].Faucet < assets[j].Faucet })

	h, _ := blake2b.New256(nil)
	h.Write([]byte("note/v1"))
	h.Write(n.Serial[:])
	writeUint64(h, uint64(n.Sender))
	writeUint64(h, uint64(n.Target))
	h.Write([]byte(n.Type))
	writeUint64(h, n.RecallHeight)
	writeUint64(h, uint64(len(assets)))
	for _, a := range assets {
		writeUint64(h, uint64(a.Faucet))
		writeUint64(h, a.Amount)
	}
	var id NoteID
	copy(id[:], h.Sum(nil))
	return id
}

// Seal fills in the note's ID.
func (n Note) Seal() Note {
	n.ID = ComputeNoteID(n)
	return n
}

// Relevance describes when an account may consume a note.
type Relevance struct {
	// After is zero when the note can be consumed now, otherwise the block
	// height from which it becomes consumable.
	After uint64
}

// Now reports whether the note is consumable immediately.
func (r Relevance) Now() bool { return r.After == 0 }

func (r Relevance) String() string {
	if r.Now() {
		return "Now"
	}
	return fmt.Sprintf("After block %d", r.After)
}

// ConsumableBy reports whether account may consume n at chain height tip and
// with which relevance. The second return value is false for accounts that
// can never consume n.
func (n Note) ConsumableBy(account AccountID, tip uint64) (Relevance, bool) {
	if n.Target == account {
		return Relevance{}, true
	}
	if n.RecallHeight > 0 && n.Sender == account {
		if tip >= n.RecallHeight {
			return Relevance{}, true
		}
		return Relevance{After: n.RecallHeight}, true
	}
	return Relevance{}, false
}

func writeUint64(w io.Writer, v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	w.Write(buf[:])
}
