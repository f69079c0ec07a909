package payments

import (
	"fmt"

	"github.com/congo-pay/note_wallet/internal/ledger"
)

// Kind of transaction request.
type Kind string

const (
	KindPayment     Kind = "transfer"
	KindConsumption Kind = "consume"
)

// Payment moves Amount of Faucet's asset from Sender to Target in one output note.
type Payment struct {
	Sender       ledger.AccountID
	Target       ledger.AccountID
	Faucet       ledger.AccountID
	Amount       uint64
	NoteType     ledger.NoteType
	RecallHeight uint64
}

// Request is a transaction request that has not been executed yet.
type Request struct {
	Kind    Kind
	Payment *Payment
	// Notes are the input notes of a consumption, deduplicated.
	Notes []ledger.NoteID
}

// PaymentOption customises BuildPayment.
type PaymentOption func(*Payment)

// WithNoteType sets the visibility of the output note. Private by default.
func WithNoteType(t ledger.NoteType) PaymentOption {
	return func(p *Payment) { p.NoteType = t }
}

// WithRecallHeight lets the sender reclaim the note once the chain reaches h.
func WithRecallHeight(h uint64) PaymentOption {
	return func(p *Payment) { p.RecallHeight = h }
}

// BuildPayment validates and builds a payment request.
func BuildPayment(sender, target, faucet ledger.AccountID, amount uint64, opts ...PaymentOption) (Request, error) {
	if amount == 0 {
		return Request{}, ledger.ErrInvalidAmount
	}
	if sender == target {
		return Request{}, fmt.Errorf("%w: sender and target are both %s", ledger.ErrInvalidAccountID, sender)
	}
	p := &Payment{Sender: sender, Target: target, Faucet: faucet, Amount: amount, NoteType: ledger.NotePrivate}
	for _, opt := range opts {
		opt(p)
	}
	return Request{Kind: KindPayment, Payment: p}, nil
}

// BuildPaymentFromHex parses both account ids before building the payment.
func BuildPaymentFromHex(senderHex, targetHex string, faucet ledger.AccountID, amount uint64, opts ...PaymentOption) (Request, error) {
	sender, err := ledger.ParseAccountID(senderHex)
	if err != nil {
		return Request{}, err
	}
	target, err := ledger.ParseAccountID(targetHex)
	if err != nil {
		return Request{}, err
	}
	return BuildPayment(sender, target, faucet, amount, opts...)
}

// BuildConsumption builds a request consuming ids. Duplicates are dropped,
// keeping the first occurrence.
func BuildConsumption(ids []ledger.NoteID) (Request, error) {
	if len(ids) == 0 {
		return Request{}, ledger.ErrEmptyNoteSet
	}
	seen := make(map[ledger.NoteID]struct{}, len(ids))
	unique := make([]ledger.NoteID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	return Request{Kind: KindConsumption, Notes: unique}, nil
}
