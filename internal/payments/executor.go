package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/congo-pay/note_wallet/internal/ledger"
	"github.com/congo-pay/note_wallet/internal/session"
	"github.com/congo-pay/note_wallet/internal/store"
)

const defaultSubmitTimeout = 30 * time.Second

// Executed is a request executed against local state, ready to be proven.
type Executed struct {
	Kind       Kind
	ID         ledger.TransactionID
	Body       ledger.TransactionBody
	Inputs     []ledger.Note
	FinalVault ledger.Vault
}

// Execute runs req for account against the session's store. The store is
// not modified.
func (s *Service) Execute(ctx context.Context, sess *session.Session, account ledger.AccountID, req Request) (Executed, error) {
	start := time.Now()
	defer s.metrics.ObserveStage("execute", start)

	acc, err := sess.Store.GetAccount(ctx, account)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return Executed{}, fmt.Errorf("%w: %s", ledger.ErrUnknownAccount, account)
		}
		return Executed{}, err
	}
	height, err := sess.Store.SyncHeight(ctx)
	if err != nil {
		return Executed{}, err
	}

	body := ledger.TransactionBody{
		AccountID:  account,
		InitNonce:  acc.Nonce,
		FinalNonce: acc.Nonce + 1,
		BlockRef:   height,
	}
	if acc.Nonce == 0 {
		body.PublicKey = acc.PublicKey
	}

	var inputs []ledger.Note
	switch req.Kind {
	case KindPayment:
		p := req.Payment
		if p == nil || p.Sender != account {
			return Executed{}, fmt.Errorf("%w: payment is not sent by %s", ledger.ErrValidation, account)
		}
		serial, err := sess.Serial()
		if err != nil {
			return Executed{}, fmt.Errorf("%w: %v", ledger.ErrExecution, err)
		}
		out := ledger.Note{
			Type:         p.NoteType,
			Sender:       p.Sender,
			Target:       p.Target,
			Assets:       []ledger.Asset{{Faucet: p.Faucet, Amount: p.Amount}},
			Serial:       serial,
			RecallHeight: p.RecallHeight,
		}.Seal()
		body.OutputNotes = []ledger.Note{out}
	case KindConsumption:
		if len(req.Notes) == 0 {
			return Executed{}, ledger.ErrEmptyNoteSet
		}
		for _, id := range req.Notes {
			note, err := consumableInput(ctx, sess.Store, account, height, id)
			if err != nil {
				return Executed{}, err
			}
			inputs = append(inputs, note)
			body.InputNotes = append(body.InputNotes, id)
		}
	default:
		return Executed{}, fmt.Errorf("%w: unknown request kind %q", ledger.ErrValidation, req.Kind)
	}

	final, err := body.VaultDelta(acc.Vault, inputs)
	if err != nil {
		if errors.Is(err, ledger.ErrExecution) {
			return Executed{}, err
		}
		return Executed{}, fmt.Errorf("%w: %v", ledger.ErrExecution, err)
	}
	return Executed{
		Kind:       req.Kind,
		ID:         ledger.ComputeTransactionID(body),
		Body:       body,
		Inputs:     inputs,
		FinalVault: final,
	}, nil
}

func consumableInput(ctx context.Context, st store.Store, account ledger.AccountID, height uint64, id ledger.NoteID) (ledger.Note, error) {
	rec, err := st.GetNote(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNoteNotFound) {
			return ledger.Note{}, fmt.Errorf("%w: %s", ledger.ErrUnknownNote, id)
		}
		return ledger.Note{}, err
	}
	if rec.Status != store.NoteCommitted {
		return ledger.Note{}, fmt.Errorf("%w: %s is %s", ledger.ErrUnknownNote, id, rec.Status)
	}
	rel, ok := rec.Note.ConsumableBy(account, height)
	if !ok || !rel.Now() {
		return ledger.Note{}, fmt.Errorf("%w: %s is not consumable by %s", ledger.ErrUnknownNote, id, account)
	}
	return rec.Note, nil
}

// Submit signs, proves and submits exec, then records it in the store. The
// node call is detached from caller cancellation and bounded by the endpoint
// timeout.
func (s *Service) Submit(ctx context.Context, sess *session.Session, exec Executed) (ledger.TransactionID, error) {
	account := exec.Body.AccountID
	signature, err := sess.Authenticator.Sign(ctx, account, exec.ID)
	if err != nil {
		return ledger.TransactionID{}, fmt.Errorf("%w: sign: %v", ledger.ErrExecution, err)
	}
	proveStart := time.Now()
	proof, err := sess.Prover.Prove(ctx, exec.Body, signature)
	s.metrics.ObserveStage("prove", proveStart)
	if err != nil {
		return ledger.TransactionID{}, fmt.Errorf("%w: prove: %v", ledger.ErrExecution, err)
	}

	timeout := sess.Endpoint.Timeout
	if timeout <= 0 {
		timeout = defaultSubmitTimeout
	}
	submitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	submitStart := time.Now()
	res, err := sess.Node.SubmitTransaction(submitCtx, ledger.ProvenTransaction{
		ID:        exec.ID,
		Body:      exec.Body,
		Signature: signature,
		Proof:     proof,
	})
	s.metrics.ObserveStage("submit", submitStart)
	if err != nil {
		return ledger.TransactionID{}, fmt.Errorf("%w: %w", ledger.ErrSubmission, err)
	}

	err = sess.Store.ApplyTransaction(submitCtx, store.TransactionRecord{
		ID:          exec.ID,
		AccountID:   account,
		InitNonce:   exec.Body.InitNonce,
		FinalNonce:  exec.Body.FinalNonce,
		FinalVault:  exec.FinalVault,
		InputNotes:  exec.Body.InputNotes,
		OutputNotes: exec.Body.OutputNotes,
		BlockNum:    res.BlockNum,
		SubmittedAt: time.Now().UTC(),
	})
	if err != nil {
		// The node accepted the transaction; the next sync reconciles the
		// account. Output notes to untracked targets only live here.
		s.logger.Error("record submitted transaction",
			slog.String("tx_id", exec.ID.String()),
			slog.String("account_id", account.String()),
			slog.Any("error", err))
		for _, n := range exec.Body.OutputNotes {
			if perr := sess.Store.PutNote(submitCtx, store.NoteRecord{Note: n, Status: store.NoteExpected}); perr != nil {
				s.logger.Error("record output note",
					slog.String("tx_id", exec.ID.String()),
					slog.String("note_id", n.ID.String()),
					slog.Any("error", perr))
			}
		}
	}
	s.logger.Info("transaction submitted",
		slog.String("tx_id", exec.ID.String()),
		slog.String("kind", string(exec.Kind)),
		slog.String("account_id", account.String()),
		slog.Uint64("block_num", res.BlockNum))
	return exec.ID, nil
}
