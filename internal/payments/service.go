package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/congo-pay/note_wallet/internal/ledger"
	"github.com/congo-pay/note_wallet/internal/lock"
	"github.com/congo-pay/note_wallet/internal/metrics"
	"github.com/congo-pay/note_wallet/internal/notes"
	"github.com/congo-pay/note_wallet/internal/notification"
	"github.com/congo-pay/note_wallet/internal/session"
	"github.com/congo-pay/note_wallet/internal/store"
)

// Config holds the orchestration policy.
type Config struct {
	// Faucet issues the asset every transfer moves.
	Faucet ledger.AccountID
	// PostSubmitSyncAttempts bounds the syncs tried after a successful
	// submission. Zero leaves reconciliation to the next natural sync.
	PostSubmitSyncAttempts int
	// PostSubmitSyncBackoff is the first delay between attempts.
	PostSubmitSyncBackoff time.Duration
}

// Service orchestrates transfers and note consumption.
type Service struct {
	cfg      Config
	sessions *session.Factory
	notes    *notes.Service
	locker   lock.Locker
	notifier notification.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewService constructs the transaction orchestrator. A nil locker falls back
// to an in-process keyed lock.
func NewService(cfg Config, sessions *session.Factory, noteSvc *notes.Service, locker lock.Locker, notifier notification.Notifier, m *metrics.Metrics, logger *slog.Logger) *Service {
	if locker == nil {
		locker = lock.NewKeyed()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PostSubmitSyncBackoff <= 0 {
		cfg.PostSubmitSyncBackoff = 200 * time.Millisecond
	}
	return &Service{
		cfg:      cfg,
		sessions: sessions,
		notes:    noteSvc,
		locker:   locker,
		notifier: notifier,
		metrics:  m,
		logger:   logger.With("component", "payments"),
	}
}

// Faucet returns the asset issuer transfers are made in.
func (s *Service) Faucet() ledger.AccountID {
	return s.cfg.Faucet
}

// TransferOutcome describes a submitted payment.
type TransferOutcome struct {
	TxID        ledger.TransactionID
	Sender      ledger.AccountID
	Target      ledger.AccountID
	Amount      uint64
	OutputNotes []ledger.NoteID
}

// TransferAsset pays amount of the configured asset from sender to target.
func (s *Service) TransferAsset(ctx context.Context, sender, target ledger.AccountID, amount uint64, opts ...PaymentOption) (out TransferOutcome, err error) {
	defer func() { s.record(KindPayment, err) }()

	req, err := BuildPayment(sender, target, s.cfg.Faucet, amount, opts...)
	if err != nil {
		return TransferOutcome{}, err
	}
	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return TransferOutcome{}, err
	}
	defer sess.Close()

	var exec Executed
	err = s.locker.WithLock(ctx, lock.AccountKey(sender), func(ctx context.Context) error {
		var err error
		if exec, err = s.Execute(ctx, sess, sender, req); err != nil {
			return err
		}
		return s.submit(ctx, sess, exec)
	})
	if err != nil {
		s.logger.Warn("transfer failed",
			slog.String("sender", sender.String()),
			slog.String("target", target.String()),
			slog.Uint64("amount", amount),
			slog.Any("error", err))
		return TransferOutcome{}, err
	}

	s.reconcile(ctx, sess)

	out = TransferOutcome{TxID: exec.ID, Sender: sender, Target: target, Amount: amount}
	for _, n := range exec.Body.OutputNotes {
		out.OutputNotes = append(out.OutputNotes, n.ID)
	}
	s.notify(ctx, notification.Message{
		Kind:          notification.KindTransfer,
		Destination:   target.String(),
		TransactionID: exec.ID.String(),
		Body:          fmt.Sprintf("%d sent from %s", amount, sender),
	})
	return out, nil
}

// ConsumeOutcome describes a submitted consumption.
type ConsumeOutcome struct {
	TxIDs         []ledger.TransactionID
	ConsumedNotes []ledger.NoteID
}

// ConsumeAvailableNotes consumes every note account may consume now in one
// transaction. Fails with ErrNoConsumableNotes without submitting anything
// when there is none.
func (s *Service) ConsumeAvailableNotes(ctx context.Context, account ledger.AccountID) (ConsumeOutcome, error) {
	return s.consume(ctx, account, nil)
}

// ConsumeNotes consumes the given notes into account.
func (s *Service) ConsumeNotes(ctx context.Context, account ledger.AccountID, ids []ledger.NoteID) (ConsumeOutcome, error) {
	if _, err := BuildConsumption(ids); err != nil {
		s.record(KindConsumption, err)
		return ConsumeOutcome{}, err
	}
	return s.consume(ctx, account, ids)
}

func (s *Service) consume(ctx context.Context, account ledger.AccountID, ids []ledger.NoteID) (out ConsumeOutcome, err error) {
	defer func() { s.record(KindConsumption, err) }()

	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return ConsumeOutcome{}, err
	}
	defer sess.Close()

	if _, err := s.notes.Sync(ctx, sess); err != nil {
		s.logger.Warn("sync before consume failed, using local state", slog.Any("error", err))
	}

	var exec Executed
	err = s.locker.WithLock(ctx, lock.AccountKey(account), func(ctx context.Context) error {
		selected := ids
		if selected == nil {
			available, err := s.notes.Consumable(ctx, sess, &account)
			if err != nil {
				return err
			}
			for _, n := range available {
				if n.ConsumableNow(account) {
					selected = append(selected, n.Note.ID)
				}
			}
			if len(selected) == 0 {
				return fmt.Errorf("%w for %s", ledger.ErrNoConsumableNotes, account)
			}
		}
		req, err := BuildConsumption(selected)
		if err != nil {
			return err
		}
		if exec, err = s.Execute(ctx, sess, account, req); err != nil {
			return err
		}
		return s.submit(ctx, sess, exec)
	})
	if err != nil {
		s.logger.Warn("consume failed", slog.String("account_id", account.String()), slog.Any("error", err))
		return ConsumeOutcome{}, err
	}

	s.reconcile(ctx, sess)

	out = ConsumeOutcome{TxIDs: []ledger.TransactionID{exec.ID}, ConsumedNotes: exec.Body.InputNotes}
	s.notify(ctx, notification.Message{
		Kind:          notification.KindConsume,
		Destination:   account.String(),
		TransactionID: exec.ID.String(),
		Body:          fmt.Sprintf("%d notes consumed", len(out.ConsumedNotes)),
	})
	return out, nil
}

// submit runs Submit under the account lock. On a submission failure the
// node may still hold the transaction, so the account is resynced before the
// lock is released.
func (s *Service) submit(ctx context.Context, sess *session.Session, exec Executed) error {
	_, err := s.Submit(ctx, sess, exec)
	if errors.Is(err, ledger.ErrSubmission) {
		s.reconcile(ctx, sess)
	}
	return err
}

// History lists the transactions this wallet submitted for account, oldest first.
func (s *Service) History(ctx context.Context, account ledger.AccountID) ([]store.TransactionRecord, error) {
	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Close()
	if _, err := sess.Store.GetAccount(ctx, account); err != nil {
		return nil, err
	}
	return sess.Store.ListTransactions(ctx, account)
}

// reconcile syncs after a submission. Failures are logged only: the
// transaction is already accepted and the next sync catches up.
func (s *Service) reconcile(ctx context.Context, sess *session.Session) {
	if s.cfg.PostSubmitSyncAttempts <= 0 {
		return
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.PostSubmitSyncBackoff
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(s.cfg.PostSubmitSyncAttempts-1)), ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		_, err := s.notes.Sync(ctx, sess)
		return err
	}, policy)
	if err != nil {
		s.logger.Warn("post-submit sync failed", slog.Int("attempts", attempt), slog.Any("error", err))
	}
}

func (s *Service) notify(ctx context.Context, msg notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("notification failed", slog.String("kind", msg.Kind), slog.Any("error", err))
	}
}

func (s *Service) record(kind Kind, err error) {
	outcome := metrics.OutcomeSubmitted
	if err != nil {
		outcome = metrics.OutcomeFailed
	}
	s.metrics.Transaction(string(kind), outcome)
}
