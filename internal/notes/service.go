package notes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/congo-pay/note_wallet/internal/ledger"
	"github.com/congo-pay/note_wallet/internal/metrics"
	"github.com/congo-pay/note_wallet/internal/notefile"
	"github.com/congo-pay/note_wallet/internal/session"
	"github.com/congo-pay/note_wallet/internal/store"
)

// Service synchronizes local state and selects consumable notes.
type Service struct {
	sessions *session.Factory
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewService builds a note selector.
func NewService(sessions *session.Factory, m *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{sessions: sessions, metrics: m, logger: logger.With("component", "notes")}
}

// SyncSummary reports the outcome of one sync.
type SyncSummary struct {
	BlockNum        uint64 `json:"block_num"`
	NewNotes        int    `json:"new_notes"`
	ConsumedNotes   int    `json:"consumed_notes"`
	UpdatedAccounts int    `json:"updated_accounts"`
}

// AccountRelevance says when Account may consume a note.
type AccountRelevance struct {
	Account   ledger.AccountID
	Relevance ledger.Relevance
}

// ConsumableNote is a committed, unspent note with at least one local consumer.
type ConsumableNote struct {
	Note       ledger.Note
	BlockNum   uint64
	Relevances []AccountRelevance
}

// ConsumableNow reports whether account may consume the note at the current height.
func (c ConsumableNote) ConsumableNow(account ledger.AccountID) bool {
	for _, r := range c.Relevances {
		if r.Account == account && r.Relevance.Now() {
			return true
		}
	}
	return false
}

// SyncState pulls the latest network view into the local store.
func (s *Service) SyncState(ctx context.Context) (SyncSummary, error) {
	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return SyncSummary{}, err
	}
	defer sess.Close()
	return s.Sync(ctx, sess)
}

// Sync runs a sync inside an existing session. On failure the store is unchanged.
func (s *Service) Sync(ctx context.Context, sess *session.Session) (summary SyncSummary, err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveStage("sync", start)
		s.metrics.Sync(err, summary.NewNotes)
	}()

	height, err := sess.Store.SyncHeight(ctx)
	if err != nil {
		return SyncSummary{}, fmt.Errorf("%w: read sync height: %v", ledger.ErrSync, err)
	}
	accounts, err := sess.Store.ListAccounts(ctx)
	if err != nil {
		return SyncSummary{}, fmt.Errorf("%w: list accounts: %v", ledger.ErrSync, err)
	}
	ids := make([]ledger.AccountID, 0, len(accounts))
	for _, acc := range accounts {
		ids = append(ids, acc.ID)
	}

	resp, err := sess.Node.SyncState(ctx, ledger.SyncRequest{FromBlock: height, Accounts: ids})
	if err != nil {
		return SyncSummary{}, fmt.Errorf("%w: %v", ledger.ErrSync, err)
	}
	res, err := sess.Store.ApplySync(ctx, store.SyncUpdate{
		BlockNum:   resp.ChainTip,
		Accounts:   resp.Accounts,
		Notes:      resp.Notes,
		Nullifiers: resp.Nullifiers,
	})
	if err != nil {
		return SyncSummary{}, fmt.Errorf("%w: apply: %v", ledger.ErrSync, err)
	}

	summary = SyncSummary{
		BlockNum:        res.BlockNum,
		NewNotes:        res.NewNotes,
		ConsumedNotes:   res.ConsumedNotes,
		UpdatedAccounts: res.UpdatedAccounts,
	}
	s.logger.Debug("synced", slog.Uint64("block_num", summary.BlockNum), slog.Int("new_notes", summary.NewNotes), slog.Int("consumed_notes", summary.ConsumedNotes))
	return summary, nil
}

// ConsumableNotes lists consumable notes, restricted to account when non-nil.
func (s *Service) ConsumableNotes(ctx context.Context, account *ledger.AccountID) ([]ConsumableNote, error) {
	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Close()
	return s.Consumable(ctx, sess, account)
}

// Consumable lists consumable notes inside an existing session, ordered by
// block number. Consumed and in-flight notes are never returned.
func (s *Service) Consumable(ctx context.Context, sess *session.Session, account *ledger.AccountID) ([]ConsumableNote, error) {
	height, err := sess.Store.SyncHeight(ctx)
	if err != nil {
		return nil, err
	}
	var candidates []ledger.AccountID
	if account != nil {
		if _, err := sess.Store.GetAccount(ctx, *account); err != nil {
			if errors.Is(err, store.ErrAccountNotFound) {
				return []ConsumableNote{}, nil
			}
			return nil, err
		}
		candidates = []ledger.AccountID{*account}
	} else {
		accounts, err := sess.Store.ListAccounts(ctx)
		if err != nil {
			return nil, err
		}
		for _, acc := range accounts {
			candidates = append(candidates, acc.ID)
		}
	}

	recs, err := sess.Store.ListNotes(ctx, store.NoteFilter{Statuses: []store.NoteStatus{store.NoteCommitted}})
	if err != nil {
		return nil, err
	}
	out := make([]ConsumableNote, 0, len(recs))
	for _, rec := range recs {
		var rels []AccountRelevance
		for _, id := range candidates {
			if r, ok := rec.Note.ConsumableBy(id, height); ok {
				rels = append(rels, AccountRelevance{Account: id, Relevance: r})
			}
		}
		if len(rels) == 0 {
			continue
		}
		out = append(out, ConsumableNote{Note: rec.Note, BlockNum: rec.BlockNum, Relevances: rels})
	}
	return out, nil
}

// Pending sums, per account, the faucet amount held in notes the account may consume now.
func Pending(notes []ConsumableNote, faucet ledger.AccountID) map[ledger.AccountID]uint64 {
	out := make(map[ledger.AccountID]uint64)
	for _, n := range notes {
		amount := n.Note.Amount(faucet)
		if amount == 0 {
			continue
		}
		for _, r := range n.Relevances {
			if r.Relevance.Now() {
				out[r.Account] += amount
			}
		}
	}
	return out
}

// ImportResult is the outcome of importing one note.
type ImportResult struct {
	ID     ledger.NoteID
	Status store.NoteStatus
}

// Import decodes a note file, checks its inclusion with the node and records it.
func (s *Service) Import(ctx context.Context, data []byte) (ImportResult, error) {
	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return ImportResult{}, err
	}
	defer sess.Close()
	return s.importNote(ctx, sess, data)
}

func (s *Service) importNote(ctx context.Context, sess *session.Session, data []byte) (ImportResult, error) {
	note, err := notefile.Decode(data)
	if err != nil {
		return ImportResult{}, fmt.Errorf("%w: %v", ledger.ErrValidation, err)
	}
	inc, err := sess.Node.GetNotes(ctx, []ledger.NoteID{note.ID})
	if err != nil {
		return ImportResult{}, fmt.Errorf("%w: check inclusion: %v", ledger.ErrSync, err)
	}

	rec := store.NoteRecord{Note: note, Status: store.NoteExpected}
	if len(inc) == 1 {
		switch inc[0].Status {
		case ledger.InclusionCommitted:
			rec.Status = store.NoteCommitted
			rec.BlockNum = inc[0].BlockNum
		case ledger.InclusionConsumed:
			rec.Status = store.NoteConsumed
			rec.BlockNum = inc[0].BlockNum
		}
	}
	if err := sess.Store.PutNote(ctx, rec); err != nil {
		return ImportResult{}, err
	}
	s.logger.Info("note imported", slog.String("note_id", note.ID.String()), slog.String("status", rec.Status.String()))
	return ImportResult{ID: note.ID, Status: rec.Status}, nil
}

// ImportFailure describes a file that could not be imported.
type ImportFailure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// ImportReport collects the outcome of ImportFiles.
type ImportReport struct {
	Imported []ImportResult
	Failed   []ImportFailure
}

// ImportFiles imports every path, reporting per-file failures.
func (s *Service) ImportFiles(ctx context.Context, paths []string) (ImportReport, error) {
	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return ImportReport{}, err
	}
	defer sess.Close()

	report := ImportReport{Imported: []ImportResult{}, Failed: []ImportFailure{}}
	for _, path := range paths {
		data, err := notefile.ReadRaw(path)
		if err == nil {
			var res ImportResult
			if res, err = s.importNote(ctx, sess, data); err == nil {
				report.Imported = append(report.Imported, res)
				continue
			}
		}
		s.logger.Warn("note import failed", slog.String("path", path), slog.Any("error", err))
		report.Failed = append(report.Failed, ImportFailure{Path: path, Error: err.Error()})
	}
	return report, nil
}

// Export encodes a stored note as a note file.
func (s *Service) Export(ctx context.Context, id ledger.NoteID) ([]byte, error) {
	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Close()
	rec, err := sess.Store.GetNote(ctx, id)
	if err != nil {
		return nil, err
	}
	return notefile.Encode(rec.Note)
}
