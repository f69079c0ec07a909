package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/note_wallet/internal/ledger"
)

// PostgresStore persists the local view in PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgres builds a store on an open pool. Run Migrate first.
func NewPostgres(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Ping verifies the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// InsertAccount registers a new account.
func (s *PostgresStore) InsertAccount(ctx context.Context, acc AccountRecord) error {
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = time.Now().UTC()
	}
	vault := acc.Vault
	if vault == nil {
		vault = ledger.Vault{}
	}
	tag, err := s.db.Exec(ctx, `INSERT INTO accounts (id, storage_mode, nonce, vault, seed, public_key, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (id) DO NOTHING`,
		int64(acc.ID), string(acc.Mode), int64(acc.Nonce), vault, acc.Seed, acc.PublicKey, acc.CreatedAt.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountExists
	}
	return nil
}

const accountColumns = `id, storage_mode, nonce, vault, seed, public_key, created_at`

// GetAccount fetches one account.
func (s *PostgresStore) GetAccount(ctx context.Context, id ledger.AccountID) (AccountRecord, error) {
	row := s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, int64(id))
	acc, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return AccountRecord{}, ErrAccountNotFound
	}
	return acc, err
}

// ListAccounts returns accounts in creation order.
func (s *PostgresStore) ListAccounts(ctx context.Context) ([]AccountRecord, error) {
	rows, err := s.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountRecord
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, rows.Err()
}

// PutNote inserts a note or advances its status.
func (s *PostgresStore) PutNote(ctx context.Context, rec NoteRecord) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := putNote(ctx, tx, rec); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetNote fetches one note.
func (s *PostgresStore) GetNote(ctx context.Context, id ledger.NoteID) (NoteRecord, error) {
	row := s.db.QueryRow(ctx, `SELECT note, status, block_num, updated_at FROM notes WHERE id = $1`, id[:])
	rec, err := scanNote(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return NoteRecord{}, ErrNoteNotFound
	}
	return rec, err
}

// ListNotes returns notes matching filter ordered by block number.
func (s *PostgresStore) ListNotes(ctx context.Context, filter NoteFilter) ([]NoteRecord, error) {
	var (
		where []string
		args  []any
	)
	if len(filter.Statuses) > 0 {
		statuses := make([]int32, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = int32(st)
		}
		args = append(args, statuses)
		where = append(where, fmt.Sprintf("status = ANY($%d::smallint[])", len(args)))
	}
	if len(filter.IDs) > 0 {
		ids := make([][]byte, len(filter.IDs))
		for i := range filter.IDs {
			ids[i] = filter.IDs[i][:]
		}
		args = append(args, ids)
		where = append(where, fmt.Sprintf("id = ANY($%d::bytea[])", len(args)))
	}
	query := `SELECT note, status, block_num, updated_at FROM notes`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY block_num, id"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]NoteRecord, 0)
	for rows.Next() {
		rec, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ApplyTransaction records a submitted transaction in one database transaction.
func (s *PostgresStore) ApplyTransaction(ctx context.Context, rec TransactionRecord) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	var nonce int64
	if err := tx.QueryRow(ctx, `SELECT nonce FROM accounts WHERE id = $1 FOR UPDATE`, int64(rec.AccountID)).Scan(&nonce); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAccountNotFound
		}
		return err
	}
	if uint64(nonce) != rec.InitNonce {
		return ErrStaleNonce
	}

	for _, id := range rec.InputNotes {
		var status int16
		err := tx.QueryRow(ctx, `SELECT status FROM notes WHERE id = $1 FOR UPDATE`, id[:]).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) || (err == nil && NoteStatus(status) != NoteCommitted) {
			return ErrNoteUnavailable
		}
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE notes SET status = $2, updated_at = now() WHERE id = $1`, id[:], int16(NoteProcessing)); err != nil {
			return err
		}
	}

	vault := rec.FinalVault
	if vault == nil {
		vault = ledger.Vault{}
	}
	if _, err := tx.Exec(ctx, `UPDATE accounts SET nonce = $2, vault = $3 WHERE id = $1`,
		int64(rec.AccountID), int64(rec.FinalNonce), vault); err != nil {
		return err
	}

	for _, n := range rec.OutputNotes {
		if _, err := putNote(ctx, tx, NoteRecord{Note: n, Status: NoteExpected}); err != nil {
			return err
		}
	}

	inputs := rec.InputNotes
	if inputs == nil {
		inputs = []ledger.NoteID{}
	}
	outputs := rec.OutputNotes
	if outputs == nil {
		outputs = []ledger.Note{}
	}
	if _, err := tx.Exec(ctx, `INSERT INTO transactions (id, account_id, init_nonce, final_nonce, input_notes, output_notes, block_num, submitted_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, now())`,
		rec.ID[:], int64(rec.AccountID), int64(rec.InitNonce), int64(rec.FinalNonce), inputs, outputs, int64(rec.BlockNum)); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ListTransactions returns the account's submitted transactions, oldest first.
func (s *PostgresStore) ListTransactions(ctx context.Context, account ledger.AccountID) ([]TransactionRecord, error) {
	rows, err := s.db.Query(ctx, `SELECT id, init_nonce, final_nonce, input_notes, output_notes, block_num, submitted_at
        FROM transactions WHERE account_id = $1 ORDER BY final_nonce`, int64(account))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]TransactionRecord, 0)
	for rows.Next() {
		var (
			id          []byte
			init, final int64
			blockNum    int64
			rec         = TransactionRecord{AccountID: account}
		)
		if err := rows.Scan(&id, &init, &final, &rec.InputNotes, &rec.OutputNotes, &blockNum, &rec.SubmittedAt); err != nil {
			return nil, err
		}
		copy(rec.ID[:], id)
		rec.InitNonce = uint64(init)
		rec.FinalNonce = uint64(final)
		rec.BlockNum = uint64(blockNum)
		rec.SubmittedAt = rec.SubmittedAt.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ApplySync applies a node response atomically.
func (s *PostgresStore) ApplySync(ctx context.Context, update SyncUpdate) (SyncResult, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return SyncResult{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	var res SyncResult
	for _, st := range update.Accounts {
		vault := st.Vault
		if vault == nil {
			vault = ledger.Vault{}
		}
		tag, err := tx.Exec(ctx, `UPDATE accounts SET nonce = $2, vault = $3 WHERE id = $1 AND nonce < $2`,
			int64(st.ID), int64(st.Nonce), vault)
		if err != nil {
			return SyncResult{}, err
		}
		res.UpdatedAccounts += int(tag.RowsAffected())
	}
	for _, cn := range update.Notes {
		advanced, err := putNote(ctx, tx, NoteRecord{Note: cn.Note, Status: NoteCommitted, BlockNum: cn.BlockNum})
		if err != nil {
			return SyncResult{}, err
		}
		if advanced {
			res.NewNotes++
		}
	}
	for _, nf := range update.Nullifiers {
		tag, err := tx.Exec(ctx, `UPDATE notes SET status = $2, updated_at = now() WHERE id = $1 AND status < $2`,
			nf.NoteID[:], int16(NoteConsumed))
		if err != nil {
			return SyncResult{}, err
		}
		res.ConsumedNotes += int(tag.RowsAffected())
	}

	var height int64
	if err := tx.QueryRow(ctx, `UPDATE sync_state SET block_num = GREATEST(block_num, $1) WHERE id = 1 RETURNING block_num`,
		int64(update.BlockNum)).Scan(&height); err != nil {
		return SyncResult{}, err
	}
	res.BlockNum = uint64(height)

	if err := tx.Commit(ctx); err != nil {
		return SyncResult{}, err
	}
	return res, nil
}

// SyncHeight returns the block the store is synced to.
func (s *PostgresStore) SyncHeight(ctx context.Context) (uint64, error) {
	var height int64
	if err := s.db.QueryRow(ctx, `SELECT block_num FROM sync_state WHERE id = 1`).Scan(&height); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return uint64(height), nil
}

// Close is a no-op; the pool is owned by the caller.
func (s *PostgresStore) Close() {}

// putNote reports whether the note was inserted or moved from expected to committed.
func putNote(ctx context.Context, tx pgx.Tx, rec NoteRecord) (bool, error) {
	id := rec.Note.ID
	var prev int16
	err := tx.QueryRow(ctx, `SELECT status FROM notes WHERE id = $1 FOR UPDATE`, id[:]).Scan(&prev)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		_, err := tx.Exec(ctx, `INSERT INTO notes (id, note, status, block_num, updated_at) VALUES ($1, $2, $3, $4, now())`,
			id[:], rec.Note, int16(rec.Status), int64(rec.BlockNum))
		return err == nil, err
	case err != nil:
		return false, err
	}

	if _, err := tx.Exec(ctx, `UPDATE notes SET
            status = GREATEST(status, $2),
            block_num = CASE WHEN block_num = 0 THEN $3 ELSE block_num END,
            updated_at = now()
        WHERE id = $1`, id[:], int16(rec.Status), int64(rec.BlockNum)); err != nil {
		return false, err
	}
	return NoteStatus(prev) == NoteExpected && rec.Status == NoteCommitted, nil
}

func scanAccount(row pgx.Row) (AccountRecord, error) {
	var (
		acc   AccountRecord
		id    int64
		mode  string
		nonce int64
	)
	if err := row.Scan(&id, &mode, &nonce, &acc.Vault, &acc.Seed, &acc.PublicKey, &acc.CreatedAt); err != nil {
		return AccountRecord{}, err
	}
	acc.ID = ledger.AccountID(uint64(id))
	acc.Mode = ledger.StorageMode(mode)
	acc.Nonce = uint64(nonce)
	acc.CreatedAt = acc.CreatedAt.UTC()
	if acc.Vault == nil {
		acc.Vault = ledger.Vault{}
	}
	return acc, nil
}

func scanNote(row pgx.Row) (NoteRecord, error) {
	var (
		rec      NoteRecord
		status   int16
		blockNum int64
	)
	if err := row.Scan(&rec.Note, &status, &blockNum, &rec.UpdatedAt); err != nil {
		return NoteRecord{}, err
	}
	rec.Status = NoteStatus(status)
	rec.BlockNum = uint64(blockNum)
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, nil
}
