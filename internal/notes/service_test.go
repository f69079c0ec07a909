package notes

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/congo-pay/note_wallet/internal/devnet"
	"github.com/congo-pay/note_wallet/internal/ledger"
	"github.com/congo-pay/note_wallet/internal/logging"
	"github.com/congo-pay/note_wallet/internal/metrics"
	"github.com/congo-pay/note_wallet/internal/notefile"
	"github.com/congo-pay/note_wallet/internal/session"
	"github.com/congo-pay/note_wallet/internal/store"
)

var (
	faucet = ledger.MustParseAccountID("0x29b86f9443ad907a")
	alice  = ledger.NewAccountID(0xa11ce, ledger.StoragePrivate)
	bob    = ledger.NewAccountID(0xb0b, ledger.StoragePrivate)
)

type downNode struct {
	ledger.Node
}

func (downNode) SyncState(context.Context, ledger.SyncRequest) (ledger.SyncResponse, error) {
	return ledger.SyncResponse{}, errors.New("connection refused")
}

func (downNode) GetNotes(context.Context, []ledger.NoteID) ([]ledger.NoteInclusion, error) {
	return nil, errors.New("connection refused")
}

func newService(t *testing.T, node ledger.Node, accounts ...ledger.AccountID) (*Service, store.Store) {
	t.Helper()
	st := store.NewMemory()
	for _, id := range accounts {
		require.NoError(t, st.InsertAccount(context.Background(), store.AccountRecord{ID: id, Mode: id.StorageMode()}))
	}
	f, err := session.NewFactory(session.Config{NodeURL: "http://localhost:57291", NodeTimeout: 30 * time.Second}, st, node, nil, logging.Discard())
	require.NoError(t, err)
	return NewService(f, metrics.New(), logging.Discard()), st
}

func mint(t *testing.T, node *devnet.Node, target ledger.AccountID, amount uint64) ledger.Note {
	t.Helper()
	resp, err := node.Mint(context.Background(), ledger.MintRequest{Faucet: faucet, Target: target, Amount: amount})
	require.NoError(t, err)
	return resp.Note
}

func TestSyncStateIsIdempotent(t *testing.T) {
	node := devnet.New()
	svc, _ := newService(t, node, bob)
	ctx := context.Background()
	minted := mint(t, node, bob, 100)

	first, err := svc.SyncState(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, first.NewNotes)
	require.Equal(t, uint64(1), first.BlockNum)

	second, err := svc.SyncState(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, second.NewNotes)

	notes, err := svc.ConsumableNotes(ctx, &bob)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.Equal(t, minted.ID, notes[0].Note.ID)
	require.True(t, notes[0].ConsumableNow(bob))
	require.Equal(t, uint64(100), Pending(notes, faucet)[bob])
}

func TestSyncFailureLeavesStoreUntouched(t *testing.T) {
	svc, st := newService(t, downNode{}, bob)
	_, err := svc.SyncState(context.Background())
	require.ErrorIs(t, err, ledger.ErrSync)

	height, err := st.SyncHeight(context.Background())
	require.NoError(t, err)
	require.Zero(t, height)
}

func TestConsumableNotesFiltersByAccount(t *testing.T) {
	node := devnet.New()
	svc, _ := newService(t, node, alice, bob)
	ctx := context.Background()
	mint(t, node, alice, 5)
	mint(t, node, bob, 7)
	_, err := svc.SyncState(ctx)
	require.NoError(t, err)

	all, err := svc.ConsumableNotes(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)

	onlyBob, err := svc.ConsumableNotes(ctx, &bob)
	require.NoError(t, err)
	require.Len(t, onlyBob, 1)
	require.Equal(t, bob, onlyBob[0].Note.Target)

	stranger := ledger.NewAccountID(0x5, ledger.StoragePublic)
	none, err := svc.ConsumableNotes(ctx, &stranger)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestConsumedNotesNeverListed(t *testing.T) {
	node := devnet.New()
	svc, st := newService(t, node, bob)
	ctx := context.Background()
	minted := mint(t, node, bob, 9)
	_, err := svc.SyncState(ctx)
	require.NoError(t, err)

	require.NoError(t, st.PutNote(ctx, store.NoteRecord{Note: minted, Status: store.NoteConsumed}))
	notes, err := svc.ConsumableNotes(ctx, &bob)
	require.NoError(t, err)
	require.Empty(t, notes)
}

func TestImportAndExport(t *testing.T) {
	node := devnet.New()
	svc, _ := newService(t, node, bob)
	ctx := context.Background()
	minted := mint(t, node, bob, 12)

	data, err := notefile.Encode(minted)
	require.NoError(t, err)
	res, err := svc.Import(ctx, data)
	require.NoError(t, err)
	require.Equal(t, minted.ID, res.ID)
	require.Equal(t, store.NoteCommitted, res.Status)

	exported, err := svc.Export(ctx, minted.ID)
	require.NoError(t, err)
	decoded, err := notefile.Decode(exported)
	require.NoError(t, err)
	require.Equal(t, minted.ID, decoded.ID)

	_, err = svc.Import(ctx, []byte("garbage"))
	require.ErrorIs(t, err, ledger.ErrValidation)

	_, err = svc.Export(ctx, ledger.NoteID{1})
	require.ErrorIs(t, err, store.ErrNoteNotFound)
}

func TestImportUnknownNoteIsExpected(t *testing.T) {
	svc, _ := newService(t, devnet.New(), bob)
	n := ledger.Note{Type: ledger.NotePrivate, Sender: alice, Target: bob, Assets: []ledger.Asset{{Faucet: faucet, Amount: 1}}}.Seal()
	data, err := notefile.Encode(n)
	require.NoError(t, err)

	res, err := svc.Import(context.Background(), data)
	require.NoError(t, err)
	require.Equal(t, store.NoteExpected, res.Status)
}

func TestImportFilesReportsFailures(t *testing.T) {
	node := devnet.New()
	svc, _ := newService(t, node, bob)
	dir := t.TempDir()
	good := filepath.Join(dir, "note_1.mno")
	require.NoError(t, notefile.WriteFile(good, mint(t, node, bob, 3)))
	bad := filepath.Join(dir, "bad.mno")
	require.NoError(t, os.WriteFile(bad, []byte("nope"), 0o600))
	missing := filepath.Join(dir, "missing.mno")

	report, err := svc.ImportFiles(context.Background(), []string{good, bad, missing})
	require.NoError(t, err)
	require.Len(t, report.Imported, 1)
	require.Len(t, report.Failed, 2)
	require.Equal(t, bad, report.Failed[0].Path)
	require.Equal(t, missing, report.Failed[1].Path)
}
