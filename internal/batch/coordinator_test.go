package batch

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/note_wallet/internal/devnet"
	"github.com/congo-pay/note_wallet/internal/ledger"
	"github.com/congo-pay/note_wallet/internal/lock"
	"github.com/congo-pay/note_wallet/internal/logging"
	"github.com/congo-pay/note_wallet/internal/metrics"
	"github.com/congo-pay/note_wallet/internal/notes"
	"github.com/congo-pay/note_wallet/internal/payments"
	"github.com/congo-pay/note_wallet/internal/session"
	"github.com/congo-pay/note_wallet/internal/store"
	"github.com/congo-pay/note_wallet/internal/wallet"
)

var faucet = ledger.MustParseAccountID("0x29b86f9443ad907a")

type call struct {
	sender ledger.AccountID
	amount uint64
}

type fakeTransferer struct {
	mu       sync.Mutex
	calls    []call
	inFlight map[ledger.AccountID]int
	overlap  bool
}

func (f *fakeTransferer) TransferAsset(_ context.Context, sender, target ledger.AccountID, amount uint64, _ ...payments.PaymentOption) (payments.TransferOutcome, error) {
	f.mu.Lock()
	f.inFlight[sender]++
	if f.inFlight[sender] > 1 {
		f.overlap = true
	}
	f.calls = append(f.calls, call{sender: sender, amount: amount})
	f.mu.Unlock()

	time.Sleep(2 * time.Millisecond)

	f.mu.Lock()
	f.inFlight[sender]--
	f.mu.Unlock()
	if amount == 13 {
		return payments.TransferOutcome{}, ledger.ErrInsufficientBalance
	}
	return payments.TransferOutcome{TxID: ledger.TransactionID{byte(amount)}, Sender: sender, Target: target, Amount: amount}, nil
}

func TestProcessKeepsOrderAndIsolatesFailures(t *testing.T) {
	a := ledger.NewAccountID(0xa, ledger.StoragePrivate).String()
	b := ledger.NewAccountID(0xb, ledger.StoragePrivate).String()
	c := ledger.NewAccountID(0xc, ledger.StoragePublic).String()
	fake := &fakeTransferer{inFlight: map[ledger.AccountID]int{}}
	coord := NewCoordinator(fake, 2, metrics.New(), logging.Discard())

	reqs := []TransferRequest{
		{SenderWallet: a, TargetWallet: b, Amount: 1},
		{SenderWallet: "bad_id", TargetWallet: b, Amount: 2},
		{SenderWallet: b, TargetWallet: c, Amount: 3},
		{SenderWallet: a, TargetWallet: c, Amount: 13},
		{SenderWallet: a, TargetWallet: "0x1", Amount: 5},
		{SenderWallet: a, TargetWallet: b, Amount: 6},
		{SenderWallet: c, TargetWallet: a, Amount: 7},
	}
	results := coord.Process(context.Background(), reqs)
	require.Len(t, results, len(reqs))
	for i, r := range results {
		require.Equal(t, reqs[i].SenderWallet, r.SenderWallet)
		require.Equal(t, reqs[i].Amount, r.Amount)
	}

	require.NotEmpty(t, results[0].TxID)
	require.True(t, strings.HasPrefix(results[1].Error, "Invalid sender wallet: "), results[1].Error)
	require.NotEmpty(t, results[2].TxID)
	require.True(t, strings.HasPrefix(results[3].Error, "Failed to process transfer: "), results[3].Error)
	require.Empty(t, results[3].TxID)
	require.True(t, strings.HasPrefix(results[4].Error, "Invalid target wallet: "), results[4].Error)
	require.NotEmpty(t, results[5].TxID)
	require.NotEmpty(t, results[6].TxID)

	require.False(t, fake.overlap, "transfers from one sender overlapped")
	var fromA []uint64
	for _, cl := range fake.calls {
		if cl.sender.String() == a {
			fromA = append(fromA, cl.amount)
		}
	}
	require.Equal(t, []uint64{1, 13, 6}, fromA)
}

func TestProcessEmptyBatch(t *testing.T) {
	coord := NewCoordinator(&fakeTransferer{inFlight: map[ledger.AccountID]int{}}, 0, nil, logging.Discard())
	require.Empty(t, coord.Process(context.Background(), nil))
}

func TestBatchScenarioAgainstDevnet(t *testing.T) {
	ctx := context.Background()
	node := devnet.New()
	st := store.NewMemory()
	f, err := session.NewFactory(session.Config{NodeURL: "http://localhost:57291", NodeTimeout: 5 * time.Second}, st, node, nil, logging.Discard())
	require.NoError(t, err)
	m := metrics.New()
	noteSvc := notes.NewService(f, m, logging.Discard())
	wallets := wallet.NewService(f, noteSvc, logging.Discard())
	pay := payments.NewService(payments.Config{Faucet: faucet, PostSubmitSyncAttempts: 1}, f, noteSvc, lock.NewKeyed(), nil, m, logging.Discard())

	a, err := wallets.CreateAccount(ctx, ledger.StoragePrivate)
	require.NoError(t, err)
	b, err := wallets.CreateAccount(ctx, ledger.StoragePrivate)
	require.NoError(t, err)
	_, err = node.Mint(ctx, ledger.MintRequest{Faucet: faucet, Target: a, Amount: 100})
	require.NoError(t, err)
	_, err = pay.ConsumeAvailableNotes(ctx, a)
	require.NoError(t, err)

	coord := NewCoordinator(pay, 4, m, logging.Discard())
	app := fiber.New()
	app.Post("/batch-transfer", NewHandler(coord).Transfer)

	body := `{"transfers":[{"sender_wallet":"` + a.String() + `","target_wallet":"` + b.String() + `","amount":40},` +
		`{"sender_wallet":"bad_id","target_wallet":"` + b.String() + `","amount":10}]}`
	req := httptest.NewRequest("POST", "/batch-transfer", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	results := coord.Process(ctx, []TransferRequest{
		{SenderWallet: a.String(), TargetWallet: b.String(), Amount: 40},
		{SenderWallet: "bad_id", TargetWallet: b.String(), Amount: 10},
	})
	require.Len(t, results, 2)
	require.NotEmpty(t, results[0].TxID)
	require.NotEmpty(t, results[1].Error)

	acc, err := st.GetAccount(ctx, a)
	require.NoError(t, err)
	require.Equal(t, uint64(20), acc.Vault.Balance(faucet))
}
