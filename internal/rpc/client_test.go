package rpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/note_wallet/internal/devnet"
	"github.com/congo-pay/note_wallet/internal/ledger"
	"github.com/congo-pay/note_wallet/internal/logging"
)

var (
	faucet = ledger.MustParseAccountID("0x29b86f9443ad907a")
	bob    = ledger.NewAccountID(0xb0b, ledger.StoragePrivate)
)

func serveDevnet(t *testing.T) (*devnet.Node, ledger.Endpoint) {
	t.Helper()
	node := devnet.New()
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	devnet.NewHandler(node).Register(app)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	ep, err := ledger.ParseEndpoint("http://"+ln.Addr().String(), 5*time.Second)
	require.NoError(t, err)
	return node, ep
}

func TestClientAgainstDevnet(t *testing.T) {
	_, ep := serveDevnet(t)
	c := New(ep, Options{Logger: logging.Discard()})
	ctx := context.Background()

	minted, err := c.Mint(ctx, ledger.MintRequest{Faucet: faucet, Target: bob, Amount: 100})
	require.NoError(t, err)
	require.Equal(t, uint64(1), minted.BlockNum)

	st, err := c.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), st.ChainTip)
	require.Equal(t, devnet.Version, st.Version)

	sync, err := c.SyncState(ctx, ledger.SyncRequest{Accounts: []ledger.AccountID{bob}})
	require.NoError(t, err)
	require.Len(t, sync.Notes, 1)
	require.Equal(t, minted.Note.ID, sync.Notes[0].Note.ID)
	require.Equal(t, uint64(100), sync.Notes[0].Note.Amount(faucet))

	inc, err := c.GetNotes(ctx, []ledger.NoteID{minted.Note.ID})
	require.NoError(t, err)
	require.Len(t, inc, 1)
	require.Equal(t, ledger.InclusionCommitted, inc[0].Status)
}

func TestClientDecodesRejections(t *testing.T) {
	_, ep := serveDevnet(t)
	c := New(ep, Options{Logger: logging.Discard(), RequestsPerSecond: 100})

	body := ledger.TransactionBody{AccountID: bob, InitNonce: 4, FinalNonce: 5, InputNotes: []ledger.NoteID{{1}}}
	_, err := c.SubmitTransaction(context.Background(), ledger.ProvenTransaction{ID: ledger.ComputeTransactionID(body), Body: body})

	var rej *ledger.RejectionError
	require.True(t, errors.As(err, &rej), "expected rejection, got %v", err)
	require.Equal(t, ledger.RejectNonceConflict, rej.Code)
	require.ErrorIs(t, err, ledger.ErrNonceConflict)
}

func TestClientOpensBreakerWhenNodeIsDown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ep, err := ledger.ParseEndpoint("http://"+addr, time.Second)
	require.NoError(t, err)
	c := New(ep, Options{Logger: logging.Discard(), FailureThreshold: 2, OpenTimeout: time.Minute})

	for i := 0; i < 3; i++ {
		_, err := c.Status(context.Background())
		require.ErrorIs(t, err, ErrUnavailable)
	}
	require.Equal(t, "open", c.breaker.State().String())
}

func TestClientHonoursCancelledContext(t *testing.T) {
	_, ep := serveDevnet(t)
	c := New(ep, Options{Logger: logging.Discard()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Status(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
