package session

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/congo-pay/note_wallet/internal/devnet"
	"github.com/congo-pay/note_wallet/internal/ledger"
	"github.com/congo-pay/note_wallet/internal/logging"
	"github.com/congo-pay/note_wallet/internal/prover"
	"github.com/congo-pay/note_wallet/internal/store"
)

func testConfig() Config {
	return Config{NodeURL: "http://localhost:57291", NodeTimeout: 30 * time.Second}
}

func TestNewFactoryRejectsMalformedEndpoint(t *testing.T) {
	for _, raw := range []string{"", "localhost:57291", "grpc://localhost:1", "http://localhost:0"} {
		_, err := NewFactory(Config{NodeURL: raw, NodeTimeout: time.Second}, store.NewMemory(), devnet.New(), prover.NewLocal(), logging.Discard())
		if !errors.Is(err, ledger.ErrSessionInit) {
			t.Fatalf("%q: expected ErrSessionInit, got %v", raw, err)
		}
	}
}

func TestOpenFailsWhenStoreUnavailable(t *testing.T) {
	st := store.NewMemory()
	f, err := NewFactory(testConfig(), st, devnet.New(), nil, logging.Discard())
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	st.Close()
	if _, err := f.Open(context.Background()); !errors.Is(err, ledger.ErrSessionInit) {
		t.Fatalf("expected ErrSessionInit, got %v", err)
	}
}

func TestOpenFailsWithoutEntropy(t *testing.T) {
	f, err := NewFactory(testConfig(), store.NewMemory(), devnet.New(), nil, logging.Discard(), WithEntropy(bytes.NewReader(nil)))
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	if _, err := f.Open(context.Background()); !errors.Is(err, ledger.ErrSessionInit) {
		t.Fatalf("expected ErrSessionInit, got %v", err)
	}
}

func TestSessionsHaveIndependentRandomness(t *testing.T) {
	f, err := NewFactory(testConfig(), store.NewMemory(), devnet.New(), nil, logging.Discard())
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	a, err := f.Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer a.Close()
	b, err := f.Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer b.Close()

	sa, err := a.Serial()
	if err != nil {
		t.Fatalf("serial: %v", err)
	}
	sb, err := b.Serial()
	if err != nil {
		t.Fatalf("serial: %v", err)
	}
	if sa == sb {
		t.Fatalf("sessions produced identical serials")
	}
	buf := make([]byte, 13)
	if n, _ := a.Read(buf); n != len(buf) {
		t.Fatalf("short read %d", n)
	}
	if f.Endpoint().Port != 57291 {
		t.Fatalf("unexpected endpoint %+v", f.Endpoint())
	}
}

func TestClosedSessionRefusesRandomness(t *testing.T) {
	f, err := NewFactory(testConfig(), store.NewMemory(), devnet.New(), nil, logging.Discard())
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	sess, err := f.Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sess.Close()
	sess.Close()

	if _, err := sess.Read(make([]byte, 8)); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from Read, got %v", err)
	}
	if _, err := sess.Serial(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from Serial, got %v", err)
	}
}
