package session

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	mrand "math/rand/v2"
	"time"

	"github.com/congo-pay/note_wallet/internal/auth"
	"github.com/congo-pay/note_wallet/internal/ledger"
	"github.com/congo-pay/note_wallet/internal/prover"
	"github.com/congo-pay/note_wallet/internal/store"
)

// ErrClosed is returned by a session used after Close.
var ErrClosed = errors.New("session closed")

// Config describes the node a session talks to.
type Config struct {
	NodeURL     string
	NodeTimeout time.Duration
}

// Factory builds one Session per unit of work.
type Factory struct {
	endpoint ledger.Endpoint
	store    store.Store
	node     ledger.Node
	prover   prover.Prover
	entropy  io.Reader
	logger   *slog.Logger
}

// Option customises a Factory.
type Option func(*Factory)

// WithEntropy replaces crypto/rand as the source used to seed session randomness.
func WithEntropy(r io.Reader) Option {
	return func(f *Factory) { f.entropy = r }
}

// NewFactory validates the node endpoint and captures the shared collaborators.
func NewFactory(cfg Config, st store.Store, node ledger.Node, pr prover.Prover, logger *slog.Logger, opts ...Option) (*Factory, error) {
	endpoint, err := ledger.ParseEndpoint(cfg.NodeURL, cfg.NodeTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrSessionInit, err)
	}
	if st == nil || node == nil {
		return nil, fmt.Errorf("%w: store and node are required", ledger.ErrSessionInit)
	}
	if pr == nil {
		pr = prover.NewLocal()
	}
	if logger == nil {
		logger = slog.Default()
	}
	f := &Factory{
		endpoint: endpoint,
		store:    st,
		node:     node,
		prover:   pr,
		entropy:  rand.Reader,
		logger:   logger.With("component", "session"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Endpoint returns the validated node endpoint.
func (f *Factory) Endpoint() ledger.Endpoint {
	return f.endpoint
}

// Open builds a fresh session. Sessions must not be shared between goroutines.
func (f *Factory) Open(ctx context.Context) (*Session, error) {
	if err := f.store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: open store: %v", ledger.ErrSessionInit, err)
	}
	var seed [32]byte
	if _, err := io.ReadFull(f.entropy, seed[:]); err != nil {
		return nil, fmt.Errorf("%w: seed randomness: %v", ledger.ErrSessionInit, err)
	}
	return &Session{
		Store:         f.store,
		Node:          f.node,
		Prover:        f.prover,
		Authenticator: auth.NewStoreAuthenticator(f.store),
		Endpoint:      f.endpoint,
		rng:           mrand.NewChaCha8(seed),
	}, nil
}

// Session bundles what one unit of work needs to talk to the ledger.
type Session struct {
	Store         store.Store
	Node          ledger.Node
	Prover        prover.Prover
	Authenticator auth.Authenticator
	Endpoint      ledger.Endpoint

	rng *mrand.ChaCha8
}

// Read fills p from the session's randomness source. It fails only once the
// session is closed.
func (s *Session) Read(p []byte) (int, error) {
	if s.rng == nil {
		return 0, ErrClosed
	}
	var buf [8]byte
	for i := 0; i < len(p); i += 8 {
		binary.LittleEndian.PutUint64(buf[:], s.rng.Uint64())
		copy(p[i:], buf[:])
	}
	return len(p), nil
}

// Serial draws fresh note randomness.
func (s *Session) Serial() (ledger.Serial, error) {
	var serial ledger.Serial
	_, err := s.Read(serial[:])
	return serial, err
}

// Close drops the session's randomness so no further seeds or serials can be
// drawn from it. Safe to call more than once.
func (s *Session) Close() {
	s.rng = nil
}
