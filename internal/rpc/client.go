// Package rpc is the HTTP client for the node RPC routes.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/congo-pay/note_wallet/internal/ledger"
)

// ErrUnavailable is returned when the breaker is open or the node cannot be reached.
var ErrUnavailable = errors.New("node unavailable")

// Options tunes the client.
type Options struct {
	// RequestsPerSecond throttles outgoing calls. Zero disables throttling.
	RequestsPerSecond float64
	// FailureThreshold consecutive transport failures open the breaker.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	Logger      *slog.Logger
}

// Client talks to a node over HTTP/JSON.
type Client struct {
	endpoint ledger.Endpoint
	base     string
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	logger   *slog.Logger
}

// New builds a client for endpoint.
func New(endpoint ledger.Endpoint, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "rpc", "node", endpoint.BaseURL())
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = 5
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 30 * time.Second
	}
	threshold := opts.FailureThreshold

	c := &Client{
		endpoint: endpoint,
		base:     endpoint.BaseURL(),
		logger:   logger,
	}
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "node:" + endpoint.BaseURL(),
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("node circuit breaker state changed", slog.String("from", from.String()), slog.String("to", to.String()))
		},
	})
	return c
}

// SyncState calls the sync route.
func (c *Client) SyncState(ctx context.Context, req ledger.SyncRequest) (ledger.SyncResponse, error) {
	var resp ledger.SyncResponse
	err := c.call(ctx, fiber.MethodPost, ledger.PathSync, req, &resp)
	return resp, err
}

// SubmitTransaction calls the transactions route. Node refusals are returned
// as *ledger.RejectionError.
func (c *Client) SubmitTransaction(ctx context.Context, tx ledger.ProvenTransaction) (ledger.SubmitResult, error) {
	var resp ledger.SubmitResult
	err := c.call(ctx, fiber.MethodPost, ledger.PathTransactions, tx, &resp)
	return resp, err
}

// GetNotes calls the notes query route.
func (c *Client) GetNotes(ctx context.Context, ids []ledger.NoteID) ([]ledger.NoteInclusion, error) {
	var resp ledger.NotesQueryResponse
	if err := c.call(ctx, fiber.MethodPost, ledger.PathNotesQuery, ledger.NotesQuery{NoteIDs: ids}, &resp); err != nil {
		return nil, err
	}
	return resp.Notes, nil
}

// Status calls the status route.
func (c *Client) Status(ctx context.Context) (ledger.NodeStatus, error) {
	var resp ledger.NodeStatus
	err := c.call(ctx, fiber.MethodGet, ledger.PathStatus, nil, &resp)
	return resp, err
}

// Mint asks a development node's faucet for funds.
func (c *Client) Mint(ctx context.Context, req ledger.MintRequest) (ledger.MintResponse, error) {
	var resp ledger.MintResponse
	err := c.call(ctx, fiber.MethodPost, ledger.PathFaucetMint, req, &resp)
	return resp, err
}

type reply struct {
	status int
	body   []byte
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rpc %s: throttle: %w", path, err)
		}
	}
	timeout := c.endpoint.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return fmt.Errorf("rpc %s: %w", path, context.DeadlineExceeded)
	}

	res, err := c.breaker.Execute(func() (interface{}, error) {
		var agent *fiber.Agent
		if method == fiber.MethodGet {
			agent = fiber.Get(c.base + path)
		} else {
			agent = fiber.Post(c.base + path).JSON(in)
		}
		status, body, errs := agent.Timeout(timeout).Bytes()
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		if status >= http.StatusInternalServerError {
			return nil, fmt.Errorf("status %d: %s", status, body)
		}
		return reply{status: status, body: body}, nil
	})
	if err != nil {
		if !errors.Is(err, gobreaker.ErrOpenState) && !errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.logger.Warn("node call failed", slog.String("path", path), slog.Any("error", err))
		}
		return fmt.Errorf("rpc %s: %w: %v", path, ErrUnavailable, err)
	}

	r := res.(reply)
	if r.status >= http.StatusBadRequest {
		rej := &ledger.RejectionError{}
		if jerr := json.Unmarshal(r.body, rej); jerr != nil || rej.Code == "" {
			return fmt.Errorf("rpc %s: unexpected status %d: %s", path, r.status, r.body)
		}
		return rej
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(r.body, out); err != nil {
		return fmt.Errorf("rpc %s: decode response: %w", path, err)
	}
	return nil
}

var (
	_ ledger.Node   = (*Client)(nil)
	_ ledger.Minter = (*Client)(nil)
)
