package ledger

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Node is the RPC contract of a ledger node.
type Node interface {
	// SyncState returns every change relevant to accounts committed after
	// block FromBlock.
	SyncState(ctx context.Context, req SyncRequest) (SyncResponse, error)
	// SubmitTransaction verifies and applies a proven transaction.
	SubmitTransaction(ctx context.Context, tx ProvenTransaction) (SubmitResult, error)
	// GetNotes reports the inclusion status of the given notes.
	GetNotes(ctx context.Context, ids []NoteID) ([]NoteInclusion, error)
	// Status reports the node's chain tip.
	Status(ctx context.Context) (NodeStatus, error)
}

// SyncRequest asks for changes after FromBlock relevant to Accounts.
type SyncRequest struct {
	FromBlock uint64      `json:"from_block"`
	Accounts  []AccountID `json:"accounts"`
}

// AccountState is the on-chain view of an account.
type AccountState struct {
	ID    AccountID `json:"id"`
	Nonce uint64    `json:"nonce"`
	Vault Vault     `json:"vault"`
}

// CommittedNote is a note together with the block that created it.
type CommittedNote struct {
	Note     Note   `json:"note"`
	BlockNum uint64 `json:"block_num"`
}

// Nullifier records the block in which a note was consumed.
type Nullifier struct {
	NoteID   NoteID `json:"note_id"`
	BlockNum uint64 `json:"block_num"`
}

// SyncResponse carries the delta between FromBlock and ChainTip.
type SyncResponse struct {
	ChainTip   uint64          `json:"chain_tip"`
	Accounts   []AccountState  `json:"accounts"`
	Notes      []CommittedNote `json:"notes"`
	Nullifiers []Nullifier     `json:"nullifiers"`
}

// SubmitResult acknowledges an applied transaction.
type SubmitResult struct {
	BlockNum uint64 `json:"block_num"`
}

// InclusionStatus of a note on chain.
type InclusionStatus string

const (
	InclusionUnknown   InclusionStatus = "unknown"
	InclusionCommitted InclusionStatus = "committed"
	InclusionConsumed  InclusionStatus = "consumed"
)

// NoteInclusion answers GetNotes for one note. Note is only set for public notes.
type NoteInclusion struct {
	ID       NoteID          `json:"id"`
	Status   InclusionStatus `json:"status"`
	BlockNum uint64          `json:"block_num"`
	Note     *Note           `json:"note,omitempty"`
}

// NodeStatus describes the node.
type NodeStatus struct {
	ChainTip uint64 `json:"chain_tip"`
	Version  string `json:"version"`
}

// Endpoint is a node RPC address.
type Endpoint struct {
	Protocol string
	Host     string
	Port     int
	Timeout  time.Duration
}

// ParseEndpoint validates raw as http(s)://host:port.
func ParseEndpoint(raw string, timeout time.Duration) (Endpoint, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Endpoint{}, fmt.Errorf("parse node endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Endpoint{}, fmt.Errorf("node endpoint %q: unsupported protocol %q", raw, u.Scheme)
	}
	if u.Hostname() == "" {
		return Endpoint{}, fmt.Errorf("node endpoint %q: missing host", raw)
	}
	port := 80
	if u.Scheme == "https" {
		port = 443
	}
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return Endpoint{}, fmt.Errorf("node endpoint %q: invalid port %q", raw, p)
		}
	}
	if timeout <= 0 {
		return Endpoint{}, fmt.Errorf("node endpoint %q: timeout must be positive", raw)
	}
	return Endpoint{Protocol: u.Scheme, Host: u.Hostname(), Port: port, Timeout: timeout}, nil
}

// BaseURL renders the endpoint as protocol://host:port.
func (e Endpoint) BaseURL() string {
	return fmt.Sprintf("%s://%s:%d", e.Protocol, e.Host, e.Port)
}
