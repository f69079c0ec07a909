package ledger

import "context"

// Node RPC routes shared by the HTTP client and the devnet server.
const (
	PathSync         = "/v1/sync"
	PathTransactions = "/v1/transactions"
	PathNotesQuery   = "/v1/notes/query"
	PathFaucetMint   = "/v1/faucet/mint"
	PathStatus       = "/v1/status"
)

// NotesQuery is the body of PathNotesQuery.
type NotesQuery struct {
	NoteIDs []NoteID `json:"note_ids"`
}

// NotesQueryResponse answers PathNotesQuery.
type NotesQueryResponse struct {
	Notes []NoteInclusion `json:"notes"`
}

// MintRequest asks a faucet to issue a note to Target.
type MintRequest struct {
	Faucet   AccountID `json:"faucet"`
	Target   AccountID `json:"target"`
	Amount   uint64    `json:"amount"`
	NoteType NoteType  `json:"note_type"`
}

// MintResponse carries the minted note.
type MintResponse struct {
	Note     Note   `json:"note"`
	BlockNum uint64 `json:"block_num"`
}

// Minter is implemented by development nodes that run a faucet.
type Minter interface {
	Mint(ctx context.Context, req MintRequest) (MintResponse, error)
}
