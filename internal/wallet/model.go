package wallet

import (
	"time"

	"github.com/congo-pay/note_wallet/internal/ledger"
	"github.com/congo-pay/note_wallet/internal/render"
)

// Account is one row of an account listing.
type Account struct {
	Index       int
	ID          ledger.AccountID
	StorageMode ledger.StorageMode
	Nonce       uint64
	// Balance is the faucet amount held in the account vault.
	Balance uint64
	// Pending is the faucet amount in notes the account can consume now.
	Pending   uint64
	CreatedAt time.Time
}

// Listing is the result of ListAccountsWithBalances.
type Listing struct {
	Faucet     ledger.AccountID
	Accounts   []Account
	SyncHeight uint64
	// Stale is set when the network could not be reached and the listing
	// reflects the last synced state.
	Stale bool
}

// Balance encapsulates the funds of one account.
type Balance struct {
	AccountID ledger.AccountID
	Faucet    ledger.AccountID
	Amount    uint64
	Pending   uint64
	AsOf      time.Time
}

// Rows converts the listing into table rows.
func (l Listing) Rows() []render.AccountRow {
	rows := make([]render.AccountRow, 0, len(l.Accounts))
	for _, a := range l.Accounts {
		rows = append(rows, render.AccountRow{
			ID:          a.ID.String(),
			StorageMode: string(a.StorageMode),
			Nonce:       a.Nonce,
			Balance:     a.Balance,
			Pending:     a.Pending,
		})
	}
	return rows
}
