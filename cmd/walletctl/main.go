// Command walletctl operates a note wallet from the command line against the
// configured store and node.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/congo-pay/note_wallet/internal/config"
	"github.com/congo-pay/note_wallet/internal/infra"
	"github.com/congo-pay/note_wallet/internal/ledger"
	"github.com/congo-pay/note_wallet/internal/lock"
	"github.com/congo-pay/note_wallet/internal/logging"
	"github.com/congo-pay/note_wallet/internal/notes"
	"github.com/congo-pay/note_wallet/internal/notification"
	"github.com/congo-pay/note_wallet/internal/payments"
	"github.com/congo-pay/note_wallet/internal/render"
	"github.com/congo-pay/note_wallet/internal/rpc"
	"github.com/congo-pay/note_wallet/internal/session"
	"github.com/congo-pay/note_wallet/internal/store"
	"github.com/congo-pay/note_wallet/internal/wallet"
)

const usage = `usage: walletctl <command> [flags]

commands:
  accounts                      list accounts with balances
  balance   -account ID         show one account's balance
  new-wallet [-public]          create an account
  notes     [-account ID]       list consumable notes
  sync                          pull the latest node state
  transfer  -from ID -to ID -amount N [-public] [-recall H]
  consume   -account ID         consume every available note
  history   -account ID         list submitted transactions
  import    FILE...             import note files
  export    -note ID -out FILE  write a stored note to a file
`

var commands = map[string]bool{
	"accounts": true, "balance": true, "new-wallet": true, "notes": true, "sync": true,
	"transfer": true, "consume": true, "history": true, "import": true, "export": true,
}

type app struct {
	cfg      config.Config
	wallets  *wallet.Service
	notes    *notes.Service
	payments *payments.Service
	out      io.Writer
}

func main() {
	if len(os.Args) < 2 || !commands[os.Args[1]] {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, closeFn, err := build(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "walletctl: %v\n", err)
		os.Exit(1)
	}
	defer closeFn()

	if err := a.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "walletctl: %v\n", err)
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func build(ctx context.Context) (*app, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.DatabaseURL == "" || cfg.NodeURL == "" {
		return nil, nil, errors.New("DATABASE_URL and NODE_URL must be set")
	}
	logger := logging.NewWithFormat(cfg.LogLevel, "text", os.Stderr)

	db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	endpoint, err := ledger.ParseEndpoint(cfg.NodeURL, cfg.NodeTimeout)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	node := rpc.New(endpoint, rpc.Options{RequestsPerSecond: cfg.NodeRPS, Logger: logger})
	sessions, err := session.NewFactory(session.Config{NodeURL: cfg.NodeURL, NodeTimeout: cfg.NodeTimeout}, store.NewPostgres(db), node, nil, logger)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	var locker lock.Locker = lock.NewKeyed()
	closeFn := db.Close
	if cfg.RedisURL != "" {
		cache, err := infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		locker = lock.Chain{locker, lock.NewRedis(cache, lock.RedisOptions{Expiry: cfg.LockTTL}, logger)}
		closeFn = func() {
			_ = cache.Close()
			db.Close()
		}
	}

	noteSvc := notes.NewService(sessions, nil, logger)
	return &app{
		cfg:     cfg,
		wallets: wallet.NewService(sessions, noteSvc, logger),
		notes:   noteSvc,
		payments: payments.NewService(payments.Config{
			Faucet:                 cfg.FaucetID,
			PostSubmitSyncAttempts: cfg.PostSubmitSyncAttempts,
		}, sessions, noteSvc, locker, notification.NewLoggerNotifier(logger.With(slog.String("component", "notification"))), nil, logger),
		out: os.Stdout,
	}, closeFn, nil
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	account := fs.String("account", "", "account id (0x + 16 hex digits)")
	from := fs.String("from", "", "sender account id")
	to := fs.String("to", "", "target account id")
	amount := fs.Uint64("amount", 0, "amount of the configured faucet asset")
	public := fs.Bool("public", false, "public account or note")
	recall := fs.Uint64("recall", 0, "block height from which the sender may reclaim the note")
	noteID := fs.String("note", "", "note id")
	outPath := fs.String("out", "", "output file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	accountID := func() (ledger.AccountID, error) {
		if *account == "" && a.cfg.DefaultAccountID != nil {
			return *a.cfg.DefaultAccountID, nil
		}
		return ledger.ParseAccountID(*account)
	}

	switch cmd {
	case "accounts":
		listing, err := a.wallets.ListAccountsWithBalances(ctx, a.cfg.FaucetID)
		if err != nil {
			return err
		}
		render.Accounts(a.out, listing.Rows())
		if listing.Stale {
			fmt.Fprintln(a.out, "warning: node unreachable, balances may be stale")
		}
	case "balance":
		id, err := accountID()
		if err != nil {
			return err
		}
		bal, err := a.wallets.Balance(ctx, id, a.cfg.FaucetID)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s balance %d pending %d\n", bal.AccountID, bal.Amount, bal.Pending)
	case "new-wallet":
		mode := ledger.StoragePrivate
		if *public {
			mode = ledger.StoragePublic
		}
		id, err := a.wallets.CreateAccount(ctx, mode)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, id)
	case "notes":
		var filter *ledger.AccountID
		if *account != "" {
			id, err := ledger.ParseAccountID(*account)
			if err != nil {
				return err
			}
			filter = &id
		}
		list, err := a.notes.ConsumableNotes(ctx, filter)
		if err != nil {
			return err
		}
		render.Notes(a.out, notes.NoteRows(list))
	case "sync":
		summary, err := a.notes.SyncState(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "synced to block %d: %d new notes, %d consumed, %d accounts updated\n",
			summary.BlockNum, summary.NewNotes, summary.ConsumedNotes, summary.UpdatedAccounts)
	case "transfer":
		noteType := ledger.NotePrivate
		if *public {
			noteType = ledger.NotePublic
		}
		req, err := payments.BuildPaymentFromHex(*from, *to, a.cfg.FaucetID, *amount)
		if err != nil {
			return err
		}
		out, err := a.payments.TransferAsset(ctx, req.Payment.Sender, req.Payment.Target, req.Payment.Amount,
			payments.WithNoteType(noteType), payments.WithRecallHeight(*recall))
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, out.TxID)
	case "consume":
		id, err := accountID()
		if err != nil {
			return err
		}
		out, err := a.payments.ConsumeAvailableNotes(ctx, id)
		if err != nil {
			return err
		}
		for _, tx := range out.TxIDs {
			fmt.Fprintln(a.out, tx)
		}
	case "history":
		id, err := accountID()
		if err != nil {
			return err
		}
		txs, err := a.payments.History(ctx, id)
		if err != nil {
			return err
		}
		for _, tx := range txs {
			fmt.Fprintf(a.out, "%s nonce %d->%d block %d inputs %d outputs %d\n",
				tx.ID, tx.InitNonce, tx.FinalNonce, tx.BlockNum, len(tx.InputNotes), len(tx.OutputNotes))
		}
	case "import":
		report, err := a.notes.ImportFiles(ctx, fs.Args())
		if err != nil {
			return err
		}
		for _, r := range report.Imported {
			fmt.Fprintf(a.out, "imported %s (%s)\n", r.ID, r.Status)
		}
		for _, f := range report.Failed {
			fmt.Fprintf(a.out, "failed %s: %s\n", f.Path, f.Error)
		}
		if len(report.Failed) > 0 {
			return fmt.Errorf("%d of %d files failed", len(report.Failed), len(fs.Args()))
		}
	case "export":
		id, err := ledger.ParseNoteID(*noteID)
		if err != nil {
			return err
		}
		data, err := a.notes.Export(ctx, id)
		if err != nil {
			return err
		}
		path := *outPath
		if path == "" {
			path = id.String() + ".mno"
		}
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return err
		}
		fmt.Fprintln(a.out, path)
	default:
		fmt.Fprint(os.Stderr, usage)
		return flag.ErrHelp
	}
	return nil
}
