// Package batch runs lists of independent transfers.
package batch

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/congo-pay/note_wallet/internal/ledger"
	"github.com/congo-pay/note_wallet/internal/metrics"
	"github.com/congo-pay/note_wallet/internal/payments"
)

const defaultConcurrency = 4

// Transferer submits one payment.
type Transferer interface {
	TransferAsset(ctx context.Context, sender, target ledger.AccountID, amount uint64, opts ...payments.PaymentOption) (payments.TransferOutcome, error)
}

// TransferRequest is one item of a batch.
type TransferRequest struct {
	SenderWallet string `json:"sender_wallet"`
	TargetWallet string `json:"target_wallet"`
	Amount       uint64 `json:"amount"`
}

// TransferResult carries either TxID or Error.
type TransferResult struct {
	SenderWallet string `json:"sender_wallet"`
	TargetWallet string `json:"target_wallet"`
	Amount       uint64 `json:"amount"`
	TxID         string `json:"tx_id,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Coordinator processes batches with per-item isolation.
type Coordinator struct {
	transfers   Transferer
	concurrency int
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewCoordinator builds a coordinator running at most concurrency senders at once.
func NewCoordinator(transfers Transferer, concurrency int, m *metrics.Metrics, logger *slog.Logger) *Coordinator {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{transfers: transfers, concurrency: concurrency, metrics: m, logger: logger.With("component", "batch")}
}

type item struct {
	index  int
	sender ledger.AccountID
	target ledger.AccountID
}

// Process runs every request and returns one result per request, in input
// order. Requests sharing a sender run sequentially in input order; distinct
// senders run concurrently. A failing item never affects the others.
func (c *Coordinator) Process(ctx context.Context, reqs []TransferRequest) []TransferResult {
	results := make([]TransferResult, len(reqs))
	var order []ledger.AccountID
	bySender := make(map[ledger.AccountID][]item)

	for i, req := range reqs {
		results[i] = TransferResult{SenderWallet: req.SenderWallet, TargetWallet: req.TargetWallet, Amount: req.Amount}
		sender, err := ledger.ParseAccountID(req.SenderWallet)
		if err != nil {
			c.fail(&results[i], "Invalid sender wallet: "+err.Error())
			continue
		}
		target, err := ledger.ParseAccountID(req.TargetWallet)
		if err != nil {
			c.fail(&results[i], "Invalid target wallet: "+err.Error())
			continue
		}
		if _, ok := bySender[sender]; !ok {
			order = append(order, sender)
		}
		bySender[sender] = append(bySender[sender], item{index: i, sender: sender, target: target})
	}

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for _, sender := range order {
		items := bySender[sender]
		g.Go(func() error {
			for _, it := range items {
				c.run(ctx, it, &results[it.index])
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (c *Coordinator) run(ctx context.Context, it item, res *TransferResult) {
	out, err := c.transfers.TransferAsset(ctx, it.sender, it.target, res.Amount)
	if err != nil {
		c.fail(res, "Failed to process transfer: "+err.Error())
		return
	}
	res.TxID = out.TxID.String()
	c.metrics.BatchItem(true)
}

func (c *Coordinator) fail(res *TransferResult, msg string) {
	res.Error = msg
	c.metrics.BatchItem(false)
	c.logger.Warn("batch item failed", slog.String("sender", res.SenderWallet), slog.String("target", res.TargetWallet), slog.String("error", msg))
}
