package funding

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/note_wallet/internal/devnet"
	"github.com/congo-pay/note_wallet/internal/httperr"
	"github.com/congo-pay/note_wallet/internal/ledger"
	"github.com/congo-pay/note_wallet/internal/logging"
	"github.com/congo-pay/note_wallet/internal/notes"
	"github.com/congo-pay/note_wallet/internal/session"
	"github.com/congo-pay/note_wallet/internal/store"
)

var (
	faucet = ledger.MustParseAccountID("0x29b86f9443ad907a")
	bob    = ledger.NewAccountID(0xb0b, ledger.StoragePrivate)
)

func newService(t *testing.T) (*Service, *notes.Service) {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory()
	if err := st.InsertAccount(ctx, store.AccountRecord{ID: bob, Mode: bob.StorageMode()}); err != nil {
		t.Fatalf("insert account: %v", err)
	}
	node := devnet.New()
	sessions, err := session.NewFactory(session.Config{NodeURL: "http://localhost:57291", NodeTimeout: 5 * time.Second}, st, node, nil, logging.Discard())
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	noteSvc := notes.NewService(sessions, nil, logging.Discard())
	svc, err := NewService(node, sessions, noteSvc, faucet, logging.Discard())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, noteSvc
}

func TestServiceFund(t *testing.T) {
	ctx := context.Background()
	svc, noteSvc := newService(t)

	res, err := svc.Fund(ctx, Input{Account: bob, Amount: 10_000})
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	if !res.Synced || res.BlockNum != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}

	pending, err := noteSvc.ConsumableNotes(ctx, &bob)
	if err != nil {
		t.Fatalf("consumable notes: %v", err)
	}
	if got := notes.Pending(pending, faucet)[bob]; got != 10_000 {
		t.Fatalf("expected pending 10000, got %d", got)
	}
}

func TestServiceFundRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	if _, err := svc.Fund(ctx, Input{Account: bob}); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	stranger := ledger.NewAccountID(0x5, ledger.StoragePublic)
	if _, err := svc.Fund(ctx, Input{Account: stranger, Amount: 1}); !errors.Is(err, store.ErrAccountNotFound) {
		t.Fatalf("expected account not found, got %v", err)
	}
}

func TestNewServiceRequiresMinter(t *testing.T) {
	if _, err := NewService(nil, nil, nil, faucet, nil); err == nil {
		t.Fatal("expected error without minter")
	}
}

func TestHandlerFund(t *testing.T) {
	svc, _ := newService(t)
	app := fiber.New(fiber.Config{ErrorHandler: httperr.Handler})
	app.Post("/:account_id/fund", NewHandler(svc).Fund)

	cases := []struct {
		path string
		body string
		want int
	}{
		{"/" + bob.String() + "/fund", `{"amount":50}`, 201},
		{"/" + bob.String() + "/fund", `{"amount":0}`, 400},
		{"/" + bob.String() + "/fund", `{"amount":5,"note_type":"secret"}`, 400},
		{"/nope/fund", `{"amount":5}`, 400},
		{"/0x00000000000000ff/fund", `{"amount":5}`, 404},
	}
	for _, tc := range cases {
		req := httptest.NewRequest("POST", tc.path, strings.NewReader(tc.body))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req, -1)
		if err != nil {
			t.Fatalf("%s: %v", tc.path, err)
		}
		if resp.StatusCode != tc.want {
			t.Fatalf("%s %s: expected %d, got %d", tc.path, tc.body, tc.want, resp.StatusCode)
		}
	}
}
