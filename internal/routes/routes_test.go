package routes

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/note_wallet/internal/config"
	"github.com/congo-pay/note_wallet/internal/devnet"
	"github.com/congo-pay/note_wallet/internal/httperr"
	"github.com/congo-pay/note_wallet/internal/ledger"
	"github.com/congo-pay/note_wallet/internal/logging"
	"github.com/congo-pay/note_wallet/internal/metrics"
)

func newApp(t *testing.T) (*fiber.App, *devnet.Node) {
	t.Helper()
	node := devnet.New()
	app := fiber.New(fiber.Config{ErrorHandler: httperr.Handler})
	cfg := config.Config{
		AppEnv:                 "development",
		Port:                   "8080",
		NodeTimeout:            5 * time.Second,
		FaucetID:               ledger.MustParseAccountID("0x29b86f9443ad907a"),
		BatchConcurrency:       2,
		PostSubmitSyncAttempts: 1,
		CORSAllowOrigins:       "*",
	}
	err := Setup(app, Deps{Cfg: cfg, Node: node, Devnet: node, Metrics: metrics.New(), Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	return app, node
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out
}

func TestSetupRequiresStoresOutsideDevelopment(t *testing.T) {
	err := Setup(fiber.New(), Deps{Cfg: config.Config{AppEnv: "production"}, Node: devnet.New(), Logger: logging.Discard()})
	if err == nil {
		t.Fatalf("expected error without database in production")
	}
}

func TestWalletFlowOverHTTP(t *testing.T) {
	app, _ := newApp(t)

	status, a := do(t, app, "POST", "/create-wallet", "")
	if status != fiber.StatusOK {
		t.Fatalf("create wallet: %d", status)
	}
	_, b := do(t, app, "POST", "/create-wallet", "")
	sender, _ := a["wallet_id"].(string)
	target, _ := b["wallet_id"].(string)

	status, _ = do(t, app, "POST", "/devnet/v1/faucet/mint", `{"faucet":"0x29b86f9443ad907a","target":"`+sender+`","amount":100}`)
	if status != fiber.StatusCreated {
		t.Fatalf("mint: %d", status)
	}

	status, notes := do(t, app, "GET", "/"+sender+"/get-consumable-notes", "")
	if status != fiber.StatusOK {
		t.Fatalf("consumable notes: %d", status)
	}
	if list, _ := notes["notes"].([]any); len(list) != 1 {
		t.Fatalf("expected one consumable note, got %v", notes)
	}

	status, consumed := do(t, app, "POST", "/"+sender+"/consume-available-notes", "")
	if status != fiber.StatusOK {
		t.Fatalf("consume: %d %v", status, consumed)
	}
	if ids, _ := consumed["tx_ids"].([]any); len(ids) != 1 {
		t.Fatalf("expected one tx id, got %v", consumed)
	}

	status, transfer := do(t, app, "POST", "/transfer", `{"sender_wallet":"`+sender+`","target_wallet":"`+target+`","amount":40}`)
	if status != fiber.StatusOK || transfer["tx_id"] == "" {
		t.Fatalf("transfer: %d %v", status, transfer)
	}

	status, listing := do(t, app, "GET", "/accounts", "")
	if status != fiber.StatusOK {
		t.Fatalf("accounts: %d", status)
	}
	accounts, _ := listing["accounts"].([]any)
	if len(accounts) != 2 {
		t.Fatalf("expected two accounts, got %v", listing)
	}
	first, _ := accounts[0].(map[string]any)
	second, _ := accounts[1].(map[string]any)
	if first["balance"] != float64(60) || second["pending"] != float64(40) || second["balance"] != float64(0) {
		t.Fatalf("unexpected balances %v", accounts)
	}

	status, batch := do(t, app, "POST", "/batch-transfer", `{"transfers":[{"sender_wallet":"`+sender+`","target_wallet":"`+target+`","amount":10},{"sender_wallet":"bad_id","target_wallet":"`+target+`","amount":10}]}`)
	if status != fiber.StatusOK {
		t.Fatalf("batch: %d", status)
	}
	results, _ := batch["results"].([]any)
	if len(results) != 2 {
		t.Fatalf("expected two results, got %v", batch)
	}
	if r0, _ := results[0].(map[string]any); r0["tx_id"] == nil {
		t.Fatalf("first batch item should succeed: %v", r0)
	}
	if r1, _ := results[1].(map[string]any); r1["error"] == nil {
		t.Fatalf("second batch item should fail: %v", r1)
	}

	status, _ = do(t, app, "POST", "/"+target+"/consume-available-notes", "")
	if status != fiber.StatusOK {
		t.Fatalf("consume target: %d", status)
	}
	status, body := do(t, app, "POST", "/"+target+"/consume-available-notes", "")
	if status != fiber.StatusNotFound || body["error"] == nil {
		t.Fatalf("expected 404 with error body, got %d %v", status, body)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	app, _ := newApp(t)
	status, body := do(t, app, "GET", "/healthz", "")
	if status != fiber.StatusOK {
		t.Fatalf("healthz: %d %v", status, body)
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusOK || !strings.Contains(string(raw), "go_goroutines") {
		t.Fatalf("unexpected metrics response %d", resp.StatusCode)
	}
}
