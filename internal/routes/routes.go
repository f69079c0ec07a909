package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/note_wallet/internal/batch"
	"github.com/congo-pay/note_wallet/internal/config"
	"github.com/congo-pay/note_wallet/internal/devnet"
	"github.com/congo-pay/note_wallet/internal/funding"
	"github.com/congo-pay/note_wallet/internal/ledger"
	"github.com/congo-pay/note_wallet/internal/lock"
	"github.com/congo-pay/note_wallet/internal/metrics"
	"github.com/congo-pay/note_wallet/internal/middleware"
	"github.com/congo-pay/note_wallet/internal/notes"
	"github.com/congo-pay/note_wallet/internal/notification"
	"github.com/congo-pay/note_wallet/internal/payments"
	"github.com/congo-pay/note_wallet/internal/session"
	"github.com/congo-pay/note_wallet/internal/store"
	"github.com/congo-pay/note_wallet/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg     config.Config
	DB      *pgxpool.Pool
	Cache   *redis.Client
	Node    ledger.Node
	Devnet  *devnet.Node
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDevelopment() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Node == nil {
		return fmt.Errorf("ledger node is required")
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{AllowOrigins: d.Cfg.CORSAllowOrigins}))
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	// Health and metrics
	RegisterHealthRoutes(app, d)
	if d.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Metrics.Registry, promhttp.HandlerOpts{})))
	}
	if d.Devnet != nil {
		// RPC and faucet routes of the in-process node.
		devnet.NewHandler(d.Devnet).Register(app.Group("/devnet"))
	}

	// Services and handlers
	var st store.Store
	if d.DB != nil {
		st = store.NewPostgres(d.DB)
	} else {
		st = store.NewMemory()
	}

	sessions, err := session.NewFactory(session.Config{NodeURL: nodeURL(d), NodeTimeout: d.Cfg.NodeTimeout}, st, d.Node, nil, d.Logger)
	if err != nil {
		return err
	}

	var locker lock.Locker = lock.NewKeyed()
	if d.Cache != nil {
		locker = lock.Chain{locker, lock.NewRedis(d.Cache, lock.RedisOptions{Expiry: d.Cfg.LockTTL}, d.Logger)}
	}

	noteSvc := notes.NewService(sessions, d.Metrics, d.Logger)
	walletSvc := wallet.NewService(sessions, noteSvc, d.Logger)
	paymentSvc := payments.NewService(payments.Config{
		Faucet:                 d.Cfg.FaucetID,
		PostSubmitSyncAttempts: d.Cfg.PostSubmitSyncAttempts,
	}, sessions, noteSvc, locker, notification.NewLoggerNotifier(d.Logger), d.Metrics, d.Logger)
	coordinator := batch.NewCoordinator(paymentSvc, d.Cfg.BatchConcurrency, d.Metrics, d.Logger)

	app.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"node":       sessions.Endpoint().BaseURL(),
			"faucet":     d.Cfg.FaucetID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	rateLimiter := middleware.TransferRateLimit(d.Cache, d.Cfg.TxRateLimitPerMin)
	RegisterWalletRoutes(app, wallet.NewHandler(walletSvc, d.Cfg.FaucetID))
	RegisterPaymentRoutes(app, payments.NewHandler(paymentSvc), batch.NewHandler(coordinator), rateLimiter)
	RegisterNoteRoutes(app, notes.NewHandler(noteSvc, d.Cfg.NoteImportPaths))

	// Faucet top-ups exist only against development nodes.
	if minter, ok := d.Node.(ledger.Minter); ok && d.Cfg.IsDevelopment() {
		fundingSvc, err := funding.NewService(minter, sessions, noteSvc, d.Cfg.FaucetID, d.Logger)
		if err != nil {
			return err
		}
		RegisterFundingRoutes(app, funding.NewHandler(fundingSvc), rateLimiter)
	}

	return nil
}

// nodeURL is the configured endpoint, or this service's own address when the
// devnet runs in-process (its routes are mounted under /devnet).
func nodeURL(d Deps) string {
	if d.Cfg.NodeURL != "" {
		return d.Cfg.NodeURL
	}
	return "http://127.0.0.1" + d.Cfg.Address()
}
