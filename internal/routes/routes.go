package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/pochi-wallet/pochi/internal/config"
	"github.com/pochi-wallet/pochi/internal/ledger"
	"github.com/pochi-wallet/pochi/internal/middleware"
	"github.com/pochi-wallet/pochi/internal/notification"
	"github.com/pochi-wallet/pochi/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.IdempotencyReplay(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	RegisterHealthRoutes(app, d)

	var balances ledger.BalanceStore
	var transactions ledger.TransactionStore
	if d.DB != nil {
		balances = ledger.NewPostgresBalances(d.DB)
		transactions = ledger.NewPostgresTransactions(d.DB)
	} else {
		balances = ledger.NewInMemoryBalances()
		transactions = ledger.NewInMemoryTransactions()
	}

	notifier := notification.NewLoggerNotifier(d.Logger)
	walletSvc := wallet.NewService(balances, transactions, notifier, d.Logger)
	walletQueries := wallet.NewQueryService(balances, transactions)
	walletHandler := wallet.NewHandler(walletSvc, walletQueries)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterWalletRoutes(api, walletHandler, middleware.TopUpRateLimit(d.Cache, d.Cfg.TopUpPerMin))

	return nil
}
