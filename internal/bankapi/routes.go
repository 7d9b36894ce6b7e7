package bankapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/vaultlink/vaultlink/internal/account"
	"github.com/vaultlink/vaultlink/internal/auth"
	"github.com/vaultlink/vaultlink/internal/bank"
	"github.com/vaultlink/vaultlink/internal/denom"
	"github.com/vaultlink/vaultlink/internal/middleware"
)

// Setup configures middlewares and all bank API routes.
func Setup(app *fiber.App, d Deps) error {
	if !isDev(d.Cfg.AppEnv) {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Backends: Postgres in production, in-memory for dev runs without a
	// database.
	var (
		ledger bank.Ledger
		loans  bank.Loans
	)
	if d.DB != nil {
		pg := bank.NewPostgres(d.DB)
		ledger, loans = pg, pg
	} else {
		mem := bank.NewInMemory()
		ledger, loans = mem, mem
	}

	var denomStore *denom.PostgresStore
	denoms := denom.NewMemory()
	if d.DB != nil {
		denomStore = denom.NewPostgresStore(d.DB)
		loaded, err := denomStore.LoadMemory(context.Background())
		if err != nil {
			return fmt.Errorf("load denominations: %w", err)
		}
		denoms = loaded
	}

	var accountRepo account.Repository
	if d.DB != nil {
		accountRepo = account.NewPostgresRepository(d.DB)
	} else {
		accountRepo = account.NewMemoryRepository()
	}
	accounts := account.NewService(accountRepo)
	tokens := auth.NewService([]byte(d.Cfg.AuthSecret), accounts)

	h := &handler{
		ledger:     ledger,
		loans:      loans,
		denoms:     denoms,
		denomStore: denomStore,
		accounts:   accounts,
		tokens:     tokens,
		logger:     d.Logger,
	}

	api := app.Group("/api/v1")

	// Public surface: server registration and token minting.
	api.Post("/servers", h.registerServer)
	api.Post("/auth/token", middleware.AuthRateLimit(d.Cache, 5), h.token)
	api.Get("/denominations", h.listDenominations)

	// Authenticated surface for registered game servers.
	protected := api.Group("", middleware.TokenAuth(tokens))
	if d.Cache != nil {
		protected.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	protected.Get("/accounts/:player/balance", h.balance)
	protected.Post("/accounts/:player/deposit", h.deposit)
	protected.Post("/accounts/:player/withdraw", h.withdraw)
	protected.Post("/loans", h.createLoan)
	protected.Post("/denominations", h.saveDenomination)

	return nil
}

func isDev(env string) bool {
	switch strings.ToLower(env) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}
