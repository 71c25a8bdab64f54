package routes

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/custodia-wallet/custodia/internal/address"
	"github.com/custodia-wallet/custodia/internal/asset"
	"github.com/custodia-wallet/custodia/internal/config"
	"github.com/custodia-wallet/custodia/internal/ledger"
	"github.com/custodia-wallet/custodia/internal/middleware"
	"github.com/custodia-wallet/custodia/internal/notification"
)

// Deps aggregates shared dependencies required to wire routes. DB and Cache
// are optional: without a database the ledger journal is a no-op, without
// Redis the idempotency and rate-limit middlewares are skipped.
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
	app.Use(cors.New())
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	RegisterHealthRoutes(app, d)

	assets := asset.Default()
	if len(d.Cfg.SupportedAssets) > 0 {
		assets = asset.NewRegistry(d.Cfg.SupportedAssets)
	}

	var journal ledger.Journal = ledger.NopJournal{}
	if d.DB != nil {
		journal = ledger.NewPostgresJournal(d.DB)
	}

	store := ledger.NewStore(address.NewGenerator(), assets)
	engine := ledger.NewEngine(store, assets, journal, d.Logger, d.Cfg.AdminToken)
	notifier := notification.NewLoggerNotifier(d.Logger)
	handler := ledger.NewHandler(engine, notifier)

	RegisterWalletRoutes(app, handler, d.Cache, d.Cfg.AdminToken)

	return nil
}

// RegisterWalletRoutes wires the wallet and ledger endpoints.
func RegisterWalletRoutes(app *fiber.App, h *ledger.Handler, cache *redis.Client, adminToken string) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"ok":        true,
			"message":   "Wallet backend running",
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	app.Post("/register", h.Register)
	app.Get("/wallet/:idOrAddress", h.GetWallet)
	app.Get("/wallet-by-address/:idOrAddress", h.GetWallet)
	app.Post("/send", h.Send)
	app.Post("/rename", h.Rename)

	app.Post("/set-pin", h.SetPIN)
	app.Post("/verify-pin", middleware.PINRateLimit(cache, 5), h.VerifyPIN)
	app.Post("/reset-pin", middleware.PINRateLimit(cache, 5), h.ResetPIN)

	admin := app.Group("/admin")
	admin.Post("/credit", h.Credit)
	admin.Get("/wallets", adminGuard(adminToken), h.ListWallets)
}

// adminGuard rejects requests whose X-Admin-Token header does not match the
// configured secret. An empty configured token leaves the route open, the
// demo default.
func adminGuard(token string) fiber.Handler {
	want := []byte(token)
	return func(c *fiber.Ctx) error {
		if len(want) == 0 {
			return c.Next()
		}
		got := []byte(c.Get("X-Admin-Token"))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			return fiber.NewError(http.StatusForbidden, "admin token required")
		}
		return c.Next()
	}
}
