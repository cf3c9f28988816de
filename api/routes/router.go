package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/festpos/api/controllers"
	"github.com/angelmondragon/festpos/api/middleware"
	"github.com/angelmondragon/festpos/internal/dashboard"
	product "github.com/angelmondragon/festpos/internal/products"
	"github.com/angelmondragon/festpos/internal/returns"
	"github.com/angelmondragon/festpos/internal/sales"
	"github.com/angelmondragon/festpos/internal/users"
	"github.com/angelmondragon/festpos/pkg/config"
	"github.com/angelmondragon/festpos/pkg/db"
	"github.com/angelmondragon/festpos/pkg/logger"
	"github.com/angelmondragon/festpos/pkg/redis"
)

// Services groups the domain services the API exposes.
type Services struct {
	Users     users.Service
	Products  product.Service
	Sales     sales.Service
	Returns   returns.Service
	Dashboard dashboard.Service
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	svc Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	readiness := map[string]controllers.Pinger{"db": dbP}
	var idempotencyStore redis.IdempotencyStore
	var rateStore middleware.RateLimiterStore
	if redisClient != nil {
		readiness["redis"] = redisClient
		idempotencyStore = redisClient
		rateStore = redisClient
	}

	salesPolicy := middleware.NewRateLimitPolicy("sales", cfg.RateLimit.SalesWindow, cfg.RateLimit.SalesPerWindow)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readiness, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Get("/me", controllers.Me(svc.Users, logg))
		r.Get("/products", controllers.ListProducts(svc.Products, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireVerified(svc.Users, logg))

			r.Route("/sales", func(r chi.Router) {
				r.Get("/", controllers.ListSales(svc.Sales, logg))
				r.Get("/history", controllers.ListHistory(svc.Sales, logg))
				r.Get("/{saleId}", controllers.GetSale(svc.Sales, logg))
				r.Patch("/{saleId}/provided", controllers.SetProvided(svc.Sales, logg))
				r.With(middleware.UserRateLimit(salesPolicy, rateStore, logg)).
					Put("/{saleId}", controllers.PutSale(svc.Sales, logg))
			})
			r.With(middleware.Idempotency(idempotencyStore, middleware.ReturnReplayTTL, logg)).
				Post("/returns", controllers.CreateReturn(svc.Returns, logg))
			r.Get("/dashboard", controllers.Dashboard(svc.Dashboard, logg))

			r.Route("/admin/products", func(r chi.Router) {
				r.With(middleware.Idempotency(idempotencyStore, middleware.AdminReplayTTL, logg)).
					Post("/", controllers.AdminCreateProduct(svc.Products, logg))
				r.Put("/{productId}", controllers.AdminUpdateProduct(svc.Products, logg))
				r.Delete("/{productId}", controllers.AdminDeleteProduct(svc.Products, logg))
			})
		})
	})

	return r
}
