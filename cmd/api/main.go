package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/angelmondragon/festpos/api/routes"
	"github.com/angelmondragon/festpos/internal/dashboard"
	product "github.com/angelmondragon/festpos/internal/products"
	"github.com/angelmondragon/festpos/internal/returns"
	"github.com/angelmondragon/festpos/internal/sales"
	"github.com/angelmondragon/festpos/internal/users"
	"github.com/angelmondragon/festpos/pkg/clock"
	"github.com/angelmondragon/festpos/pkg/config"
	"github.com/angelmondragon/festpos/pkg/db"
	"github.com/angelmondragon/festpos/pkg/logger"
	"github.com/angelmondragon/festpos/pkg/migrate"
	"github.com/angelmondragon/festpos/pkg/outbox"
	"github.com/angelmondragon/festpos/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = config.ServiceKindAPI

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap redis", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(ctx, "redis not configured; idempotency keys and sale rate limits are disabled")
	}

	services, err := buildServices(cfg, logg, dbClient)
	if err != nil {
		logg.Error(ctx, "failed to build services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, dbClient, redisClient, services),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	exitCode := 0
	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(logCtx, "api server stopped unexpectedly", err)
			exitCode = 1
		}
	case <-ctx.Done():
		logg.Info(logCtx, "shutting down api server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	closeErr := server.Shutdown(shutdownCtx)
	if redisClient != nil {
		closeErr = multierr.Append(closeErr, redisClient.Close())
	}
	closeErr = multierr.Append(closeErr, dbClient.Close())
	if closeErr != nil {
		logg.Error(logCtx, "error during shutdown", closeErr)
		exitCode = 1
	}
	os.Exit(exitCode)
}

func buildServices(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (routes.Services, error) {
	emitter := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	salesRepo := sales.NewRepository(dbClient.DB())
	clk := clock.NewRealClock()

	userSvc, err := users.NewService(users.NewRepository(dbClient.DB()))
	if err != nil {
		return routes.Services{}, err
	}
	productSvc, err := product.NewService(product.NewRepository(dbClient.DB()), dbClient)
	if err != nil {
		return routes.Services{}, err
	}
	salesSvc, err := sales.NewService(sales.ServiceParams{
		Repository: salesRepo,
		DB:         dbClient,
		Outbox:     emitter,
		Clock:      clk,
		Logger:     logg,
	})
	if err != nil {
		return routes.Services{}, err
	}
	returnsSvc, err := returns.NewService(returns.ServiceParams{
		Repository: salesRepo,
		DB:         dbClient,
		Outbox:     emitter,
		Catalog:    cfg.Catalog,
		Clock:      clk,
		Logger:     logg,
	})
	if err != nil {
		return routes.Services{}, err
	}
	dashSvc, err := dashboard.NewService(salesRepo)
	if err != nil {
		return routes.Services{}, err
	}

	return routes.Services{
		Users:     userSvc,
		Products:  productSvc,
		Sales:     salesSvc,
		Returns:   returnsSvc,
		Dashboard: dashSvc,
	}, nil
}
