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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/festpos/api/terminal"
	"github.com/angelmondragon/festpos/internal/checkout"
	"github.com/angelmondragon/festpos/internal/posapi"
	"github.com/angelmondragon/festpos/internal/register"
	"github.com/angelmondragon/festpos/pkg/clock"
	"github.com/angelmondragon/festpos/pkg/config"
	"github.com/angelmondragon/festpos/pkg/db"
	"github.com/angelmondragon/festpos/pkg/localstore"
	"github.com/angelmondragon/festpos/pkg/logger"
	"github.com/angelmondragon/festpos/pkg/metrics"
)

const (
	shutdownTimeout    = 10 * time.Second
	catalogRetryPeriod = 5 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "register"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.LoadRegister()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "register",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "register stopped", err)
		os.Exit(1)
	}
}

func run(parent context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, cancelRun := context.WithCancel(parent)
	defer cancelRun()

	localDB, err := db.OpenSQLite(cfg.Register.LocalDBPath)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, localDB.Close()) }()

	client, err := posapi.NewClient(cfg.Register.APIBaseURL, cfg.Register.APIToken,
		posapi.WithTimeout(cfg.Register.RequestTimeout))
	if err != nil {
		return err
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registerMetrics := metrics.NewRegisterMetrics(promReg)
	clk := clock.NewRealClock()

	store, err := localstore.Open(ctx, localstore.Options{
		DB:           localDB,
		Remote:       client,
		Logger:       logg,
		Clock:        clk,
		Metrics:      metrics.NewReplayMetrics(promReg),
		BatchSize:    cfg.Register.SyncBatchSize,
		PollInterval: cfg.Register.SyncInterval(),
		PushTimeout:  cfg.Register.RequestTimeout,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	// Replay stops and drains before the store and the database close.
	stopReplay := startReplay(ctx, store)
	defer func() { err = multierr.Append(err, stopReplay()) }()

	stopQueued := store.SubscribePendingCount(register.SalesCollection, registerMetrics.SetQueued)
	defer stopQueued()

	catalog, err := checkout.NewCachedCatalog(ctx, client, localDB, logg)
	if err != nil {
		return err
	}
	submitter, err := register.NewSubmitter(store, logg)
	if err != nil {
		return err
	}
	watcher, err := register.NewWatcher(store, logg)
	if err != nil {
		return err
	}
	ctrl, err := checkout.NewController(checkout.Options{
		Submitter:  submitter,
		Watcher:    watcher,
		Pending:    register.NewPendingSet(),
		Identity:   client,
		Catalog:    catalog,
		Clock:      clk,
		Logger:     logg,
		Metrics:    registerMetrics,
		ClearDelay: cfg.Register.ClearDelay,
	})
	if err != nil {
		return err
	}
	defer ctrl.Close()

	server := &http.Server{
		Addr:              cfg.Register.ListenAddr,
		Handler:           terminal.NewRouter(logg, ctrl, store, promReg, cfg.App.CORSOrigins),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- server.ListenAndServe() }()

	logCtx := logg.WithField(ctx, "addr", cfg.Register.ListenAddr)
	logg.Info(logCtx, "register listening")

	// The cart screen is served while the catalog loads; checkout stays
	// disabled until products are known.
	bootDone := make(chan struct{})
	go func() {
		defer close(bootDone)
		if err := startController(ctx, ctrl, logg); err != nil {
			return
		}
		if profile, err := client.Me(ctx); err != nil {
			logg.Warn(ctx, "operator profile unavailable, continuing with token identity")
		} else {
			logg.Info(logg.WithUserID(ctx, profile.ID), "operator signed in")
		}
	}()

	select {
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	case <-ctx.Done():
		logg.Info(logCtx, "shutting down register")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err = multierr.Append(err, server.Shutdown(shutdownCtx))
	cancelRun()
	<-bootDone
	return err
}

type replayer interface {
	Run(ctx context.Context) error
}

// startReplay runs r until the returned stop is called. stop cancels the loop,
// waits for it to return and reports any error other than the cancellation.
func startReplay(parent context.Context, r replayer) (stop func() error) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	return func() error {
		cancel()
		if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}

// startController loads the catalog, retrying until the backing service or
// the local cache answers, or ctx ends.
func startController(ctx context.Context, ctrl *checkout.Controller, logg *logger.Logger) error {
	for {
		err := ctrl.Start(ctx)
		if err == nil {
			return nil
		}
		logg.Warn(logg.WithField(ctx, "error", err.Error()), "catalog unavailable, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(catalogRetryPeriod):
		}
	}
}
