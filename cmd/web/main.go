package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AdamBeresnev/quiniela/internal/cache"
	"github.com/AdamBeresnev/quiniela/internal/config"
	"github.com/AdamBeresnev/quiniela/internal/db"
	"github.com/AdamBeresnev/quiniela/internal/middleware"
	"github.com/AdamBeresnev/quiniela/internal/scheduler"
	"github.com/AdamBeresnev/quiniela/internal/service"
	"github.com/AdamBeresnev/quiniela/internal/store"
	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	database, err := db.InitDB(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.RunMigrations(database.DB, cfg.MigrationsPath); err != nil {
		return err
	}

	middleware.InitAuth(cfg)

	sessionManager := scs.New()
	sessionManager.Lifetime = cfg.SessionLifetime
	sessionManager.Store = sqlite3store.New(database.DB)

	clock := clockwork.NewRealClock()
	app, standingsCache := newApplication(cfg, database, sessionManager, clock)

	sched, err := scheduler.New(scheduler.Config{
		KickoffInterval:    cfg.KickoffInterval,
		CacheSweepInterval: cfg.CacheSweepInterval,
	}, clock, app.pools, standingsCache)
	if err != nil {
		return err
	}
	sched.Start()
	defer sched.Shutdown()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newApplication builds the stores and services around one database and one
// standings cache.
func newApplication(cfg *config.Config, database *sqlx.DB, sessionManager *scs.SessionManager, clock clockwork.Clock) (*application, *service.StandingsCache) {
	poolStore := store.NewPoolStore(database)
	userStore := store.NewUserStore(database)
	standingsCache := cache.New[uuid.UUID, *service.Standings](cfg.StandingsCacheTTL, clock)

	return &application{
		sessions:   sessionManager,
		users:      service.NewUserService(database, userStore, cfg.AdminEmails),
		pools:      service.NewPoolService(database, poolStore, clock),
		entries:    service.NewEntryService(database, poolStore, userStore, standingsCache, clock),
		matches:    service.NewMatchService(database, poolStore, standingsCache),
		settlement: service.NewSettlementService(database, poolStore, userStore, standingsCache, clock),
	}, standingsCache
}
