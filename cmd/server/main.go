package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/emihleChallotteBooi/editingList/internal/config"
	"github.com/emihleChallotteBooi/editingList/internal/gateway"
	"github.com/emihleChallotteBooi/editingList/internal/jobs"
	"github.com/emihleChallotteBooi/editingList/internal/routers"
	"github.com/emihleChallotteBooi/editingList/internal/session"
	"github.com/emihleChallotteBooi/editingList/internal/utils"
)

var (
	listenAndServe  = func(srv *http.Server) error { return srv.ListenAndServe() }
	newLogger       = utils.NewLogger
	exitFunc        = defaultExit
	exit            = os.Exit
	shutdownTimeout = 15 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		exitFunc(err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis not reachable at startup", "addr", cfg.RedisAddr, "error", err)
	}
	cancel()

	store, err := openStore(cfg, rdb)
	if err != nil {
		return err
	}

	hub := session.NewHub(gateway.NewJWTAuth(cfg.JWTSecret), store, logger, session.Options{
		TypingTimeout:  cfg.TypingTimeout,
		PersistTimeout: cfg.PersistTimeout,
		Observers:      []session.UpdateObserver{gateway.NewRedisFeed(rdb, cfg.UpdatesChannel)},
	})
	defer hub.Close()

	reporter := jobs.NewStatsReporter(hub, logger, cfg.StatsSchedule)
	if err := reporter.Start(); err != nil {
		return err
	}
	defer reporter.Stop()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           routers.New(logger, hub, cfg.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("collab-svc listening", "addr", srv.Addr, "store", cfg.StoreDriver)
		errCh <- listenAndServe(srv)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("collab-svc shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func openStore(cfg *config.Config, rdb *redis.Client) (session.Persistence, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres, config.DriverSQLite:
		db, err := gateway.OpenSQL(cfg.StoreDriver, cfg.StoreDSN())
		if err != nil {
			return nil, err
		}
		store, err := gateway.NewSQLStore(db)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return gateway.NewRedisStore(rdb), nil
	}
}

func defaultExit(err error) {
	log.Printf("collab-svc failed: %v", err)
	exit(1)
}
