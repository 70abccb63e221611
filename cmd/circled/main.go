// Command circled keeps tracked circles in sync with the indexer and serves
// derived circle views over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"circlepot/internal/api"
	"circlepot/internal/config"
	"circlepot/internal/eligibility"
	"circlepot/internal/indexer"
	"circlepot/internal/ingestion"
	"circlepot/internal/observability"
	"circlepot/internal/storage"
	chstore "circlepot/internal/storage/clickhouse"
	"circlepot/internal/storage/memory"
	"circlepot/internal/storage/migrations"
	pgstore "circlepot/internal/storage/postgres"
)

// stores holds the storage implementations in use.
type stores struct {
	events    storage.EventStore
	circles   storage.CircleStore
	snapshots storage.ViewSnapshotStore
}

func main() {
	cfg, err := config.Load("circled", os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "circled: %v\n", err)
		os.Exit(2)
	}

	logger, err := observability.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "circled: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()

		// A second signal or a stuck shutdown forces exit.
		select {
		case <-sigCh:
			logger.Warn().Msg("second signal, exiting immediately")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Error().Msg("graceful shutdown timed out after 30s")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, cfg, logger)
	close(done)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("circled failed")
	}
	logger.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	st, cleanup, err := createStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	engine := eligibility.NewEngine(eligibility.Options{Logger: logger})

	var notifier ingestion.Notifier
	if cfg.Indexer.WSURL != "" {
		subCfg := indexer.DefaultSubscriberConfig()
		subCfg.Logger = logger
		sub, err := indexer.NewSubscriber(ctx, cfg.Indexer.WSURL, &subCfg)
		if err != nil {
			return fmt.Errorf("connect indexer websocket: %w", err)
		}
		defer sub.Close()
		notifier = sub
	}

	runner := ingestion.NewRunner(ingestion.RunnerOptions{
		Source:    indexer.NewClient(cfg.Indexer.URL, indexer.WithTimeout(cfg.Indexer.Timeout)),
		Notifier:  notifier,
		Events:    st.events,
		Circles:   st.circles,
		Snapshots: st.snapshots,
		Engine:    engine,
		Tracked:   cfg.Sync.Circles,
		Interval:  cfg.Sync.Interval,
		Logger:    logger,
	})

	apiServer := api.NewServer(api.Options{
		Circles:   st.circles,
		Events:    st.events,
		Snapshots: st.snapshots,
		Engine:    engine,
		Logger:    logger,
	})

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", observability.Handler())

	servers := []*http.Server{
		{Addr: cfg.HTTP.Addr, Handler: apiServer.Router(), ReadHeaderTimeout: 10 * time.Second},
		{Addr: cfg.Metrics.Addr, Handler: metricsMux, ReadHeaderTimeout: 10 * time.Second},
	}
	for _, srv := range servers {
		go serve(srv, logger)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Str("addr", srv.Addr).Msg("http shutdown")
			}
		}
	}()

	return runner.Run(ctx)
}

func serve(srv *http.Server, logger zerolog.Logger) {
	logger.Info().Str("addr", srv.Addr).Msg("http server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Str("addr", srv.Addr).Msg("http server error")
	}
}

// createStores opens PostgreSQL (events, circles) and optionally ClickHouse
// (snapshots), applying migrations, or returns in-memory stores.
func createStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*stores, func(), error) {
	if cfg.UseMemory {
		logger.Warn().Msg("using in-memory storage, state is lost on exit")
		return &stores{
			events:    memory.NewEventStore(),
			circles:   memory.NewCircleStore(),
			snapshots: memory.NewViewSnapshotStore(),
		}, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}

	st := &stores{
		events:  pgstore.NewEventStore(pool),
		circles: pgstore.NewCircleStore(pool),
	}
	cleanup := func() { pool.Close() }

	if cfg.Clickhouse.DSN == "" {
		logger.Info().Msg("clickhouse not configured, view snapshots disabled")
		return st, cleanup, nil
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Clickhouse.DSN)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	st.snapshots = chstore.NewViewSnapshotStore(conn)

	return st, func() {
		conn.Close()
		pool.Close()
	}, nil
}
