// Command tracker runs the pump.fun token tracking service: it consumes the
// upstream WebSocket feed, filters and caches new tokens, aggregates trades
// into phase-driven metric windows, and serves an operational HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"solana-pump-tracker/internal/config"
	"solana-pump-tracker/internal/httpapi"
	"solana-pump-tracker/internal/service"
	"solana-pump-tracker/internal/storage"
	chstore "solana-pump-tracker/internal/storage/clickhouse"
	"solana-pump-tracker/internal/storage/migrations"
	pgstore "solana-pump-tracker/internal/storage/postgres"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var (
		envFile  = flag.String("env-file", ".env", "path to KEY=VALUE env file (optional)")
		httpAddr = flag.String("http-addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	)
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}

	setupLogging(cfg.LogLevel)
	printBanner(cfg)

	store, err := config.NewStore(cfg, *envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("config store")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The pool starts idle; the service dials it with retry once running.
	pool := pgstore.NewIdlePool()
	defer pool.Close()

	var archive storage.TradeArchive
	if cfg.ClickHouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
		if err != nil {
			log.Warn().Err(err).Msg("clickhouse unreachable, raw-trade archive disabled")
		} else {
			defer conn.Close()
			archive = chstore.NewTradeArchive(conn)
			log.Info().Msg("raw-trade archive enabled")
		}
	}

	svc := service.New(service.Options{
		Config:      store,
		Pool:        pool,
		PhaseStore:  pgstore.NewPhaseStore(pool),
		StreamStore: pgstore.NewStreamStore(pool),
		MetricStore: pgstore.NewMetricStore(pool),
		Archive:     archive,
	})

	api := httpapi.NewServer(svc, store)
	httpSrv := api.HTTPServer(cfg.HTTPAddr)

	errc := make(chan error, 2)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http api listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		errc <- svc.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errc:
		if err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("service stopped")
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown incomplete")
	}
	log.Info().Msg("tracker stopped")
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

// printBanner logs the effective configuration with credentials masked.
func printBanner(cfg config.Config) {
	log.Info().
		Str("ws_uri", cfg.WSURI).
		Str("db_dsn", config.MaskedDSN(cfg.DBDSN)).
		Str("webhook_url", cfg.WebhookURL).
		Str("webhook_method", cfg.WebhookMethod).
		Int("batch_size", cfg.BatchSize).
		Dur("batch_timeout", cfg.BatchTimeout).
		Dur("coin_cache_ttl", cfg.CoinCacheTTL).
		Dur("db_refresh", cfg.DBRefreshInterval).
		Float64("sol_reserves_full", cfg.SolReservesFull).
		Float64("whale_threshold_sol", cfg.WhaleThresholdSol).
		Int("age_offset_min", cfg.AgeOffsetMin).
		Bool("archive", cfg.ClickHouseDSN != "").
		Str("http_addr", cfg.HTTPAddr).
		Msg("tracker starting")
}
