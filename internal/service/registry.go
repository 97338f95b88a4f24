package service

import (
	"context"
	"time"

	"solana-pump-tracker/internal/config"
	"solana-pump-tracker/internal/discovery"
	"solana-pump-tracker/internal/domain"
	"solana-pump-tracker/internal/storage/migrations"
)

// refreshRegistry reloads the active-stream registry and diffs it against the
// local mirror: newly active mints start tracking (replaying any trades
// buffered in the discovery cache), mints gone from the registry stop. A DSN
// change staged through the config API forces a pool swap first.
func (s *Service) refreshRegistry(ctx context.Context, cfg config.Config) {
	if s.cfg.ConsumeForceReconnect() {
		s.logger.Info().Str("dsn", config.MaskedDSN(cfg.DBDSN)).
			Msg("database DSN changed, reconnecting pool")
		if err := s.pool.Reconnect(ctx, cfg.DBDSN); err != nil {
			s.logger.Error().Err(err).Msg("pool reconnect failed, keeping previous connection")
		} else if err := migrations.RunPostgresMigrations(ctx, s.pool); err != nil {
			s.logger.Error().Err(err).Msg("migrations failed on reconnected pool")
		}
	}

	streams, err := s.streamStore.GetActiveStreams(ctx)
	if err != nil {
		s.setDBConnected(false)
		s.logger.Warn().Err(err).Msg("registry refresh failed")
		return
	}
	s.setDBConnected(true)

	fresh := make(map[string]*domain.ActiveStream, len(streams))
	for _, st := range streams {
		fresh[st.Mint] = st
	}

	for mint, st := range fresh {
		if _, known := s.registry[mint]; known {
			continue
		}
		if !s.tracker.Has(mint) {
			replay := tradesOf(s.cache.Promote(mint))
			s.tracker.Track(st, replay, cfg.WhaleThresholdSol)
		}
		s.subs.EnqueueSubscribe(mint)
	}

	for mint := range s.registry {
		if _, still := fresh[mint]; still {
			continue
		}
		s.logger.Info().Str("mint", mint).Msg("stream deactivated in registry, untracking")
		s.tracker.Untrack(mint)
		s.subs.EnqueueUnsubscribe(mint)
	}

	s.registry = fresh
}

// reconcileCache promotes cached tokens confirmed by the registry and evicts
// the ones whose TTL ran out, dropping their upstream subscriptions.
func (s *Service) reconcileCache(cfg config.Config) {
	active := make(map[string]struct{}, len(s.registry))
	for mint := range s.registry {
		active[mint] = struct{}{}
	}

	promoted, expired := s.cache.Reconcile(active, cfg.CoinCacheTTL)

	for _, p := range promoted {
		s.metrics.CacheActivations.Inc()
		if s.tracker.Has(p.Mint) {
			continue
		}
		meta, ok := s.registry[p.Mint]
		if !ok {
			continue
		}
		s.tracker.Track(meta, tradesOf(p.Trades), cfg.WhaleThresholdSol)
	}

	for _, mint := range expired {
		s.metrics.CacheExpirations.Inc()
		s.subs.EnqueueUnsubscribe(mint)
		s.logger.Debug().Str("mint", mint).Msg("cached token expired without activation")
	}

	s.updateCacheGauges()
}

// runSweep drives one tracker sweep and persists its results: phase
// transitions, terminal retirements, and flushed metric rows. A failed metric
// batch is dropped; the next windows are already accumulating.
func (s *Service) runSweep(ctx context.Context, cfg config.Config) {
	res := s.tracker.Sweep(sweepConfigFrom(cfg))

	for _, pc := range res.PhaseChanges {
		if err := s.streamStore.UpdatePhase(ctx, pc.Mint, pc.PhaseID); err != nil {
			s.logger.Warn().Err(err).Str("mint", pc.Mint).Int("phase", pc.PhaseID).
				Msg("phase transition not persisted")
		}
	}

	for _, r := range res.Retired {
		if err := s.streamStore.MarkTerminal(ctx, r.Mint, r.Graduated); err != nil {
			s.logger.Warn().Err(err).Str("mint", r.Mint).Msg("terminal transition not persisted")
		}
		delete(s.registry, r.Mint)
		s.subs.EnqueueUnsubscribe(r.Mint)
	}

	if len(res.Rows) == 0 {
		return
	}

	start := time.Now()
	err := s.metricStore.InsertBatch(ctx, res.Rows)
	s.metrics.InsertDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.MetricInsertErrors.Inc()
		s.setDBConnected(false)
		s.logger.Error().Err(err).Int("rows", len(res.Rows)).Msg("metric batch insert failed")
		return
	}
	s.setDBConnected(true)
	s.logger.Debug().Int("rows", len(res.Rows)).Msg("metric batch written")
}

// flushATH writes the dirty all-time-high set to the registry. On failure the
// set is restored so the next cadence retries it.
func (s *Service) flushATH(ctx context.Context) {
	updates := s.ath.TakeDirty(s.now().UTC())
	if len(updates) == 0 {
		return
	}
	if err := s.streamStore.FlushATH(ctx, updates); err != nil {
		s.ath.RestoreDirty(updates)
		s.logger.Warn().Err(err).Int("count", len(updates)).Msg("ath flush failed, will retry")
		return
	}
	s.metrics.ATHFlushes.Add(float64(len(updates)))
}

// flushArchive drains the raw-trade buffer into the archive sink. Failed
// batches go back to the buffer and age out with the retention window.
func (s *Service) flushArchive(ctx context.Context) {
	if s.archive == nil {
		return
	}
	trades := s.tradeLog.Drain()
	if len(trades) == 0 {
		return
	}
	if err := s.archive.InsertBatch(ctx, trades); err != nil {
		s.tradeLog.Restore(trades)
		s.logger.Warn().Err(err).Int("count", len(trades)).Msg("trade archive insert failed")
		return
	}
	s.metrics.ArchiveRows.Add(float64(len(trades)))
}

func (s *Service) updateCacheGauges() {
	stats := s.cache.Stats()
	s.metrics.CacheSize.Set(float64(stats.Total))
	s.metrics.CacheBufferedTrades.Set(float64(stats.BufferedTrades))
}

func tradesOf(buffered []discovery.BufferedTrade) []*domain.TradeEvent {
	if len(buffered) == 0 {
		return nil
	}
	trades := make([]*domain.TradeEvent, len(buffered))
	for i, bt := range buffered {
		trades[i] = bt.Trade
	}
	return trades
}
