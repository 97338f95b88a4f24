package service

import (
	"context"
	"time"

	"solana-pump-tracker/internal/config"
	"solana-pump-tracker/internal/discovery"
	"solana-pump-tracker/internal/domain"
	"solana-pump-tracker/internal/feed"
	"solana-pump-tracker/internal/solana"
	"solana-pump-tracker/internal/storage/migrations"
	"solana-pump-tracker/internal/tracking"
)

// Loop cadences. readPollTimeout bounds one Read so the housekeeping below it
// runs even while the feed is quiet.
const (
	readPollTimeout  = 1 * time.Second
	watchdogInterval = 60 * time.Second
	pruneInterval    = 10 * time.Second
)

// Run connects the store, loads the phase table, and then supervises the
// upstream connection until ctx is cancelled. Reconnects use linear backoff
// bounded by the configured maximum.
func (s *Service) Run(ctx context.Context) error {
	cfg := s.cfg.Snapshot()

	s.connectStore(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.loadPhases(ctx)
	s.forwarder.Probe(ctx, cfg.WebhookURL)
	s.refreshRegistry(ctx, cfg)

	batcherCtx, cancelBatcher := context.WithCancel(ctx)
	defer cancelBatcher()
	go s.subs.RunBatcher(batcherCtx)

	failures := 0
	for ctx.Err() == nil {
		cfg = s.cfg.Snapshot()

		client, err := feed.Dial(ctx, cfg.WSURI, feed.ClientConfig{
			PingInterval: cfg.WSPingInterval,
			PingTimeout:  cfg.WSPingTimeout,
		})
		if err != nil {
			delay := Backoff(failures, cfg.WSRetryDelay, cfg.WSMaxRetryDelay)
			failures++
			s.logger.Warn().Err(err).Dur("retry_in", delay).Msg("upstream dial failed")
			s.updateHealth(time.Time{})
			if !sleepCtx(ctx, delay) {
				break
			}
			continue
		}

		if err := s.subs.OnConnected(client); err != nil {
			client.Close()
			delay := Backoff(failures, cfg.WSRetryDelay, cfg.WSMaxRetryDelay)
			failures++
			s.logger.Warn().Err(err).Dur("retry_in", delay).Msg("subscription handshake failed")
			if !sleepCtx(ctx, delay) {
				break
			}
			continue
		}

		failures = 0
		s.setWSConnected(true)
		s.logger.Info().Str("uri", cfg.WSURI).Msg("upstream connected")

		s.readLoop(ctx, client)

		client.Close()
		s.subs.OnDisconnected()
		s.setWSConnected(false)

		if ctx.Err() != nil {
			break
		}
		s.reconnects.Add(1)
		s.metrics.WSReconnects.Inc()
		delay := Backoff(failures, cfg.WSRetryDelay, cfg.WSMaxRetryDelay)
		failures++
		s.logger.Warn().Dur("retry_in", delay).Msg("upstream connection lost, reconnecting")
		if !sleepCtx(ctx, delay) {
			break
		}
	}

	return ctx.Err()
}

// connectStore dials the registry database until it answers or ctx is
// cancelled, then applies the embedded migrations. With no DSN configured the
// service runs degraded: stores answer ErrUnavailable until a runtime config
// update supplies one.
func (s *Service) connectStore(ctx context.Context) {
	for ctx.Err() == nil {
		cfg := s.cfg.Snapshot()
		if cfg.DBDSN == "" {
			s.logger.Warn().Msg("no database DSN configured, running without persistence")
			return
		}

		if err := s.pool.Reconnect(ctx, cfg.DBDSN); err != nil {
			s.logger.Warn().Err(err).Dur("retry_in", cfg.DBRetryDelay).
				Str("dsn", config.MaskedDSN(cfg.DBDSN)).Msg("database unreachable")
			if !sleepCtx(ctx, cfg.DBRetryDelay) {
				return
			}
			continue
		}

		if err := migrations.RunPostgresMigrations(ctx, s.pool); err != nil {
			s.logger.Error().Err(err).Msg("migrations failed")
			if !sleepCtx(ctx, cfg.DBRetryDelay) {
				return
			}
			continue
		}

		s.setDBConnected(true)
		s.logger.Info().Str("dsn", config.MaskedDSN(cfg.DBDSN)).Msg("database connected")
		return
	}
}

// loadPhases installs the phase reference table, falling back to the
// compiled-in set when the table is missing or empty.
func (s *Service) loadPhases(ctx context.Context) {
	phases, err := s.phaseStore.LoadPhases(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("phase table unavailable, using built-in phases")
		return
	}
	if len(phases) == 0 {
		s.logger.Warn().Msg("phase table empty, using built-in phases")
		return
	}
	s.tracker.SetPhases(domain.NewPhaseSet(phases))
	s.logger.Info().Int("count", len(phases)).Msg("phase table loaded")
}

// readLoop services one connection: it pulls frames with a short poll
// timeout and runs the housekeeping pass between reads. Returns when the
// connection fails, stalls past WSConnectionTimeout, or ctx is cancelled.
func (s *Service) readLoop(ctx context.Context, client *feed.Client) {
	now := s.now()
	lastMessage := now
	lastRefresh := now
	lastATHFlush := now
	lastWatchdog := now
	lastPrune := now

	for ctx.Err() == nil {
		data, err := client.Read(readPollTimeout)
		now = s.now()
		cfg := s.cfg.Snapshot()

		if err != nil {
			if !feed.IsTimeout(err) {
				s.logger.Warn().Err(err).Msg("upstream read failed")
				return
			}
			if now.Sub(lastMessage) > cfg.WSConnectionTimeout {
				s.logger.Warn().Dur("silence", now.Sub(lastMessage)).
					Msg("no frames within the connection timeout, recycling connection")
				return
			}
		} else {
			lastMessage = now
			s.handleMessage(data, cfg)
		}

		if now.Sub(lastRefresh) >= cfg.DBRefreshInterval {
			s.refreshRegistry(ctx, cfg)
			lastRefresh = now
		}

		s.reconcileCache(cfg)
		s.forwarder.MaybeFlush(ctx, discovery.FlushConfig{
			URL:          cfg.WebhookURL,
			Method:       cfg.WebhookMethod,
			BatchSize:    cfg.BatchSize,
			BatchTimeout: cfg.BatchTimeout,
			RetryDelay:   cfg.WebhookRetryDelay,
		})
		s.runSweep(ctx, cfg)

		if now.Sub(lastATHFlush) >= cfg.ATHFlushInterval {
			s.flushATH(ctx)
			s.flushArchive(ctx)
			lastATHFlush = now
		}
		if now.Sub(lastWatchdog) >= watchdogInterval {
			s.tracker.WatchdogSweep()
			lastWatchdog = now
		}
		if now.Sub(lastPrune) >= pruneInterval {
			s.tradeLog.Prune(now, cfg.TradeBufferWindow)
			lastPrune = now
		}

		s.updateHealth(lastMessage)
	}
}

// handleMessage routes one upstream frame. Malformed frames are counted and
// dropped without touching any state.
func (s *Service) handleMessage(data []byte, cfg config.Config) {
	ev, err := domain.ParseEvent(data)
	if err != nil {
		s.metrics.MalformedEvents.Inc()
		s.logger.Debug().Err(err).Msg("dropped malformed frame")
		return
	}
	if ev == nil {
		return
	}

	switch ev.Kind {
	case domain.EventCreate:
		s.handleCreate(ev.Create, cfg)
	case domain.EventTrade:
		s.handleTrade(ev.Trade, cfg)
	}
}

func (s *Service) handleCreate(ev *domain.CreateEvent, cfg config.Config) {
	s.metrics.EventsReceived.WithLabelValues("create").Inc()

	if !solana.ValidPubkey(ev.Mint) {
		s.metrics.MalformedEvents.Inc()
		s.logger.Debug().Str("mint", ev.Mint).Msg("create event with invalid mint address")
		return
	}
	if ev.BondingCurveKey != "" {
		derived, err := solana.BondingCurveAddress(ev.Mint)
		if err == nil && derived != ev.BondingCurveKey {
			s.metrics.CurveKeyMismatches.Inc()
			s.logger.Warn().Str("mint", ev.Mint).Str("announced", ev.BondingCurveKey).
				Str("derived", derived).Msg("bonding curve key does not match derivation")
		}
	}

	ok, reason := s.filter.Evaluate(ev.Name, ev.Symbol)
	if !ok {
		s.metrics.FilterRejects.WithLabelValues(reason).Inc()
		s.logger.Debug().Str("mint", ev.Mint).Str("name", ev.Name).
			Str("reason", reason).Msg("token rejected")
		return
	}

	s.cache.Insert(ev.Mint, ev)
	s.forwarder.Enqueue(ev)
	s.subs.EnqueueSubscribe(ev.Mint)
	s.updateCacheGauges()
	s.logger.Info().Str("mint", ev.Mint).Str("name", ev.Name).
		Str("symbol", ev.Symbol).Msg("token discovered")
}

func (s *Service) handleTrade(t *domain.TradeEvent, cfg config.Config) {
	s.metrics.EventsReceived.WithLabelValues(string(t.Side)).Inc()

	if !solana.ValidPubkey(t.Mint) {
		s.metrics.MalformedEvents.Inc()
		return
	}

	if s.tracker.ProcessTrade(t, cfg.WhaleThresholdSol) {
		if s.archive != nil {
			s.tradeLog.Append(&domain.TokenTrade{
				Mint:      t.Mint,
				Timestamp: s.now().UTC(),
				Side:      t.Side,
				SolAmount: t.SolAmount,
				VSol:      t.VSolInBondingCurve,
				VTokens:   t.VTokensInBondingCurve,
				Price:     t.Price(),
				Trader:    t.TraderPublicKey,
			})
		}
		return
	}

	if s.cache.AppendTrade(t.Mint, t) {
		s.metrics.TradesBuffered.Inc()
		return
	}

	// Not tracked and not cached: graduated, expired, or never ours.
	s.metrics.TradesDropped.Inc()
}

// Backoff returns the reconnect delay after n consecutive failures: the base
// delay grows by half of itself per failure, capped at max.
func Backoff(n int, base, max time.Duration) time.Duration {
	d := time.Duration(float64(base) * (1 + float64(n)*0.5))
	if d > max {
		return max
	}
	return d
}

// sleepCtx waits for d unless ctx is cancelled first. Reports whether the
// full wait elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func sweepConfigFrom(cfg config.Config) tracking.SweepConfig {
	return tracking.SweepConfig{
		SolReservesFull: cfg.SolReservesFull,
		AgeOffsetMin:    cfg.AgeOffsetMin,
	}
}
