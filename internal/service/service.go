// Package service contains the supervisor: the single loop that owns the
// upstream connection, the discovery cache, the watchlist, and all batch
// sinks, plus the reconnect handling around it.
package service

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"solana-pump-tracker/internal/config"
	"solana-pump-tracker/internal/discovery"
	"solana-pump-tracker/internal/domain"
	"solana-pump-tracker/internal/feed"
	"solana-pump-tracker/internal/observability"
	"solana-pump-tracker/internal/storage"
	"solana-pump-tracker/internal/storage/postgres"
	"solana-pump-tracker/internal/tracking"
)

// Health is the read-only status snapshot served by the HTTP API.
type Health struct {
	Status             string               `json:"status"`
	WSConnected        bool                 `json:"ws_connected"`
	DBConnected        bool                 `json:"db_connected"`
	ReconnectCount     int64                `json:"reconnect_count"`
	UptimeSec          float64              `json:"uptime_sec"`
	Cache              discovery.CacheStats `json:"cache"`
	WatchlistSize      int                  `json:"watchlist_size"`
	SubscribedCount    int                  `json:"subscribed_count"`
	PendingSubscribe   int                  `json:"pending_subscribe"`
	PendingUnsubscribe int                  `json:"pending_unsubscribe"`
	ForwarderBuffer    int                  `json:"forwarder_buffer"`
	ForwardingDisabled bool                 `json:"forwarding_disabled"`
	ArchiveBuffer      int                  `json:"archive_buffer"`
	DirtyATHs          int                  `json:"dirty_aths"`
	LastMessageAt      *time.Time           `json:"last_message_at,omitempty"`
}

// Service wires the core components together and supervises them. One
// Service per process.
type Service struct {
	cfg *config.Store

	pool        *postgres.Pool
	phaseStore  storage.PhaseStore
	streamStore storage.StreamStore
	metricStore storage.MetricStore
	archive     storage.TradeArchive // nil disables the archive sink

	cache     *discovery.Cache
	filter    *discovery.Filter
	forwarder *discovery.Forwarder
	subs      *feed.Manager
	tracker   *tracking.Tracker
	ath       *tracking.ATHCache
	tradeLog  *tracking.TradeLog

	// registry mirrors the store's active streams; owned by the run loop.
	registry map[string]*domain.ActiveStream

	wsConnected atomic.Bool
	dbConnected atomic.Bool
	reconnects  atomic.Int64
	startedAt   time.Time

	healthMu sync.RWMutex
	health   Health

	now     func() time.Time
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// Options configures a Service. Pool and the three stores are required;
// Archive is optional. Nil ambient fields fall back to defaults.
type Options struct {
	Config      *config.Store
	Pool        *postgres.Pool
	PhaseStore  storage.PhaseStore
	StreamStore storage.StreamStore
	MetricStore storage.MetricStore
	Archive     storage.TradeArchive

	Now     func() time.Time
	Logger  *zerolog.Logger
	Metrics *observability.Metrics
}

// New assembles a Service and its components.
func New(opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := log.With().Str("component", "service").Logger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.DefaultMetrics
	}

	s := &Service{
		cfg:         opts.Config,
		pool:        opts.Pool,
		phaseStore:  opts.PhaseStore,
		streamStore: opts.StreamStore,
		metricStore: opts.MetricStore,
		archive:     opts.Archive,
		registry:    make(map[string]*domain.ActiveStream),
		startedAt:   now(),
		health:      Health{Status: "starting"},
		now:         now,
		logger:      logger,
		metrics:     metrics,
	}

	s.cache = discovery.NewCache(now)
	s.filter = discovery.NewFilter(
		opts.Config.BadNames,
		func() time.Duration { return opts.Config.Snapshot().SpamBurstWindow },
		now,
	)
	s.forwarder = discovery.NewForwarder(discovery.ForwarderOptions{
		OnForwarded: s.cache.MarkForwarded,
		Now:         now,
		Metrics:     metrics,
	})
	s.subs = feed.NewManager(feed.ManagerOptions{Metrics: metrics})
	s.ath = tracking.NewATHCache()
	s.tradeLog = tracking.NewTradeLog()
	s.tracker = tracking.NewTracker(tracking.TrackerOptions{
		ATH:          s.ath,
		Resubscriber: s.subs,
		Now:          now,
		Metrics:      metrics,
	})

	return s
}

// Health returns the latest status snapshot.
func (s *Service) Health() Health {
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()
	return s.health
}

// PhaseStore exposes the phase store for the read-only HTTP API.
func (s *Service) PhaseStore() storage.PhaseStore { return s.phaseStore }

// StreamStore exposes the stream store for the read-only HTTP API.
func (s *Service) StreamStore() storage.StreamStore { return s.streamStore }

// MetricStore exposes the metric store for the read-only HTTP API.
func (s *Service) MetricStore() storage.MetricStore { return s.metricStore }

// updateHealth refreshes the snapshot served to HTTP readers. Runs on the
// supervisor loop so component reads need no locking.
func (s *Service) updateHealth(lastMessage time.Time) {
	sub, pendSub, pendUnsub := s.subs.Counts()

	h := Health{
		WSConnected:        s.wsConnected.Load(),
		DBConnected:        s.dbConnected.Load(),
		ReconnectCount:     s.reconnects.Load(),
		UptimeSec:          s.now().Sub(s.startedAt).Seconds(),
		Cache:              s.cache.Stats(),
		WatchlistSize:      s.tracker.Len(),
		SubscribedCount:    sub,
		PendingSubscribe:   pendSub,
		PendingUnsubscribe: pendUnsub,
		ForwarderBuffer:    s.forwarder.Len(),
		ForwardingDisabled: s.forwarder.Disabled(),
		ArchiveBuffer:      s.tradeLog.Len(),
		DirtyATHs:          s.ath.DirtyLen(),
	}
	if !lastMessage.IsZero() {
		t := lastMessage.UTC()
		h.LastMessageAt = &t
	}
	switch {
	case h.WSConnected && h.DBConnected:
		h.Status = "healthy"
	case h.DBConnected:
		h.Status = "degraded"
	default:
		h.Status = "unhealthy"
	}

	s.healthMu.Lock()
	s.health = h
	s.healthMu.Unlock()
}

func (s *Service) setDBConnected(ok bool) {
	s.dbConnected.Store(ok)
	if ok {
		s.metrics.DBConnected.Set(1)
	} else {
		s.metrics.DBConnected.Set(0)
	}
}

func (s *Service) setWSConnected(ok bool) {
	s.wsConnected.Store(ok)
	if ok {
		s.metrics.WSConnected.Set(1)
	} else {
		s.metrics.WSConnected.Set(0)
	}
}
