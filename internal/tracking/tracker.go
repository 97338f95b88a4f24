package tracking

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"solana-pump-tracker/internal/domain"
	"solana-pump-tracker/internal/observability"
)

// Watchdog thresholds. The flush-time check catches a stream that keeps
// flushing unchanged data; the coarse sweep catches one that went fully
// silent.
const (
	staleWarningLimit  = 2
	staleIdleThreshold = 300 * time.Second
	zombieIdleThreshold = 600 * time.Second
)

// graduationPct is the bonding-curve fill percentage at which a stream
// graduates.
const graduationPct = 99.5

// Resubscriber bounces an upstream subscription. Implemented by
// feed.Manager.
type Resubscriber interface {
	ForceResubscribe(mint string) error
}

// Entry is one watchlisted token.
type Entry struct {
	Meta            *domain.ActiveStream
	Buffer          Buffer
	IntervalSeconds int
	NextFlushAt     time.Time
}

// watchState is the per-mint zombie bookkeeping.
type watchState struct {
	lastTradeAt        time.Time
	lastSavedSignature string
	staleWarnings      int
}

// Tracker owns the watchlist and its aggregation state. All methods run on
// the supervisor loop.
type Tracker struct {
	phases  *domain.PhaseSet
	entries map[string]*Entry
	watch   map[string]*watchState
	ath     *ATHCache
	resub   Resubscriber

	now     func() time.Time
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// TrackerOptions configures a Tracker. Nil fields fall back to defaults.
type TrackerOptions struct {
	Phases       *domain.PhaseSet
	ATH          *ATHCache
	Resubscriber Resubscriber
	Now          func() time.Time
	Logger       *zerolog.Logger
	Metrics      *observability.Metrics
}

// NewTracker creates an empty tracker.
func NewTracker(opts TrackerOptions) *Tracker {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := log.With().Str("component", "tracker").Logger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.DefaultMetrics
	}
	phases := opts.Phases
	if phases == nil {
		phases = domain.NewPhaseSet(domain.DefaultPhases())
	}
	ath := opts.ATH
	if ath == nil {
		ath = NewATHCache()
	}

	return &Tracker{
		phases:  phases,
		entries: make(map[string]*Entry),
		watch:   make(map[string]*watchState),
		ath:     ath,
		resub:   opts.Resubscriber,
		now:     now,
		logger:  logger,
		metrics: metrics,
	}
}

// SetPhases swaps in a freshly loaded phase table. Existing entries keep
// their current interval until their next transition or flush.
func (t *Tracker) SetPhases(phases *domain.PhaseSet) {
	t.phases = phases
}

// Track installs a watchlist entry for an active stream and replays any
// trades buffered while the token sat in the discovery cache. Replayed trades
// are applied in the given order before any live trade can arrive. Tracking
// an already tracked mint is a no-op.
func (t *Tracker) Track(meta *domain.ActiveStream, replay []*domain.TradeEvent, whaleThreshold float64) {
	if _, ok := t.entries[meta.Mint]; ok {
		return
	}

	phase, ok := t.phases.Get(meta.PhaseID)
	if !ok {
		// Unknown phase id in the registry: enter at the smallest phase.
		phase, ok = t.phases.Smallest()
		if !ok {
			phase = domain.Phase{ID: 1, IntervalSeconds: 5}
		}
		meta.PhaseID = phase.ID
	}

	now := t.now()
	entry := &Entry{
		Meta:            meta,
		Buffer:          newBuffer(),
		IntervalSeconds: phase.IntervalSeconds,
		NextFlushAt:     now.Add(time.Duration(phase.IntervalSeconds) * time.Second),
	}
	t.entries[meta.Mint] = entry
	t.watch[meta.Mint] = &watchState{lastTradeAt: now}
	t.ath.Seed(meta.Mint, meta.ATHPriceSol)

	for _, trade := range replay {
		t.applyTrade(entry, trade, whaleThreshold)
	}

	t.metrics.WatchlistSize.Set(float64(len(t.entries)))
	t.logger.Debug().Str("mint", meta.Mint).Int("phase", meta.PhaseID).
		Int("replayed", len(replay)).Msg("tracking started")
}

// Untrack removes a mint from the watchlist.
func (t *Tracker) Untrack(mint string) {
	if _, ok := t.entries[mint]; !ok {
		return
	}
	delete(t.entries, mint)
	delete(t.watch, mint)
	t.ath.Forget(mint)
	t.metrics.WatchlistSize.Set(float64(len(t.entries)))
}

// Has reports whether a mint is watchlisted.
func (t *Tracker) Has(mint string) bool {
	_, ok := t.entries[mint]
	return ok
}

// Len returns the watchlist size.
func (t *Tracker) Len() int {
	return len(t.entries)
}

// Mints returns the watchlisted mints in no particular order.
func (t *Tracker) Mints() []string {
	mints := make([]string, 0, len(t.entries))
	for mint := range t.entries {
		mints = append(mints, mint)
	}
	return mints
}

// Entry returns the watchlist entry for a mint.
func (t *Tracker) Entry(mint string) (*Entry, bool) {
	e, ok := t.entries[mint]
	return e, ok
}

// ProcessTrade folds a live trade into its token's window. Returns false when
// the mint is not watchlisted.
func (t *Tracker) ProcessTrade(trade *domain.TradeEvent, whaleThreshold float64) bool {
	entry, ok := t.entries[trade.Mint]
	if !ok {
		return false
	}
	t.applyTrade(entry, trade, whaleThreshold)
	t.metrics.TradesProcessed.Inc()
	return true
}

func (t *Tracker) applyTrade(entry *Entry, trade *domain.TradeEvent, whaleThreshold float64) {
	entry.Buffer.apply(trade, entry.Meta.CreatorAddress, whaleThreshold)

	if w, ok := t.watch[trade.Mint]; ok {
		w.lastTradeAt = t.now()
	}
	t.ath.Observe(trade.Mint, trade.Price())
}

// WatchdogSweep force-resubscribes every watchlisted token that has been
// silent for longer than zombieIdleThreshold. Runs on a coarse cadence.
func (t *Tracker) WatchdogSweep() {
	now := t.now()
	for mint, w := range t.watch {
		idle := now.Sub(w.lastTradeAt)
		if idle <= zombieIdleThreshold {
			continue
		}
		t.logger.Warn().Str("mint", mint).Dur("idle", idle).
			Msg("no trades for over ten minutes, forcing resubscribe")
		if t.resub != nil {
			if err := t.resub.ForceResubscribe(mint); err != nil {
				t.logger.Warn().Err(err).Str("mint", mint).Msg("forced resubscribe failed")
			}
		}
	}
}
