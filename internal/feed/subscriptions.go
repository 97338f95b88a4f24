package feed

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"solana-pump-tracker/internal/observability"
)

// Upstream control methods.
const (
	methodSubscribeNew     = "subscribeNewToken"
	methodSubscribeTrade   = "subscribeTokenTrade"
	methodUnsubscribeTrade = "unsubscribeTokenTrade"
)

// Batching parameters of the upstream protocol.
const (
	batchInterval  = 2 * time.Second
	batchLimit     = 50
	resubscribeGap = 100 * time.Millisecond
)

// request is one client-to-server control frame.
type request struct {
	Method string   `json:"method"`
	Keys   []string `json:"keys,omitempty"`
}

// Sender sends one JSON frame upstream. *Client implements it; tests use
// recorders.
type Sender interface {
	WriteJSON(v any) error
}

// Manager owns the upstream subscription set. Subscribe and unsubscribe
// requests are queued as set diffs and drained by the batcher in messages of
// at most batchLimit keys. The confirmed set survives disconnects so
// OnConnected can restore it on the next connection.
//
// Safe for concurrent use: the supervisor loop, the batcher goroutine, and
// the HTTP API all read or mutate it.
type Manager struct {
	mu           sync.Mutex
	conn         Sender
	subscribed   map[string]struct{}
	pendingSub   map[string]struct{}
	pendingUnsub map[string]struct{}

	sleep   func(time.Duration)
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// ManagerOptions configures a Manager. Nil fields fall back to defaults.
type ManagerOptions struct {
	Sleep   func(time.Duration)
	Logger  *zerolog.Logger
	Metrics *observability.Metrics
}

// NewManager creates a Manager with empty sets.
func NewManager(opts ManagerOptions) *Manager {
	sleep := opts.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	logger := log.With().Str("component", "feed").Logger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.DefaultMetrics
	}

	return &Manager{
		subscribed:   make(map[string]struct{}),
		pendingSub:   make(map[string]struct{}),
		pendingUnsub: make(map[string]struct{}),
		sleep:        sleep,
		logger:       logger,
		metrics:      metrics,
	}
}

// OnConnected installs the new connection, subscribes to token creation
// events, and restores the confirmed trade subscriptions in one message. If
// the restore send fails the confirmed set is demoted to pending so the
// batcher retries it; the connection itself is still considered usable.
func (m *Manager) OnConnected(conn Sender) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.conn = conn

	if err := conn.WriteJSON(request{Method: methodSubscribeNew}); err != nil {
		return fmt.Errorf("subscribe to new tokens: %w", err)
	}

	if len(m.subscribed) > 0 {
		keys := sortedKeys(m.subscribed)
		if err := conn.WriteJSON(request{Method: methodSubscribeTrade, Keys: keys}); err != nil {
			m.logger.Warn().Err(err).Int("count", len(keys)).
				Msg("subscription restore failed, re-queueing all tokens")
			for mint := range m.subscribed {
				m.pendingSub[mint] = struct{}{}
				delete(m.subscribed, mint)
			}
		} else {
			m.logger.Info().Int("count", len(keys)).Msg("restored token trade subscriptions")
		}
	}

	m.updateGaugesLocked()
	return nil
}

// OnDisconnected drops the connection. The confirmed set is retained for the
// next OnConnected.
func (m *Manager) OnDisconnected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conn = nil
}

// EnqueueSubscribe queues a mint for subscription. Idempotent; a pending
// unsubscribe for the same mint is cancelled.
func (m *Manager) EnqueueSubscribe(mint string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.pendingUnsub, mint)
	if _, ok := m.subscribed[mint]; ok {
		return
	}
	m.pendingSub[mint] = struct{}{}
	m.updateGaugesLocked()
}

// EnqueueUnsubscribe queues a mint for unsubscription and cancels any pending
// subscribe for it.
func (m *Manager) EnqueueUnsubscribe(mint string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.pendingSub, mint)
	if _, ok := m.subscribed[mint]; ok {
		m.pendingUnsub[mint] = struct{}{}
	}
	m.updateGaugesLocked()
}

// ForceResubscribe bounces the upstream subscription for one mint:
// unsubscribe, wait for the upstream to process it, subscribe again. Used to
// revive zombie subscriptions. No-op while disconnected; the reconnect
// restore covers that case.
func (m *Manager) ForceResubscribe(mint string) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		return nil
	}

	if err := conn.WriteJSON(request{Method: methodUnsubscribeTrade, Keys: []string{mint}}); err != nil {
		return fmt.Errorf("force unsubscribe %s: %w", mint, err)
	}
	m.sleep(resubscribeGap)
	if err := conn.WriteJSON(request{Method: methodSubscribeTrade, Keys: []string{mint}}); err != nil {
		return fmt.Errorf("force resubscribe %s: %w", mint, err)
	}

	m.mu.Lock()
	m.subscribed[mint] = struct{}{}
	delete(m.pendingSub, mint)
	m.updateGaugesLocked()
	m.mu.Unlock()

	m.metrics.ForcedResubscribes.Inc()
	m.logger.Debug().Str("mint", mint).Msg("forced resubscribe")
	return nil
}

// RunBatcher drains the pending sets every batchInterval until ctx is
// cancelled. An in-flight batch lost to cancellation is harmless: its keys
// only leave the pending sets on a successful send.
func (m *Manager) RunBatcher(ctx context.Context) {
	ticker := time.NewTicker(batchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.FlushPending()
		}
	}
}

// FlushPending sends at most one subscribe and one unsubscribe batch.
func (m *Manager) FlushPending() {
	m.flushBatch(m.pendingSub, methodSubscribeTrade)
	m.flushBatch(m.pendingUnsub, methodUnsubscribeTrade)
}

func (m *Manager) flushBatch(pending map[string]struct{}, method string) {
	m.mu.Lock()
	conn := m.conn
	if conn == nil || len(pending) == 0 {
		m.mu.Unlock()
		return
	}

	keys := make([]string, 0, batchLimit)
	for mint := range pending {
		keys = append(keys, mint)
		delete(pending, mint)
		if len(keys) == batchLimit {
			break
		}
	}
	m.mu.Unlock()

	err := conn.WriteJSON(request{Method: method, Keys: keys})

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		// Re-enqueue; the next tick retries.
		for _, mint := range keys {
			pending[mint] = struct{}{}
		}
		m.logger.Warn().Err(err).Str("method", method).Int("count", len(keys)).
			Msg("subscription batch failed")
		return
	}

	switch method {
	case methodSubscribeTrade:
		for _, mint := range keys {
			m.subscribed[mint] = struct{}{}
		}
	case methodUnsubscribeTrade:
		for _, mint := range keys {
			delete(m.subscribed, mint)
		}
	}
	m.updateGaugesLocked()
	m.logger.Debug().Str("method", method).Int("count", len(keys)).Msg("subscription batch sent")
}

// IsSubscribed reports whether a mint is in the confirmed set.
func (m *Manager) IsSubscribed(mint string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.subscribed[mint]
	return ok
}

// Subscribed returns the confirmed set in sorted order.
func (m *Manager) Subscribed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedKeys(m.subscribed)
}

// Counts returns the sizes of the confirmed and pending sets.
func (m *Manager) Counts() (subscribed, pendingSub, pendingUnsub int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subscribed), len(m.pendingSub), len(m.pendingUnsub)
}

func (m *Manager) updateGaugesLocked() {
	m.metrics.SubscribedTokens.Set(float64(len(m.subscribed)))
	m.metrics.PendingSubscribe.Set(float64(len(m.pendingSub)))
	m.metrics.PendingUnsubscribe.Set(float64(len(m.pendingUnsub)))
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
