// Package discovery handles tokens between first sight on the wire and
// promotion into the watchlist: the TTL-bounded coin cache, the name/burst
// filter in front of it, and the webhook forwarder behind it.
package discovery

import (
	"sort"
	"time"

	"solana-pump-tracker/internal/domain"
)

// BufferedTrade is a trade observed before its token was promoted. Arrival
// order is preserved and replayed into the aggregator on promotion.
type BufferedTrade struct {
	ArrivedAt time.Time
	Trade     *domain.TradeEvent
}

// Promotion is one cache entry handed over to the watchlist during reconcile.
type Promotion struct {
	Mint   string
	Meta   *domain.CreateEvent
	Trades []BufferedTrade
}

type cacheEntry struct {
	discoveredAt time.Time
	meta         *domain.CreateEvent
	trades       []BufferedTrade
	activated    bool
	forwarded    bool
}

// CacheStats is a point-in-time summary of the cache for health reporting.
type CacheStats struct {
	Total          int     `json:"total"`
	BufferedTrades int     `json:"buffered_trades"`
	Activated      int     `json:"activated"`
	Expired        int     `json:"expired"`
	OldestAgeSec   float64 `json:"oldest_age_sec"`
	NewestAgeSec   float64 `json:"newest_age_sec"`
}

// Cache holds newly discovered tokens for a bounded TTL. An entry leaves the
// cache exactly one way: promoted into the watchlist when the registry
// confirms it, or evicted when the TTL runs out first.
//
// Not safe for concurrent use: every method, Stats included, runs on the
// supervisor loop. The HTTP API sees cache state only through service
// snapshots taken there.
type Cache struct {
	entries map[string]*cacheEntry

	activations int
	expirations int

	now func() time.Time
}

// NewCache creates an empty cache. now defaults to time.Now.
func NewCache(now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{
		entries: make(map[string]*cacheEntry),
		now:     now,
	}
}

// Insert adds a token to the cache. Re-inserting an existing mint replaces
// its metadata and clears any buffered trades.
func (c *Cache) Insert(mint string, meta *domain.CreateEvent) {
	c.entries[mint] = &cacheEntry{
		discoveredAt: c.now(),
		meta:         meta,
	}
}

// AppendTrade buffers a trade for an unpromoted token. Absent or already
// activated mints are a no-op.
func (c *Cache) AppendTrade(mint string, trade *domain.TradeEvent) bool {
	e, ok := c.entries[mint]
	if !ok || e.activated {
		return false
	}
	e.trades = append(e.trades, BufferedTrade{ArrivedAt: c.now(), Trade: trade})
	return true
}

// Contains reports whether the mint has an unpromoted cache entry.
func (c *Cache) Contains(mint string) bool {
	e, ok := c.entries[mint]
	return ok && !e.activated
}

// Promote marks an entry activated and returns its buffered trades in
// arrival order. An absent or already activated mint returns nil without
// changing state. The caller owns the trades; the entry itself is dropped on
// the next reconcile.
func (c *Cache) Promote(mint string) []BufferedTrade {
	e, ok := c.entries[mint]
	if !ok || e.activated {
		return nil
	}
	e.activated = true
	c.activations++

	trades := e.trades
	e.trades = nil
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].ArrivedAt.Before(trades[j].ArrivedAt)
	})
	return trades
}

// Evict removes an entry. Unpromoted entries count toward the expiration
// total; activated ones were already handed over and do not.
func (c *Cache) Evict(mint string) {
	e, ok := c.entries[mint]
	if !ok {
		return
	}
	if !e.activated {
		c.expirations++
	}
	delete(c.entries, mint)
}

// Reconcile synchronizes the cache with the active registry:
//
//   - entries promoted on a previous pass are dropped (the watchlist owns
//     them now),
//   - unpromoted entries confirmed by the registry are promoted and returned,
//   - unpromoted entries older than ttl are evicted.
//
// A second defensive pass sweeps out any unpromoted entry past the TTL that
// the first pass somehow left behind, regardless of iteration order. Expired
// mints are returned so the caller can drop their upstream subscriptions.
func (c *Cache) Reconcile(active map[string]struct{}, ttl time.Duration) (promoted []Promotion, expired []string) {
	now := c.now()

	for mint, e := range c.entries {
		if e.activated {
			delete(c.entries, mint)
			continue
		}
		if _, ok := active[mint]; ok {
			meta := e.meta
			trades := c.Promote(mint)
			promoted = append(promoted, Promotion{Mint: mint, Meta: meta, Trades: trades})
			delete(c.entries, mint)
			continue
		}
		if now.Sub(e.discoveredAt) > ttl {
			c.Evict(mint)
			expired = append(expired, mint)
		}
	}

	for mint, e := range c.entries {
		if !e.activated && now.Sub(e.discoveredAt) > ttl {
			c.Evict(mint)
			expired = append(expired, mint)
		}
	}

	return promoted, expired
}

// MarkForwarded flags entries as delivered to the automation endpoint.
// Entries that already left the cache are skipped.
func (c *Cache) MarkForwarded(mints []string) {
	for _, mint := range mints {
		if e, ok := c.entries[mint]; ok {
			e.forwarded = true
		}
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return len(c.entries)
}

// Stats returns a snapshot for health reporting.
func (c *Cache) Stats() CacheStats {
	now := c.now()
	stats := CacheStats{
		Total:     len(c.entries),
		Activated: c.activations,
		Expired:   c.expirations,
	}

	var oldest, newest time.Time
	for _, e := range c.entries {
		stats.BufferedTrades += len(e.trades)
		if oldest.IsZero() || e.discoveredAt.Before(oldest) {
			oldest = e.discoveredAt
		}
		if newest.IsZero() || e.discoveredAt.After(newest) {
			newest = e.discoveredAt
		}
	}
	if !oldest.IsZero() {
		stats.OldestAgeSec = now.Sub(oldest).Seconds()
		stats.NewestAgeSec = now.Sub(newest).Seconds()
	}
	return stats
}
