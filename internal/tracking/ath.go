package tracking

import (
	"time"

	"solana-pump-tracker/internal/domain"
)

// ATHCache tracks the highest observed price per mint. Entries whose value
// moved since the last flush form the dirty set, written to the registry on
// its own cadence.
//
// Owned by the supervisor loop; not safe for concurrent use.
type ATHCache struct {
	prices map[string]float64
	dirty  map[string]struct{}
}

// NewATHCache creates an empty cache.
func NewATHCache() *ATHCache {
	return &ATHCache{
		prices: make(map[string]float64),
		dirty:  make(map[string]struct{}),
	}
}

// Seed installs a persisted all-time-high without dirtying it. The larger of
// the stored and in-memory values wins, so a registry refresh can never
// regress a high observed live.
func (a *ATHCache) Seed(mint string, price float64) {
	if price > a.prices[mint] {
		a.prices[mint] = price
	}
}

// Observe records a live price. Returns true when it is a new high.
func (a *ATHCache) Observe(mint string, price float64) bool {
	if price <= a.prices[mint] {
		return false
	}
	a.prices[mint] = price
	a.dirty[mint] = struct{}{}
	return true
}

// Get returns the known all-time-high, zero when the mint is unknown.
func (a *ATHCache) Get(mint string) float64 {
	return a.prices[mint]
}

// TakeDirty drains the dirty set into update rows stamped at now.
func (a *ATHCache) TakeDirty(now time.Time) []domain.ATHUpdate {
	if len(a.dirty) == 0 {
		return nil
	}
	updates := make([]domain.ATHUpdate, 0, len(a.dirty))
	for mint := range a.dirty {
		if price := a.prices[mint]; price > 0 {
			updates = append(updates, domain.ATHUpdate{Mint: mint, PriceSol: price, Timestamp: now})
		}
		delete(a.dirty, mint)
	}
	return updates
}

// RestoreDirty re-marks updates after a failed flush so the next one retries
// them.
func (a *ATHCache) RestoreDirty(updates []domain.ATHUpdate) {
	for _, u := range updates {
		a.dirty[u.Mint] = struct{}{}
	}
}

// Forget drops a retired mint's pending flush. The price itself is kept in
// case the stream comes back within this process run.
func (a *ATHCache) Forget(mint string) {
	delete(a.dirty, mint)
}

// DirtyLen returns the number of pending updates.
func (a *ATHCache) DirtyLen() int {
	return len(a.dirty)
}
