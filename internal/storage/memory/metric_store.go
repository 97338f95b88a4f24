package memory

import (
	"context"
	"sort"
	"sync"

	"solana-pump-tracker/internal/domain"
	"solana-pump-tracker/internal/storage"
)

// MetricStore is an in-memory implementation of storage.MetricStore.
type MetricStore struct {
	mu   sync.RWMutex
	rows []*domain.MetricRow

	// failNext forces the next InsertBatch to fail. Test hook for the
	// flush error path.
	failNext error
}

// NewMetricStore creates a new in-memory metric store.
func NewMetricStore() *MetricStore {
	return &MetricStore{}
}

// InsertBatch appends one sweep's rows.
func (s *MetricStore) InsertBatch(_ context.Context, rows []*domain.MetricRow) error {
	if len(rows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}

	for _, r := range rows {
		if r == nil || r.Mint == "" {
			return storage.ErrInvalidInput
		}
		cp := *r
		s.rows = append(s.rows, &cp)
	}
	return nil
}

// Recent returns the latest rows, newest first. An empty mint matches all.
func (s *MetricStore) Recent(_ context.Context, mint string, limit int) ([]*domain.MetricRow, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.MetricRow
	for _, r := range s.rows {
		if mint != "" && r.Mint != mint {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns every stored row in insertion order. Test helper.
func (s *MetricStore) All() []*domain.MetricRow {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.MetricRow, 0, len(s.rows))
	for _, r := range s.rows {
		cp := *r
		out = append(out, &cp)
	}
	return out
}

// FailNext makes the next InsertBatch return err. Test helper.
func (s *MetricStore) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

var _ storage.MetricStore = (*MetricStore)(nil)
