package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"solana-pump-tracker/internal/domain"
	"solana-pump-tracker/internal/storage"
)

// streamRecord mirrors one coin_streams row.
type streamRecord struct {
	seq          int
	mint         string
	phaseID      int
	isActive     bool
	isGraduated  bool
	createdAt    time.Time
	startedAt    time.Time
	creator      *string
	athPriceSol  *float64
	athTimestamp *time.Time
}

// StreamStore is an in-memory implementation of storage.StreamStore.
type StreamStore struct {
	mu      sync.RWMutex
	data    map[string]*streamRecord
	nextSeq int
}

// NewStreamStore creates a new in-memory stream store.
func NewStreamStore() *StreamStore {
	return &StreamStore{data: make(map[string]*streamRecord)}
}

// AddStream registers an active stream, replacing any previous row for the
// same mint. Tests use this in place of the external automation that
// populates the registry.
func (s *StreamStore) AddStream(st *domain.ActiveStream) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSeq++
	rec := &streamRecord{
		seq:       s.nextSeq,
		mint:      st.Mint,
		phaseID:   st.PhaseID,
		isActive:  true,
		createdAt: st.CreatedAt.UTC(),
		startedAt: st.StartedAt.UTC(),
	}
	if st.CreatorAddress != nil {
		creator := *st.CreatorAddress
		rec.creator = &creator
	}
	if st.ATHPriceSol > 0 {
		ath := st.ATHPriceSol
		rec.athPriceSol = &ath
	}
	if rec.startedAt.IsZero() {
		rec.startedAt = rec.createdAt
	}
	s.data[st.Mint] = rec
}

// RemoveStream deletes a row entirely, simulating external cleanup.
func (s *StreamStore) RemoveStream(mint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, mint)
}

// GetActiveStreams returns all active rows.
func (s *StreamStore) GetActiveStreams(_ context.Context) ([]*domain.ActiveStream, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var streams []*domain.ActiveStream
	for _, rec := range s.data {
		if !rec.isActive {
			continue
		}
		st := &domain.ActiveStream{
			Mint:      rec.mint,
			PhaseID:   rec.phaseID,
			CreatedAt: rec.createdAt,
			StartedAt: rec.startedAt,
		}
		if rec.creator != nil {
			creator := *rec.creator
			st.CreatorAddress = &creator
		}
		if rec.athPriceSol != nil {
			st.ATHPriceSol = *rec.athPriceSol
		}
		streams = append(streams, st)
	}

	sort.Slice(streams, func(i, j int) bool { return streams[i].Mint < streams[j].Mint })
	return streams, nil
}

// UpdatePhase records a phase transition.
func (s *StreamStore) UpdatePhase(_ context.Context, mint string, phaseID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.data[mint]
	if !ok {
		return storage.ErrNotFound
	}
	rec.phaseID = phaseID
	return nil
}

// MarkTerminal deactivates a stream and stamps its terminal phase.
func (s *StreamStore) MarkTerminal(_ context.Context, mint string, graduated bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.data[mint]
	if !ok {
		return storage.ErrNotFound
	}
	rec.isActive = false
	rec.isGraduated = graduated
	if graduated {
		rec.phaseID = domain.PhaseGraduated
	} else {
		rec.phaseID = domain.PhaseFinished
	}
	return nil
}

// FlushATH persists all-time-high prices. Unknown mints are skipped.
func (s *StreamStore) FlushATH(_ context.Context, updates []domain.ATHUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range updates {
		rec, ok := s.data[u.Mint]
		if !ok {
			continue
		}
		price := u.PriceSol
		ts := u.Timestamp.UTC()
		rec.athPriceSol = &price
		rec.athTimestamp = &ts
	}
	return nil
}

// RecentStreams returns the newest rows first.
func (s *StreamStore) RecentStreams(_ context.Context, limit int) ([]*domain.StreamInfo, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := make([]*streamRecord, 0, len(s.data))
	for _, rec := range s.data {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq > recs[j].seq })

	if len(recs) > limit {
		recs = recs[:limit]
	}

	infos := make([]*domain.StreamInfo, 0, len(recs))
	for _, rec := range recs {
		info := &domain.StreamInfo{
			Mint:        rec.mint,
			PhaseID:     rec.phaseID,
			IsActive:    rec.isActive,
			IsGraduated: rec.isGraduated,
			StartedAt:   rec.startedAt,
		}
		if rec.athPriceSol != nil {
			price := *rec.athPriceSol
			info.ATHPriceSol = &price
		}
		if rec.athTimestamp != nil {
			ts := *rec.athTimestamp
			info.ATHTimestamp = &ts
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// StreamStats summarizes the registry.
func (s *StreamStore) StreamStats(_ context.Context) (*domain.StreamStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &domain.StreamStats{StreamsByPhase: make(map[int]int)}
	for _, rec := range s.data {
		stats.TotalStreams++
		if rec.isActive {
			stats.ActiveStreams++
		}
		stats.StreamsByPhase[rec.phaseID]++
	}
	stats.EndedStreams = stats.TotalStreams - stats.ActiveStreams
	return stats, nil
}

// ATHFor returns the stored all-time-high for a mint, if any. Test helper.
func (s *StreamStore) ATHFor(mint string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[mint]
	if !ok || rec.athPriceSol == nil {
		return 0, false
	}
	return *rec.athPriceSol, true
}

// PhaseFor returns the stored phase id for a mint. Test helper.
func (s *StreamStore) PhaseFor(mint string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[mint]
	if !ok {
		return 0, false
	}
	return rec.phaseID, true
}

var _ storage.StreamStore = (*StreamStore)(nil)
