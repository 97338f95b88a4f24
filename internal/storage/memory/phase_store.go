package memory

import (
	"context"
	"sort"
	"sync"

	"solana-pump-tracker/internal/domain"
	"solana-pump-tracker/internal/storage"
)

// PhaseStore is an in-memory implementation of storage.PhaseStore.
type PhaseStore struct {
	mu     sync.RWMutex
	phases []domain.Phase
}

// NewPhaseStore creates a new in-memory phase store seeded with the given
// rows. Pass domain.DefaultPhases() for the standard progression.
func NewPhaseStore(phases []domain.Phase) *PhaseStore {
	s := &PhaseStore{phases: make([]domain.Phase, len(phases))}
	copy(s.phases, phases)
	sort.Slice(s.phases, func(i, j int) bool { return s.phases[i].ID < s.phases[j].ID })
	return s
}

// LoadPhases returns all rows in ascending id order.
func (s *PhaseStore) LoadPhases(_ context.Context) ([]domain.Phase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Phase, len(s.phases))
	copy(out, s.phases)
	return out, nil
}

// SetPhases replaces the stored rows.
func (s *PhaseStore) SetPhases(phases []domain.Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.phases = make([]domain.Phase, len(phases))
	copy(s.phases, phases)
	sort.Slice(s.phases, func(i, j int) bool { return s.phases[i].ID < s.phases[j].ID })
}

var _ storage.PhaseStore = (*PhaseStore)(nil)
