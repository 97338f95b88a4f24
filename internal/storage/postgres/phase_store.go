package postgres

import (
	"context"
	"fmt"

	"solana-pump-tracker/internal/domain"
	"solana-pump-tracker/internal/storage"
)

// PhaseStore implements storage.PhaseStore backed by PostgreSQL.
type PhaseStore struct {
	pool *Pool
}

// Compile-time interface check
var _ storage.PhaseStore = (*PhaseStore)(nil)

// NewPhaseStore creates a new PostgreSQL phase store.
func NewPhaseStore(pool *Pool) *PhaseStore {
	return &PhaseStore{pool: pool}
}

// LoadPhases returns all rows of ref_coin_phases in ascending id order.
func (s *PhaseStore) LoadPhases(ctx context.Context) ([]domain.Phase, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, interval_seconds, max_age_minutes
		FROM ref_coin_phases
		ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query phases: %w", err)
	}
	defer rows.Close()

	var phases []domain.Phase
	for rows.Next() {
		var p domain.Phase
		if err := rows.Scan(&p.ID, &p.Name, &p.IntervalSeconds, &p.MaxAgeMinutes); err != nil {
			return nil, fmt.Errorf("scan phase: %w", err)
		}
		phases = append(phases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate phases: %w", err)
	}

	return phases, nil
}
