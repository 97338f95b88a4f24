package postgres

import (
	"context"
	"fmt"
	"time"

	"solana-pump-tracker/internal/domain"
	"solana-pump-tracker/internal/storage"
)

// StreamStore implements storage.StreamStore backed by PostgreSQL.
type StreamStore struct {
	pool *Pool
}

// Compile-time interface check
var _ storage.StreamStore = (*StreamStore)(nil)

// NewStreamStore creates a new PostgreSQL stream store.
func NewStreamStore(pool *Pool) *StreamStore {
	return &StreamStore{pool: pool}
}

// GetActiveStreams loads all active registry entries joined with discovery
// metadata. Timestamps are normalized to UTC before they reach callers.
func (s *StreamStore) GetActiveStreams(ctx context.Context) ([]*domain.ActiveStream, error) {
	// Repair helper may not be installed; ignore its absence.
	_, _ = s.pool.Exec(ctx, "SELECT repair_missing_streams()")

	rows, err := s.pool.Query(ctx, `
		SELECT cs.token_address, cs.current_phase_id, dc.token_created_at,
		       cs.started_at, dc.trader_public_key, cs.ath_price_sol
		FROM coin_streams cs
		JOIN discovered_coins dc ON cs.token_address = dc.token_address
		WHERE cs.is_active = TRUE`)
	if err != nil {
		return nil, fmt.Errorf("query active streams: %w", err)
	}
	defer rows.Close()

	var streams []*domain.ActiveStream
	for rows.Next() {
		var (
			st        domain.ActiveStream
			createdAt *time.Time
			startedAt *time.Time
			ath       *float64
		)
		if err := rows.Scan(&st.Mint, &st.PhaseID, &createdAt, &startedAt, &st.CreatorAddress, &ath); err != nil {
			return nil, fmt.Errorf("scan active stream: %w", err)
		}

		// Registry rows written by external tooling may carry NULLs; the
		// fallbacks mirror what the tracking loop expects.
		if createdAt == nil {
			now := time.Now().UTC()
			createdAt = &now
		}
		st.CreatedAt = createdAt.UTC()
		if startedAt != nil {
			st.StartedAt = startedAt.UTC()
		} else {
			st.StartedAt = st.CreatedAt
		}
		if ath != nil {
			st.ATHPriceSol = *ath
		}

		streams = append(streams, &st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active streams: %w", err)
	}

	return streams, nil
}

// UpdatePhase records a phase transition for a tracked stream.
func (s *StreamStore) UpdatePhase(ctx context.Context, mint string, phaseID int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE coin_streams
		SET current_phase_id = $1
		WHERE token_address = $2`,
		phaseID, mint)
	if err != nil {
		return fmt.Errorf("update phase: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// MarkTerminal deactivates a stream and stamps its terminal phase.
func (s *StreamStore) MarkTerminal(ctx context.Context, mint string, graduated bool) error {
	phaseID := domain.PhaseFinished
	if graduated {
		phaseID = domain.PhaseGraduated
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE coin_streams
		SET is_active = FALSE, current_phase_id = $2, is_graduated = $3
		WHERE token_address = $1`,
		mint, phaseID, graduated)
	if err != nil {
		return fmt.Errorf("mark terminal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// FlushATH persists all-time-high prices in a single transaction. Mints
// missing from the registry are skipped, not failed.
func (s *StreamStore) FlushATH(ctx context.Context, updates []domain.ATHUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, u := range updates {
		_, err := tx.Exec(ctx, `
			UPDATE coin_streams
			SET ath_price_sol = $1, ath_timestamp = $2
			WHERE token_address = $3`,
			u.PriceSol, u.Timestamp.UTC(), u.Mint)
		if err != nil {
			return fmt.Errorf("update ath for %s: %w", u.Mint, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// RecentStreams returns the newest registry rows for the read-only API.
func (s *StreamStore) RecentStreams(ctx context.Context, limit int) ([]*domain.StreamInfo, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidInput)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT cs.token_address, cs.current_phase_id, COALESCE(p.name, ''),
		       cs.is_active, cs.is_graduated, cs.started_at,
		       cs.ath_price_sol, cs.ath_timestamp
		FROM coin_streams cs
		LEFT JOIN ref_coin_phases p ON p.id = cs.current_phase_id
		ORDER BY cs.id DESC
		LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("query streams: %w", err)
	}
	defer rows.Close()

	var infos []*domain.StreamInfo
	for rows.Next() {
		var (
			info      domain.StreamInfo
			startedAt *time.Time
		)
		err := rows.Scan(&info.Mint, &info.PhaseID, &info.PhaseName,
			&info.IsActive, &info.IsGraduated, &startedAt,
			&info.ATHPriceSol, &info.ATHTimestamp)
		if err != nil {
			return nil, fmt.Errorf("scan stream: %w", err)
		}
		if startedAt != nil {
			info.StartedAt = startedAt.UTC()
		}
		if info.ATHTimestamp != nil {
			t := info.ATHTimestamp.UTC()
			info.ATHTimestamp = &t
		}
		infos = append(infos, &info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate streams: %w", err)
	}

	return infos, nil
}

// StreamStats summarizes the registry for the read-only API.
func (s *StreamStore) StreamStats(ctx context.Context) (*domain.StreamStats, error) {
	stats := &domain.StreamStats{StreamsByPhase: make(map[int]int)}

	rows, err := s.pool.Query(ctx, `
		SELECT current_phase_id, COUNT(*) AS count
		FROM coin_streams
		GROUP BY current_phase_id
		ORDER BY current_phase_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query phase counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var phaseID, count int
		if err := rows.Scan(&phaseID, &count); err != nil {
			return nil, fmt.Errorf("scan phase count: %w", err)
		}
		stats.StreamsByPhase[phaseID] = count
		stats.TotalStreams += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate phase counts: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM coin_streams
		WHERE is_active = TRUE`).Scan(&stats.ActiveStreams)
	if err != nil {
		return nil, fmt.Errorf("count active streams: %w", err)
	}

	stats.EndedStreams = stats.TotalStreams - stats.ActiveStreams
	return stats, nil
}
