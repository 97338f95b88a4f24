// Package storage defines the persistence interfaces of the tracker.
// Implementations live in the postgres, clickhouse, and memory subpackages.
package storage

import (
	"context"

	"solana-pump-tracker/internal/domain"
)

// PhaseStore reads the phase reference table.
type PhaseStore interface {
	// LoadPhases returns all phase rows in ascending id order. An empty
	// result is not an error; callers fall back to the compiled-in set.
	LoadPhases(ctx context.Context) ([]domain.Phase, error)
}

// StreamStore reads and updates the active-stream registry.
type StreamStore interface {
	// GetActiveStreams loads active registry entries joined with discovery
	// metadata. All timestamps are normalized to UTC.
	GetActiveStreams(ctx context.Context) ([]*domain.ActiveStream, error)

	// UpdatePhase records a phase transition for a tracked stream.
	UpdatePhase(ctx context.Context, mint string, phaseID int) error

	// MarkTerminal ends tracking: the stream is deactivated and stamped
	// with the graduated (100) or finished (99) sentinel phase.
	MarkTerminal(ctx context.Context, mint string, graduated bool) error

	// FlushATH persists all-time-high prices for the given mints.
	FlushATH(ctx context.Context, updates []domain.ATHUpdate) error

	// RecentStreams and StreamStats serve the read-only HTTP API.
	RecentStreams(ctx context.Context, limit int) ([]*domain.StreamInfo, error)
	StreamStats(ctx context.Context) (*domain.StreamStats, error)
}

// MetricStore appends flushed aggregation windows.
type MetricStore interface {
	// InsertBatch writes one sweep's rows in a single transaction.
	InsertBatch(ctx context.Context, rows []*domain.MetricRow) error

	// Recent returns the latest rows, newest first. An empty mint matches
	// all tokens.
	Recent(ctx context.Context, mint string, limit int) ([]*domain.MetricRow, error)
}

// TradeArchive receives raw trades in batches. Best effort: failed batches
// may be retried by the caller until the rows age out of its buffer.
type TradeArchive interface {
	InsertBatch(ctx context.Context, trades []*domain.TokenTrade) error
}
