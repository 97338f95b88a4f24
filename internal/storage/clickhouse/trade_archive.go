package clickhouse

import (
	"context"
	"fmt"

	"solana-pump-tracker/internal/domain"
	"solana-pump-tracker/internal/storage"
)

// TradeArchive implements storage.TradeArchive using ClickHouse. The table
// is append-only; MergeTree does not enforce uniqueness and the archive does
// not need it.
type TradeArchive struct {
	conn *Conn
}

// NewTradeArchive creates a new TradeArchive.
func NewTradeArchive(conn *Conn) *TradeArchive {
	return &TradeArchive{conn: conn}
}

// Compile-time interface check.
var _ storage.TradeArchive = (*TradeArchive)(nil)

// InsertBatch appends raw trades in a single native batch.
func (s *TradeArchive) InsertBatch(ctx context.Context, trades []*domain.TokenTrade) error {
	if len(trades) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO token_trades (
			mint, timestamp, side, sol_amount, v_sol, v_tokens, price, trader
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, t := range trades {
		err = batch.Append(
			t.Mint, t.Timestamp.UTC(), string(t.Side),
			t.SolAmount, t.VSol, t.VTokens, t.Price, t.Trader,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// RecentTrades returns the newest archived trades for a mint, newest first.
func (s *TradeArchive) RecentTrades(ctx context.Context, mint string, limit int) ([]*domain.TokenTrade, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidInput)
	}

	query := `
		SELECT mint, timestamp, side, sol_amount, v_sol, v_tokens, price, trader
		FROM token_trades
		WHERE mint = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := s.conn.Query(ctx, query, mint, uint64(limit))
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var trades []*domain.TokenTrade
	for rows.Next() {
		var (
			t    domain.TokenTrade
			side string
		)
		err := rows.Scan(&t.Mint, &t.Timestamp, &side,
			&t.SolAmount, &t.VSol, &t.VTokens, &t.Price, &t.Trader)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		t.Side = domain.TradeSide(side)
		t.Timestamp = t.Timestamp.UTC()
		trades = append(trades, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}

	return trades, nil
}
