package postgres

import (
	"context"
	"fmt"

	"solana-pump-tracker/internal/domain"
	"solana-pump-tracker/internal/storage"
)

// MetricStore implements storage.MetricStore backed by PostgreSQL.
type MetricStore struct {
	pool *Pool
}

// Compile-time interface check
var _ storage.MetricStore = (*MetricStore)(nil)

// NewMetricStore creates a new PostgreSQL metric store.
func NewMetricStore(pool *Pool) *MetricStore {
	return &MetricStore{pool: pool}
}

const insertMetricSQL = `
	INSERT INTO coin_metrics (
		mint, timestamp, phase_id_at_time, price_open, price_high, price_low, price_close,
		market_cap_close, bonding_curve_pct, virtual_sol_reserves, is_koth, volume_sol,
		buy_volume_sol, sell_volume_sol, num_buys, num_sells, unique_wallets, num_micro_trades,
		dev_sold_amount, max_single_buy_sol, max_single_sell_sol, net_volume_sol,
		volatility_pct, avg_trade_size_sol, whale_buy_volume_sol, whale_sell_volume_sol,
		num_whale_buys, num_whale_sells, buy_pressure_ratio, unique_signer_ratio
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
		$19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30)`

const selectMetricColumns = `
	mint, timestamp, phase_id_at_time, price_open, price_high, price_low, price_close,
	market_cap_close, bonding_curve_pct, virtual_sol_reserves, is_koth, volume_sol,
	buy_volume_sol, sell_volume_sol, num_buys, num_sells, unique_wallets, num_micro_trades,
	dev_sold_amount, max_single_buy_sol, max_single_sell_sol, net_volume_sol,
	volatility_pct, avg_trade_size_sol, whale_buy_volume_sol, whale_sell_volume_sol,
	num_whale_buys, num_whale_sells, buy_pressure_ratio, unique_signer_ratio`

// InsertBatch writes one sweep's rows in a single transaction.
func (s *MetricStore) InsertBatch(ctx context.Context, rows []*domain.MetricRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range rows {
		_, err := tx.Exec(ctx, insertMetricSQL,
			r.Mint, r.Timestamp.UTC(), r.PhaseID,
			r.PriceOpen, r.PriceHigh, r.PriceLow, r.PriceClose,
			r.MarketCapClose, r.BondingCurvePct, r.VirtualSolReserves, r.IsKOTH,
			r.VolumeSol, r.BuyVolumeSol, r.SellVolumeSol,
			r.NumBuys, r.NumSells, r.UniqueWallets, r.NumMicroTrades,
			r.DevSoldAmount, r.MaxSingleBuySol, r.MaxSingleSellSol,
			r.NetVolumeSol, r.VolatilityPct, r.AvgTradeSizeSol,
			r.WhaleBuyVolumeSol, r.WhaleSellVolumeSol,
			r.NumWhaleBuys, r.NumWhaleSells,
			r.BuyPressureRatio, r.UniqueSignerRatio,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return fmt.Errorf("metric row for %s at %s: %w", r.Mint, r.Timestamp, storage.ErrDuplicateKey)
			}
			return fmt.Errorf("insert metric for %s: %w", r.Mint, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Recent returns the latest rows, newest first. An empty mint matches all
// tokens.
func (s *MetricStore) Recent(ctx context.Context, mint string, limit int) ([]*domain.MetricRow, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidInput)
	}

	query := "SELECT " + selectMetricColumns + " FROM coin_metrics"
	args := []any{}
	if mint != "" {
		query += " WHERE mint = $1 ORDER BY timestamp DESC LIMIT $2"
		args = append(args, mint, limit)
	} else {
		query += " ORDER BY timestamp DESC LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	var out []*domain.MetricRow
	for rows.Next() {
		var r domain.MetricRow
		err := rows.Scan(
			&r.Mint, &r.Timestamp, &r.PhaseID,
			&r.PriceOpen, &r.PriceHigh, &r.PriceLow, &r.PriceClose,
			&r.MarketCapClose, &r.BondingCurvePct, &r.VirtualSolReserves, &r.IsKOTH,
			&r.VolumeSol, &r.BuyVolumeSol, &r.SellVolumeSol,
			&r.NumBuys, &r.NumSells, &r.UniqueWallets, &r.NumMicroTrades,
			&r.DevSoldAmount, &r.MaxSingleBuySol, &r.MaxSingleSellSol,
			&r.NetVolumeSol, &r.VolatilityPct, &r.AvgTradeSizeSol,
			&r.WhaleBuyVolumeSol, &r.WhaleSellVolumeSol,
			&r.NumWhaleBuys, &r.NumWhaleSells,
			&r.BuyPressureRatio, &r.UniqueSignerRatio,
		)
		if err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		r.Timestamp = r.Timestamp.UTC()
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metrics: %w", err)
	}

	return out, nil
}
