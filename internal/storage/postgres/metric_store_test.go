package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"solana-pump-tracker/internal/domain"
	"solana-pump-tracker/internal/storage"
)

func metricRow(mint string, ts time.Time, volume float64) *domain.MetricRow {
	return &domain.MetricRow{
		Mint:               mint,
		Timestamp:          ts,
		PhaseID:            1,
		PriceOpen:          0.00003,
		PriceHigh:          0.000031,
		PriceLow:           0.000029,
		PriceClose:         0.00003,
		MarketCapClose:     30000,
		BondingCurvePct:    35.2,
		VirtualSolReserves: 30,
		VolumeSol:          volume,
		BuyVolumeSol:       volume,
		NumBuys:            2,
		UniqueWallets:      2,
		MaxSingleBuySol:    volume / 2,
		NetVolumeSol:       volume,
		VolatilityPct:      6.6,
		AvgTradeSizeSol:    volume / 2,
		BuyPressureRatio:   1,
		UniqueSignerRatio:  1,
	}
}

func TestMetricStoreInsertAndRecent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewMetricStore(pool)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rows := []*domain.MetricRow{
		metricRow("m1", base, 1),
		metricRow("m2", base.Add(time.Second), 2),
		metricRow("m1", base.Add(2*time.Second), 3),
	}
	require.NoError(t, store.InsertBatch(ctx, rows))
	require.NoError(t, store.InsertBatch(ctx, nil), "empty batch is a no-op")

	got, err := store.Recent(ctx, "m1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, 3.0, got[0].VolumeSol, "newest row first")
	require.True(t, got[0].Timestamp.Equal(base.Add(2*time.Second)))
	require.Equal(t, time.UTC, got[0].Timestamp.Location())

	all, err := store.Recent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3, "empty mint matches all tokens")

	_, err = store.Recent(ctx, "m1", 0)
	require.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestMetricStoreRoundTripsAllColumns(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewMetricStore(pool)

	want := &domain.MetricRow{
		Mint:               "m1",
		Timestamp:          time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		PhaseID:            2,
		PriceOpen:          1,
		PriceHigh:          4,
		PriceLow:           0.5,
		PriceClose:         2,
		MarketCapClose:     2e9,
		BondingCurvePct:    99.4,
		VirtualSolReserves: 84.5,
		IsKOTH:             true,
		VolumeSol:          10,
		BuyVolumeSol:       7,
		SellVolumeSol:      3,
		NumBuys:            4,
		NumSells:           2,
		UniqueWallets:      3,
		NumMicroTrades:     1,
		DevSoldAmount:      0.5,
		MaxSingleBuySol:    5,
		MaxSingleSellSol:   2,
		NetVolumeSol:       4,
		VolatilityPct:      175,
		AvgTradeSizeSol:    10.0 / 6.0,
		WhaleBuyVolumeSol:  6,
		WhaleSellVolumeSol: 2,
		NumWhaleBuys:       1,
		NumWhaleSells:      1,
		BuyPressureRatio:   0.7,
		UniqueSignerRatio:  0.5,
	}
	require.NoError(t, store.InsertBatch(ctx, []*domain.MetricRow{want}))

	got, err := store.Recent(ctx, "m1", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, want, got[0])
}
