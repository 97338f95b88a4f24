package tracking

import (
	"testing"
	"time"

	"solana-pump-tracker/internal/domain"
)

func archiveTrade(mint string, ts time.Time) *domain.TokenTrade {
	return &domain.TokenTrade{Mint: mint, Timestamp: ts, Side: domain.TradeSideBuy, SolAmount: 1}
}

func TestTradeLogDrainAndRestore(t *testing.T) {
	l := NewTradeLog()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	l.Append(archiveTrade("m1", now))
	l.Append(archiveTrade("m2", now.Add(time.Second)))

	batch := l.Drain()
	if len(batch) != 2 || l.Len() != 0 {
		t.Fatalf("Drain returned %d rows, log holds %d", len(batch), l.Len())
	}

	l.Append(archiveTrade("m3", now.Add(2*time.Second)))
	l.Restore(batch)
	if l.Len() != 3 {
		t.Fatalf("after Restore log holds %d rows, want 3", l.Len())
	}

	// Restored rows come first so retention pruning sees them in time order.
	all := l.Drain()
	if all[0].Mint != "m1" || all[1].Mint != "m2" || all[2].Mint != "m3" {
		t.Errorf("order after restore = %s %s %s", all[0].Mint, all[1].Mint, all[2].Mint)
	}
}

func TestTradeLogPrune(t *testing.T) {
	l := NewTradeLog()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	l.Append(archiveTrade("old", now.Add(-4*time.Minute)))
	l.Append(archiveTrade("edge", now.Add(-3*time.Minute))) // exactly at window: dropped
	l.Append(archiveTrade("keep", now.Add(-time.Minute)))

	removed := l.Prune(now, 3*time.Minute)
	if removed != 2 {
		t.Fatalf("Prune removed %d, want 2", removed)
	}
	rest := l.Drain()
	if len(rest) != 1 || rest[0].Mint != "keep" {
		t.Errorf("kept = %+v, want only the recent row", rest)
	}
}
