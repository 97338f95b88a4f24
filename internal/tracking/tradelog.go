package tracking

import (
	"time"

	"solana-pump-tracker/internal/domain"
)

// TradeLog is the rolling raw-trade buffer behind the optional archive sink.
// Rows live until they are written to the archive or age past the retention
// window, whichever comes first.
//
// Owned by the supervisor loop; not safe for concurrent use.
type TradeLog struct {
	trades []*domain.TokenTrade
}

// NewTradeLog creates an empty log.
func NewTradeLog() *TradeLog {
	return &TradeLog{}
}

// Append records one trade. Trades arrive in stream order, so the slice stays
// sorted by timestamp.
func (l *TradeLog) Append(t *domain.TokenTrade) {
	l.trades = append(l.trades, t)
}

// Drain hands over all buffered rows for an archive batch. On insert failure
// the caller gives them back with Restore.
func (l *TradeLog) Drain() []*domain.TokenTrade {
	trades := l.trades
	l.trades = nil
	return trades
}

// Restore prepends rows that failed to flush. They age out like any others.
func (l *TradeLog) Restore(trades []*domain.TokenTrade) {
	l.trades = append(trades, l.trades...)
}

// Prune drops rows older than the retention window and returns how many went.
func (l *TradeLog) Prune(now time.Time, window time.Duration) int {
	cutoff := now.Add(-window)
	kept := l.trades[:0]
	for _, t := range l.trades {
		if t.Timestamp.After(cutoff) {
			kept = append(kept, t)
		}
	}
	removed := len(l.trades) - len(kept)
	l.trades = kept
	return removed
}

// Len returns the number of buffered rows.
func (l *TradeLog) Len() int {
	return len(l.trades)
}
