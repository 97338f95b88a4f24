// Package tracking owns the watchlist: per-token aggregation buffers fed by
// the trade stream, the phase-driven flush sweep, and the zombie-subscription
// watchdog.
package tracking

import (
	"fmt"
	"math"

	"solana-pump-tracker/internal/domain"
)

// microTradeThreshold is the strict upper bound for a micro trade.
const microTradeThreshold = 0.01

// Buffer aggregates one flush window for one token. It is reset after every
// flush, row or not.
type Buffer struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	opened bool

	Vol     float64
	VolBuy  float64
	VolSell float64
	Buys    int
	Sells   int

	MaxBuy  float64
	MaxSell float64

	WhaleBuyVol  float64
	WhaleSellVol float64
	WhaleBuys    int
	WhaleSells   int

	MicroTrades int
	DevSold     float64

	Wallets map[string]struct{}

	// Last observed reserve state, used for graduation and market cap.
	VSol float64
	MCap float64
}

func newBuffer() Buffer {
	return Buffer{
		High:    math.Inf(-1),
		Low:     math.Inf(1),
		Wallets: make(map[string]struct{}),
	}
}

func (b *Buffer) reset() {
	*b = newBuffer()
}

// apply folds one trade into the window. creator is the token creator wallet
// for dev-sell attribution, nil when unknown.
func (b *Buffer) apply(t *domain.TradeEvent, creator *string, whaleThreshold float64) {
	price := t.Price()

	if !b.opened {
		b.Open = price
		b.opened = true
	}
	b.Close = price
	b.High = math.Max(b.High, price)
	b.Low = math.Min(b.Low, price)
	b.Vol += t.SolAmount

	if t.Side == domain.TradeSideBuy {
		b.Buys++
		b.VolBuy += t.SolAmount
		b.MaxBuy = math.Max(b.MaxBuy, t.SolAmount)
		if t.SolAmount >= whaleThreshold {
			b.WhaleBuys++
			b.WhaleBuyVol += t.SolAmount
		}
	} else {
		b.Sells++
		b.VolSell += t.SolAmount
		b.MaxSell = math.Max(b.MaxSell, t.SolAmount)
		if t.SolAmount >= whaleThreshold {
			b.WhaleSells++
			b.WhaleSellVol += t.SolAmount
		}
		if creator != nil && *creator != "" && t.TraderPublicKey == *creator {
			b.DevSold += t.SolAmount
		}
	}

	if t.SolAmount < microTradeThreshold {
		b.MicroTrades++
	}
	b.Wallets[t.TraderPublicKey] = struct{}{}
	b.VSol = t.VSolInBondingCurve
	b.MCap = price * domain.TokenTotalSupply
}

// signature fingerprints the window for duplicate-flush suppression. Two
// consecutive windows with the same close, volume, and trade count are the
// textbook symptom of a zombie subscription replaying nothing.
func (b *Buffer) signature() string {
	return fmt.Sprintf("%.10f_%.6f_%d", b.Close, b.Vol, b.Buys+b.Sells)
}
