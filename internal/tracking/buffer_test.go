package tracking

import (
	"testing"

	"solana-pump-tracker/internal/domain"
)

func buy(sol, vSol, vTokens float64, trader string) *domain.TradeEvent {
	return &domain.TradeEvent{
		Mint:                  "mint",
		Side:                  domain.TradeSideBuy,
		SolAmount:             sol,
		VSolInBondingCurve:    vSol,
		VTokensInBondingCurve: vTokens,
		TraderPublicKey:       trader,
	}
}

func sell(sol, vSol, vTokens float64, trader string) *domain.TradeEvent {
	t := buy(sol, vSol, vTokens, trader)
	t.Side = domain.TradeSideSell
	return t
}

func TestBufferOHLCAndVolume(t *testing.T) {
	b := newBuffer()

	// Prices: 0.00003, 0.00005, 0.00002, 0.00004
	b.apply(buy(1, 30, 1_000_000, "w1"), nil, 1.0)
	b.apply(buy(2, 50, 1_000_000, "w2"), nil, 1.0)
	b.apply(sell(0.5, 20, 1_000_000, "w1"), nil, 1.0)
	b.apply(buy(0.25, 40, 1_000_000, "w3"), nil, 1.0)

	if b.Open != 30.0/1_000_000 {
		t.Errorf("Open = %g", b.Open)
	}
	if b.High != 50.0/1_000_000 {
		t.Errorf("High = %g", b.High)
	}
	if b.Low != 20.0/1_000_000 {
		t.Errorf("Low = %g", b.Low)
	}
	if b.Close != 40.0/1_000_000 {
		t.Errorf("Close = %g", b.Close)
	}
	if b.Vol != 3.75 || b.VolBuy != 3.25 || b.VolSell != 0.5 {
		t.Errorf("volumes = %g/%g/%g", b.Vol, b.VolBuy, b.VolSell)
	}
	if b.Buys != 3 || b.Sells != 1 {
		t.Errorf("counts = %d/%d", b.Buys, b.Sells)
	}
	if len(b.Wallets) != 3 {
		t.Errorf("unique wallets = %d, want 3", len(b.Wallets))
	}
	if b.MaxBuy != 2 || b.MaxSell != 0.5 {
		t.Errorf("max sizes = %g/%g", b.MaxBuy, b.MaxSell)
	}
	if b.VSol != 40 {
		t.Errorf("VSol = %g, want last reserve state", b.VSol)
	}
	if b.MCap != 40.0/1_000_000*domain.TokenTotalSupply {
		t.Errorf("MCap = %g", b.MCap)
	}
}

func TestBufferWhaleThresholdIsInclusive(t *testing.T) {
	b := newBuffer()

	b.apply(buy(1.0, 30, 1_000_000, "w1"), nil, 1.0)  // exactly at threshold
	b.apply(buy(0.99, 30, 1_000_000, "w2"), nil, 1.0) // just below
	b.apply(sell(1.5, 30, 1_000_000, "w3"), nil, 1.0)

	if b.WhaleBuys != 1 || b.WhaleBuyVol != 1.0 {
		t.Errorf("whale buys = %d/%g, want exactly-at-threshold counted", b.WhaleBuys, b.WhaleBuyVol)
	}
	if b.WhaleSells != 1 || b.WhaleSellVol != 1.5 {
		t.Errorf("whale sells = %d/%g", b.WhaleSells, b.WhaleSellVol)
	}
}

func TestBufferMicroTradeThresholdIsStrict(t *testing.T) {
	b := newBuffer()

	b.apply(buy(0.009, 30, 1_000_000, "w1"), nil, 1.0) // micro
	b.apply(buy(0.01, 30, 1_000_000, "w2"), nil, 1.0)  // exactly at bound: not micro
	b.apply(buy(0.02, 30, 1_000_000, "w3"), nil, 1.0)

	if b.MicroTrades != 1 {
		t.Errorf("MicroTrades = %d, want 1", b.MicroTrades)
	}
}

func TestBufferDevSellAttribution(t *testing.T) {
	creator := "dev-wallet"
	b := newBuffer()

	b.apply(sell(2, 30, 1_000_000, "dev-wallet"), &creator, 1.0)
	b.apply(sell(1, 30, 1_000_000, "other"), &creator, 1.0)
	b.apply(buy(3, 30, 1_000_000, "dev-wallet"), &creator, 1.0) // buys never count

	if b.DevSold != 2 {
		t.Errorf("DevSold = %g, want 2", b.DevSold)
	}

	// Unknown creator: nothing attributed.
	b2 := newBuffer()
	b2.apply(sell(2, 30, 1_000_000, "dev-wallet"), nil, 1.0)
	if b2.DevSold != 0 {
		t.Errorf("DevSold with nil creator = %g, want 0", b2.DevSold)
	}
}

func TestBufferSignature(t *testing.T) {
	b := newBuffer()
	b.apply(buy(1.5, 30, 1_000_000, "w1"), nil, 1.0)

	sig := b.signature()
	if sig != "0.0000300000_1.500000_1" {
		t.Errorf("signature = %q", sig)
	}

	b.apply(buy(1.5, 30, 1_000_000, "w2"), nil, 1.0)
	if b.signature() == sig {
		t.Error("signature unchanged after additional trade")
	}

	b.reset()
	other := newBuffer()
	if b.signature() != other.signature() {
		t.Error("reset buffer signature differs from fresh buffer")
	}
}
