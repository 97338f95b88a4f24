package domain

import "time"

// KOTHMarketCapSol is the market-cap threshold (strictly above) at which a
// flushed window is flagged king-of-the-hill.
const KOTHMarketCapSol = 30_000.0

// MetricRow is one flushed aggregation window; corresponds to one row of the
// coin_metrics table.
type MetricRow struct {
	Mint      string
	Timestamp time.Time // window close time (UTC)
	PhaseID   int       // phase at flush time

	// Price window
	PriceOpen          float64
	PriceHigh          float64
	PriceLow           float64
	PriceClose         float64
	MarketCapClose     float64
	BondingCurvePct    float64
	VirtualSolReserves float64
	IsKOTH             bool

	// Volume and counts
	VolumeSol      float64
	BuyVolumeSol   float64
	SellVolumeSol  float64
	NumBuys        int
	NumSells       int
	UniqueWallets  int
	NumMicroTrades int
	DevSoldAmount  float64

	// Extremes
	MaxSingleBuySol  float64
	MaxSingleSellSol float64

	// Derived
	NetVolumeSol    float64
	VolatilityPct   float64
	AvgTradeSizeSol float64

	// Whale activity
	WhaleBuyVolumeSol  float64
	WhaleSellVolumeSol float64
	NumWhaleBuys       int
	NumWhaleSells      int

	// Ratios
	BuyPressureRatio  float64
	UniqueSignerRatio float64
}

// TokenTrade is one raw trade retained in the rolling archive buffer and
// batch-written to the token_trades table when the archive sink is enabled.
type TokenTrade struct {
	Mint      string
	Timestamp time.Time
	Side      TradeSide
	SolAmount float64
	VSol      float64
	VTokens   float64
	Price     float64
	Trader    string
}
