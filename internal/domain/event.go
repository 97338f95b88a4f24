package domain

import (
	"encoding/json"
	"fmt"
)

// TokenTotalSupply is the fixed token supply convention of the upstream feed;
// market cap is always price * TokenTotalSupply.
const TokenTotalSupply = 1_000_000_000.0

// TradeSide is the direction of a trade event.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// EventKind tags the variant carried by Event.
type EventKind int

const (
	EventCreate EventKind = iota + 1
	EventTrade
)

// Event is the tagged variant produced at the parser boundary. Exactly one of
// Create/Trade is set, according to Kind.
type Event struct {
	Kind   EventKind
	Create *CreateEvent
	Trade  *TradeEvent
}

// CreateEvent is a token creation announcement from the upstream feed.
type CreateEvent struct {
	Mint                  string
	Name                  string
	Symbol                string
	URI                   string
	MarketCapSol          float64
	VSolInBondingCurve    float64
	VTokensInBondingCurve float64
	BondingCurveKey       string
	TraderPublicKey       string // token creator

	// Raw is the creation payload exactly as received; it is forwarded
	// verbatim to the automation endpoint.
	Raw json.RawMessage
}

// TradeEvent is a single buy or sell observed on the bonding curve.
type TradeEvent struct {
	Mint                  string
	Side                  TradeSide
	SolAmount             float64
	VSolInBondingCurve    float64
	VTokensInBondingCurve float64
	TraderPublicKey       string
}

// Price returns the bonding-curve spot price implied by the trade's reserves.
func (t *TradeEvent) Price() float64 {
	if t.VTokensInBondingCurve <= 0 {
		return 0
	}
	return t.VSolInBondingCurve / t.VTokensInBondingCurve
}

// wireEvent mirrors the upstream JSON frame. Numeric fields are pointers so
// that absent fields can be distinguished from zero values.
type wireEvent struct {
	TxType                string   `json:"txType"`
	Mint                  string   `json:"mint"`
	Name                  string   `json:"name"`
	Symbol                string   `json:"symbol"`
	URI                   string   `json:"uri"`
	MarketCapSol          *float64 `json:"marketCapSol"`
	SolAmount             *float64 `json:"solAmount"`
	VSolInBondingCurve    *float64 `json:"vSolInBondingCurve"`
	VTokensInBondingCurve *float64 `json:"vTokensInBondingCurve"`
	BondingCurveKey       string   `json:"bondingCurveKey"`
	TraderPublicKey       string   `json:"traderPublicKey"`
}

// ParseEvent decodes one upstream frame into a typed event.
//
// Frames without a txType (subscription acks, server notices) return
// (nil, nil) and are ignored by callers. Unknown txType values are ignored the
// same way. Any decode or validation failure returns an error; the caller
// drops the frame without mutating state.
func ParseEvent(data []byte) (*Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	switch w.TxType {
	case "create":
		return parseCreate(&w, data)
	case string(TradeSideBuy), string(TradeSideSell):
		return parseTrade(&w)
	default:
		// Ack frames and unknown transaction types carry no data we track.
		return nil, nil
	}
}

func parseCreate(w *wireEvent, data []byte) (*Event, error) {
	if w.Mint == "" {
		return nil, fmt.Errorf("create event missing mint")
	}

	c := &CreateEvent{
		Mint:            w.Mint,
		Name:            w.Name,
		Symbol:          w.Symbol,
		URI:             w.URI,
		BondingCurveKey: w.BondingCurveKey,
		TraderPublicKey: w.TraderPublicKey,
		Raw:             json.RawMessage(append([]byte(nil), data...)),
	}
	if w.MarketCapSol != nil {
		c.MarketCapSol = *w.MarketCapSol
	}
	if w.VSolInBondingCurve != nil {
		c.VSolInBondingCurve = *w.VSolInBondingCurve
	}
	if w.VTokensInBondingCurve != nil {
		c.VTokensInBondingCurve = *w.VTokensInBondingCurve
	}

	return &Event{Kind: EventCreate, Create: c}, nil
}

func parseTrade(w *wireEvent) (*Event, error) {
	if w.Mint == "" {
		return nil, fmt.Errorf("trade event missing mint")
	}
	if w.SolAmount == nil || *w.SolAmount <= 0 {
		return nil, fmt.Errorf("trade event missing or non-positive solAmount")
	}
	if w.VSolInBondingCurve == nil || *w.VSolInBondingCurve < 0 {
		return nil, fmt.Errorf("trade event missing vSolInBondingCurve")
	}
	if w.VTokensInBondingCurve == nil || *w.VTokensInBondingCurve <= 0 {
		return nil, fmt.Errorf("trade event missing or non-positive vTokensInBondingCurve")
	}
	if w.TraderPublicKey == "" {
		return nil, fmt.Errorf("trade event missing traderPublicKey")
	}

	t := &TradeEvent{
		Mint:                  w.Mint,
		Side:                  TradeSide(w.TxType),
		SolAmount:             *w.SolAmount,
		VSolInBondingCurve:    *w.VSolInBondingCurve,
		VTokensInBondingCurve: *w.VTokensInBondingCurve,
		TraderPublicKey:       w.TraderPublicKey,
	}

	return &Event{Kind: EventTrade, Trade: t}, nil
}
