package domain

import "time"

// ActiveStream is one tracked token as loaded from the registry
// (coin_streams joined with discovered_coins, is_active = true).
type ActiveStream struct {
	Mint           string
	PhaseID        int
	CreatedAt      time.Time // token creation time (UTC)
	StartedAt      time.Time // tracking start time (UTC)
	CreatorAddress *string   // token creator wallet (nullable)
	ATHPriceSol    float64   // last persisted all-time-high price
}

// AgeMinutes returns the token age in minutes at now, reduced by offsetMin
// and clamped at zero. Phase transitions are driven by this value.
func (s *ActiveStream) AgeMinutes(now time.Time, offsetMin int) float64 {
	age := now.UTC().Sub(s.CreatedAt).Minutes() - float64(offsetMin)
	if age < 0 {
		return 0
	}
	return age
}

// ATHUpdate is one dirty all-time-high entry flushed to the registry.
type ATHUpdate struct {
	Mint      string
	PriceSol  float64
	Timestamp time.Time
}

// StreamInfo is a registry row shaped for the read-only HTTP API.
type StreamInfo struct {
	Mint         string     `json:"token_address"`
	PhaseID      int        `json:"current_phase_id"`
	PhaseName    string     `json:"phase_name,omitempty"`
	IsActive     bool       `json:"is_active"`
	IsGraduated  bool       `json:"is_graduated"`
	StartedAt    time.Time  `json:"started_at"`
	ATHPriceSol  *float64   `json:"ath_price_sol,omitempty"`
	ATHTimestamp *time.Time `json:"ath_timestamp,omitempty"`
}

// StreamStats summarizes the registry for the read-only HTTP API.
type StreamStats struct {
	TotalStreams   int         `json:"total_streams"`
	ActiveStreams  int         `json:"active_streams"`
	EndedStreams   int         `json:"ended_streams"`
	StreamsByPhase map[int]int `json:"streams_by_phase"`
}
