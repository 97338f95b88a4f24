package httpapi

import (
	"net/http"
	"strconv"
	"time"
)

func (s *Server) handlePhases(w http.ResponseWriter, r *http.Request) {
	phases, err := s.svc.PhaseStore().LoadPhases(r.Context())
	if err != nil {
		writeError(w, storeStatus(err), err.Error())
		return
	}

	type phaseView struct {
		ID              int    `json:"id"`
		Name            string `json:"phase_name"`
		IntervalSeconds int    `json:"check_interval_seconds"`
		MaxAgeMinutes   int    `json:"max_age_minutes"`
	}
	out := make([]phaseView, len(phases))
	for i, p := range phases {
		out[i] = phaseView{
			ID:              p.ID,
			Name:            p.Name,
			IntervalSeconds: p.IntervalSeconds,
			MaxAgeMinutes:   p.MaxAgeMinutes,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(out), "phases": out})
}

func (s *Server) handleStreams(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r)
	streams, err := s.svc.StreamStore().RecentStreams(r.Context(), limit)
	if err != nil {
		writeError(w, storeStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(streams), "streams": streams})
}

func (s *Server) handleStreamStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.StreamStore().StreamStats(r.Context())
	if err != nil {
		writeError(w, storeStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r)
	mint := r.URL.Query().Get("mint")

	rows, err := s.svc.MetricStore().Recent(r.Context(), mint, limit)
	if err != nil {
		writeError(w, storeStatus(err), err.Error())
		return
	}

	type metricView struct {
		Mint            string  `json:"token_address"`
		Timestamp       string  `json:"timestamp"`
		PhaseID         int     `json:"phase_id"`
		PriceOpen       float64 `json:"price_open"`
		PriceHigh       float64 `json:"price_high"`
		PriceLow        float64 `json:"price_low"`
		PriceClose      float64 `json:"price_close"`
		MarketCapClose  float64 `json:"market_cap_close"`
		BondingCurvePct float64 `json:"bonding_curve_pct"`
		VolumeSol       float64 `json:"volume_sol"`
		NumBuys         int     `json:"num_buys"`
		NumSells        int     `json:"num_sells"`
		UniqueWallets   int     `json:"unique_wallets"`
		IsKOTH          bool    `json:"is_koth"`
	}
	out := make([]metricView, len(rows))
	for i, m := range rows {
		out[i] = metricView{
			Mint:            m.Mint,
			Timestamp:       m.Timestamp.UTC().Format(time.RFC3339),
			PhaseID:         m.PhaseID,
			PriceOpen:       m.PriceOpen,
			PriceHigh:       m.PriceHigh,
			PriceLow:        m.PriceLow,
			PriceClose:      m.PriceClose,
			MarketCapClose:  m.MarketCapClose,
			BondingCurvePct: m.BondingCurvePct,
			VolumeSol:       m.VolumeSol,
			NumBuys:         m.NumBuys,
			NumSells:        m.NumSells,
			UniqueWallets:   m.UniqueWallets,
			IsKOTH:          m.IsKOTH,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(out), "metrics": out})
}

// queryLimit parses ?limit= with a default and an upper bound.
func queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultListLimit
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}
