package httpapi

import (
	"encoding/json"
	"net/http"

	"solana-pump-tracker/internal/config"
)

// configView is the /config JSON document. The DSN is always masked; a masked
// value is rejected on the way back in, so round-tripping the document cannot
// corrupt the stored DSN.
type configView struct {
	WSURI             string `json:"ws_uri"`
	WebhookURL        string `json:"n8n_webhook_url"`
	WebhookMethod     string `json:"n8n_webhook_method"`
	DBDSN             string `json:"db_dsn"`
	CoinCacheSeconds  int    `json:"coin_cache_seconds"`
	DBRefreshInterval int    `json:"db_refresh_interval"`
	BatchSize         int    `json:"batch_size"`
	BatchTimeout      int    `json:"batch_timeout"`
	BadNamesPattern   string `json:"bad_names_pattern"`
	SpamBurstWindow   int    `json:"spam_burst_window"`

	SolReservesFull   float64 `json:"sol_reserves_full"`
	AgeOffsetMin      int     `json:"age_calculation_offset_min"`
	WhaleThresholdSol float64 `json:"whale_threshold_sol"`
}

func viewOf(cfg config.Config) configView {
	return configView{
		WSURI:             cfg.WSURI,
		WebhookURL:        cfg.WebhookURL,
		WebhookMethod:     cfg.WebhookMethod,
		DBDSN:             config.MaskedDSN(cfg.DBDSN),
		CoinCacheSeconds:  int(cfg.CoinCacheTTL.Seconds()),
		DBRefreshInterval: int(cfg.DBRefreshInterval.Seconds()),
		BatchSize:         cfg.BatchSize,
		BatchTimeout:      int(cfg.BatchTimeout.Seconds()),
		BadNamesPattern:   cfg.BadNamesPattern,
		SpamBurstWindow:   int(cfg.SpamBurstWindow.Seconds()),
		SolReservesFull:   cfg.SolReservesFull,
		AgeOffsetMin:      cfg.AgeOffsetMin,
		WhaleThresholdSol: cfg.WhaleThresholdSol,
	}
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, viewOf(s.cfg.Snapshot()))
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var u config.Update
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	fields, err := s.cfg.Apply(u)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Info().Strs("fields", fields).Str("remote", r.RemoteAddr).Msg("config updated via api")
	writeJSON(w, http.StatusOK, map[string]any{
		"updated": fields,
		"config":  viewOf(s.cfg.Snapshot()),
	})
}

func (s *Server) handleReloadConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.cfg.Reload()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "reload failed: "+err.Error())
		return
	}

	s.logger.Info().Str("remote", r.RemoteAddr).Msg("config reloaded via api")
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "reloaded",
		"config": viewOf(cfg),
	})
}
