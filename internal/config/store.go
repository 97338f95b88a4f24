package config

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Runtime update ranges enforced by the HTTP API.
const (
	minCacheSeconds   = 10
	maxCacheSeconds   = 3600
	minRefreshSeconds = 5
	maxRefreshSeconds = 300
	minBatchSize      = 1
	maxBatchSize      = 100
	minBatchTimeout   = 10
	maxBatchTimeout   = 300
	minBurstSeconds   = 5
	maxBurstSeconds   = 300
)

// Update carries a partial configuration change from the HTTP API. Nil fields
// are left untouched. Key names match the /config JSON document.
type Update struct {
	WebhookURL        *string `json:"n8n_webhook_url"`
	WebhookMethod     *string `json:"n8n_webhook_method"`
	DBDSN             *string `json:"db_dsn"`
	CoinCacheSeconds  *int    `json:"coin_cache_seconds"`
	DBRefreshInterval *int    `json:"db_refresh_interval"`
	BatchSize         *int    `json:"batch_size"`
	BatchTimeout      *int    `json:"batch_timeout"`
	BadNamesPattern   *string `json:"bad_names_pattern"`
	SpamBurstWindow   *int    `json:"spam_burst_window"`
}

// Store owns the live configuration. Readers take value snapshots; updates
// are validated wholesale and committed atomically.
type Store struct {
	mu       sync.RWMutex
	cur      Config
	badNames *regexp.Regexp
	envFile  string

	// forceDBReconnect is raised on DSN change and consumed by the next
	// registry refresh.
	forceDBReconnect bool

	logger zerolog.Logger
}

// NewStore wraps a validated Config. envFile, when non-empty, is where
// runtime updates are persisted and what Reload re-reads.
func NewStore(cfg Config, envFile string) (*Store, error) {
	re, err := CompileBadNames(cfg.BadNamesPattern)
	if err != nil {
		return nil, err
	}
	return &Store{
		cur:      cfg,
		badNames: re,
		envFile:  envFile,
		logger:   log.With().Str("component", "config").Logger(),
	}, nil
}

// Snapshot returns a copy of the current configuration.
func (s *Store) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// BadNames returns the compiled name filter pattern.
func (s *Store) BadNames() *regexp.Regexp {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.badNames
}

// ConsumeForceReconnect reports and clears the pending force-reconnect flag.
func (s *Store) ConsumeForceReconnect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.forceDBReconnect
	s.forceDBReconnect = false
	return f
}

// Apply validates and commits a runtime update. It returns the names of the
// changed fields. On any validation failure nothing is applied.
func (s *Store) Apply(u Update) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.cur
	stagedRe := s.badNames
	var fields []string
	persist := make(map[string]string)

	if u.WebhookURL != nil {
		staged.WebhookURL = *u.WebhookURL
		persist["N8N_WEBHOOK_URL"] = *u.WebhookURL
		fields = append(fields, "n8n_webhook_url")
	}
	if u.WebhookMethod != nil {
		m := *u.WebhookMethod
		if m != "GET" && m != "POST" {
			return nil, fmt.Errorf("n8n_webhook_method must be GET or POST")
		}
		staged.WebhookMethod = m
		persist["N8N_WEBHOOK_METHOD"] = m
		fields = append(fields, "n8n_webhook_method")
	}
	dsnChanged := false
	if u.DBDSN != nil {
		if *u.DBDSN == "" || containsMask(*u.DBDSN) {
			return nil, fmt.Errorf("db_dsn must be a full connection string")
		}
		staged.DBDSN = *u.DBDSN
		persist["DB_DSN"] = *u.DBDSN
		fields = append(fields, "db_dsn")
		dsnChanged = true
	}
	if u.CoinCacheSeconds != nil {
		if *u.CoinCacheSeconds < minCacheSeconds || *u.CoinCacheSeconds > maxCacheSeconds {
			return nil, fmt.Errorf("coin_cache_seconds must be between %d and %d", minCacheSeconds, maxCacheSeconds)
		}
		staged.CoinCacheTTL = secondsDuration(*u.CoinCacheSeconds)
		persist["COIN_CACHE_SECONDS"] = fmt.Sprint(*u.CoinCacheSeconds)
		fields = append(fields, "coin_cache_seconds")
	}
	if u.DBRefreshInterval != nil {
		if *u.DBRefreshInterval < minRefreshSeconds || *u.DBRefreshInterval > maxRefreshSeconds {
			return nil, fmt.Errorf("db_refresh_interval must be between %d and %d", minRefreshSeconds, maxRefreshSeconds)
		}
		staged.DBRefreshInterval = secondsDuration(*u.DBRefreshInterval)
		persist["DB_REFRESH_INTERVAL"] = fmt.Sprint(*u.DBRefreshInterval)
		fields = append(fields, "db_refresh_interval")
	}
	if u.BatchSize != nil {
		if *u.BatchSize < minBatchSize || *u.BatchSize > maxBatchSize {
			return nil, fmt.Errorf("batch_size must be between %d and %d", minBatchSize, maxBatchSize)
		}
		staged.BatchSize = *u.BatchSize
		persist["BATCH_SIZE"] = fmt.Sprint(*u.BatchSize)
		fields = append(fields, "batch_size")
	}
	if u.BatchTimeout != nil {
		if *u.BatchTimeout < minBatchTimeout || *u.BatchTimeout > maxBatchTimeout {
			return nil, fmt.Errorf("batch_timeout must be between %d and %d seconds", minBatchTimeout, maxBatchTimeout)
		}
		staged.BatchTimeout = secondsDuration(*u.BatchTimeout)
		persist["BATCH_TIMEOUT"] = fmt.Sprint(*u.BatchTimeout)
		fields = append(fields, "batch_timeout")
	}
	if u.BadNamesPattern != nil {
		if *u.BadNamesPattern == "" {
			return nil, fmt.Errorf("bad_names_pattern cannot be empty")
		}
		re, err := CompileBadNames(*u.BadNamesPattern)
		if err != nil {
			return nil, err
		}
		staged.BadNamesPattern = *u.BadNamesPattern
		stagedRe = re
		persist["BAD_NAMES_PATTERN"] = *u.BadNamesPattern
		fields = append(fields, "bad_names_pattern")
	}
	if u.SpamBurstWindow != nil {
		if *u.SpamBurstWindow < minBurstSeconds || *u.SpamBurstWindow > maxBurstSeconds {
			return nil, fmt.Errorf("spam_burst_window must be between %d and %d seconds", minBurstSeconds, maxBurstSeconds)
		}
		staged.SpamBurstWindow = secondsDuration(*u.SpamBurstWindow)
		persist["SPAM_BURST_WINDOW"] = fmt.Sprint(*u.SpamBurstWindow)
		fields = append(fields, "spam_burst_window")
	}

	if len(fields) == 0 {
		return nil, fmt.Errorf("no valid configuration fields provided")
	}

	// Persist best-effort; a read-only filesystem only loses durability.
	if s.envFile != "" {
		if err := s.persistLocked(persist); err != nil {
			s.logger.Warn().Err(err).Msg("could not persist config update, applying runtime-only")
		}
	}

	s.cur = staged
	s.badNames = stagedRe
	if dsnChanged {
		s.forceDBReconnect = true
	}

	s.logger.Info().Strs("fields", fields).Msg("configuration updated")
	return fields, nil
}

// Reload re-reads the env file and process environment and swaps in the
// result. The DSN force-reconnect flag is raised when the DSN changed.
func (s *Store) Reload() (Config, error) {
	cfg, err := Load(s.envFile)
	if err != nil {
		return Config{}, err
	}
	re, err := CompileBadNames(cfg.BadNamesPattern)
	if err != nil {
		return Config{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.DBDSN != s.cur.DBDSN {
		s.forceDBReconnect = true
	}
	s.cur = cfg
	s.badNames = re
	return cfg, nil
}

// persistLocked merges updates into the env file.
func (s *Store) persistLocked(updates map[string]string) error {
	existing, err := godotenv.Read(s.envFile)
	if err != nil {
		existing = make(map[string]string)
	}
	for k, v := range updates {
		existing[k] = v
	}
	if err := godotenv.Write(existing, s.envFile); err != nil {
		return fmt.Errorf("write env file %s: %w", s.envFile, err)
	}
	return nil
}

func containsMask(dsn string) bool {
	return strings.Contains(dsn, "***")
}

func secondsDuration(n int) time.Duration {
	return time.Duration(n) * time.Second
}
