package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"solana-pump-tracker/internal/domain"
	"solana-pump-tracker/internal/observability"
)

// Delivery limits for one flush attempt.
const (
	webhookMaxAttempts = 3
	webhookHTTPTimeout = 15 * time.Second
)

// payloadSource identifies this service in forwarded batches.
const payloadSource = "unified_pump_service"

// errWebhookGone marks a 404 from the automation endpoint: the URL is
// misconfigured and retrying cannot help.
var errWebhookGone = errors.New("webhook endpoint returned 404")

type pendingToken struct {
	mint    string
	payload json.RawMessage
}

// Forwarder batches newly discovered tokens and delivers them to the
// automation endpoint. Delivery is best effort: a batch that fails all
// attempts is dropped and its tokens are never re-forwarded.
//
// Enqueue and MaybeFlush run on the supervisor loop only.
type Forwarder struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker

	buf       []pendingToken
	lastFlush time.Time
	disabled  bool

	// onForwarded receives the mints of a delivered batch, letting the
	// cache mark its entries forwarded.
	onForwarded func(mints []string)

	now     func() time.Time
	sleep   func(time.Duration)
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// ForwarderOptions configures a Forwarder. Nil fields fall back to defaults.
type ForwarderOptions struct {
	OnForwarded func(mints []string)
	Now         func() time.Time
	Sleep       func(time.Duration)
	Logger      *zerolog.Logger
	Metrics     *observability.Metrics
}

// NewForwarder creates a forwarder with an empty buffer.
func NewForwarder(opts ForwarderOptions) *Forwarder {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	logger := log.With().Str("component", "forwarder").Logger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.DefaultMetrics
	}

	return &Forwarder{
		client: &http.Client{Timeout: webhookHTTPTimeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: "automation-webhook",
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			Timeout: 60 * time.Second,
		}),
		onForwarded: opts.OnForwarded,
		lastFlush:   now(),
		now:         now,
		sleep:       sleep,
		logger:      logger,
		metrics:     metrics,
	}
}

// FlushConfig is the delivery configuration for one flush, snapshotted from
// the config store by the caller.
type FlushConfig struct {
	URL          string
	Method       string // POST or GET
	BatchSize    int
	BatchTimeout time.Duration
	RetryDelay   time.Duration
}

// Enqueue buffers a creation payload for the next batch. No-op once
// forwarding has been disabled or when no webhook is configured upstream.
func (f *Forwarder) Enqueue(ev *domain.CreateEvent) {
	if f.disabled {
		return
	}
	f.buf = append(f.buf, pendingToken{mint: ev.Mint, payload: ev.Raw})
}

// Len returns the number of buffered tokens.
func (f *Forwarder) Len() int {
	return len(f.buf)
}

// Disabled reports whether forwarding was shut off by a fatal 404.
func (f *Forwarder) Disabled() bool {
	return f.disabled
}

// MaybeFlush delivers the buffer when it is full or stale enough. Called once
// per supervisor sweep.
func (f *Forwarder) MaybeFlush(ctx context.Context, cfg FlushConfig) {
	if f.disabled || cfg.URL == "" || len(f.buf) == 0 {
		return
	}
	if len(f.buf) < cfg.BatchSize && f.now().Sub(f.lastFlush) <= cfg.BatchTimeout {
		return
	}
	f.flush(ctx, cfg)
}

// flush attempts delivery with bounded linear-backoff retries. Whatever the
// outcome, the buffer is empty afterwards.
func (f *Forwarder) flush(ctx context.Context, cfg FlushConfig) {
	batch := f.buf
	f.buf = nil
	f.lastFlush = f.now()

	body, err := f.encodeBatch(batch)
	if err != nil {
		f.logger.Error().Err(err).Int("count", len(batch)).Msg("could not encode discovery batch")
		f.metrics.WebhookFailures.Inc()
		return
	}

	for attempt := 1; attempt <= webhookMaxAttempts; attempt++ {
		err = f.attempt(ctx, cfg, body)
		if err == nil {
			f.metrics.WebhookBatches.Inc()
			f.logger.Info().Int("count", len(batch)).Msg("discovery batch forwarded")
			if f.onForwarded != nil {
				mints := make([]string, len(batch))
				for i, t := range batch {
					mints[i] = t.mint
				}
				f.onForwarded(mints)
			}
			return
		}
		if errors.Is(err, errWebhookGone) {
			f.disabled = true
			f.metrics.WebhookFailures.Inc()
			f.logger.Error().Str("url", cfg.URL).
				Msg("automation endpoint returned 404, forwarding disabled for this run")
			return
		}

		f.logger.Warn().Err(err).Int("attempt", attempt).Msg("webhook delivery failed")
		if attempt < webhookMaxAttempts {
			f.sleep(cfg.RetryDelay * time.Duration(attempt))
		}
	}

	f.metrics.WebhookFailures.Inc()
	f.logger.Error().Err(err).Int("count", len(batch)).
		Msg("discovery batch dropped after final delivery failure")
}

// encodeBatch builds the webhook JSON document.
func (f *Forwarder) encodeBatch(batch []pendingToken) ([]byte, error) {
	data := make([]json.RawMessage, len(batch))
	for i, t := range batch {
		data[i] = t.payload
	}
	return json.Marshal(struct {
		Source    string            `json:"source"`
		Count     int               `json:"count"`
		Timestamp string            `json:"timestamp"`
		Data      []json.RawMessage `json:"data"`
	}{
		Source:    payloadSource,
		Count:     len(batch),
		Timestamp: f.now().UTC().Format(time.RFC3339),
		Data:      data,
	})
}

// attempt performs one HTTP delivery through the circuit breaker. An open
// breaker fails the attempt immediately.
func (f *Forwarder) attempt(ctx context.Context, cfg FlushConfig, body []byte) error {
	_, err := f.breaker.Execute(func() (any, error) {
		start := time.Now()
		err := f.send(ctx, cfg, body)
		f.metrics.WebhookDuration.Observe(time.Since(start).Seconds())
		return nil, err
	})
	return err
}

func (f *Forwarder) send(ctx context.Context, cfg FlushConfig, body []byte) error {
	var req *http.Request
	var err error

	if cfg.Method == http.MethodGet {
		u := cfg.URL + "?data=" + url.QueryEscape(string(body))
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return errWebhookGone
	default:
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
}

// Probe checks endpoint reachability at startup. Failures are logged only;
// forwarding stays enabled because transient outages are expected.
func (f *Forwarder) Probe(ctx context.Context, webhookURL string) {
	if webhookURL == "" {
		f.logger.Info().Msg("no automation webhook configured, forwarding idle")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, webhookURL, nil)
	if err != nil {
		f.logger.Warn().Err(err).Msg("webhook probe request invalid")
		return
	}
	resp, err := f.client.Do(req)
	if err == nil {
		resp.Body.Close()
		f.logger.Info().Int("status", resp.StatusCode).Msg("webhook probe ok")
		return
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, webhookURL, nil)
	if err != nil {
		return
	}
	resp, err = f.client.Do(req)
	if err != nil {
		f.logger.Warn().Err(err).Msg("automation webhook unreachable at startup")
		return
	}
	resp.Body.Close()
	f.logger.Info().Int("status", resp.StatusCode).Msg("webhook probe ok")
}
