package tracking

import (
	"time"

	"solana-pump-tracker/internal/domain"
)

// SweepConfig carries the config values one sweep depends on, snapshotted by
// the caller.
type SweepConfig struct {
	// SolReservesFull is the reserve level at which the bonding curve is
	// considered 100% full.
	SolReservesFull float64
	// AgeOffsetMin is subtracted from token age before phase comparison.
	AgeOffsetMin int
}

// PhaseChange is a phase transition to be persisted by the caller.
type PhaseChange struct {
	Mint    string
	PhaseID int
}

// Retirement is a terminal transition to be persisted by the caller.
type Retirement struct {
	Mint      string
	Graduated bool
}

// SweepResult is everything one sweep produced.
type SweepResult struct {
	Rows         []*domain.MetricRow
	PhaseChanges []PhaseChange
	Retired      []Retirement
}

// Sweep runs the lifecycle and flush pass over the whole watchlist: per
// entry, graduation check, then age-driven phase transition, then the flush
// check. Retired entries are removed here; the caller persists the returned
// transitions and rows.
func (t *Tracker) Sweep(cfg SweepConfig) SweepResult {
	var res SweepResult
	now := t.now()

	for mint, entry := range t.entries {
		buf := &entry.Buffer

		bondingPct := 0.0
		if cfg.SolReservesFull > 0 {
			bondingPct = buf.VSol / cfg.SolReservesFull * 100
		}

		if bondingPct >= graduationPct {
			t.retire(mint, true, &res)
			continue
		}

		if retired := t.checkPhase(mint, entry, now, cfg, &res); retired {
			continue
		}

		if now.Before(entry.NextFlushAt) {
			continue
		}
		t.flush(mint, entry, bondingPct, now, &res)
	}

	if len(res.Rows) > 0 {
		t.metrics.FlushBatchSize.Observe(float64(len(res.Rows)))
	}
	return res
}

// checkPhase advances an entry whose age outgrew its phase. Reports whether
// the entry was retired as finished.
func (t *Tracker) checkPhase(mint string, entry *Entry, now time.Time, cfg SweepConfig, res *SweepResult) bool {
	phase, ok := t.phases.Get(entry.Meta.PhaseID)
	if !ok {
		return false
	}

	ageMinutes := entry.Meta.AgeMinutes(now, cfg.AgeOffsetMin)
	if ageMinutes <= float64(phase.MaxAgeMinutes) {
		return false
	}

	next, ok := t.phases.Next(phase.ID)
	if !ok {
		t.retire(mint, false, res)
		return true
	}

	entry.Meta.PhaseID = next.ID
	entry.IntervalSeconds = next.IntervalSeconds
	entry.NextFlushAt = now.Add(time.Duration(next.IntervalSeconds) * time.Second)
	res.PhaseChanges = append(res.PhaseChanges, PhaseChange{Mint: mint, PhaseID: next.ID})
	t.metrics.PhaseTransitions.Inc()
	t.logger.Info().Str("mint", mint).Int("from", phase.ID).Int("to", next.ID).
		Msg("phase transition")

	// The upstream occasionally drops per-token subscriptions around
	// interval changes; bounce it to be sure.
	if t.resub != nil {
		if err := t.resub.ForceResubscribe(mint); err != nil {
			t.logger.Warn().Err(err).Str("mint", mint).Msg("post-transition resubscribe failed")
		}
	}
	return false
}

// flush closes the current window. A row is emitted only when the window saw
// volume and its signature differs from the previously saved one; either way
// the buffer resets and the next flush moves one interval out.
func (t *Tracker) flush(mint string, entry *Entry, bondingPct float64, now time.Time, res *SweepResult) {
	buf := &entry.Buffer
	w := t.watch[mint]

	sig := buf.signature()
	if buf.Vol > 0 && sig != w.lastSavedSignature {
		res.Rows = append(res.Rows, t.buildRow(mint, entry, bondingPct, now))
		w.lastSavedSignature = sig
		w.staleWarnings = 0
		t.metrics.FlushRows.Inc()
	} else {
		// Empty window or an exact repeat of the last saved one: no row.
		w.staleWarnings++
		t.metrics.StaleSuppressions.Inc()
		idle := now.Sub(w.lastTradeAt)
		if w.staleWarnings >= staleWarningLimit && idle > staleIdleThreshold {
			t.logger.Warn().Str("mint", mint).Int("warnings", w.staleWarnings).
				Dur("idle", idle).Msg("unchanged data across flushes, forcing resubscribe")
			if t.resub != nil {
				if err := t.resub.ForceResubscribe(mint); err != nil {
					t.logger.Warn().Err(err).Str("mint", mint).Msg("stale-data resubscribe failed")
				}
			}
		}
	}

	buf.reset()
	entry.NextFlushAt = now.Add(time.Duration(entry.IntervalSeconds) * time.Second)
}

// buildRow assembles the metric row for a non-empty window.
func (t *Tracker) buildRow(mint string, entry *Entry, bondingPct float64, now time.Time) *domain.MetricRow {
	buf := &entry.Buffer
	totalTrades := buf.Buys + buf.Sells

	row := &domain.MetricRow{
		Mint:      mint,
		Timestamp: now.UTC(),
		PhaseID:   entry.Meta.PhaseID,

		PriceOpen:          buf.Open,
		PriceHigh:          buf.High,
		PriceLow:           buf.Low,
		PriceClose:         buf.Close,
		MarketCapClose:     buf.MCap,
		BondingCurvePct:    bondingPct,
		VirtualSolReserves: buf.VSol,
		IsKOTH:             buf.MCap > domain.KOTHMarketCapSol,

		VolumeSol:      buf.Vol,
		BuyVolumeSol:   buf.VolBuy,
		SellVolumeSol:  buf.VolSell,
		NumBuys:        buf.Buys,
		NumSells:       buf.Sells,
		UniqueWallets:  len(buf.Wallets),
		NumMicroTrades: buf.MicroTrades,
		DevSoldAmount:  buf.DevSold,

		MaxSingleBuySol:  buf.MaxBuy,
		MaxSingleSellSol: buf.MaxSell,

		NetVolumeSol: buf.VolBuy - buf.VolSell,

		WhaleBuyVolumeSol:  buf.WhaleBuyVol,
		WhaleSellVolumeSol: buf.WhaleSellVol,
		NumWhaleBuys:       buf.WhaleBuys,
		NumWhaleSells:      buf.WhaleSells,
	}

	if buf.opened && buf.Open > 0 {
		row.VolatilityPct = (buf.High - buf.Low) / buf.Open * 100
	}
	if totalTrades > 0 {
		row.AvgTradeSizeSol = buf.Vol / float64(totalTrades)
		row.UniqueSignerRatio = float64(len(buf.Wallets)) / float64(totalTrades)
	}
	if total := buf.VolBuy + buf.VolSell; total > 0 {
		row.BuyPressureRatio = buf.VolBuy / total
	}

	return row
}

// retire removes an entry terminally and records the transition for the
// caller to persist.
func (t *Tracker) retire(mint string, graduated bool, res *SweepResult) {
	res.Retired = append(res.Retired, Retirement{Mint: mint, Graduated: graduated})
	delete(t.entries, mint)
	delete(t.watch, mint)
	t.ath.Forget(mint)

	if graduated {
		t.metrics.Graduations.Inc()
		t.logger.Info().Str("mint", mint).Msg("bonding curve full, stream graduated")
	} else {
		t.metrics.FinishedStreams.Inc()
		t.logger.Info().Str("mint", mint).Msg("age cap reached, stream finished")
	}
	t.metrics.WatchlistSize.Set(float64(len(t.entries)))
}
