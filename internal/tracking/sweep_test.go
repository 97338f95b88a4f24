package tracking

import (
	"math"
	"testing"
	"time"

	"solana-pump-tracker/internal/domain"
)

// sweepCfg keeps token age at zero (offset 60min, matching the default) so
// flush tests are not disturbed by phase transitions.
func sweepCfg() SweepConfig {
	return SweepConfig{SolReservesFull: 85.0, AgeOffsetMin: 60}
}

func TestSweepFlushesWindowWithVolume(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(clock, nil)

	tr.Track(stream("mint", 1, clock.Now()), nil, 1.0)
	tr.ProcessTrade(buy(1, 30, 1_000_000, "w1"), 1.0)
	tr.ProcessTrade(buy(3, 50, 1_000_000, "w1"), 1.0)
	tr.ProcessTrade(sell(2, 20, 1_000_000, "w2"), 1.0)

	clock.Advance(5 * time.Second)
	res := tr.Sweep(sweepCfg())

	if len(res.Rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(res.Rows))
	}
	row := res.Rows[0]
	if row.Mint != "mint" || row.PhaseID != 1 {
		t.Errorf("row identity = %s/%d", row.Mint, row.PhaseID)
	}
	if row.PriceOpen != 30.0/1_000_000 || row.PriceClose != 20.0/1_000_000 {
		t.Errorf("open/close = %g/%g", row.PriceOpen, row.PriceClose)
	}
	if row.VolumeSol != 6 || row.NumBuys != 2 || row.NumSells != 1 {
		t.Errorf("volume/counts = %g/%d/%d", row.VolumeSol, row.NumBuys, row.NumSells)
	}
	if row.NetVolumeSol != 2 {
		t.Errorf("NetVolumeSol = %g, want 2", row.NetVolumeSol)
	}
	if math.Abs(row.VolatilityPct-100) > 1e-9 {
		t.Errorf("VolatilityPct = %g, want 100", row.VolatilityPct)
	}
	if row.AvgTradeSizeSol != 2 {
		t.Errorf("AvgTradeSizeSol = %g, want 2", row.AvgTradeSizeSol)
	}
	if math.Abs(row.BuyPressureRatio-4.0/6.0) > 1e-9 {
		t.Errorf("BuyPressureRatio = %g", row.BuyPressureRatio)
	}
	if math.Abs(row.UniqueSignerRatio-2.0/3.0) > 1e-9 {
		t.Errorf("UniqueSignerRatio = %g", row.UniqueSignerRatio)
	}
	if !row.Timestamp.Equal(clock.Now()) {
		t.Errorf("Timestamp = %v, want flush time", row.Timestamp)
	}

	// Window closed: buffer reset and next flush one interval out.
	entry, _ := tr.Entry("mint")
	if entry.Buffer.Vol != 0 {
		t.Error("buffer not reset after flush")
	}
	if want := clock.Now().Add(5 * time.Second); !entry.NextFlushAt.Equal(want) {
		t.Errorf("NextFlushAt = %v, want %v", entry.NextFlushAt, want)
	}
}

func TestSweepSkipsWindowBeforeDeadline(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(clock, nil)

	tr.Track(stream("mint", 1, clock.Now()), nil, 1.0)
	tr.ProcessTrade(buy(1, 30, 1_000_000, "w1"), 1.0)

	clock.Advance(4 * time.Second)
	if res := tr.Sweep(sweepCfg()); len(res.Rows) != 0 {
		t.Fatal("flushed before the interval elapsed")
	}

	entry, _ := tr.Entry("mint")
	if entry.Buffer.Vol != 1 {
		t.Error("early sweep reset the buffer")
	}
}

func TestSweepSuppressesEmptyAndUnchangedWindows(t *testing.T) {
	clock := newFakeClock()
	resub := &resubRecorder{}
	tr := newTestTracker(clock, resub)

	tr.Track(stream("mint", 1, clock.Now()), nil, 1.0)
	tr.ProcessTrade(buy(1, 30, 1_000_000, "w1"), 1.0)

	clock.Advance(5 * time.Second)
	if res := tr.Sweep(sweepCfg()); len(res.Rows) != 1 {
		t.Fatalf("first window rows = %d, want 1", len(res.Rows))
	}

	// No trades this interval: no row, one warning, no bounce yet.
	clock.Advance(5 * time.Second)
	if res := tr.Sweep(sweepCfg()); len(res.Rows) != 0 {
		t.Fatal("empty window produced a row")
	}
	if len(resub.mints) != 0 {
		t.Fatalf("bounced after a single stale window: %v", resub.mints)
	}

	// Still silent and idle beyond five minutes: second warning forces a
	// resubscribe.
	clock.Advance(300 * time.Second)
	if res := tr.Sweep(sweepCfg()); len(res.Rows) != 0 {
		t.Fatal("empty window produced a row")
	}
	if len(resub.mints) != 1 || resub.mints[0] != "mint" {
		t.Fatalf("resubscribed = %v, want [mint]", resub.mints)
	}

	// A real trade clears the warnings.
	tr.ProcessTrade(buy(2, 31, 1_000_000, "w1"), 1.0)
	clock.Advance(5 * time.Second)
	if res := tr.Sweep(sweepCfg()); len(res.Rows) != 1 {
		t.Fatal("window after recovery not flushed")
	}
	clock.Advance(5 * time.Second)
	tr.Sweep(sweepCfg())
	if len(resub.mints) != 1 {
		t.Errorf("warning counter not reset by the emitted row: %v", resub.mints)
	}
}

func TestSweepPhaseTransition(t *testing.T) {
	clock := newFakeClock()
	resub := &resubRecorder{}
	tr := newTestTracker(clock, resub)

	tr.Track(stream("mint", 1, clock.Now()), nil, 1.0)

	// Launch phase caps at 2 minutes of age.
	clock.Advance(3 * time.Minute)
	res := tr.Sweep(SweepConfig{SolReservesFull: 85.0, AgeOffsetMin: 0})

	if len(res.Retired) != 0 {
		t.Fatalf("transition retired the stream: %+v", res.Retired)
	}
	if len(res.PhaseChanges) != 1 || res.PhaseChanges[0].PhaseID != 2 {
		t.Fatalf("phase changes = %+v, want move to phase 2", res.PhaseChanges)
	}

	entry, _ := tr.Entry("mint")
	if entry.Meta.PhaseID != 2 || entry.IntervalSeconds != 30 {
		t.Errorf("entry = phase %d interval %d, want 2/30", entry.Meta.PhaseID, entry.IntervalSeconds)
	}
	if want := clock.Now().Add(30 * time.Second); !entry.NextFlushAt.Equal(want) {
		t.Errorf("NextFlushAt = %v, want pushed out by the new interval", entry.NextFlushAt)
	}
	if len(resub.mints) != 1 || resub.mints[0] != "mint" {
		t.Errorf("transition did not bounce the subscription: %v", resub.mints)
	}
}

func TestSweepAgeOffsetDelaysTransition(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(clock, nil)

	tr.Track(stream("mint", 1, clock.Now()), nil, 1.0)
	clock.Advance(3 * time.Minute)

	// With a 2-minute offset the effective age is 1 minute: still in launch.
	res := tr.Sweep(SweepConfig{SolReservesFull: 85.0, AgeOffsetMin: 2})
	if len(res.PhaseChanges) != 0 {
		t.Errorf("offset age still transitioned: %+v", res.PhaseChanges)
	}
}

func TestSweepRetiresStreamPastFinalPhase(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(clock, nil)

	tr.Track(stream("mint", 4, clock.Now()), nil, 1.0)
	clock.Advance(121 * time.Minute)

	res := tr.Sweep(SweepConfig{SolReservesFull: 85.0, AgeOffsetMin: 0})
	if len(res.Retired) != 1 {
		t.Fatalf("retired = %+v, want the aged-out stream", res.Retired)
	}
	if res.Retired[0].Graduated {
		t.Error("age cap reported as graduation")
	}
	if tr.Has("mint") {
		t.Error("retired stream still tracked")
	}
}

func TestSweepGraduatesFullBondingCurve(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(clock, nil)

	tr.Track(stream("mint", 1, clock.Now()), nil, 1.0)
	tr.ProcessTrade(buy(1, 85, 1_000_000, "w1"), 1.0)

	clock.Advance(5 * time.Second)
	res := tr.Sweep(sweepCfg())

	if len(res.Retired) != 1 || !res.Retired[0].Graduated {
		t.Fatalf("retired = %+v, want graduation", res.Retired)
	}
	if len(res.Rows) != 0 {
		t.Error("graduating sweep still flushed a row")
	}
	if tr.Has("mint") {
		t.Error("graduated stream still tracked")
	}
}

func TestSweepGraduationThreshold(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(clock, nil)

	// 84.5 of 85 is 99.41%: just under the graduation line.
	tr.Track(stream("mint", 1, clock.Now()), nil, 1.0)
	tr.ProcessTrade(buy(1, 84.5, 1_000_000, "w1"), 1.0)

	clock.Advance(5 * time.Second)
	res := tr.Sweep(sweepCfg())
	if len(res.Retired) != 0 {
		t.Fatalf("retired below 99.5%%: %+v", res.Retired)
	}
	if len(res.Rows) != 1 {
		t.Fatal("window below graduation not flushed")
	}
	if math.Abs(res.Rows[0].BondingCurvePct-84.5/85.0*100) > 1e-9 {
		t.Errorf("BondingCurvePct = %g", res.Rows[0].BondingCurvePct)
	}
}

func TestSweepKOTHIsStrictlyAbove(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(clock, nil)

	// Price 0.00003 puts the market cap at exactly 30000.
	tr.Track(stream("at", 1, clock.Now()), nil, 1.0)
	tr.ProcessTrade(&domain.TradeEvent{
		Mint: "at", Side: domain.TradeSideBuy, SolAmount: 1,
		VSolInBondingCurve: 30, VTokensInBondingCurve: 1_000_000, TraderPublicKey: "w1",
	}, 1.0)

	tr.Track(stream("above", 1, clock.Now()), nil, 1.0)
	tr.ProcessTrade(&domain.TradeEvent{
		Mint: "above", Side: domain.TradeSideBuy, SolAmount: 1,
		VSolInBondingCurve: 31, VTokensInBondingCurve: 1_000_000, TraderPublicKey: "w1",
	}, 1.0)

	clock.Advance(5 * time.Second)
	res := tr.Sweep(sweepCfg())
	if len(res.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(res.Rows))
	}
	for _, row := range res.Rows {
		switch row.Mint {
		case "at":
			if row.IsKOTH {
				t.Error("market cap exactly at the threshold flagged KOTH")
			}
		case "above":
			if !row.IsKOTH {
				t.Error("market cap above the threshold not flagged KOTH")
			}
		}
	}
}
