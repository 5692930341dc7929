package engine

import (
	"context"
	"testing"
	"time"

	"ladder-trading-bot/internal/types"
)

func newTestRiskManager(brk *fakeBroker) (*riskManager, *[]types.Fill) {
	var fills []types.Fill
	r := newOrderRouter(brk)
	r.sleep = func(time.Duration) {}
	rm := newRiskManager(testConfig(), r, func(ctx context.Context, f types.Fill) {
		fills = append(fills, f)
	})
	return rm, &fills
}

func quoteAt(brk *fakeBroker, sym string, last float64) {
	brk.quotes[sym] = types.MarketTick{
		Symbol: sym, Last: last, Bid: last - 0.01, Ask: last + 0.01,
	}
}

func TestBreakevenTrim(t *testing.T) {
	brk := newFakeBroker()
	quoteAt(brk, "A", 100.2)
	rm, fills := newTestRiskManager(brk)

	st := &symbolState{target: types.SymbolTarget{Symbol: "A"}, pos: 100, avg: 100}
	rm.evaluate(context.Background(), st, 100.2, 100.19, true)

	// 20 bps over cost trims a quarter of the position.
	if st.pos != 75 {
		t.Errorf("pos = %d, want 75", st.pos)
	}
	if len(*fills) != 1 || (*fills)[0].Tag != "breakeven_trim" || (*fills)[0].Qty != 25 {
		t.Errorf("fills = %+v, want one 25-lot breakeven_trim", *fills)
	}
}

func TestBreakevenTrimRespectsMomentumGate(t *testing.T) {
	brk := newFakeBroker()
	quoteAt(brk, "A", 100.2)
	rm, _ := newTestRiskManager(brk)

	st := &symbolState{target: types.SymbolTarget{Symbol: "A"}, pos: 100, avg: 100}
	rm.evaluate(context.Background(), st, 100.2, 100.19, false)
	if st.pos != 100 {
		t.Errorf("pos = %d, want untouched 100 when momentum blocks sells", st.pos)
	}
}

func TestBreakevenTrimBelowThreshold(t *testing.T) {
	brk := newFakeBroker()
	quoteAt(brk, "A", 100.02)
	rm, _ := newTestRiskManager(brk)

	// 2 bps of profit sits under the 5 bps minimum.
	st := &symbolState{target: types.SymbolTarget{Symbol: "A"}, pos: 100, avg: 100}
	rm.evaluate(context.Background(), st, 100.02, 100.01, true)
	if st.pos != 100 {
		t.Errorf("pos = %d, want untouched below minimum trim threshold", st.pos)
	}
}

func TestBreakevenTrimMinimumOneShare(t *testing.T) {
	brk := newFakeBroker()
	quoteAt(brk, "A", 100.2)
	rm, _ := newTestRiskManager(brk)

	st := &symbolState{target: types.SymbolTarget{Symbol: "A"}, pos: 2, avg: 100}
	rm.evaluate(context.Background(), st, 100.2, 100.19, true)
	if st.pos != 1 {
		t.Errorf("pos = %d, want 1 after a single-share trim", st.pos)
	}
}

func TestHardStopLiquidates(t *testing.T) {
	brk := newFakeBroker()
	quoteAt(brk, "A", 94.9)
	rm, fills := newTestRiskManager(brk)

	// 5% stop below cost 100 triggers at 95.
	st := &symbolState{target: types.SymbolTarget{Symbol: "A"}, pos: 80, avg: 100, trailHigh: 101}
	rm.evaluate(context.Background(), st, 94.9, 94.89, false)

	if st.pos != 0 || st.avg != 0 || st.trailHigh != 0 {
		t.Errorf("hard stop should flatten and reset: %+v", st)
	}
	if len(*fills) != 1 || (*fills)[0].Tag != "live_stop" || (*fills)[0].Qty != 80 {
		t.Errorf("fills = %+v, want one full live_stop", *fills)
	}
	if (*fills)[0].RealizedPnL >= 0 {
		t.Errorf("stop-out realized = %v, want negative", (*fills)[0].RealizedPnL)
	}
}

func TestHardStopHoldsAbove(t *testing.T) {
	brk := newFakeBroker()
	quoteAt(brk, "A", 95.1)
	rm, _ := newTestRiskManager(brk)

	st := &symbolState{target: types.SymbolTarget{Symbol: "A"}, pos: 80, avg: 100}
	rm.evaluate(context.Background(), st, 95.1, 95.09, false)
	if st.pos != 80 {
		t.Errorf("pos = %d, want held above the stop", st.pos)
	}
}

func TestTrailingStop(t *testing.T) {
	brk := newFakeBroker()
	rm, fills := newTestRiskManager(brk)
	st := &symbolState{target: types.SymbolTarget{Symbol: "A"}, pos: 50, avg: 90}

	// Ratchet the high-water mark up to 100.
	quoteAt(brk, "A", 100)
	rm.evaluate(context.Background(), st, 100, 99.99, false)
	if st.trailHigh != 100 || st.pos != 50 {
		t.Fatalf("high-water mark = %v pos = %d, want 100 and 50", st.trailHigh, st.pos)
	}

	// Still above the 2.5% retracement level of 97.5.
	quoteAt(brk, "A", 97.6)
	rm.evaluate(context.Background(), st, 97.6, 97.59, false)
	if st.pos != 50 {
		t.Fatalf("pos = %d, want held above trail level", st.pos)
	}

	// Breach liquidates in full.
	quoteAt(brk, "A", 97.4)
	rm.evaluate(context.Background(), st, 97.4, 97.39, false)
	if st.pos != 0 {
		t.Errorf("pos = %d, want 0 after trail breach", st.pos)
	}
	if len(*fills) != 1 || (*fills)[0].Tag != "live_trail" {
		t.Errorf("fills = %+v, want one live_trail", *fills)
	}
}

func TestTrailingStopResetsWhenFlat(t *testing.T) {
	brk := newFakeBroker()
	rm, _ := newTestRiskManager(brk)
	st := &symbolState{target: types.SymbolTarget{Symbol: "A"}, trailHigh: 120}

	rm.evaluate(context.Background(), st, 100, 99.99, false)
	if st.trailHigh != 0 {
		t.Errorf("trailHigh = %v, want reset while flat", st.trailHigh)
	}
}
