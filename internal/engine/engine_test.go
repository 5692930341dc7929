package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"ladder-trading-bot/internal/store"
	"ladder-trading-bot/internal/types"
)

// fakeBroker scripts quotes, positions, and IOC execution for engine
// tests. Orders fill in full at the touch when the limit is marketable,
// scaled by fillFrac when set.
type fakeBroker struct {
	connected bool
	quotes    map[string]types.MarketTick
	bars      map[string][]types.Bar
	positions map[string]types.BrokerPosition
	posErr    error
	quoteErr  map[string]error

	orders   map[string]types.OrderResult
	placed   []types.OrderReq
	nextID   int
	fillFrac float64
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		quotes:    make(map[string]types.MarketTick),
		bars:      make(map[string][]types.Bar),
		positions: make(map[string]types.BrokerPosition),
		quoteErr:  make(map[string]error),
		orders:    make(map[string]types.OrderResult),
	}
}

func (f *fakeBroker) Connect(ctx context.Context) error { f.connected = true; return nil }
func (f *fakeBroker) IsConnected() bool                 { return f.connected }
func (f *fakeBroker) Close()                            { f.connected = false }

func (f *fakeBroker) Quote(ctx context.Context, symbol string) (types.MarketTick, error) {
	if err := f.quoteErr[symbol]; err != nil {
		return types.MarketTick{}, err
	}
	q, ok := f.quotes[symbol]
	if !ok {
		return types.MarketTick{}, fmt.Errorf("no quote for %s", symbol)
	}
	return q, nil
}

func (f *fakeBroker) MinuteBars(ctx context.Context, symbol string, day time.Time) ([]types.Bar, error) {
	return f.bars[symbol], nil
}

func (f *fakeBroker) Positions(ctx context.Context) (map[string]types.BrokerPosition, error) {
	if f.posErr != nil {
		return nil, f.posErr
	}
	out := make(map[string]types.BrokerPosition, len(f.positions))
	for k, v := range f.positions {
		out[k] = v
	}
	return out, nil
}

func (f *fakeBroker) PlaceOrder(ctx context.Context, req types.OrderReq) (string, error) {
	f.placed = append(f.placed, req)
	f.nextID++
	id := fmt.Sprintf("ord-%d", f.nextID)
	result := types.OrderResult{OrderID: id, Done: true}

	q := f.quotes[req.Symbol]
	px := q.Last
	marketable := false
	switch req.Side {
	case "BUY":
		if q.Ask > 0 {
			px = q.Ask
		}
		marketable = px > 0 && req.LimitPrice >= px
	case "SELL":
		if q.Bid > 0 {
			px = q.Bid
		}
		marketable = px > 0 && req.LimitPrice <= px
	}
	if marketable {
		qty := req.Qty
		if f.fillFrac > 0 && f.fillFrac < 1 {
			qty = int(float64(req.Qty) * f.fillFrac)
		}
		if qty > 0 {
			result.Fills = []types.OrderFill{{Qty: qty, Price: px}}
		}
	}
	f.orders[id] = result
	return id, nil
}

func (f *fakeBroker) OrderStatus(ctx context.Context, orderID string) (types.OrderResult, error) {
	r, ok := f.orders[orderID]
	if !ok {
		return types.OrderResult{}, fmt.Errorf("unknown order %s", orderID)
	}
	return r, nil
}

// testConfig neutralizes the class spread multiplier so ladder
// percentages read straight off the target.
func testConfig(targets ...types.SymbolTarget) *store.Config {
	cfg := store.Default()
	cfg.Targets = targets
	cfg.Ladder.SpreadClassMults = map[string]float64{"risky": 1.0, "safe": 1.0}
	return cfg
}

func etClock(hour, minute int) func() time.Time {
	return func() time.Time {
		return time.Date(2025, 6, 2, hour, minute, 0, 0, eastern)
	}
}

func newTestEngine(t *testing.T, brk *fakeBroker, targets ...types.SymbolTarget) *Engine {
	t.Helper()
	t.Setenv("TRADER_LOG_DIR", t.TempDir())
	e := New(testConfig(targets...), brk)
	e.router.sleep = func(time.Duration) {}
	e.now = etClock(10, 30)
	return e
}

func TestTickLadderEntry(t *testing.T) {
	brk := newFakeBroker()
	// Close 100 backstops the reference; with no anchors and base buy 2%
	// the buy rungs sit at 98.5, 98.0, 97.5. Last 97.4 crosses all three.
	brk.quotes["ABC"] = types.MarketTick{
		Symbol: "ABC", Last: 97.4, Bid: 97.38, Ask: 97.42, Close: 100, Volume: -1,
	}
	e := newTestEngine(t, brk, types.SymbolTarget{
		Symbol: "ABC", Class: "risky", BuyPct: 2.0, SellPct: 1.5, ClipUSD: 1000,
	})
	brk.connected = true

	if err := e.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	// Rung shares at last 97.4: ceil(1000/97.4)=11, ceil(1600/97.4)=17,
	// ceil(2300/97.4)=24, so three layers total 52.
	st := e.syms["ABC"]
	if st.pos != 52 {
		t.Errorf("pos = %d, want 52", st.pos)
	}
	if st.avg != 97.42 {
		t.Errorf("avg = %v, want fill at ask 97.42", st.avg)
	}
	if len(brk.placed) != 1 || brk.placed[0].Side != "BUY" || brk.placed[0].TIF != "IOC" {
		t.Fatalf("orders placed = %+v, want one IOC buy", brk.placed)
	}
	if !st.lastBuyAt.Equal(e.now()) {
		t.Errorf("cooldown clock not advanced")
	}
}

func TestTickCooldownBlocksEntry(t *testing.T) {
	brk := newFakeBroker()
	brk.quotes["ABC"] = types.MarketTick{
		Symbol: "ABC", Last: 97.4, Bid: 97.38, Ask: 97.42, Close: 100, Volume: -1,
	}
	e := newTestEngine(t, brk, types.SymbolTarget{
		Symbol: "ABC", Class: "risky", BuyPct: 2.0, SellPct: 1.5, ClipUSD: 1000,
	})
	brk.connected = true
	e.syms["ABC"].lastBuyAt = e.now().Add(-time.Second)

	if err := e.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(brk.placed) != 0 {
		t.Errorf("expected no orders during cooldown, got %+v", brk.placed)
	}
}

func TestTickNegativeMomentumBlocksEntry(t *testing.T) {
	brk := newFakeBroker()
	e := newTestEngine(t, brk, types.SymbolTarget{
		Symbol: "ABC", Class: "risky", BuyPct: 2.0, SellPct: 1.5, ClipUSD: 1000,
	})
	brk.connected = true

	// Build a volume history with variance, then pair a collapsing
	// increment with the crossing price so raw z is negative.
	st := e.syms["ABC"]
	vol := 0.0
	for i := 0; i < 10; i++ {
		if i%2 == 0 {
			vol += 100
		} else {
			vol += 3000
		}
		st.vwv.Update(100, vol)
	}
	brk.quotes["ABC"] = types.MarketTick{
		Symbol: "ABC", Last: 97.4, Bid: 97.38, Ask: 97.42, Close: 100, Volume: vol + 1,
	}

	if err := e.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(brk.placed) != 0 {
		t.Errorf("expected entry blocked on negative z, got %+v", brk.placed)
	}
}

func TestTickLadderTrim(t *testing.T) {
	brk := newFakeBroker()
	// Reference 100, sell rungs at 101.125, 101.5, 101.875. Last 101.2
	// crosses one rung; position 52 spans three layers (cumulative
	// 10/26/49 at last 101.2... recomputed below).
	brk.quotes["ABC"] = types.MarketTick{
		Symbol: "ABC", Last: 101.2, Bid: 101.18, Ask: 101.22, Close: 100, Volume: -1,
	}
	e := newTestEngine(t, brk, types.SymbolTarget{
		Symbol: "ABC", Class: "risky", BuyPct: 2.0, SellPct: 1.5, ClipUSD: 1000,
	})
	brk.connected = true

	// Rung shares at last 101.2: ceil(1000/101.2)=10, ceil(1600/101.2)=16,
	// ceil(2300/101.2)=23; cumulative 10/26/49. Position 49 is three full
	// layers; one sell rung hit trims back to two layers (26 shares).
	st := e.syms["ABC"]
	st.pos = 49
	st.avg = 98
	brk.positions["ABC"] = types.BrokerPosition{Qty: 49, AvgCost: 98}

	if err := e.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	// The ladder trim sells 23 down to two layers, then the breakeven
	// trim takes a quarter of the remaining 26.
	var sellQtys []int
	for _, o := range brk.placed {
		if o.Side == "SELL" {
			sellQtys = append(sellQtys, o.Qty)
		}
	}
	if len(sellQtys) != 2 || sellQtys[0] != 23 || sellQtys[1] != 6 {
		t.Errorf("sell quantities = %v, want [23 6]", sellQtys)
	}
	if st.pos != 20 {
		t.Errorf("pos = %d, want 20 after both trims", st.pos)
	}
	if st.realizedPnL <= 0 {
		t.Errorf("realizedPnL = %v, want positive", st.realizedPnL)
	}
}

func TestTickOutsideRegularHoursIdles(t *testing.T) {
	brk := newFakeBroker()
	brk.quotes["ABC"] = types.MarketTick{Symbol: "ABC", Last: 97.4, Close: 100}
	e := newTestEngine(t, brk, types.SymbolTarget{
		Symbol: "ABC", Class: "risky", BuyPct: 2.0, SellPct: 1.5, ClipUSD: 1000,
	})
	brk.connected = true
	e.now = etClock(8, 0)

	if err := e.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(brk.placed) != 0 {
		t.Errorf("expected no trading before the open, got %+v", brk.placed)
	}
}

func TestTickDisconnectedSurfacesError(t *testing.T) {
	brk := newFakeBroker()
	e := newTestEngine(t, brk, types.SymbolTarget{Symbol: "ABC", Class: "risky"})
	brk.connected = false

	if err := e.tick(context.Background()); err == nil {
		t.Error("expected error when broker is disconnected")
	}
}

func TestTickSymbolFaultIsIsolated(t *testing.T) {
	brk := newFakeBroker()
	brk.quoteErr["BAD"] = errors.New("feed gap")
	brk.quotes["ABC"] = types.MarketTick{
		Symbol: "ABC", Last: 97.4, Bid: 97.38, Ask: 97.42, Close: 100, Volume: -1,
	}
	e := newTestEngine(t, brk,
		types.SymbolTarget{Symbol: "BAD", Class: "risky", BuyPct: 2.0, SellPct: 1.5, ClipUSD: 1000},
		types.SymbolTarget{Symbol: "ABC", Class: "risky", BuyPct: 2.0, SellPct: 1.5, ClipUSD: 1000},
	)
	brk.connected = true

	if err := e.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if e.syms["ABC"].pos == 0 {
		t.Error("healthy symbol should still trade when a sibling faults")
	}
}

func TestTickWideSpreadSkipsTrading(t *testing.T) {
	brk := newFakeBroker()
	// 500 bps spread, far over the risky 180 ceiling.
	brk.quotes["ABC"] = types.MarketTick{
		Symbol: "ABC", Last: 97.4, Bid: 95, Ask: 100, Close: 100, Volume: -1,
	}
	e := newTestEngine(t, brk, types.SymbolTarget{
		Symbol: "ABC", Class: "risky", BuyPct: 2.0, SellPct: 1.5, ClipUSD: 1000,
	})
	brk.connected = true

	if err := e.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(brk.placed) != 0 {
		t.Errorf("expected wide market skipped, got %+v", brk.placed)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	brk := newFakeBroker()
	e := newTestEngine(t, brk, types.SymbolTarget{Symbol: "ABC", Class: "risky"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := e.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
}

func TestSymbolStateApplyBuySell(t *testing.T) {
	st := &symbolState{}
	st.applyBuy(10, 100)
	if st.pos != 100 || st.avg != 10 {
		t.Fatalf("after first buy: pos=%d avg=%v", st.pos, st.avg)
	}
	st.applyBuy(12, 100)
	if st.pos != 200 || st.avg != 11 {
		t.Fatalf("after second buy: pos=%d avg=%v", st.pos, st.avg)
	}
	if st.trailHigh != 12 {
		t.Errorf("trailHigh = %v, want 12", st.trailHigh)
	}

	rp := st.applySell(13, 100)
	if rp != 200 {
		t.Errorf("realized = %v, want 200", rp)
	}
	if st.pos != 100 || st.avg != 11 {
		t.Errorf("after partial sell: pos=%d avg=%v", st.pos, st.avg)
	}

	st.applySell(13, 100)
	if st.pos != 0 || st.avg != 0 || st.trailHigh != 0 {
		t.Errorf("flat position should reset avg and trail: %+v", st)
	}
	if st.realizedPnL != 400 {
		t.Errorf("cumulative realized = %v, want 400", st.realizedPnL)
	}
}
