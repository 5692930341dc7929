package engine

import (
	"context"

	"ladder-trading-bot/internal/logger"
	"ladder-trading-bot/internal/store"
	"ladder-trading-bot/internal/types"
)

// riskManager applies the layered exit rules, in order: breakeven trim,
// hard stop, trailing stop. Each rule gates independently on the current
// position, so a later rule sees whatever an earlier rule left behind in
// the same tick.
type riskManager struct {
	hardStopPct  float64
	trailPct     float64
	trimFraction float64
	minTrimBps   float64

	router *orderRouter
	onFill func(ctx context.Context, f types.Fill)
}

func newRiskManager(cfg *store.Config, router *orderRouter, onFill func(context.Context, types.Fill)) *riskManager {
	return &riskManager{
		hardStopPct:  cfg.Risk.HardStopPct,
		trailPct:     cfg.Risk.TrailPct,
		trimFraction: cfg.Risk.BreakevenTrimFraction,
		minTrimBps:   cfg.Risk.BreakevenMinBps,
		router:       router,
		onFill:       onFill,
	}
}

func (rm *riskManager) evaluate(ctx context.Context, st *symbolState, last, bid float64, sellMomentumOK bool) {
	rm.breakevenTrim(ctx, st, last, bid, sellMomentumOK)
	rm.hardStop(ctx, st, last, bid)
	rm.trailingStop(ctx, st, last, bid)
}

// breakevenTrim sells a fixed fraction once the position is marginally
// profitable, independent of ladder levels. Same momentum gate as ladder
// trims.
func (rm *riskManager) breakevenTrim(ctx context.Context, st *symbolState, last, bid float64, sellMomentumOK bool) {
	if st.pos <= 0 || st.avg <= 0 || !sellMomentumOK {
		return
	}
	upnlBps := (last/st.avg - 1.0) * 10000.0
	if upnlBps < rm.minTrimBps || last < st.avg {
		return
	}

	qty := int(float64(st.pos) * rm.trimFraction)
	if qty < 1 {
		qty = 1
	}
	px, filled, err := rm.router.placeSell(ctx, st.target.Symbol, qty, bid, last, urgencyNormal)
	if err != nil {
		logger.ErrorWithErr(ctx, "Breakeven trim order failed", err, "symbol", st.target.Symbol, "qty", qty)
		return
	}
	if filled > 0 {
		rp := st.applySell(px, filled)
		rm.onFill(ctx, types.Fill{
			Symbol: st.target.Symbol, Side: "SELL", Qty: filled, Price: px,
			Tag: "breakeven_trim", RealizedPnL: rp,
		})
	}
}

// hardStop liquidates the whole position once price breaches the stop
// distance below average cost.
func (rm *riskManager) hardStop(ctx context.Context, st *symbolState, last, bid float64) {
	if st.pos <= 0 || st.avg <= 0 {
		return
	}
	stop := st.avg * (1.0 - rm.hardStopPct/100.0)
	if last > stop {
		return
	}
	logger.Risk(ctx, st.target.Symbol, "HARD_STOP_TRIGGERED",
		"last", last, "avg", st.avg, "stop", stop, "qty", st.pos)

	qty := st.pos
	px, filled, err := rm.router.placeSell(ctx, st.target.Symbol, qty, bid, last, urgencyUrgent)
	if err != nil {
		logger.ErrorWithErr(ctx, "Hard stop order failed", err, "symbol", st.target.Symbol, "qty", qty)
		return
	}
	if filled > 0 {
		rp := st.applySell(px, filled)
		rm.onFill(ctx, types.Fill{
			Symbol: st.target.Symbol, Side: "SELL", Qty: filled, Price: px,
			Tag: "live_stop", RealizedPnL: rp,
		})
	}
}

// trailingStop tracks the high-water mark of last price while a position
// is open and liquidates on the configured retracement. The mark resets
// whenever the position is flat, including flatness arriving via broker
// sync.
func (rm *riskManager) trailingStop(ctx context.Context, st *symbolState, last, bid float64) {
	if st.pos <= 0 {
		st.trailHigh = 0
		return
	}
	if last > st.trailHigh {
		st.trailHigh = last
	}
	trailLevel := st.trailHigh * (1.0 - rm.trailPct/100.0)
	if last > trailLevel || last <= 0 {
		return
	}
	logger.Risk(ctx, st.target.Symbol, "TRAILING_STOP_TRIGGERED",
		"last", last, "high_water", st.trailHigh, "trail_level", trailLevel, "qty", st.pos)

	qty := st.pos
	px, filled, err := rm.router.placeSell(ctx, st.target.Symbol, qty, bid, last, urgencyUrgent)
	if err != nil {
		logger.ErrorWithErr(ctx, "Trailing stop order failed", err, "symbol", st.target.Symbol, "qty", qty)
		return
	}
	if filled > 0 {
		rp := st.applySell(px, filled)
		rm.onFill(ctx, types.Fill{
			Symbol: st.target.Symbol, Side: "SELL", Qty: filled, Price: px,
			Tag: "live_trail", RealizedPnL: rp,
		})
	}
}
