package engine

import (
	"context"
	"time"

	"ladder-trading-bot/internal/interfaces"
	"ladder-trading-bot/internal/logger"
	"ladder-trading-bot/internal/types"
)

// positionReconciler merges broker-reported position truth into local
// state once per tick. The broker wins: local state lags it by at most
// one tick and is never allowed to go negative. A short reported by the
// broker is covered immediately with an urgent IOC buy rather than
// silently clamped.
type positionReconciler struct {
	brk    interfaces.Broker
	router *orderRouter
	onFill func(ctx context.Context, f types.Fill)
}

func newPositionReconciler(brk interfaces.Broker, router *orderRouter, onFill func(context.Context, types.Fill)) *positionReconciler {
	return &positionReconciler{brk: brk, router: router, onFill: onFill}
}

// syncAll reconciles every tracked symbol against the broker snapshot.
// Faults here are logged and deferred to the next tick; they never abort
// the tick.
func (pr *positionReconciler) syncAll(ctx context.Context, now time.Time, states map[string]*symbolState) {
	broker, err := pr.brk.Positions(ctx)
	if err != nil {
		logger.ErrorWithErr(ctx, "Position sync failed", err)
		return
	}

	for sym, rec := range broker {
		st, ok := states[sym]
		if !ok {
			continue
		}

		if rec.Qty < 0 {
			covered := pr.coverShort(ctx, now, st, -rec.Qty)
			if !covered {
				// Partial or failed cover: leave local state as-is and
				// retry next tick rather than sync a lie.
				continue
			}
			rec.Qty = 0
			rec.AvgCost = 0
		}

		if rec.Qty <= 0 {
			st.pos = 0
			st.avg = 0
		} else {
			st.pos = rec.Qty
			st.avg = rec.AvgCost
		}
	}
}

// coverShort buys back a broker-reported short with an urgent IOC.
// Returns true only when the full quantity was covered.
func (pr *positionReconciler) coverShort(ctx context.Context, now time.Time, st *symbolState, want int) bool {
	sym := st.target.Symbol
	logger.Risk(ctx, sym, "ANTI_SHORT_COVER", "short_qty", want)

	tick, err := pr.brk.Quote(ctx, sym)
	if err != nil {
		logger.ErrorWithErr(ctx, "Anti-short cover: quote fetch failed", err, "symbol", sym)
		return false
	}
	last, _ := firstValidPrice(tick.Last, tick.Close)

	px, filled, err := pr.router.placeBuy(ctx, sym, want, tick.Bid, tick.Ask, last, urgencyUrgent)
	if err != nil {
		logger.ErrorWithErr(ctx, "Anti-short cover order failed", err, "symbol", sym, "qty", want)
		return false
	}
	if filled > 0 {
		st.lastBuyAt = now
		pr.onFill(ctx, types.Fill{
			Symbol: sym,
			Side:   "BUY",
			Qty:    filled,
			Price:  px,
			Tag:    "anti_short_cover",
		})
	}
	if filled < want {
		logger.Risk(ctx, sym, "ANTI_SHORT_COVER_INCOMPLETE", "wanted", want, "filled", filled)
		return false
	}
	return true
}
