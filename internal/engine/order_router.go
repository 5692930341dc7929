package engine

import (
	"context"
	"math"
	"time"

	"ladder-trading-bot/internal/interfaces"
	"ladder-trading-bot/internal/logger"
	"ladder-trading-bot/internal/metrics"
	"ladder-trading-bot/internal/types"
)

const (
	urgencyNormal = "normal"
	urgencyUrgent = "urgent"

	normalBump = 0.004
	urgentBump = 0.02

	// floorPrice backstops limit derivation when no candidate price is
	// usable.
	floorPrice = 0.01

	pollAttempts = 10
	pollInterval = 200 * time.Millisecond
)

// buyLimitPrice derives the IOC buy limit: the highest sane candidate of
// {last, ask, bid} bumped up by urgency.
func buyLimitPrice(last, ask, bid float64, urgency string) float64 {
	base := floorPrice
	found := false
	for _, c := range []float64{last, ask, bid} {
		p, ok := sanitizePrice(c)
		if !ok {
			continue
		}
		if !found || p > base {
			base = p
		}
		found = true
	}
	bump := normalBump
	if urgency == urgencyUrgent {
		bump = urgentBump
	}
	return roundPrice(math.Max(floorPrice, base*(1.0+bump)))
}

// sellLimitPrice derives the IOC sell limit: the lowest sane candidate of
// {last, bid} bumped down by urgency.
func sellLimitPrice(last, bid float64, urgency string) float64 {
	base := floorPrice
	found := false
	for _, c := range []float64{last, bid} {
		p, ok := sanitizePrice(c)
		if !ok {
			continue
		}
		if !found || p < base {
			base = p
		}
		found = true
	}
	bump := normalBump
	if urgency == urgencyUrgent {
		bump = urgentBump
	}
	return roundPrice(math.Max(floorPrice, base*(1.0-bump)))
}

func roundPrice(p float64) float64 {
	return math.Round(p*10000) / 10000
}

// orderRouter submits immediate-or-cancel limit orders and aggregates
// their fills. The unfilled remainder is cancelled by the order type
// itself; the router only waits briefly for the broker to report.
type orderRouter struct {
	brk   interfaces.Broker
	sleep func(time.Duration)
}

func newOrderRouter(brk interfaces.Broker) *orderRouter {
	return &orderRouter{brk: brk, sleep: time.Sleep}
}

// placeBuy submits an IOC buy and returns the volume-weighted fill price
// and filled quantity. qty <= 0 is a no-op.
func (r *orderRouter) placeBuy(ctx context.Context, symbol string, qty int, bid, ask, last float64, urgency string) (float64, int, error) {
	if qty <= 0 {
		return 0, 0, nil
	}
	limit := buyLimitPrice(last, ask, bid, urgency)
	return r.submit(ctx, types.OrderReq{
		Symbol:     symbol,
		Side:       "BUY",
		Qty:        qty,
		LimitPrice: limit,
		TIF:        "IOC",
	}, urgency)
}

// placeSell submits an IOC sell. qty <= 0 is a no-op.
func (r *orderRouter) placeSell(ctx context.Context, symbol string, qty int, bid, last float64, urgency string) (float64, int, error) {
	if qty <= 0 {
		return 0, 0, nil
	}
	limit := sellLimitPrice(last, bid, urgency)
	return r.submit(ctx, types.OrderReq{
		Symbol:     symbol,
		Side:       "SELL",
		Qty:        qty,
		LimitPrice: limit,
		TIF:        "IOC",
	}, urgency)
}

func (r *orderRouter) submit(ctx context.Context, req types.OrderReq, urgency string) (float64, int, error) {
	orderID, err := r.brk.PlaceOrder(ctx, req)
	if err != nil {
		return 0, 0, err
	}
	metrics.RecordOrder(req.Side, urgency)
	logger.Debug(ctx, "IOC order submitted",
		"symbol", req.Symbol, "side", req.Side, "qty", req.Qty, "limit", req.LimitPrice, "urgency", urgency)

	var result types.OrderResult
	for i := 0; i < pollAttempts; i++ {
		result, err = r.brk.OrderStatus(ctx, orderID)
		if err != nil {
			return 0, 0, err
		}
		if result.Done {
			break
		}
		r.sleep(pollInterval)
	}

	avg, filled := aggregateFills(result.Fills)
	return avg, filled, nil
}

// aggregateFills collapses partial fills into a volume-weighted average
// price and total quantity. Fills with non-positive size are ignored.
func aggregateFills(fills []types.OrderFill) (float64, int) {
	totalShares := 0
	totalNotional := 0.0
	for _, f := range fills {
		if f.Qty <= 0 {
			continue
		}
		totalShares += f.Qty
		totalNotional += f.Price * float64(f.Qty)
	}
	if totalShares <= 0 {
		return 0, 0
	}
	return totalNotional / float64(totalShares), totalShares
}
