// Package sim is an in-process broker for paper trading and tests. It
// fills immediate-or-cancel orders against the seeded quote and keeps its
// own position book so reconciliation round-trips behave like the real
// thing.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"ladder-trading-bot/internal/types"
)

var errNotConnected = errors.New("sim broker: not connected")

// Broker implements interfaces.Broker entirely in memory.
type Broker struct {
	mu        sync.Mutex
	connected bool

	quotes    map[string]types.MarketTick
	bars      map[string][]types.Bar
	positions map[string]types.BrokerPosition
	orders    map[string]types.OrderResult

	// FillRatio scales every fill quantity, 0 < r <= 1. Zero means fill
	// in full.
	FillRatio float64
}

func New() *Broker {
	return &Broker{
		quotes:    make(map[string]types.MarketTick),
		bars:      make(map[string][]types.Bar),
		positions: make(map[string]types.BrokerPosition),
		orders:    make(map[string]types.OrderResult),
	}
}

func (b *Broker) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = true
	return nil
}

func (b *Broker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
}

// SetQuote seeds or replaces the current quote for a symbol.
func (b *Broker) SetQuote(t types.MarketTick) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.quotes[t.Symbol] = t
}

// SetBars seeds the minute-bar history returned for a symbol.
func (b *Broker) SetBars(symbol string, bars []types.Bar) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bars[symbol] = append([]types.Bar(nil), bars...)
}

// SetPosition seeds the broker-side position book directly, bypassing
// order flow.
func (b *Broker) SetPosition(symbol string, qty int, avgCost float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.positions[symbol] = types.BrokerPosition{Qty: qty, AvgCost: avgCost}
}

func (b *Broker) Quote(ctx context.Context, symbol string) (types.MarketTick, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return types.MarketTick{}, errNotConnected
	}
	t, ok := b.quotes[symbol]
	if !ok {
		return types.MarketTick{}, fmt.Errorf("sim broker: no quote for %s", symbol)
	}
	return t, nil
}

func (b *Broker) MinuteBars(ctx context.Context, symbol string, day time.Time) ([]types.Bar, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return nil, errNotConnected
	}
	return append([]types.Bar(nil), b.bars[symbol]...), nil
}

func (b *Broker) Positions(ctx context.Context) (map[string]types.BrokerPosition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return nil, errNotConnected
	}
	out := make(map[string]types.BrokerPosition, len(b.positions))
	for sym, p := range b.positions {
		out[sym] = p
	}
	return out, nil
}

// PlaceOrder simulates IOC execution against the seeded quote: a buy
// fills when the limit reaches the ask, a sell when it reaches the bid,
// at that side of the market. The unfilled remainder is cancelled.
func (b *Broker) PlaceOrder(ctx context.Context, req types.OrderReq) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return "", errNotConnected
	}
	if req.Qty <= 0 {
		return "", fmt.Errorf("sim broker: bad order quantity %d", req.Qty)
	}

	id := uuid.NewString()
	result := types.OrderResult{OrderID: id, Done: true}

	q := b.quotes[req.Symbol]
	px, fills := b.execute(req, q)
	if fills > 0 {
		result.Fills = []types.OrderFill{{Qty: fills, Price: px}}
		b.applyFill(req.Symbol, req.Side, fills, px)
	}
	b.orders[id] = result
	return id, nil
}

func (b *Broker) execute(req types.OrderReq, q types.MarketTick) (float64, int) {
	marketPx := q.Last
	switch req.Side {
	case "BUY":
		if q.Ask > 0 {
			marketPx = q.Ask
		}
	case "SELL":
		if q.Bid > 0 {
			marketPx = q.Bid
		}
	}
	if marketPx <= 0 {
		return 0, 0
	}
	if req.Side == "BUY" && req.LimitPrice < marketPx {
		return 0, 0
	}
	if req.Side == "SELL" && req.LimitPrice > marketPx {
		return 0, 0
	}

	qty := req.Qty
	if b.FillRatio > 0 && b.FillRatio < 1 {
		qty = int(float64(req.Qty) * b.FillRatio)
		if qty < 1 {
			qty = 1
		}
	}
	return marketPx, qty
}

func (b *Broker) applyFill(symbol, side string, qty int, px float64) {
	p := b.positions[symbol]
	if side == "BUY" {
		newQty := p.Qty + qty
		if p.Qty > 0 {
			p.AvgCost = (p.AvgCost*float64(p.Qty) + px*float64(qty)) / float64(newQty)
		} else {
			p.AvgCost = px
		}
		p.Qty = newQty
	} else {
		p.Qty -= qty
		if p.Qty <= 0 {
			p.Qty = 0
			p.AvgCost = 0
		}
	}
	b.positions[symbol] = p
}

func (b *Broker) OrderStatus(ctx context.Context, orderID string) (types.OrderResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return types.OrderResult{}, errNotConnected
	}
	r, ok := b.orders[orderID]
	if !ok {
		return types.OrderResult{}, fmt.Errorf("sim broker: unknown order %s", orderID)
	}
	return r, nil
}
