package interfaces

import (
	"context"
	"time"

	"ladder-trading-bot/internal/types"
)

// Broker is the single collaborator contract the engine depends on. A
// transport adapter owns connection mechanics; the engine owns when to
// connect, reconcile, and trade.
type Broker interface {
	Connect(ctx context.Context) error
	IsConnected() bool
	Close()

	// Quote returns the latest market snapshot for a streaming symbol.
	Quote(ctx context.Context, symbol string) (types.MarketTick, error)

	// MinuteBars returns the minute bars for one trading day.
	MinuteBars(ctx context.Context, symbol string, day time.Time) ([]types.Bar, error)

	// Positions returns the broker-side truth {symbol -> position}.
	Positions(ctx context.Context) (map[string]types.BrokerPosition, error)

	// PlaceOrder submits an order and returns its broker id immediately.
	PlaceOrder(ctx context.Context, req types.OrderReq) (string, error)

	// OrderStatus reports fills accumulated so far for an order id.
	OrderStatus(ctx context.Context, orderID string) (types.OrderResult, error)
}
