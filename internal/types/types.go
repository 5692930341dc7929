package types

// SymbolTarget is one configured trading target. BuyPct/SellPct are the
// base ladder percentages before volatility and class adjustment. ClipUSD,
// when positive, overrides dynamic clip sizing for the symbol.
type SymbolTarget struct {
	Symbol  string  `yaml:"symbol"`
	Class   string  `yaml:"class"`
	BuyPct  float64 `yaml:"buy_pct"`
	SellPct float64 `yaml:"sell_pct"`
	ClipUSD float64 `yaml:"clip_usd"`
}

// MarketTick is one quote snapshot. Fields the feed could not supply are
// zero (or NaN); the engine sanitizes before use. Volume is the cumulative
// day volume, negative when unknown.
type MarketTick struct {
	Symbol string
	Last   float64
	Bid    float64
	Ask    float64
	Open   float64
	Close  float64
	Volume float64
}

// Bar is a historical minute bar. Ts is the bar start, unix seconds.
type Bar struct {
	Ts     int64   `json:"ts"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// BrokerPosition is the broker-reported truth for one symbol.
type BrokerPosition struct {
	Qty     int
	AvgCost float64
}

type OrderReq struct {
	Symbol     string
	Side       string // "BUY" or "SELL"
	Qty        int
	LimitPrice float64
	TIF        string // always "IOC" here
}

type OrderFill struct {
	Qty   int
	Price float64
}

// OrderResult is the broker's view of a submitted order. Done means the
// order is terminal; IOC orders cancel their unfilled remainder on their
// own, so Done arrives within a few polls.
type OrderResult struct {
	OrderID string
	Done    bool
	Fills   []OrderFill
}

// Fill is one confirmed execution, as handed to the persistence surface.
type Fill struct {
	Ts          string  `json:"ts"`
	Symbol      string  `json:"symbol"`
	Side        string  `json:"side"`
	Qty         int     `json:"qty"`
	Price       float64 `json:"price"`
	Tag         string  `json:"tag"`
	RealizedPnL float64 `json:"realized_pnl"`
}

// Snapshot is the per-tick telemetry record for one symbol, consumed by
// the external monitoring surface. Ladder levels are the display-widened
// grid; trading decisions never read them back.
type Snapshot struct {
	Ts            string    `json:"ts"`
	Symbol        string    `json:"symbol"`
	Last          float64   `json:"last"`
	Ref           float64   `json:"ref"`
	Z             float64   `json:"z"`
	Pos           int       `json:"pos"`
	Avg           float64   `json:"avg"`
	UnrealizedPnL float64   `json:"upnl"`
	RealizedPnL   float64   `json:"rpnl"`
	BuyLevels     []float64 `json:"buy_levels"`
	SellLevels    []float64 `json:"sell_levels"`
	ActiveLayers  int       `json:"active_layers"`
	DesiredLayers int       `json:"desired_layers"`
	ClipUSD       float64   `json:"clip_usd"`
}
