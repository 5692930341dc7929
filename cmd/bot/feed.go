package main

import (
	"context"
	"math/rand"
	"time"

	"ladder-trading-bot/internal/broker/sim"
	"ladder-trading-bot/internal/types"
)

const (
	feedInterval  = 250 * time.Millisecond
	feedSeedPrice = 50.0
	feedStepPct   = 0.0008
	feedSpreadPct = 0.0006
)

// startFeed drives the paper broker with a synthetic random-walk quote
// stream so the engine can run end to end without a market connection.
// It also seeds a flat morning bar history so anchors resolve.
func startFeed(ctx context.Context, b *sim.Broker, symbols []string) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	prices := make(map[string]float64, len(symbols))
	volumes := make(map[string]float64, len(symbols))
	for _, sym := range symbols {
		px := feedSeedPrice * (0.5 + rng.Float64())
		prices[sym] = px
		b.SetBars(sym, seedBars(px))
		publish(b, sym, px, 0)
	}

	go func() {
		ticker := time.NewTicker(feedInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, sym := range symbols {
					px := prices[sym] * (1.0 + (rng.Float64()*2-1)*feedStepPct)
					if px < 0.01 {
						px = 0.01
					}
					prices[sym] = px
					volumes[sym] += float64(100 + rng.Intn(900))
					publish(b, sym, px, volumes[sym])
				}
			}
		}
	}()
}

func publish(b *sim.Broker, sym string, px, vol float64) {
	half := px * feedSpreadPct / 2
	b.SetQuote(types.MarketTick{
		Symbol: sym,
		Last:   px,
		Bid:    px - half,
		Ask:    px + half,
		Open:   px,
		Close:  px,
		Volume: vol,
	})
}

// seedBars fabricates one pre-market plus opening-range minute history at
// the seed price for today, Eastern.
func seedBars(px float64) []types.Bar {
	eastern := time.FixedZone("ET", -4*3600)
	now := time.Now().In(eastern)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, eastern)

	var bars []types.Bar
	for m := 9 * 60; m < 10*60; m++ {
		ts := day.Add(time.Duration(m) * time.Minute)
		bars = append(bars, types.Bar{
			Ts: ts.Unix(), Open: px, High: px, Low: px, Close: px, Volume: 1000,
		})
	}
	return bars
}
