package engine

import (
	"ladder-trading-bot/internal/store"
	"ladder-trading-bot/internal/types"
)

// clipSizer computes the per-trade USD budget from account-level
// allocation rules. Cheaper names get proportionally larger clips,
// bounded to 0.5x-2x of the base, and the result is clamped to the
// configured min/max.
type clipSizer struct {
	equityCap   float64
	utilization float64
	classAlloc  map[string]float64
	shots       int
	riskyMult   float64
	safeMult    float64
	priceRef    float64
	minUSD      float64
	maxUSD      float64
	classCounts map[string]int
}

func newClipSizer(cfg *store.Config, targets []types.SymbolTarget) *clipSizer {
	counts := map[string]int{}
	for _, t := range targets {
		counts[t.Class]++
	}
	return &clipSizer{
		equityCap:   cfg.EquityCapUSD,
		utilization: cfg.UtilizationFraction,
		classAlloc:  cfg.ClassAlloc,
		shots:       cfg.ShotsPerSymbol,
		riskyMult:   cfg.Clip.RiskyMult,
		safeMult:    cfg.Clip.SafeMult,
		priceRef:    cfg.Clip.PriceRef,
		minUSD:      cfg.Clip.MinUSD,
		maxUSD:      cfg.Clip.MaxUSD,
		classCounts: counts,
	}
}

// clipUSD returns the per-trade budget for one symbol. A positive
// per-symbol override replaces the computation entirely.
func (cs *clipSizer) clipUSD(tgt types.SymbolTarget, lastPrice float64) float64 {
	if tgt.ClipUSD > 0 {
		return tgt.ClipUSD
	}

	classFrac, ok := cs.classAlloc[tgt.Class]
	if !ok {
		classFrac = 0.5
	}
	classBudget := cs.equityCap * cs.utilization * classFrac

	nClass := cs.classCounts[tgt.Class]
	if nClass < 1 {
		nClass = 1
	}
	perSymbolBudget := classBudget / float64(nClass)

	shots := cs.shots
	if shots < 1 {
		shots = 1
	}
	baseClip := perSymbolBudget / float64(shots)

	riskMult := cs.safeMult
	if tgt.Class == "risky" {
		riskMult = cs.riskyMult
	}

	denom := lastPrice
	if denom < 1 {
		denom = 1
	}
	priceWeight := cs.priceRef / denom
	if priceWeight < 0.5 {
		priceWeight = 0.5
	}
	if priceWeight > 2.0 {
		priceWeight = 2.0
	}

	clip := baseClip * riskMult * priceWeight
	if clip < cs.minUSD {
		clip = cs.minUSD
	}
	if clip > cs.maxUSD {
		clip = cs.maxUSD
	}
	return clip
}
