package engine

import (
	"math"

	"ladder-trading-bot/internal/store"
	"ladder-trading-bot/internal/types"
)

// ladderShape is the fixed geometry of the price ladder: rung multipliers
// on the buy/sell percentages, clip scaling for successive rungs, the
// risk-class spread multipliers, and the display stretch factor for the
// anchor rung.
type ladderShape struct {
	buyMults           []float64
	sellMults          []float64
	rungClipMults      []float64
	spreadClassMults   map[string]float64
	anchorDistanceMult float64
	buyAnchorIdx       int
	sellAnchorIdx      int
}

func newLadderShape(cfg *store.Config) ladderShape {
	return ladderShape{
		buyMults:           cfg.Ladder.BuyMults,
		sellMults:          cfg.Ladder.SellMults,
		rungClipMults:      cfg.Ladder.RungClipMults,
		spreadClassMults:   cfg.Ladder.SpreadClassMults,
		anchorDistanceMult: cfg.Ladder.AnchorDistanceMult,
		buyAnchorIdx:       anchorIndex(cfg.Ladder.BuyMults),
		sellAnchorIdx:      anchorIndex(cfg.Ladder.SellMults),
	}
}

// anchorIndex picks the rung closest to multiplier 1.0, the automated
// trigger rung.
func anchorIndex(mults []float64) int {
	if len(mults) == 0 {
		return 0
	}
	best := 0
	for i, m := range mults {
		if math.Abs(m-1.0) < math.Abs(mults[best]-1.0) {
			best = i
		}
	}
	return best
}

// ladderPlan is the per-tick trading plan for one symbol. It is
// recomputed from scratch every tick and holds no state.
type ladderPlan struct {
	BuyLevels  []float64
	SellLevels []float64
	RungShares []int
	Cumulative []int

	EffBuyPct  float64
	EffSellPct float64

	ActiveLayers     int
	DesiredBuyLayers int
	SellLevelsHit    int

	BuyMomentumOK  bool
	SellMomentumOK bool
}

func (s ladderShape) classMult(class string) float64 {
	if m, ok := s.spreadClassMults[class]; ok {
		return m
	}
	return s.spreadClassMults["risky"]
}

// plan combines reference price, volatility signal, clip budget, and the
// current position into price rungs and share thresholds. The raw z gates
// momentum eligibility while the clamped z drives the percentage
// multipliers.
func (s ladderShape) plan(ref, last, rawZ float64, tgt types.SymbolTarget, clipUSD float64, pos int) ladderPlan {
	zc := rawZ
	if zc > 2 {
		zc = 2
	}
	if zc < -2 {
		zc = -2
	}
	buyMult := 1.0 + 0.25*zc
	if buyMult < 0.25 {
		buyMult = 0.25
	}
	sellMult := 1.0 - 0.15*zc

	classMult := s.classMult(tgt.Class)
	baseBuy := math.Max(0.1, tgt.BuyPct)
	baseSell := math.Max(0.1, tgt.SellPct)

	p := ladderPlan{
		EffBuyPct:      baseBuy * classMult * buyMult,
		EffSellPct:     baseSell * classMult * sellMult,
		BuyMomentumOK:  rawZ >= 0,
		SellMomentumOK: rawZ <= 0,
	}

	p.BuyLevels = make([]float64, len(s.buyMults))
	for i, m := range s.buyMults {
		p.BuyLevels[i] = ref * (1.0 - (p.EffBuyPct*m)/100.0)
	}
	p.SellLevels = make([]float64, len(s.sellMults))
	for i, m := range s.sellMults {
		p.SellLevels[i] = ref * (1.0 + (p.EffSellPct*m)/100.0)
	}

	denom := math.Max(0.01, last)
	p.RungShares = make([]int, len(s.rungClipMults))
	p.Cumulative = make([]int, len(s.rungClipMults))
	total := 0
	for i, m := range s.rungClipMults {
		shares := int(math.Ceil(clipUSD * m / denom))
		if shares < 1 {
			shares = 1
		}
		p.RungShares[i] = shares
		total += shares
		p.Cumulative[i] = total
	}

	for i, threshold := range p.Cumulative {
		if pos >= threshold {
			p.ActiveLayers = i + 1
		}
	}

	for _, lvl := range p.BuyLevels {
		if last <= lvl {
			p.DesiredBuyLayers++
		}
	}
	if p.DesiredBuyLayers > len(p.RungShares) {
		p.DesiredBuyLayers = len(p.RungShares)
	}

	for _, lvl := range p.SellLevels {
		if last >= lvl {
			p.SellLevelsHit++
		}
	}

	return p
}

// widenForDisplay returns a stretched copy of the ladder for the
// monitoring surface only. The anchor rung is pushed farther from the
// reference by the distance multiplier and the other rungs' offsets from
// the anchor are scaled by the class spread multiplier, clamped so buy
// levels stay below the reference and sell levels above it. Trading
// decisions never read the widened grid.
func (s ladderShape) widenForDisplay(ref float64, levels []float64, direction string, spreadMult float64, anchorIdx int) []float64 {
	const clampEps = 1e-6

	widened := append([]float64(nil), levels...)
	if ref <= 0 || spreadMult <= 1.0 || len(widened) == 0 || anchorIdx < 0 || anchorIdx >= len(widened) {
		return widened
	}

	anchorLevel := levels[anchorIdx]
	if s.anchorDistanceMult > 1.0 {
		target := ref + (anchorLevel-ref)*s.anchorDistanceMult
		if direction == "down" && target > ref {
			target = ref * (1.0 - clampEps)
		} else if direction == "up" && target < ref {
			target = ref * (1.0 + clampEps)
		}
		widened[anchorIdx] = target
		anchorLevel = target
	}

	for i := range widened {
		if i == anchorIdx {
			continue
		}
		diff := levels[i] - levels[anchorIdx]
		target := anchorLevel + diff*spreadMult
		if direction == "down" && diff > 0 {
			cap := ref * (1.0 - clampEps)
			if target > cap {
				target = cap
			}
		} else if direction == "up" && diff < 0 {
			floor := ref * (1.0 + clampEps)
			if target < floor {
				target = floor
			}
		}
		widened[i] = target
	}
	return widened
}

// PreviewLevels returns the display-widened ladder grids around a
// reference price with a neutral volatility signal, for offline preview
// tooling.
func PreviewLevels(cfg *store.Config, ref float64, tgt types.SymbolTarget) (buys, sells []float64) {
	s := newLadderShape(cfg)
	p := s.plan(ref, ref, 0, tgt, cfg.Clip.MinUSD, 0)
	return s.displayLevels(ref, p, tgt.Class)
}

// displayLevels produces the widened buy and sell grids for telemetry.
func (s ladderShape) displayLevels(ref float64, p ladderPlan, class string) (buys, sells []float64) {
	mult := s.classMult(class)
	buys = s.widenForDisplay(ref, p.BuyLevels, "down", mult, s.buyAnchorIdx)
	sells = s.widenForDisplay(ref, p.SellLevels, "up", mult, s.sellAnchorIdx)
	return buys, sells
}
