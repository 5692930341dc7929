package engine

import (
	"math"
	"testing"

	"ladder-trading-bot/internal/store"
	"ladder-trading-bot/internal/types"
)

func TestClipUSDOverride(t *testing.T) {
	cfg := store.Default()
	tgt := types.SymbolTarget{Symbol: "A", Class: "risky", ClipUSD: 1234}
	cs := newClipSizer(cfg, []types.SymbolTarget{tgt})
	if got := cs.clipUSD(tgt, 50); got != 1234 {
		t.Errorf("clipUSD = %v, want override 1234", got)
	}
}

func TestClipUSDRiskyBudget(t *testing.T) {
	cfg := store.Default()
	tgt := types.SymbolTarget{Symbol: "A", Class: "risky"}
	cs := newClipSizer(cfg, []types.SymbolTarget{tgt})

	// 150000 * 0.67 * 0.6 / 1 symbol / 12 shots * 1.15 risky mult at the
	// reference price.
	want := 150000.0 * 0.67 * 0.6 / 12 * 1.15
	if got := cs.clipUSD(tgt, 50); math.Abs(got-want) > 1e-9 {
		t.Errorf("clipUSD at ref price = %v, want %v", got, want)
	}

	// Twice the reference price halves the clip.
	if got := cs.clipUSD(tgt, 100); math.Abs(got-want/2) > 1e-9 {
		t.Errorf("clipUSD at 2x ref = %v, want %v", got, want/2)
	}

	// Price weight clamps at 2x for cheap names, then the max bound cuts
	// in.
	if got := cs.clipUSD(tgt, 1); got != cfg.Clip.MaxUSD {
		t.Errorf("clipUSD for cheap name = %v, want max %v", got, cfg.Clip.MaxUSD)
	}
}

func TestClipUSDSafeBudgetAndSplit(t *testing.T) {
	cfg := store.Default()
	a := types.SymbolTarget{Symbol: "A", Class: "safe"}
	b := types.SymbolTarget{Symbol: "B", Class: "safe"}
	cs := newClipSizer(cfg, []types.SymbolTarget{a, b})

	// Safe budget split across two symbols: 150000 * 0.67 * 0.4 / 2 / 12
	// * 0.85.
	want := 150000.0 * 0.67 * 0.4 / 2 / 12 * 0.85
	if got := cs.clipUSD(a, 50); math.Abs(got-want) > 1e-9 {
		t.Errorf("clipUSD = %v, want %v", got, want)
	}
}

func TestClipUSDMinFloor(t *testing.T) {
	cfg := store.Default()
	cfg.EquityCapUSD = 1000
	tgt := types.SymbolTarget{Symbol: "A", Class: "risky"}
	cs := newClipSizer(cfg, []types.SymbolTarget{tgt})
	if got := cs.clipUSD(tgt, 500); got != cfg.Clip.MinUSD {
		t.Errorf("clipUSD = %v, want min floor %v", got, cfg.Clip.MinUSD)
	}
}

func TestClipUSDUnknownClass(t *testing.T) {
	cfg := store.Default()
	tgt := types.SymbolTarget{Symbol: "A", Class: "other"}
	cs := newClipSizer(cfg, []types.SymbolTarget{tgt})

	// Unknown classes split the book evenly and take the safe multiplier.
	want := 150000.0 * 0.67 * 0.5 / 12 * 0.85
	if got := cs.clipUSD(tgt, 50); math.Abs(got-want) > 1e-9 {
		t.Errorf("clipUSD = %v, want %v", got, want)
	}
}
