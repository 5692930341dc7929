package store

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"ladder-trading-bot/internal/types"
)

type Config struct {
	Mode                    string  `yaml:"mode"` // PAPER or LIVE
	TickSeconds             float64 `yaml:"tick_seconds"`
	ReconnectBackoffSeconds float64 `yaml:"reconnect_backoff_seconds"`
	CooldownSeconds         float64 `yaml:"cooldown_seconds"`
	MetricsAddr             string  `yaml:"metrics_addr"`

	EquityCapUSD        float64            `yaml:"equity_cap_usd"`
	UtilizationFraction float64            `yaml:"utilization_fraction"`
	ClassAlloc          map[string]float64 `yaml:"class_alloc"`
	ShotsPerSymbol      int                `yaml:"shots_per_symbol"`

	Clip struct {
		RiskyMult float64 `yaml:"risky_mult"`
		SafeMult  float64 `yaml:"safe_mult"`
		PriceRef  float64 `yaml:"price_ref"`
		MinUSD    float64 `yaml:"min_usd"`
		MaxUSD    float64 `yaml:"max_usd"`
	} `yaml:"clip"`

	Risk struct {
		HardStopPct           float64 `yaml:"hard_stop_pct"`
		TrailPct              float64 `yaml:"trail_pct"`
		BreakevenTrimFraction float64 `yaml:"breakeven_trim_fraction"`
		BreakevenMinBps       float64 `yaml:"breakeven_min_bps"`
	} `yaml:"risk"`

	SpreadLimitBps map[string]float64 `yaml:"spread_limit_bps"`
	VWVWindow      int                `yaml:"vwv_window"`

	Ladder struct {
		BuyMults           []float64          `yaml:"buy_mults"`
		SellMults          []float64          `yaml:"sell_mults"`
		RungClipMults      []float64          `yaml:"rung_clip_mults"`
		SpreadClassMults   map[string]float64 `yaml:"spread_class_mults"`
		AnchorDistanceMult float64            `yaml:"anchor_distance_mult"`
	} `yaml:"ladder"`

	AnchorLookbackDays int `yaml:"anchor_lookback_days"`

	Targets []types.SymbolTarget `yaml:"targets"`
}

// DefaultTargets is the fallback universe when the config names none,
// all risky with the stock 2.0/1.5 ladder percentages.
func DefaultTargets() []types.SymbolTarget {
	syms := []string{"RCAT", "DPRO", "UMAC", "AVAV", "KTOS", "LPTH", "ONDS", "EH", "SPAI"}
	out := make([]types.SymbolTarget, 0, len(syms))
	for _, s := range syms {
		out = append(out, types.SymbolTarget{Symbol: s, Class: "risky", BuyPct: 2.0, SellPct: 1.5})
	}
	return out
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = "PAPER"
	}
	if c.TickSeconds == 0 {
		c.TickSeconds = 0.9
	}
	if c.ReconnectBackoffSeconds == 0 {
		c.ReconnectBackoffSeconds = 3
	}
	if c.CooldownSeconds == 0 {
		c.CooldownSeconds = 3
	}
	if c.EquityCapUSD == 0 {
		c.EquityCapUSD = 150000
	}
	if c.UtilizationFraction == 0 {
		c.UtilizationFraction = 0.67
	}
	if c.ClassAlloc == nil {
		c.ClassAlloc = map[string]float64{"risky": 0.6, "safe": 0.4}
	}
	if c.ShotsPerSymbol == 0 {
		c.ShotsPerSymbol = 12
	}
	if c.Clip.RiskyMult == 0 {
		c.Clip.RiskyMult = 1.15
	}
	if c.Clip.SafeMult == 0 {
		c.Clip.SafeMult = 0.85
	}
	if c.Clip.PriceRef == 0 {
		c.Clip.PriceRef = 50
	}
	if c.Clip.MinUSD == 0 {
		c.Clip.MinUSD = 100
	}
	if c.Clip.MaxUSD == 0 {
		c.Clip.MaxUSD = 6000
	}
	if c.Risk.HardStopPct == 0 {
		c.Risk.HardStopPct = 5.0
	}
	if c.Risk.TrailPct == 0 {
		c.Risk.TrailPct = 2.5
	}
	if c.Risk.BreakevenTrimFraction == 0 {
		c.Risk.BreakevenTrimFraction = 0.25
	}
	if c.Risk.BreakevenMinBps == 0 {
		c.Risk.BreakevenMinBps = 5
	}
	if c.SpreadLimitBps == nil {
		c.SpreadLimitBps = map[string]float64{"risky": 180, "safe": 80}
	}
	if c.VWVWindow == 0 {
		c.VWVWindow = 120
	}
	if len(c.Ladder.BuyMults) == 0 {
		c.Ladder.BuyMults = []float64{0.75, 1.0, 1.25}
	}
	if len(c.Ladder.SellMults) == 0 {
		c.Ladder.SellMults = []float64{0.75, 1.0, 1.25}
	}
	if len(c.Ladder.RungClipMults) == 0 {
		c.Ladder.RungClipMults = []float64{1.0, 1.6, 2.3}
	}
	if c.Ladder.SpreadClassMults == nil {
		c.Ladder.SpreadClassMults = map[string]float64{"risky": 5.0, "safe": 3.0}
	}
	if c.Ladder.AnchorDistanceMult == 0 {
		c.Ladder.AnchorDistanceMult = 2.0
	}
	if c.AnchorLookbackDays == 0 {
		c.AnchorLookbackDays = 5
	}
	for i := range c.Targets {
		t := &c.Targets[i]
		if t.Class == "" {
			t.Class = "risky"
		}
		if t.BuyPct == 0 {
			t.BuyPct = 2.0
		}
		if t.SellPct == 0 {
			t.SellPct = 1.5
		}
	}
}

func (c *Config) Validate() error {
	if c.Mode != "PAPER" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'PAPER' or 'LIVE'", c.Mode)
	}
	if c.TickSeconds <= 0 {
		return fmt.Errorf("tick_seconds must be positive, got %.2f", c.TickSeconds)
	}
	if c.UtilizationFraction <= 0 || c.UtilizationFraction > 1 {
		return fmt.Errorf("utilization_fraction must be in (0,1], got %.2f", c.UtilizationFraction)
	}
	if c.Clip.MinUSD > c.Clip.MaxUSD {
		return fmt.Errorf("clip.min_usd %.0f exceeds clip.max_usd %.0f", c.Clip.MinUSD, c.Clip.MaxUSD)
	}
	if c.Risk.HardStopPct <= 0 || c.Risk.HardStopPct >= 100 {
		return fmt.Errorf("risk.hard_stop_pct must be in (0,100), got %.2f", c.Risk.HardStopPct)
	}
	if c.Risk.TrailPct <= 0 || c.Risk.TrailPct >= 100 {
		return fmt.Errorf("risk.trail_pct must be in (0,100), got %.2f", c.Risk.TrailPct)
	}
	if c.Risk.BreakevenTrimFraction <= 0 || c.Risk.BreakevenTrimFraction > 1 {
		return fmt.Errorf("risk.breakeven_trim_fraction must be in (0,1], got %.2f", c.Risk.BreakevenTrimFraction)
	}
	if len(c.Ladder.BuyMults) != len(c.Ladder.RungClipMults) {
		return fmt.Errorf("ladder.buy_mults and ladder.rung_clip_mults must have equal length (%d vs %d)",
			len(c.Ladder.BuyMults), len(c.Ladder.RungClipMults))
	}
	for i := 1; i < len(c.Ladder.RungClipMults); i++ {
		if c.Ladder.RungClipMults[i] <= c.Ladder.RungClipMults[i-1] {
			return fmt.Errorf("ladder.rung_clip_mults must be strictly increasing")
		}
	}
	seen := map[string]bool{}
	for _, t := range c.Targets {
		if t.Symbol == "" {
			return fmt.Errorf("target with empty symbol")
		}
		if seen[t.Symbol] {
			return fmt.Errorf("duplicate target symbol %s", t.Symbol)
		}
		seen[t.Symbol] = true
		if t.Class != "risky" && t.Class != "safe" {
			return fmt.Errorf("target %s: class must be 'risky' or 'safe', got '%s'", t.Symbol, t.Class)
		}
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

// Default returns a fully-defaulted config with no targets, mainly for
// tests and the anchor preview tool.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickSeconds * float64(time.Second))
}

func (c *Config) ReconnectBackoff() time.Duration {
	return time.Duration(c.ReconnectBackoffSeconds * float64(time.Second))
}

func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds * float64(time.Second))
}

// SpreadLimitFor returns the spread ceiling in basis points for a risk
// class, defaulting to the risky ceiling for unknown classes.
func (c *Config) SpreadLimitFor(class string) float64 {
	if v, ok := c.SpreadLimitBps[class]; ok {
		return v
	}
	return c.SpreadLimitBps["risky"]
}
