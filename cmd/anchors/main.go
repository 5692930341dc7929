// Command anchors previews the next session's anchor references and
// ladder grids from recorded minute bars, before the market opens.
//
// Bars are read from JSON-lines files laid out as
// <bars-dir>/<SYMBOL>/<YYYY-MM-DD>.json, one bar per line. For each
// target it looks back over the configured number of prior trading days,
// derives the morning and afternoon window anchors per day, blends them
// with linearly decreasing weights, and prints the ladder levels the
// engine would display around the morning reference.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"ladder-trading-bot/internal/anchor"
	"ladder-trading-bot/internal/engine"
	"ladder-trading-bot/internal/store"
	"ladder-trading-bot/internal/types"
)

const pmStartMin = 14 * 60

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to config file")
	barsDir := flag.String("bars", "bars", "directory of recorded minute bars")
	dateStr := flag.String("date", "", "session date YYYY-MM-DD (default today)")
	flag.Parse()

	if err := run(*cfgPath, *barsDir, *dateStr); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath, barsDir, dateStr string) error {
	cfg, err := store.LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	if len(cfg.Targets) == 0 {
		cfg.Targets = store.DefaultTargets()
	}

	day := time.Now().In(anchor.Eastern)
	if dateStr != "" {
		day, err = time.ParseInLocation("2006-01-02", dateStr, anchor.Eastern)
		if err != nil {
			return fmt.Errorf("bad -date %q: %w", dateStr, err)
		}
	}
	lookback := anchor.PreviousTradingDays(day, cfg.AnchorLookbackDays)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "SYMBOL\tAM REF\tPM REF\tBUY LEVELS\tSELL LEVELS\n")
	for _, tgt := range cfg.Targets {
		amRef, amOK := windowedReference(barsDir, tgt.Symbol, lookback, anchor.MarketOpenMin, anchor.MiddayMin)
		pmRef, pmOK := windowedReference(barsDir, tgt.Symbol, lookback, pmStartMin, anchor.MarketCloseMin)
		if !amOK && !pmOK {
			fmt.Fprintf(w, "%s\t-\t-\tno data\tno data\n", tgt.Symbol)
			continue
		}
		ref := amRef
		if !amOK {
			ref = pmRef
		}
		buys, sells := engine.PreviewLevels(cfg, ref, tgt)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			tgt.Symbol, fmtRef(amRef, amOK), fmtRef(pmRef, pmOK), fmtLevels(buys), fmtLevels(sells))
	}
	return w.Flush()
}

// windowedReference blends the window anchors of the lookback days, most
// recent day weighted heaviest.
func windowedReference(barsDir, symbol string, days []time.Time, startMin, endMin int) (float64, bool) {
	refs := make([]anchor.DayRef, 0, len(days))
	for _, d := range days {
		bars, err := loadBars(barsDir, symbol, d)
		if err != nil {
			refs = append(refs, anchor.DayRef{})
			continue
		}
		windowed := anchor.BarsInWindow(bars, startMin, endMin)
		ref, ok := anchor.WindowAnchor(d, windowed, endMin)
		refs = append(refs, anchor.DayRef{Ref: ref, OK: ok})
	}
	return anchor.WeightedReference(refs)
}

func loadBars(barsDir, symbol string, day time.Time) ([]types.Bar, error) {
	path := filepath.Join(barsDir, symbol, day.Format("2006-01-02")+".json")
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var bars []types.Bar
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var b types.Bar
		if err := json.Unmarshal([]byte(line), &b); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		bars = append(bars, b)
	}
	return bars, sc.Err()
}

func fmtRef(v float64, ok bool) string {
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%.4f", v)
}

func fmtLevels(levels []float64) string {
	parts := make([]string, len(levels))
	for i, l := range levels {
		parts[i] = fmt.Sprintf("%.4f", l)
	}
	return strings.Join(parts, " ")
}
