package tradelog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ladder-trading-bot/internal/types"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines
}

func TestAppendFill(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TRADER_LOG_DIR", dir)

	err := AppendFill(types.Fill{
		Symbol: "ABC", Side: "BUY", Qty: 10, Price: 42.5, Tag: "ladder_buy",
	})
	if err != nil {
		t.Fatalf("AppendFill: %v", err)
	}

	day := time.Now().In(eastern).Format("2006-01-02")
	lines := readLines(t, filepath.Join(dir, "fills", day+".txt"))
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	var got types.Fill
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Symbol != "ABC" || got.Qty != 10 || got.Tag != "ladder_buy" {
		t.Errorf("fill = %+v", got)
	}
	if got.Ts == "" {
		t.Error("timestamp not stamped")
	}
}

func TestAppendPnL(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TRADER_LOG_DIR", dir)

	if err := AppendPnL(nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
	rows := []PnLRow{
		{Symbol: "ABC", Pos: 10, Avg: 42, Last: 43, UnrealizedPnL: 10},
		{Symbol: "XYZ", Pos: 0, RealizedPnL: -5},
	}
	if err := AppendPnL(rows); err != nil {
		t.Fatalf("AppendPnL: %v", err)
	}

	day := time.Now().In(eastern).Format("2006-01-02")
	lines := readLines(t, filepath.Join(dir, "pnl", day+".txt"))
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	var first PnLRow
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatal(err)
	}
	if first.Symbol != "ABC" || first.Ts == "" {
		t.Errorf("row = %+v", first)
	}
}

func TestCompressOlder(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TRADER_LOG_DIR", dir)

	fillsDir := filepath.Join(dir, "fills")
	if err := os.MkdirAll(fillsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	oldFile := filepath.Join(fillsDir, "2024-01-02.txt")
	if err := os.WriteFile(oldFile, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	stale := time.Now().AddDate(0, 0, -30)
	if err := os.Chtimes(oldFile, stale, stale); err != nil {
		t.Fatal(err)
	}
	freshFile := filepath.Join(fillsDir, "fresh.txt")
	if err := os.WriteFile(freshFile, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := CompressOlder(7); err != nil {
		t.Fatalf("CompressOlder: %v", err)
	}

	if _, err := os.Stat(oldFile); !os.IsNotExist(err) {
		t.Error("stale file should be removed")
	}
	if _, err := os.Stat(oldFile + ".gz"); err != nil {
		t.Error("stale file should be gzipped")
	}
	if _, err := os.Stat(freshFile); err != nil {
		t.Error("fresh file should be untouched")
	}

	// Retention off is a no-op.
	if err := CompressOlder(0); err != nil {
		t.Fatalf("CompressOlder(0): %v", err)
	}
}
