// Package tradelog is the append-only persistence surface for fills and
// per-tick PnL rows. Records are JSON lines in daily files under the log
// directory; old files are gzip-compacted by retention.
package tradelog

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"ladder-trading-bot/internal/types"
)

var mu sync.Mutex

var eastern = time.FixedZone("ET", -4*3600)

// PnLRow is one symbol's per-tick PnL snapshot.
type PnLRow struct {
	Ts            string  `json:"ts"`
	Symbol        string  `json:"symbol"`
	Pos           int     `json:"pos"`
	Avg           float64 `json:"avg"`
	Last          float64 `json:"last"`
	UnrealizedPnL float64 `json:"upnl"`
	RealizedPnL   float64 `json:"rpnl"`
}

func logDir() string {
	if v := os.Getenv("TRADER_LOG_DIR"); v != "" {
		return v
	}
	return "logs"
}

func fillsFilepath(t time.Time) string {
	d := t.In(eastern).Format("2006-01-02")
	return filepath.Join(logDir(), "fills", d+".txt")
}

func pnlFilepath(t time.Time) string {
	d := t.In(eastern).Format("2006-01-02")
	return filepath.Join(logDir(), "pnl", d+".txt")
}

func appendLine(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	b, _ := json.Marshal(v)
	_, err = fmt.Fprintln(f, string(b))
	return err
}

// AppendFill records one confirmed execution. The timestamp is stamped
// here so callers only supply the trade facts.
func AppendFill(e types.Fill) error {
	mu.Lock()
	defer mu.Unlock()
	now := time.Now().In(eastern)
	e.Ts = now.Format("2006-01-02 15:04:05")
	return appendLine(fillsFilepath(now), e)
}

// AppendPnL records a batch of per-tick PnL rows.
func AppendPnL(rows []PnLRow) error {
	if len(rows) == 0 {
		return nil
	}
	mu.Lock()
	defer mu.Unlock()
	now := time.Now().In(eastern)
	ts := now.Format("2006-01-02 15:04:05")
	p := pnlFilepath(now)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	for _, r := range rows {
		r.Ts = ts
		b, _ := json.Marshal(r)
		if _, err := fmt.Fprintln(f, string(b)); err != nil {
			return err
		}
	}
	return nil
}

// CompressOlder gzips .txt log files older than retentionDays and removes
// the originals. A non-positive retention disables compaction.
func CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	root := logDir()
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(p) != ".txt" {
			return nil
		}
		info, er := os.Stat(p)
		if er != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		gz := p + ".gz"
		if _, e2 := os.Stat(gz); e2 == nil {
			_ = os.Remove(p)
			return nil
		}
		in, e3 := os.Open(p)
		if e3 != nil {
			return nil
		}
		defer in.Close()
		out, e4 := os.OpenFile(gz, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if e4 != nil {
			return nil
		}
		gw := gzip.NewWriter(out)
		if _, e5 := io.Copy(gw, in); e5 == nil {
			_ = gw.Close()
			_ = out.Close()
			_ = os.Remove(p)
		} else {
			_ = gw.Close()
			_ = out.Close()
		}
		return nil
	})
}
