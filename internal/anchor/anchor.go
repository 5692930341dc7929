// Package anchor derives blended reference prices from historical minute
// bars: median closes of the pre-market, opening-range, and regular
// session windows, blended by time of day, optionally weighted across
// several prior trading days.
package anchor

import (
	"sort"
	"time"

	"ladder-trading-bot/internal/types"
)

// Eastern is the exchange timezone. Fixed offset, no DST handling.
var Eastern = time.FixedZone("ET", -4*3600)

// Session boundaries in minutes after midnight, Eastern.
const (
	MarketOpenMin   = 9*60 + 30
	OpeningRangeMin = 10 * 60
	MiddayMin       = 11 * 60
	MarketCloseMin  = 16 * 60
)

// Anchors holds one day's session medians. A Has* flag is false when no
// qualifying bars existed for that window.
type Anchors struct {
	PreMarketMid    float64
	OpeningRangeMid float64
	SessionMid      float64
	HasPreMarket    bool
	HasOpeningRange bool
	HasSession      bool
}

// MinuteOfDay returns minutes after midnight in Eastern time.
func MinuteOfDay(t time.Time) int {
	t = t.In(Eastern)
	return t.Hour()*60 + t.Minute()
}

// median returns the upper-middle element of xs, matching the historical
// behaviour of picking sorted[len/2].
func median(xs []float64) float64 {
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	return s[len(s)/2]
}

// ComputeAnchors splits one day's minute bars into pre-market (< 09:30),
// opening range ([09:30, 10:00)), and regular session (>= 09:30) windows
// and takes the median close of each. Bars with non-positive closes are
// ignored.
func ComputeAnchors(bars []types.Bar) Anchors {
	var pma, opening, session []float64
	for _, b := range bars {
		if b.Close <= 0 {
			continue
		}
		m := MinuteOfDay(time.Unix(b.Ts, 0))
		if m < MarketOpenMin {
			pma = append(pma, b.Close)
			continue
		}
		if m < OpeningRangeMin {
			opening = append(opening, b.Close)
		}
		session = append(session, b.Close)
	}

	var a Anchors
	if len(pma) > 0 {
		a.PreMarketMid = median(pma)
		a.HasPreMarket = true
	}
	if len(opening) > 0 {
		a.OpeningRangeMid = median(opening)
		a.HasOpeningRange = true
	}
	if len(session) > 0 {
		a.SessionMid = median(session)
		a.HasSession = true
	}
	return a
}

// BlendedReference blends the anchors by time of day. It never reports an
// absent price: fallback (the last trade) backstops every branch.
func BlendedReference(now time.Time, a Anchors, fallback float64) float64 {
	m := MinuteOfDay(now)
	switch {
	case m < OpeningRangeMin:
		if a.HasOpeningRange {
			return a.OpeningRangeMid
		}
		if a.HasPreMarket {
			return a.PreMarketMid
		}
		if a.HasSession {
			return a.SessionMid
		}
	case m < MiddayMin:
		if a.HasOpeningRange && a.HasSession {
			return 0.5*a.OpeningRangeMid + 0.5*a.SessionMid
		}
		if a.HasOpeningRange {
			return a.OpeningRangeMid
		}
		if a.HasSession {
			return a.SessionMid
		}
	default:
		if a.HasSession {
			return a.SessionMid
		}
		if a.HasOpeningRange {
			return a.OpeningRangeMid
		}
		if a.HasPreMarket {
			return a.PreMarketMid
		}
	}
	return fallback
}

// DayRef is one prior day's blended reference, most recent day first in
// any slice handed to WeightedReference. OK is false for days with no
// usable bars.
type DayRef struct {
	Ref float64
	OK  bool
}

// WeightedReference averages prior-day references with linearly
// decreasing weights: the most recent day weighs len(refs), the oldest 1.
// Days without data are skipped; ok is false when no day had data.
func WeightedReference(refs []DayRef) (float64, bool) {
	n := len(refs)
	var num, den float64
	for i, r := range refs {
		if !r.OK {
			continue
		}
		w := float64(n - i)
		num += r.Ref * w
		den += w
	}
	if den == 0 {
		return 0, false
	}
	return num / den, true
}

// PreviousTradingDay steps back one day, skipping weekends.
func PreviousTradingDay(d time.Time) time.Time {
	prev := d.AddDate(0, 0, -1)
	for prev.Weekday() == time.Saturday || prev.Weekday() == time.Sunday {
		prev = prev.AddDate(0, 0, -1)
	}
	return prev
}

// PreviousTradingDays returns the n most recent trading days before d,
// most recent first.
func PreviousTradingDays(d time.Time, n int) []time.Time {
	days := make([]time.Time, 0, n)
	current := d
	for i := 0; i < n; i++ {
		current = PreviousTradingDay(current)
		days = append(days, current)
	}
	return days
}

// BarsInWindow filters bars to [startMin, endMin) minutes-of-day Eastern.
func BarsInWindow(bars []types.Bar, startMin, endMin int) []types.Bar {
	var out []types.Bar
	for _, b := range bars {
		m := MinuteOfDay(time.Unix(b.Ts, 0))
		if m >= startMin && m < endMin {
			out = append(out, b)
		}
	}
	return out
}

// WindowAnchor computes the blended reference for one historical session
// window, evaluated one minute before the window closes with the last
// close as fallback. ok is false when the window held no bars.
func WindowAnchor(day time.Time, windowBars []types.Bar, endMin int) (float64, bool) {
	if len(windowBars) == 0 {
		return 0, false
	}
	a := ComputeAnchors(windowBars)
	fallback := windowBars[len(windowBars)-1].Close
	at := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, Eastern).
		Add(time.Duration(endMin-1) * time.Minute)
	return BlendedReference(at, a, fallback), true
}
