// Package vwv maintains the volume-weighted volatility signal: a rolling
// window of dollar-volume increments per symbol and a bounded z-score of
// the latest increment against the trailing window.
package vwv

import "math"

const (
	// DefaultWindow is the FIFO capacity of retained increments.
	DefaultWindow = 120

	zClamp = 6.0
)

// Tracker accumulates dollar-volume increments for one symbol. It is
// created at session start and never reset intra-session.
type Tracker struct {
	window  int
	dv      []float64
	lastVol float64
	seeded  bool
}

func New(window int) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Tracker{window: window}
}

// Update feeds the latest trade price and cumulative day volume and
// returns the z-score of the newest dollar-volume increment. A missing
// price (non-positive or non-finite) or missing volume (negative or NaN)
// returns 0 without touching state. Volume must strictly increase for an
// increment to be recorded; the cumulative volume is always stored.
func (t *Tracker) Update(lastPrice, totalVolume float64) float64 {
	if !(lastPrice > 0) || math.IsInf(lastPrice, 0) {
		return 0
	}
	if totalVolume < 0 || math.IsNaN(totalVolume) {
		return 0
	}

	z := 0.0
	if t.seeded && totalVolume > t.lastVol {
		dv := lastPrice * (totalVolume - t.lastVol)
		t.dv = append(t.dv, dv)
		if len(t.dv) > t.window {
			t.dv = t.dv[1:]
		}
		if n := len(t.dv) - 1; n > 0 {
			latest := t.dv[n]
			prior := t.dv[:n]
			mu := 0.0
			for _, x := range prior {
				mu += x
			}
			mu /= float64(n)
			if n > 1 {
				variance := 0.0
				for _, x := range prior {
					d := x - mu
					variance += d * d
				}
				sd := math.Sqrt(variance / float64(n-1))
				if sd > 1e-9 {
					z = (latest - mu) / sd
				}
			}
		}
	}

	t.lastVol = totalVolume
	t.seeded = true

	if z > zClamp {
		z = zClamp
	}
	if z < -zClamp {
		z = -zClamp
	}
	return z
}

// Len reports how many increments are currently retained.
func (t *Tracker) Len() int { return len(t.dv) }
