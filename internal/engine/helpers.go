package engine

import (
	"math"
	"time"
)

var eastern = time.FixedZone("ET", -4*3600)

// sanitizePrice rejects prices a feed can legitimately hand us but that
// must never reach order math: zero, negative, NaN, Inf.
func sanitizePrice(v float64) (float64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, false
	}
	return v, true
}

// firstValidPrice returns the first sane candidate, in order.
func firstValidPrice(candidates ...float64) (float64, bool) {
	for _, c := range candidates {
		if p, ok := sanitizePrice(c); ok {
			return p, true
		}
	}
	return 0, false
}

// spreadBps returns the bid/ask spread in basis points of the midpoint.
func spreadBps(bid, ask float64) (float64, bool) {
	if bid <= 0 || ask <= 0 {
		return 0, false
	}
	mid := (bid + ask) / 2.0
	return (ask - bid) / mid * 10000.0, true
}
