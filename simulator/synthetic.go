package simulator

import (
	"math/rand"
	"time"
)

// SyntheticBaseload draws a typical office-profile load curve parameterized
// by the subscription ceiling: busiest during office hours, shoulder bands
// in the morning and evening, near-idle overnight.
func SyntheticBaseload(rng *rand.Rand, subscriptionKW float64, timestamps []time.Time) []float64 {
	load := make([]float64, len(timestamps))
	for t, ts := range timestamps {
		var lo, hi float64
		switch h := ts.Hour(); {
		case h >= 8 && h < 18:
			lo, hi = 0.30, 0.55
		case (h >= 6 && h < 8) || (h >= 18 && h < 22):
			lo, hi = 0.12, 0.28
		default:
			lo, hi = 0.04, 0.12
		}
		load[t] = subscriptionKW * uniform(rng, lo, hi)
	}
	return load
}

// SyntheticPrices draws a conservatively high price curve in öre/kWh:
// a 120 base with morning and evening commute peaks, a possible dip in the
// small hours (clamped at 0) and mild noise elsewhere. Overstating cost is
// preferred over overstating savings when real prices are missing.
func SyntheticPrices(rng *rand.Rand, timestamps []time.Time) []float64 {
	const base = 120.0

	prices := make([]float64, len(timestamps))
	for t, ts := range timestamps {
		p := base
		switch h := ts.Hour(); {
		case h == 7 || h == 8 || h == 9 || h == 17 || h == 18 || h == 19 || h == 20:
			p += uniform(rng, 30, 80)
		case h < 5:
			p += uniform(rng, -20, 10)
			if p < 0 {
				p = 0
			}
		default:
			p += uniform(rng, 0, 40)
		}
		prices[t] = p
	}
	return prices
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}
