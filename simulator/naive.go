package simulator

import (
	"sort"
	"time"
)

// inChargingWindow reports whether the local hour lies inside the fleet's
// availability window [arrival, departure), wrapping across midnight when
// arrival > departure. Equal hours mean the fleet is always available.
func inChargingWindow(hour, arrival, departure int) bool {
	arrival = ((arrival % 24) + 24) % 24
	departure = ((departure % 24) + 24) % 24

	if arrival == departure {
		return true
	}
	if arrival < departure {
		return hour >= arrival && hour < departure
	}
	return hour >= arrival || hour < departure
}

// windowIndices returns the grid indices whose local hour falls inside the
// charging window, in grid order.
func windowIndices(arrival, departure int, timestamps []time.Time) []int {
	var idx []int
	for t, ts := range timestamps {
		if inChargingWindow(ts.Hour(), arrival, departure) {
			idx = append(idx, t)
		}
	}
	return idx
}

// NaiveSchedule charges in the cheapest spot-price hours inside the
// availability window, ignoring the capacity tariff. When the window cannot
// hold energyNeed kWh at fleetKW, the schedule under-delivers; callers that
// care must compare the delivered sum against energyNeed.
func NaiveSchedule(fleetKW, energyNeed float64, arrival, departure int, spot []float64, timestamps []time.Time) []float64 {
	schedule := make([]float64, len(timestamps))
	window := windowIndices(arrival, departure, timestamps)

	sort.SliceStable(window, func(i, j int) bool {
		return spot[window[i]] < spot[window[j]]
	})

	remaining := energyNeed
	for _, t := range window {
		if remaining <= 0 {
			break
		}
		kw := fleetKW
		if remaining < kw {
			kw = remaining
		}
		schedule[t] = kw
		remaining -= kw
	}
	return schedule
}
