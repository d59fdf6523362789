// Package costmodel aggregates hourly power draw, spot prices and a grid
// tariff into the cost components of the combined energy + power-demand bill.
package costmodel

import (
	"math"
	"sort"
	"time"

	"github.com/devskill-org/fleetcharge/tariff"
)

// Breakdown holds the cost components of one billed period.
// All monetary values are rounded to two decimals, peaks to three.
type Breakdown struct {
	EnergyCost   float64 `json:"energy_cost"`   // spot + energy surcharges
	CapacityCost float64 `json:"capacity_cost"` // billing peak * capacity fee
	PeakCost     float64 `json:"peak_cost"`     // peak-window peak * peak surcharge
	BaseFee      float64 `json:"base_fee"`      // monthly fee * months
	Total        float64 `json:"total"`

	PeakKWAll  float64 `json:"p_max_all"`  // billing peak over all hours
	PeakKWPeak float64 `json:"p_max_peak"` // billing peak restricted to peak hours
}

// PeakPower computes the billing peaks under the tariff's peak calculation
// method: the peak over all hours and the peak restricted to peak-window
// hours. An empty set yields 0.
func PeakPower(hourlyKW []float64, trf *tariff.GridTariff, timestamps []time.Time) (pMaxAll, pMaxPeak float64) {
	var peakKW []float64
	for i, kw := range hourlyKW {
		if trf.IsPeakHour(timestamps[i]) {
			peakKW = append(peakKW, kw)
		}
	}

	k := trf.TopAvgCount()
	return round3(topAvg(hourlyKW, k)), round3(topAvg(peakKW, k))
}

// topAvg returns the mean of the k largest elements of values,
// or 0 for an empty slice. k is capped at len(values).
func topAvg(values []float64, k int) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	if k > len(sorted) {
		k = len(sorted)
	}
	sum := 0.0
	for _, v := range sorted[:k] {
		sum += v
	}
	return sum / float64(k)
}

// EnergyCost computes the spot + surcharge energy cost of the hourly series.
// Spot prices are in öre/kWh; the division by 100 scales them into SEK to
// match the surcharge table.
func EnergyCost(hourlyKW, spotPrices []float64, trf *tariff.GridTariff, timestamps []time.Time) float64 {
	total := 0.0
	for i, kw := range hourlyKW {
		fee := trf.EnergyFeeOffpeak
		if trf.IsPeakHour(timestamps[i]) {
			fee = trf.EnergyFeePeak
		}
		total += kw * (spotPrices[i]/100.0 + fee)
	}
	return round2(total)
}

// TotalCost computes the full cost breakdown over the hourly series.
// months scales the base monthly fee and must be >= 1.
func TotalCost(hourlyKW, spotPrices []float64, trf *tariff.GridTariff, timestamps []time.Time, months int) Breakdown {
	pMaxAll, pMaxPeak := PeakPower(hourlyKW, trf, timestamps)
	energy := EnergyCost(hourlyKW, spotPrices, trf, timestamps)
	capacity := round2(pMaxAll * trf.CapacityFeeKW)
	peak := round2(pMaxPeak * trf.PeakFeeKW)
	base := round2(trf.BaseMonthlyFee * float64(months))

	return Breakdown{
		EnergyCost:   energy,
		CapacityCost: capacity,
		PeakCost:     peak,
		BaseFee:      base,
		Total:        round2(energy + capacity + peak + base),
		PeakKWAll:    pMaxAll,
		PeakKWPeak:   pMaxPeak,
	}
}

// Months converts a period length into billed months: max(1, round(days/30)).
func Months(days int) int {
	months := int(math.Round(float64(days) / 30.0))
	if months < 1 {
		return 1
	}
	return months
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
