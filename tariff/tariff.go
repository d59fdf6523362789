// Package tariff models a distribution network capacity tariff and decides
// whether a wall-clock instant falls inside the network's peak window.
package tariff

import (
	"fmt"
	"time"
)

// Peak calculation methods supported by Swedish grid operators.
// "single" bills the single highest hour, "avg3"/"avg5" bill the mean of the
// three/five highest hours.
const (
	PeakMethodSingle = "single"
	PeakMethodAvg3   = "avg3"
	PeakMethodAvg5   = "avg5"
)

// GridTariff represents a grid operator's power tariff.
type GridTariff struct {
	Operator   string `json:"operator"`
	TariffName string `json:"tariff_name"`
	ValidFrom  string `json:"valid_from,omitempty"` // YYYY-MM-DD
	ValidTo    string `json:"valid_to,omitempty"`   // YYYY-MM-DD, empty = open-ended

	BaseMonthlyFee float64 `json:"base_monthly_fee"` // SEK/month
	CapacityFeeKW  float64 `json:"capacity_fee_kw"`  // SEK/kW on the billing peak
	PeakFeeKW      float64 `json:"peak_fee_kw"`      // SEK/kW surcharge on the peak-window peak

	PeakHoursStart   int    `json:"peak_hours_start"` // 0-23, inclusive
	PeakHoursEnd     int    `json:"peak_hours_end"`   // 1-24, exclusive
	PeakMonths       []int  `json:"peak_months"`      // e.g. [11,12,1,2,3]
	PeakWeekdaysOnly bool   `json:"peak_weekdays_only"`
	PeakCalcMethod   string `json:"peak_calc_method"` // single | avg3 | avg5

	EnergyFeePeak    float64 `json:"energy_fee_peak"`    // SEK/kWh inside the peak window
	EnergyFeeOffpeak float64 `json:"energy_fee_offpeak"` // SEK/kWh outside it
}

// IsPeakHour reports whether dt lies inside the tariff's peak window.
// All comparisons are on local wall-clock time.
func (t *GridTariff) IsPeakHour(dt time.Time) bool {
	if t.PeakWeekdaysOnly {
		wd := dt.Weekday()
		if wd == time.Saturday || wd == time.Sunday {
			return false
		}
	}
	if !t.isPeakMonth(int(dt.Month())) {
		return false
	}
	h := dt.Hour()
	return t.PeakHoursStart <= h && h < t.PeakHoursEnd
}

func (t *GridTariff) isPeakMonth(month int) bool {
	for _, m := range t.PeakMonths {
		if m == month {
			return true
		}
	}
	return false
}

// Validate checks the tariff's invariants.
func (t *GridTariff) Validate() error {
	if t.Operator == "" {
		return fmt.Errorf("operator cannot be empty")
	}

	if t.PeakHoursStart < 0 || t.PeakHoursEnd > 24 || t.PeakHoursStart >= t.PeakHoursEnd {
		return fmt.Errorf("peak hours must satisfy 0 <= start < end <= 24, got: [%d, %d)",
			t.PeakHoursStart, t.PeakHoursEnd)
	}

	for _, m := range t.PeakMonths {
		if m < 1 || m > 12 {
			return fmt.Errorf("peak month must be between 1 and 12, got: %d", m)
		}
	}

	switch t.PeakCalcMethod {
	case PeakMethodSingle, PeakMethodAvg3, PeakMethodAvg5:
	default:
		return fmt.Errorf("invalid peak_calc_method: %q, must be one of: single, avg3, avg5", t.PeakCalcMethod)
	}

	fees := map[string]float64{
		"base_monthly_fee":   t.BaseMonthlyFee,
		"capacity_fee_kw":    t.CapacityFeeKW,
		"peak_fee_kw":        t.PeakFeeKW,
		"energy_fee_peak":    t.EnergyFeePeak,
		"energy_fee_offpeak": t.EnergyFeeOffpeak,
	}
	for name, v := range fees {
		if v < 0 {
			return fmt.Errorf("%s must be non-negative, got: %f", name, v)
		}
	}

	for _, field := range []struct{ name, value string }{
		{"valid_from", t.ValidFrom},
		{"valid_to", t.ValidTo},
	} {
		if field.value == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", field.value); err != nil {
			return fmt.Errorf("invalid %s: %w", field.name, err)
		}
	}

	return nil
}

// TopAvgCount returns how many of the largest hourly values the configured
// peak calculation method averages over. The single method counts one hour.
func (t *GridTariff) TopAvgCount() int {
	switch t.PeakCalcMethod {
	case PeakMethodAvg3:
		return 3
	case PeakMethodAvg5:
		return 5
	default:
		return 1
	}
}
