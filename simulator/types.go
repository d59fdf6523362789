// Package simulator runs EV fleet charging simulations: it classifies input
// data quality, schedules the fleet with a naive benchmark and a joint
// energy + power-tariff optimization, and reports costs, savings and a
// Monte-Carlo savings distribution.
package simulator

import (
	"fmt"
	"time"

	"github.com/devskill-org/fleetcharge/entsoe"
	"github.com/devskill-org/fleetcharge/tariff"
)

// DataQuality tags how much of the simulation ran on real data.
type DataQuality string

const (
	// DataQualityOK means both prices and baseload were supplied.
	DataQualityOK DataQuality = "ok"
	// DataQualityPartial means exactly one of the two was synthetic.
	DataQualityPartial DataQuality = "partial"
	// DataQualityFallback means both were synthetic.
	DataQualityFallback DataQuality = "fallback"
)

// SafetyMargin returns the fraction by which the subscription ceiling is
// reduced to absorb baseload uncertainty at this quality level.
func (q DataQuality) SafetyMargin() float64 {
	switch q {
	case DataQualityPartial:
		return 0.05
	case DataQualityFallback:
		return 0.10
	default:
		return 0.0
	}
}

// Property describes one grid connection.
type Property struct {
	ID             string  `json:"id,omitempty"`
	GridArea       string  `json:"grid_area"`       // bidding zone, SE1..SE4
	SubscriptionKW float64 `json:"subscription_kw"` // contractual ceiling
	MeterID        string  `json:"meter_id,omitempty"`
}

// Validate checks the property's invariants.
func (p *Property) Validate() error {
	if p.SubscriptionKW <= 0 {
		return fmt.Errorf("subscription_kw must be positive, got: %f", p.SubscriptionKW)
	}
	return nil
}

// Fleet describes the aggregate EV fleet at a property.
type Fleet struct {
	Vehicles      int     `json:"vehicles"`
	ChargerKW     float64 `json:"charger_kw"`
	BatteryKWh    float64 `json:"battery_kwh"`
	ArrivalSoC    float64 `json:"arrival_soc"`    // fraction 0..1
	ArrivalHour   int     `json:"arrival_hour"`   // local hour 0..23
	DepartureHour int     `json:"departure_hour"` // local hour 0..23
}

// FleetKW is the aggregate charging power cap.
func (f *Fleet) FleetKW() float64 {
	return float64(f.Vehicles) * f.ChargerKW
}

// EnergyNeedKWh is the energy required to charge all vehicles from the
// average arrival state of charge to full.
func (f *Fleet) EnergyNeedKWh() float64 {
	return float64(f.Vehicles) * f.BatteryKWh * (1 - f.ArrivalSoC)
}

// Validate checks the fleet's invariants.
func (f *Fleet) Validate() error {
	if f.Vehicles < 1 {
		return fmt.Errorf("vehicles must be >= 1, got: %d", f.Vehicles)
	}
	if f.ChargerKW <= 0 {
		return fmt.Errorf("charger_kw must be positive, got: %f", f.ChargerKW)
	}
	if f.BatteryKWh <= 0 {
		return fmt.Errorf("battery_kwh must be positive, got: %f", f.BatteryKWh)
	}
	if f.ArrivalSoC < 0 || f.ArrivalSoC > 1 {
		return fmt.Errorf("arrival_soc must be in [0,1], got: %f", f.ArrivalSoC)
	}
	if f.ArrivalHour < 0 || f.ArrivalHour > 23 {
		return fmt.Errorf("arrival_hour must be in [0,23], got: %d", f.ArrivalHour)
	}
	if f.DepartureHour < 0 || f.DepartureHour > 23 {
		return fmt.Errorf("departure_hour must be in [0,23], got: %d", f.DepartureHour)
	}
	return nil
}

// Input is one simulation request. BaseLoadKW and SpotPrices are optional;
// a missing or length-mismatched series is replaced by a synthetic one and
// reflected in the result's data-quality tag.
type Input struct {
	Property    Property           `json:"property"`
	Fleet       Fleet              `json:"fleet"`
	Tariff      tariff.GridTariff  `json:"tariff"`
	PeriodStart time.Time          `json:"period_start"`
	PeriodEnd   time.Time          `json:"period_end"`
	BaseLoadKW  []float64          `json:"base_load_profile,omitempty"`
	SpotPrices  []entsoe.PricePoint `json:"spot_prices,omitempty"`

	// Seed fixes the RNG used for synthetic curves and Monte-Carlo jitter.
	// Zero selects a time-based seed.
	Seed int64 `json:"seed,omitempty"`
}

// Validate checks the request's invariants.
func (in *Input) Validate() error {
	if err := in.Property.Validate(); err != nil {
		return fmt.Errorf("invalid property: %w", err)
	}
	if err := in.Fleet.Validate(); err != nil {
		return fmt.Errorf("invalid fleet: %w", err)
	}
	if err := in.Tariff.Validate(); err != nil {
		return fmt.Errorf("invalid tariff: %w", err)
	}
	if in.PeriodEnd.Before(in.PeriodStart) {
		return fmt.Errorf("period_end %s is before period_start %s",
			in.PeriodEnd.Format("2006-01-02"), in.PeriodStart.Format("2006-01-02"))
	}
	return nil
}

// MonteCarloStats summarizes the savings distribution over the jitter trials.
// All values are rounded to whole currency units.
type MonteCarloStats struct {
	Mean         float64 `json:"mean"`
	Median       float64 `json:"median"`
	P10          float64 `json:"p10"`
	P90          float64 `json:"p90"`
	Std          float64 `json:"std"`
	NSimulations int     `json:"n_simulations"`
}

// Breakdown compares the cost components of the naive and optimized plans.
type Breakdown struct {
	SpotCostWithout     float64 `json:"spot_cost_without"`
	SpotCostWith        float64 `json:"spot_cost_with"`
	CapacityCostWithout float64 `json:"capacity_cost_without"`
	CapacityCostWith    float64 `json:"capacity_cost_with"`
	PeakCostWithout     float64 `json:"peak_cost_without"`
	PeakCostWith        float64 `json:"peak_cost_with"`
	BaseMonthlyFee      float64 `json:"base_monthly_fee"`
}

// HourlyPoint is one hour of the simulated period.
type HourlyPoint struct {
	Timestamp      time.Time `json:"timestamp"`
	BaseKW         float64   `json:"base_kw"`
	EVKWWithout    float64   `json:"ev_kw_without"`
	EVKWWith       float64   `json:"ev_kw_with"`
	TotalKWWithout float64   `json:"total_kw_without"`
	TotalKWWith    float64   `json:"total_kw_with"`
	SpotPrice      float64   `json:"spot_price"`
	IsPeakHour     bool      `json:"is_peak_hour"`
}

// Result is the simulation response. "Without" refers to the naive
// cheapest-hours benchmark, "with" to the optimized plan.
type Result struct {
	PeriodStart      string          `json:"period_start"`
	PeriodEnd        string          `json:"period_end"`
	CostWithout      float64         `json:"cost_without"`
	CostWith         float64         `json:"cost_with"`
	SavingsTotal     float64         `json:"savings_total"`
	SavingsPct       float64         `json:"savings_pct"`
	PeakKWWithout    float64         `json:"peak_kw_without"`
	PeakKWWith       float64         `json:"peak_kw_with"`
	MonteCarlo       MonteCarloStats `json:"monte_carlo"`
	Breakdown        Breakdown       `json:"breakdown"`
	HourlyData       []HourlyPoint   `json:"hourly_data"`
	WorstDaysAvoided []string        `json:"worst_days_avoided"`
	DataQuality      DataQuality     `json:"data_quality"`
}
