package simulator

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/devskill-org/fleetcharge/entsoe"
	"github.com/devskill-org/fleetcharge/tariff"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func testTariff() tariff.GridTariff {
	return tariff.GridTariff{
		Operator:         "Ellevio",
		BaseMonthlyFee:   365,
		CapacityFeeKW:    59,
		PeakFeeKW:        70,
		PeakHoursStart:   6,
		PeakHoursEnd:     22,
		PeakMonths:       []int{11, 12, 1, 2, 3},
		PeakWeekdaysOnly: true,
		PeakCalcMethod:   tariff.PeakMethodSingle,
		EnergyFeePeak:    0.071,
		EnergyFeeOffpeak: 0.038,
	}
}

// winterDayPrices builds 24 hourly price points for Wed Jan 8, 2025 with the
// evening commute hours cheapest, so the naive plan lands its charging right
// on the peak window.
func winterDayPrices() []entsoe.PricePoint {
	values := []float64{
		64, 66, 68, 70, 72, 74, 100, 110, 115, 105, 100, 95,
		90, 92, 95, 100, 105, 50, 40, 45, 80, 85, 60, 62,
	}
	points := make([]entsoe.PricePoint, 24)
	for h := 0; h < 24; h++ {
		points[h] = entsoe.PricePoint{
			Timestamp:   time.Date(2025, 1, 8, h, 0, 0, 0, time.UTC),
			PriceOreKWh: values[h],
		}
	}
	return points
}

func flatSlice(n int, v float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = v
	}
	return s
}

// nominalInput is the winter-day baseline: 8 vehicles at 11 kW needing
// 8*77*0.75 = 462 kWh overnight under a 150 kW subscription.
func nominalInput() *Input {
	return &Input{
		Property: Property{
			ID:             "prop-1",
			GridArea:       "SE3",
			SubscriptionKW: 150,
		},
		Fleet: Fleet{
			Vehicles:      8,
			ChargerKW:     11,
			BatteryKWh:    77,
			ArrivalSoC:    0.25,
			ArrivalHour:   18,
			DepartureHour: 8,
		},
		Tariff:      testTariff(),
		PeriodStart: time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC),
		BaseLoadKW:  flatSlice(24, 40),
		SpotPrices:  winterDayPrices(),
		Seed:        42,
	}
}

func sumEVWith(r *Result) float64 {
	sum := 0.0
	for _, h := range r.HourlyData {
		sum += h.EVKWWith
	}
	return sum
}

func TestRunNominalWinterDay(t *testing.T) {
	sim := New(time.UTC, testLogger())
	result, err := sim.Run(context.Background(), nominalInput())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if result.DataQuality != DataQualityOK {
		t.Errorf("data quality = %s, want ok", result.DataQuality)
	}
	if len(result.HourlyData) != 24 {
		t.Fatalf("expected 24 hourly points, got %d", len(result.HourlyData))
	}
	if result.PeriodStart != "2025-01-08" || result.PeriodEnd != "2025-01-08" {
		t.Errorf("period = %s..%s, want 2025-01-08..2025-01-08", result.PeriodStart, result.PeriodEnd)
	}

	// Hourly values are rounded to two decimals, so allow a small slack.
	// The energy constraint binds exactly: more than the need would cost.
	if sum := sumEVWith(result); sum < 461.8 || sum > 462.5 {
		t.Errorf("delivered %f kWh, want 462", sum)
	}
	if result.PeakKWWith > 150+1e-6 {
		t.Errorf("peak with plan = %f, exceeds 150 kW subscription", result.PeakKWWith)
	}
	if result.SavingsTotal <= 0 {
		t.Errorf("savings = %f, want positive for evening-cheap prices", result.SavingsTotal)
	}
	if result.CostWith > result.CostWithout {
		t.Errorf("optimized cost %f exceeds naive cost %f", result.CostWith, result.CostWithout)
	}
	if result.MonteCarlo.NSimulations != 200 {
		t.Errorf("n_simulations = %d, want 200", result.MonteCarlo.NSimulations)
	}
	if len(result.WorstDaysAvoided) != 1 {
		t.Errorf("worst days = %v, want the single simulated date", result.WorstDaysAvoided)
	}

	for _, h := range result.HourlyData {
		if h.EVKWWith < 0 {
			t.Errorf("negative charging power %f at %s", h.EVKWWith, h.Timestamp)
		}
		if h.EVKWWith > 0 && !inChargingWindow(h.Timestamp.Hour(), 18, 8) {
			t.Errorf("optimized plan charges at %s outside availability window", h.Timestamp)
		}
	}
}

func TestRunEnergyOnlyTariffDeliversExactNeed(t *testing.T) {
	// Without power fees every delivered kWh has a positive spot cost, so
	// the optimum charges exactly the 462 kWh needed and never beats the
	// naive benchmark by overshooting.
	in := nominalInput()
	in.Tariff.CapacityFeeKW = 0
	in.Tariff.PeakFeeKW = 0

	sim := New(time.UTC, testLogger())
	result, err := sim.Run(context.Background(), in)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if sum := sumEVWith(result); sum < 461.8 || sum > 462.5 {
		t.Errorf("delivered %f kWh, want 462", sum)
	}
	for _, h := range result.HourlyData {
		if h.EVKWWith < 0 {
			t.Errorf("negative charging power %f at %s", h.EVKWWith, h.Timestamp)
		}
	}
	if result.CostWith > result.CostWithout {
		t.Errorf("optimized cost %f exceeds naive cost %f", result.CostWith, result.CostWithout)
	}
}

func TestRunPartialQuality(t *testing.T) {
	in := nominalInput()
	in.SpotPrices = nil

	sim := New(time.UTC, testLogger())
	result, err := sim.Run(context.Background(), in)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if result.DataQuality != DataQualityPartial {
		t.Errorf("data quality = %s, want partial", result.DataQuality)
	}
	// 5% safety margin: 150 * 0.95 = 142.5 kW effective ceiling.
	if result.PeakKWWith > 142.5+1e-6 {
		t.Errorf("peak with plan = %f, exceeds 142.5 kW margin ceiling", result.PeakKWWith)
	}
	if sum := sumEVWith(result); sum < 461.8 {
		t.Errorf("delivered %f kWh, want >= 462", sum)
	}
}

func TestRunFallbackQuality(t *testing.T) {
	in := nominalInput()
	in.SpotPrices = nil
	in.BaseLoadKW = nil

	sim := New(time.UTC, testLogger())
	result, err := sim.Run(context.Background(), in)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if result.DataQuality != DataQualityFallback {
		t.Errorf("data quality = %s, want fallback", result.DataQuality)
	}
	// 10% safety margin: 150 * 0.90 = 135 kW effective ceiling.
	if result.PeakKWWith > 135+1e-6 {
		t.Errorf("peak with plan = %f, exceeds 135 kW margin ceiling", result.PeakKWWith)
	}
}

func TestRunLengthMismatchedSeriesDegrade(t *testing.T) {
	in := nominalInput()
	in.SpotPrices = in.SpotPrices[:7]
	in.BaseLoadKW = in.BaseLoadKW[:3]

	sim := New(time.UTC, testLogger())
	result, err := sim.Run(context.Background(), in)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.DataQuality != DataQualityFallback {
		t.Errorf("data quality = %s, want fallback for truncated series", result.DataQuality)
	}
}

func TestRunInfeasibleReturnsNaive(t *testing.T) {
	// 440 kW of chargers and 1155 kWh of demand against a 50 kW
	// subscription: the optimization cannot succeed and the naive plan is
	// reported as-is, ceiling breaches included.
	in := nominalInput()
	in.Property.SubscriptionKW = 50
	in.Fleet.Vehicles = 20
	in.Fleet.ChargerKW = 22
	in.Fleet.ArrivalHour = 22
	in.Fleet.DepartureHour = 8

	sim := New(time.UTC, testLogger())
	result, err := sim.Run(context.Background(), in)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	for i, h := range result.HourlyData {
		if h.EVKWWith != h.EVKWWithout {
			t.Errorf("hour %d: with %f != without %f, expected identical naive fallback",
				i, h.EVKWWith, h.EVKWWithout)
		}
	}
	if result.SavingsTotal != 0 {
		t.Errorf("savings = %f, want 0 when both plans are the naive schedule", result.SavingsTotal)
	}
	if result.PeakKWWithout <= 50 {
		t.Errorf("peak without = %f, expected an honest breach above 50 kW", result.PeakKWWithout)
	}
}

func TestRunWrapAroundWindow(t *testing.T) {
	in := nominalInput()
	in.Fleet.Vehicles = 4 // 231 kWh fits the 8-hour window at 44 kW
	in.Fleet.ArrivalHour = 22
	in.Fleet.DepartureHour = 6

	sim := New(time.UTC, testLogger())
	result, err := sim.Run(context.Background(), in)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	allowed := map[int]bool{22: true, 23: true, 0: true, 1: true, 2: true, 3: true, 4: true, 5: true}
	for _, h := range result.HourlyData {
		hour := h.Timestamp.Hour()
		if h.EVKWWith > 0 && !allowed[hour] {
			t.Errorf("optimized plan charges at hour %d outside wrap window", hour)
		}
		if h.EVKWWithout > 0 && !allowed[hour] {
			t.Errorf("naive plan charges at hour %d outside wrap window", hour)
		}
	}
}

func TestRunNegativeSpotPriceClampsToZero(t *testing.T) {
	in := nominalInput()
	in.SpotPrices[3].PriceOreKWh = -15

	sim := New(time.UTC, testLogger())
	result, err := sim.Run(context.Background(), in)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if result.DataQuality != DataQualityOK {
		t.Errorf("data quality = %s, want ok (negative price is validated, not missing)", result.DataQuality)
	}
	if result.HourlyData[3].SpotPrice != 0 {
		t.Errorf("hour 3 spot price = %f, want clamped 0", result.HourlyData[3].SpotPrice)
	}
}

func TestRunZeroCostGuard(t *testing.T) {
	in := nominalInput()
	in.Tariff.BaseMonthlyFee = 0
	in.Tariff.CapacityFeeKW = 0
	in.Tariff.PeakFeeKW = 0
	in.Tariff.EnergyFeePeak = 0
	in.Tariff.EnergyFeeOffpeak = 0
	in.BaseLoadKW = flatSlice(24, 0)
	for i := range in.SpotPrices {
		in.SpotPrices[i].PriceOreKWh = 0
	}

	sim := New(time.UTC, testLogger())
	result, err := sim.Run(context.Background(), in)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.SavingsPct != 0 {
		t.Errorf("savings_pct = %f, want 0 when the benchmark cost is zero", result.SavingsPct)
	}
}

func TestRunMonteCarloDeterminism(t *testing.T) {
	first, err := New(time.UTC, testLogger()).Run(context.Background(), nominalInput())
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	second, err := New(time.UTC, testLogger()).Run(context.Background(), nominalInput())
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if first.MonteCarlo != second.MonteCarlo {
		t.Errorf("fixed seed produced differing distributions:\n%+v\n%+v",
			first.MonteCarlo, second.MonteCarlo)
	}
	if first.SavingsTotal != second.SavingsTotal {
		t.Errorf("fixed seed produced differing savings: %f vs %f",
			first.SavingsTotal, second.SavingsTotal)
	}
}

func TestRunReusesLastKnownGoodPrices(t *testing.T) {
	t0 := time.Date(2025, 1, 8, 19, 0, 0, 0, time.UTC)

	sim := New(time.UTC, testLogger())
	sim.now = func() time.Time { return t0 }

	// Full-data run primes the cache with a distinctive price series.
	in := nominalInput()
	for i := range in.SpotPrices {
		in.SpotPrices[i].PriceOreKWh = 77
	}
	if _, err := sim.Run(context.Background(), in); err != nil {
		t.Fatalf("priming run failed: %v", err)
	}

	// A degraded run within the TTL reuses the cached real prices.
	degraded := nominalInput()
	degraded.SpotPrices = nil
	result, err := sim.Run(context.Background(), degraded)
	if err != nil {
		t.Fatalf("degraded run failed: %v", err)
	}
	if result.DataQuality != DataQualityPartial {
		t.Errorf("data quality = %s, want partial despite cached prices", result.DataQuality)
	}
	for i, h := range result.HourlyData {
		if h.SpotPrice != 77 {
			t.Errorf("hour %d spot = %f, want cached 77", i, h.SpotPrice)
		}
	}

	// Past the TTL the cache is gone and the synthetic curve takes over.
	sim.now = func() time.Time { return t0.Add(25 * time.Hour) }
	stale, err := sim.Run(context.Background(), degraded)
	if err != nil {
		t.Fatalf("stale run failed: %v", err)
	}
	if stale.HourlyData[12].SpotPrice == 77 {
		t.Errorf("expected synthetic prices after cache expiry, still seeing cached value")
	}
}

func TestRunRejectsInvalidPeriod(t *testing.T) {
	in := nominalInput()
	in.PeriodStart = time.Date(2025, 1, 9, 0, 0, 0, 0, time.UTC)
	in.PeriodEnd = time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC)

	if _, err := New(time.UTC, testLogger()).Run(context.Background(), in); err == nil {
		t.Errorf("expected error for period_end before period_start")
	}
}

func TestRunMultiDayGrid(t *testing.T) {
	in := nominalInput()
	in.PeriodEnd = time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	in.SpotPrices = nil
	in.BaseLoadKW = nil

	sim := New(time.UTC, testLogger())
	result, err := sim.Run(context.Background(), in)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(result.HourlyData) != 72 {
		t.Fatalf("expected 72 hourly points for three days, got %d", len(result.HourlyData))
	}
	if got := result.HourlyData[24].Timestamp; got.Day() != 9 || got.Hour() != 0 {
		t.Errorf("second day starts at %s, want Jan 9 00:00", got)
	}
	if len(result.WorstDaysAvoided) != 3 {
		t.Errorf("worst days = %v, want all three dates", result.WorstDaysAvoided)
	}
}
