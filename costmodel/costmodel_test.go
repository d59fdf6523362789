package costmodel

import (
	"math"
	"testing"
	"time"

	"github.com/devskill-org/fleetcharge/tariff"
)

func testTariff() *tariff.GridTariff {
	return &tariff.GridTariff{
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

// winterDay returns hourly timestamps for Wed Jan 8, 2025.
func winterDay() []time.Time {
	ts := make([]time.Time, 24)
	for h := 0; h < 24; h++ {
		ts[h] = time.Date(2025, 1, 8, h, 0, 0, 0, time.UTC)
	}
	return ts
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestPeakPowerSingle(t *testing.T) {
	trf := testTariff()
	ts := winterDay()

	kw := make([]float64, 24)
	for h := range kw {
		kw[h] = 40
	}
	kw[3] = 95 // off-peak hour
	kw[10] = 80

	pMaxAll, pMaxPeak := PeakPower(kw, trf, ts)
	if !almostEqual(pMaxAll, 95) {
		t.Errorf("pMaxAll = %f, want 95", pMaxAll)
	}
	if !almostEqual(pMaxPeak, 80) {
		t.Errorf("pMaxPeak = %f, want 80", pMaxPeak)
	}
}

func TestPeakPowerAvg3(t *testing.T) {
	trf := testTariff()
	trf.PeakCalcMethod = tariff.PeakMethodAvg3
	ts := winterDay()

	kw := make([]float64, 24)
	kw[7], kw[8], kw[9] = 90, 100, 110

	pMaxAll, _ := PeakPower(kw, trf, ts)
	if !almostEqual(pMaxAll, 100) {
		t.Errorf("pMaxAll = %f, want mean of 90,100,110 = 100", pMaxAll)
	}
}

func TestPeakPowerEmptyPeakWindow(t *testing.T) {
	trf := testTariff()
	// July is not a peak month: the peak window is empty.
	ts := make([]time.Time, 24)
	for h := 0; h < 24; h++ {
		ts[h] = time.Date(2025, 7, 9, h, 0, 0, 0, time.UTC)
	}

	kw := make([]float64, 24)
	for h := range kw {
		kw[h] = 50
	}

	pMaxAll, pMaxPeak := PeakPower(kw, trf, ts)
	if !almostEqual(pMaxAll, 50) {
		t.Errorf("pMaxAll = %f, want 50", pMaxAll)
	}
	if pMaxPeak != 0 {
		t.Errorf("pMaxPeak = %f, want 0 for empty peak window", pMaxPeak)
	}
}

func TestEnergyCost(t *testing.T) {
	trf := testTariff()
	ts := winterDay()

	kw := make([]float64, 24)
	spot := make([]float64, 24)
	kw[3] = 10  // off-peak
	kw[10] = 10 // peak
	spot[3] = 50
	spot[10] = 100

	// 10*(0.50+0.038) + 10*(1.00+0.071) = 5.38 + 10.71
	got := EnergyCost(kw, spot, trf, ts)
	if !almostEqual(got, 16.09) {
		t.Errorf("EnergyCost = %f, want 16.09", got)
	}
}

func TestTotalCost(t *testing.T) {
	trf := testTariff()
	ts := winterDay()

	kw := make([]float64, 24)
	spot := make([]float64, 24)
	for h := range kw {
		kw[h] = 40
		spot[h] = 80
	}

	b := TotalCost(kw, spot, trf, ts, 1)

	wantEnergy := 0.0
	for h := range kw {
		fee := 0.038
		if trf.IsPeakHour(ts[h]) {
			fee = 0.071
		}
		wantEnergy += 40 * (0.80 + fee)
	}
	wantEnergy = math.Round(wantEnergy*100) / 100

	if !almostEqual(b.EnergyCost, wantEnergy) {
		t.Errorf("EnergyCost = %f, want %f", b.EnergyCost, wantEnergy)
	}
	if !almostEqual(b.CapacityCost, 40*59) {
		t.Errorf("CapacityCost = %f, want %f", b.CapacityCost, 40.0*59)
	}
	if !almostEqual(b.PeakCost, 40*70) {
		t.Errorf("PeakCost = %f, want %f", b.PeakCost, 40.0*70)
	}
	if !almostEqual(b.BaseFee, 365) {
		t.Errorf("BaseFee = %f, want 365", b.BaseFee)
	}
	wantTotal := math.Round((wantEnergy+40*59+40*70+365)*100) / 100
	if !almostEqual(b.Total, wantTotal) {
		t.Errorf("Total = %f, want %f", b.Total, wantTotal)
	}
}

func TestMonths(t *testing.T) {
	tests := []struct {
		days int
		want int
	}{
		{0, 1},
		{1, 1},
		{14, 1},
		{30, 1},
		{45, 2},
		{60, 2},
		{90, 3},
		{365, 12},
	}
	for _, tt := range tests {
		if got := Months(tt.days); got != tt.want {
			t.Errorf("Months(%d) = %d, want %d", tt.days, got, tt.want)
		}
	}
}
