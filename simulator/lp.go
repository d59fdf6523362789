package simulator

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/devskill-org/fleetcharge/lpsolver"
	"github.com/devskill-org/fleetcharge/tariff"
)

// lpTimeLimit caps a single optimization solve.
const lpTimeLimit = 60 * time.Second

// OptimizedSchedule solves the joint energy + power-tariff charging plan.
//
// Decision variables are the hourly charging power x[t] (zero outside the
// availability window, at most fleetKW), the billing peak M over all hours
// and the billing peak P over peak-window hours. The plan must deliver
// energyNeed kWh and keep base load plus charging under the effective
// ceiling subscriptionKW * (1 - safetyMargin) at every hour.
//
// A non-optimal solver status returns (nil, status); the caller falls back
// to the naive schedule.
func OptimizedSchedule(
	ctx context.Context,
	fleetKW, energyNeed float64,
	arrival, departure int,
	spot, baseLoad []float64,
	timestamps []time.Time,
	trf *tariff.GridTariff,
	subscriptionKW, safetyMargin float64,
	logger *log.Logger,
) ([]float64, lpsolver.Status) {
	n := len(timestamps)
	sEff := subscriptionKW * (1 - safetyMargin)

	prob := lpsolver.New()

	inWindow := make([]bool, n)
	xVar := make([]int, n)
	for t := 0; t < n; t++ {
		inWindow[t] = inChargingWindow(timestamps[t].Hour(), arrival, departure)

		fee := trf.EnergyFeeOffpeak
		if trf.IsPeakHour(timestamps[t]) {
			fee = trf.EnergyFeePeak
		}
		upper := fleetKW
		if !inWindow[t] {
			upper = 0
		}
		xVar[t] = prob.AddVariable(spot[t]/100.0+fee, upper)
	}
	mVar := prob.AddVariable(trf.CapacityFeeKW, math.Inf(1))
	pVar := prob.AddVariable(trf.PeakFeeKW, math.Inf(1))

	energyBudget := make(map[int]float64, n)
	for t := 0; t < n; t++ {
		energyBudget[xVar[t]] = 1
	}
	prob.AddConstraintGE(energyBudget, energyNeed)

	for t := 0; t < n; t++ {
		// base_load[t] + x[t] <= S_eff
		prob.AddConstraintLE(map[int]float64{xVar[t]: 1}, sEff-baseLoad[t])
		// M >= base_load[t] + x[t]
		prob.AddConstraintLE(map[int]float64{xVar[t]: 1, mVar: -1}, -baseLoad[t])
		if trf.IsPeakHour(timestamps[t]) {
			// P >= base_load[t] + x[t]
			prob.AddConstraintLE(map[int]float64{xVar[t]: 1, pVar: -1}, -baseLoad[t])
		}
	}

	sol, status := prob.Solve(ctx, lpTimeLimit)
	if status != lpsolver.StatusOptimal {
		windowCapacity := float64(len(windowIndices(arrival, departure, timestamps))) * fleetKW
		logger.Printf("WARN: optimization %s (energy need %.1f kWh, window capacity %.1f kWh, effective ceiling %.1f kW), using naive schedule",
			status, energyNeed, windowCapacity, sEff)
		return nil, status
	}

	schedule := make([]float64, n)
	for t := 0; t < n; t++ {
		kw := sol.X[xVar[t]]
		if kw < 0 || !inWindow[t] {
			kw = 0
		}
		schedule[t] = kw
	}
	return schedule, status
}
