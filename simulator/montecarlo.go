package simulator

import (
	"context"
	"io"
	"log"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync"

	"github.com/devskill-org/fleetcharge/costmodel"
	"github.com/devskill-org/fleetcharge/lpsolver"
)

// mcTrials is the number of Monte-Carlo jitter trials per simulation.
const mcTrials = 200

// mcTrial holds one trial's jittered parameters. They are drawn up front
// from a single RNG so the aggregate statistics are reproducible for a
// fixed seed regardless of how the trials are scheduled.
type mcTrial struct {
	arrival    int
	departure  int
	energyNeed float64
	baseFactor float64
}

// monteCarlo re-runs the naive and optimized schedules under jittered
// arrival/departure hours, energy need and baseload, and summarizes the
// per-trial cost difference naive minus optimized. Negative entries are
// legitimate: extreme jitter can make the naive plan win, and the
// distribution reports that honestly.
func monteCarlo(ctx context.Context, rng *rand.Rand, sc scenario) MonteCarloStats {
	trials := make([]mcTrial, mcTrials)
	for i := range trials {
		trials[i] = mcTrial{
			arrival:    sc.arrival + rng.Intn(3) - 1,
			departure:  sc.departure + rng.Intn(3) - 1,
			energyNeed: sc.energyNeed * uniform(rng, 0.85, 1.15),
			baseFactor: uniform(rng, 0.90, 1.10),
		}
	}

	// Infeasible trials fall back to the naive plan without logging;
	// a hard winter scenario would otherwise emit hundreds of warnings.
	quiet := log.New(io.Discard, "", 0)

	deltas := make([]float64, mcTrials)
	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := runtime.GOMAXPROCS(0)
	if workers > mcTrials {
		workers = mcTrials
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				deltas[i] = runTrial(ctx, sc, trials[i], quiet)
			}
		}()
	}
	for i := 0; i < mcTrials; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return summarize(deltas)
}

func runTrial(ctx context.Context, sc scenario, tr mcTrial, quiet *log.Logger) float64 {
	base := make([]float64, len(sc.baseLoad))
	for t, kw := range sc.baseLoad {
		base[t] = kw * tr.baseFactor
	}

	naive := NaiveSchedule(sc.fleetKW, tr.energyNeed, tr.arrival, tr.departure, sc.spot, sc.timestamps)
	optimized, status := OptimizedSchedule(ctx, sc.fleetKW, tr.energyNeed, tr.arrival, tr.departure,
		sc.spot, base, sc.timestamps, sc.trf, sc.subscriptionKW, sc.safetyMargin, quiet)
	if status != lpsolver.StatusOptimal {
		optimized = naive
	}

	costNaive := costmodel.TotalCost(totalLoad(base, naive), sc.spot, sc.trf, sc.timestamps, sc.months)
	costOptimized := costmodel.TotalCost(totalLoad(base, optimized), sc.spot, sc.trf, sc.timestamps, sc.months)
	return costNaive.Total - costOptimized.Total
}

// totalLoad adds the EV schedule on top of the base load.
func totalLoad(base, ev []float64) []float64 {
	total := make([]float64, len(base))
	for t := range base {
		total[t] = base[t] + ev[t]
	}
	return total
}

// summarize reduces the trial deltas to whole-unit summary statistics.
func summarize(deltas []float64) MonteCarloStats {
	n := len(deltas)
	mean := 0.0
	for _, d := range deltas {
		mean += d
	}
	mean /= float64(n)

	variance := 0.0
	for _, d := range deltas {
		variance += (d - mean) * (d - mean)
	}
	variance /= float64(n)

	sorted := make([]float64, n)
	copy(sorted, deltas)
	sort.Float64s(sorted)

	return MonteCarloStats{
		Mean:         math.Round(mean),
		Median:       math.Round(percentile(sorted, 0.50)),
		P10:          math.Round(percentile(sorted, 0.10)),
		P90:          math.Round(percentile(sorted, 0.90)),
		Std:          math.Round(math.Sqrt(variance)),
		NSimulations: n,
	}
}

// percentile computes the q-quantile of a sorted slice with linear
// interpolation between the two nearest ranks.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
