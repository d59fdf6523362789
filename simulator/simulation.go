package simulator

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/devskill-org/fleetcharge/costmodel"
	"github.com/devskill-org/fleetcharge/entsoe"
	"github.com/devskill-org/fleetcharge/lpsolver"
	"github.com/devskill-org/fleetcharge/tariff"
	"github.com/devskill-org/fleetcharge/utils"
)

// worstDaysCount is how many of the largest daily load reductions the
// result reports.
const worstDaysCount = 5

// Simulator owns the last-known-good cache and runs simulations. Safe for
// concurrent use; each Run is independent apart from the cache.
type Simulator struct {
	location *time.Location
	logger   *log.Logger
	lastGood *lastGoodCache

	// now is replaceable in tests to pin cache freshness decisions.
	now func() time.Time
}

// New creates a simulator producing results on the given wall clock.
func New(location *time.Location, logger *log.Logger) *Simulator {
	return &Simulator{
		location: location,
		logger:   logger,
		lastGood: newLastGoodCache(),
		now:      time.Now,
	}
}

// Reset drops the last-known-good cache.
func (s *Simulator) Reset() {
	s.lastGood.reset()
}

// scenario bundles the resolved arrays and parameters shared by the primary
// run and the Monte-Carlo trials.
type scenario struct {
	fleetKW        float64
	energyNeed     float64
	arrival        int
	departure      int
	spot           []float64
	baseLoad       []float64
	timestamps     []time.Time
	trf            *tariff.GridTariff
	subscriptionKW float64
	safetyMargin   float64
	months         int
}

// Run executes one simulation. It never fails on degraded data; only an
// invalid request returns an error. The result's data-quality tag is the
// sole signal of degradation.
func (s *Simulator) Run(ctx context.Context, in *Input) (*Result, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("invalid simulation input: %w", err)
	}

	timestamps := s.timeGrid(in.PeriodStart, in.PeriodEnd)
	n := len(timestamps)
	months := costmodel.Months(utils.DaysBetween(in.PeriodStart, in.PeriodEnd))

	seed := in.Seed
	if seed == 0 {
		seed = s.now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	baseLoad, realBaseload := s.selectBaseload(in, n, timestamps, rng)
	spot, realPrices := s.selectPrices(in.SpotPrices, timestamps)

	quality := resolveQuality(realPrices, realBaseload)
	margin := quality.SafetyMargin()

	if !realPrices {
		if cached, ok := s.lastGood.pricesFor(in.Property.ID, n, s.now()); ok {
			s.logger.Printf("reusing last known real prices for property %s", in.Property.ID)
			spot = cached
		} else {
			spot = SyntheticPrices(rng, timestamps)
		}
	}

	sc := scenario{
		fleetKW:        in.Fleet.FleetKW(),
		energyNeed:     in.Fleet.EnergyNeedKWh(),
		arrival:        in.Fleet.ArrivalHour,
		departure:      in.Fleet.DepartureHour,
		spot:           spot,
		baseLoad:       baseLoad,
		timestamps:     timestamps,
		trf:            &in.Tariff,
		subscriptionKW: in.Property.SubscriptionKW,
		safetyMargin:   margin,
		months:         months,
	}

	naive := NaiveSchedule(sc.fleetKW, sc.energyNeed, sc.arrival, sc.departure, sc.spot, sc.timestamps)
	optimized, status := OptimizedSchedule(ctx, sc.fleetKW, sc.energyNeed, sc.arrival, sc.departure,
		sc.spot, sc.baseLoad, sc.timestamps, sc.trf, sc.subscriptionKW, sc.safetyMargin, s.logger)
	if status != lpsolver.StatusOptimal {
		optimized = naive
	}

	if quality == DataQualityOK && status == lpsolver.StatusOptimal {
		s.lastGood.store(in.Property.ID, optimized, spot, s.now())
	}

	totalWithout := totalLoad(sc.baseLoad, naive)
	totalWith := totalLoad(sc.baseLoad, optimized)
	costWithout := costmodel.TotalCost(totalWithout, sc.spot, sc.trf, sc.timestamps, months)
	costWith := costmodel.TotalCost(totalWith, sc.spot, sc.trf, sc.timestamps, months)

	savings := round2(costWithout.Total - costWith.Total)
	savingsPct := 0.0
	if costWithout.Total > 0 {
		savingsPct = round2(savings / costWithout.Total * 100)
	}

	hourly := make([]HourlyPoint, n)
	for t := 0; t < n; t++ {
		hourly[t] = HourlyPoint{
			Timestamp:      timestamps[t],
			BaseKW:         round2(sc.baseLoad[t]),
			EVKWWithout:    round2(naive[t]),
			EVKWWith:       round2(optimized[t]),
			TotalKWWithout: round2(totalWithout[t]),
			TotalKWWith:    round2(totalWith[t]),
			SpotPrice:      round2(sc.spot[t]),
			IsPeakHour:     sc.trf.IsPeakHour(timestamps[t]),
		}
	}

	return &Result{
		PeriodStart:      in.PeriodStart.Format("2006-01-02"),
		PeriodEnd:        in.PeriodEnd.Format("2006-01-02"),
		CostWithout:      costWithout.Total,
		CostWith:         costWith.Total,
		SavingsTotal:     savings,
		SavingsPct:       savingsPct,
		PeakKWWithout:    costWithout.PeakKWAll,
		PeakKWWith:       costWith.PeakKWAll,
		MonteCarlo:       monteCarlo(ctx, rng, sc),
		Breakdown: Breakdown{
			SpotCostWithout:     costWithout.EnergyCost,
			SpotCostWith:        costWith.EnergyCost,
			CapacityCostWithout: costWithout.CapacityCost,
			CapacityCostWith:    costWith.CapacityCost,
			PeakCostWithout:     costWithout.PeakCost,
			PeakCostWith:        costWith.PeakCost,
			BaseMonthlyFee:      costWithout.BaseFee,
		},
		HourlyData:       hourly,
		WorstDaysAvoided: worstDays(totalWithout, totalWith, timestamps),
		DataQuality:      quality,
	}, nil
}

// timeGrid builds the hourly wall-clock grid covering the local dates from
// start through end inclusive, 24 entries per day.
func (s *Simulator) timeGrid(start, end time.Time) []time.Time {
	days := utils.DaysBetween(start, end) + 1
	grid := make([]time.Time, 0, days*24)

	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, s.location)
	for i := 0; i < days; i++ {
		for h := 0; h < 24; h++ {
			grid = append(grid, time.Date(day.Year(), day.Month(), day.Day(), h, 0, 0, 0, s.location))
		}
		day = day.AddDate(0, 0, 1)
	}
	return grid
}

// selectBaseload uses the measured series when its length matches the grid,
// otherwise synthesizes an office profile.
func (s *Simulator) selectBaseload(in *Input, n int, timestamps []time.Time, rng *rand.Rand) ([]float64, bool) {
	if len(in.BaseLoadKW) == n {
		return in.BaseLoadKW, true
	}
	if len(in.BaseLoadKW) != 0 {
		s.logger.Printf("WARN: base load has %d entries, expected %d, treating as missing", len(in.BaseLoadKW), n)
	}
	return SyntheticBaseload(rng, in.Property.SubscriptionKW, timestamps), false
}

// selectPrices maps the supplied price points onto the grid. A series that
// covers every grid hour (by timestamp, or positionally with an exact length
// match) counts as real; anything else is treated as missing and the caller
// substitutes a synthetic or cached series. Negative prices clamp to zero.
func (s *Simulator) selectPrices(supplied []entsoe.PricePoint, timestamps []time.Time) ([]float64, bool) {
	if len(supplied) == 0 {
		return nil, false
	}

	byHour := make(map[time.Time]float64, len(supplied))
	for _, p := range supplied {
		local := p.Timestamp.In(s.location)
		hour := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, s.location)
		byHour[hour] = p.PriceOreKWh
	}

	spot := make([]float64, len(timestamps))
	covered := true
	for t, ts := range timestamps {
		price, ok := byHour[ts]
		if !ok {
			covered = false
			break
		}
		spot[t] = clampPrice(price)
	}
	if covered {
		return spot, true
	}

	if len(supplied) == len(timestamps) {
		for t, p := range supplied {
			spot[t] = clampPrice(p.PriceOreKWh)
		}
		return spot, true
	}

	s.logger.Printf("WARN: spot prices cover %d of %d grid hours, treating as missing", len(supplied), len(timestamps))
	return nil, false
}

func clampPrice(p float64) float64 {
	if p < 0 {
		return 0
	}
	return p
}

func resolveQuality(realPrices, realBaseload bool) DataQuality {
	switch {
	case realPrices && realBaseload:
		return DataQualityOK
	case realPrices || realBaseload:
		return DataQualityPartial
	default:
		return DataQualityFallback
	}
}

// worstDays returns the dates with the largest daily load reduction of the
// optimized plan over the naive one, best first, at most worstDaysCount.
func worstDays(totalWithout, totalWith []float64, timestamps []time.Time) []string {
	gaps := make(map[string]float64)
	var order []string
	for t := range timestamps {
		date := timestamps[t].Format("2006-01-02")
		if _, ok := gaps[date]; !ok {
			order = append(order, date)
		}
		gaps[date] += totalWithout[t] - totalWith[t]
	}

	sort.SliceStable(order, func(i, j int) bool {
		return gaps[order[i]] > gaps[order[j]]
	})
	if len(order) > worstDaysCount {
		order = order[:worstDaysCount]
	}
	return order
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
