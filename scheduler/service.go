package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/devskill-org/fleetcharge/simulator"
	"github.com/devskill-org/fleetcharge/utils"
)

// runNightlyOptimization plans the next day (or configured horizon) for
// every site. The task fires after the market operator has published the
// day-ahead prices.
func (s *FleetScheduler) runNightlyOptimization(ctx context.Context) {
	config := s.GetConfig()
	now := time.Now().In(s.location)
	start := utils.Midnight(now).AddDate(0, 0, 1)
	end := start.AddDate(0, 0, config.HorizonDays-1)

	for i := range config.Sites {
		site := &config.Sites[i]
		result, err := s.OptimizeSite(ctx, site, start, end)
		if err != nil {
			s.logger.Printf("Optimization [%s]: %v", site.Name, err)
			continue
		}
		s.logger.Printf("Optimization [%s]: %s..%s quality=%s savings=%.2f (%.1f%%) peak %.1f -> %.1f kW",
			site.Name, result.PeriodStart, result.PeriodEnd, result.DataQuality,
			result.SavingsTotal, result.SavingsPct, result.PeakKWWithout, result.PeakKWWith)
	}
}

// OptimizeSite fetches prices, assembles the simulation input and runs one
// optimization for the site over [start, end] inclusive local dates.
func (s *FleetScheduler) OptimizeSite(ctx context.Context, site *SiteConfig, start, end time.Time) (*simulator.Result, error) {
	// Fetch one extra day: the market publishes delivery hours on UTC
	// dates, so the late local evening of the last day lands in the next
	// document day. The simulator keeps only the grid hours it needs.
	prices, err := s.prices.FetchDayAheadPrices(ctx, site.Property.GridArea, start, end.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("price fetch failed: %w", err)
	}

	in := &simulator.Input{
		Property:    site.Property,
		Fleet:       site.Fleet,
		Tariff:      site.Tariff,
		PeriodStart: start,
		PeriodEnd:   end,
		SpotPrices:  prices,
	}
	if in.Property.ID == "" {
		in.Property.ID = site.Name
	}

	if profile := s.profiles[site.Name]; profile != nil && profile.Complete() {
		in.BaseLoadKW = profile.Series(s.hourGrid(start, end))
	}

	result, err := s.simulator.Run(ctx, in)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.lastResults[site.Name] = result
	s.lastRunAt[site.Name] = time.Now()
	s.mu.Unlock()

	if s.db != nil {
		if err := s.saveSimulation(ctx, site.Name, result); err != nil {
			s.logger.Printf("Persistence [%s]: %v", site.Name, err)
		}
	}

	return result, nil
}

// hourGrid mirrors the simulator's hourly grid: 24 wall-clock hours per
// local date from start through end inclusive.
func (s *FleetScheduler) hourGrid(start, end time.Time) []time.Time {
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
