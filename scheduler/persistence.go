package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/devskill-org/fleetcharge/simulator"
	"github.com/google/uuid"
)

// saveSimulation persists one optimization result: a summary row in
// simulations and the hourly plan upserted into charging_plan so the
// dispatcher's setpoints survive a restart.
func (s *FleetScheduler) saveSimulation(ctx context.Context, site string, result *simulator.Result) error {
	if s.db == nil {
		return fmt.Errorf("database connection not available")
	}

	monteCarlo, err := json.Marshal(result.MonteCarlo)
	if err != nil {
		return fmt.Errorf("failed to marshal monte carlo block: %w", err)
	}
	breakdown, err := json.Marshal(result.Breakdown)
	if err != nil {
		return fmt.Errorf("failed to marshal breakdown: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	id := uuid.New()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO simulations (
			id,
			site,
			period_start,
			period_end,
			cost_without,
			cost_with,
			savings_total,
			savings_pct,
			peak_kw_without,
			peak_kw_with,
			data_quality,
			monte_carlo,
			breakdown,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		id,
		site,
		result.PeriodStart,
		result.PeriodEnd,
		result.CostWithout,
		result.CostWith,
		result.SavingsTotal,
		result.SavingsPct,
		result.PeakKWWithout,
		result.PeakKWWith,
		string(result.DataQuality),
		monteCarlo,
		breakdown,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert simulation: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO charging_plan (
			site,
			timestamp,
			simulation_id,
			base_kw,
			ev_kw,
			total_kw,
			spot_price,
			is_peak_hour
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (site, timestamp) DO UPDATE SET
			simulation_id = EXCLUDED.simulation_id,
			base_kw = EXCLUDED.base_kw,
			ev_kw = EXCLUDED.ev_kw,
			total_kw = EXCLUDED.total_kw,
			spot_price = EXCLUDED.spot_price,
			is_peak_hour = EXCLUDED.is_peak_hour
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, point := range result.HourlyData {
		_, err := stmt.ExecContext(ctx,
			site,
			point.Timestamp,
			id,
			point.BaseKW,
			point.EVKWWith,
			point.TotalKWWith,
			point.SpotPrice,
			point.IsPeakHour,
		)
		if err != nil {
			return fmt.Errorf("failed to insert plan hour %s: %w", point.Timestamp.Format(time.RFC3339), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Printf("Saved simulation %s for site %s (%d plan hours)", id, site, len(result.HourlyData))
	return nil
}
