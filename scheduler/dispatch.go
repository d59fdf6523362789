package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"
)

// chargerCurrentSettingID is the charger cloud API setting that holds the
// per-connector current limit in amperes.
const chargerCurrentSettingID = 710

// Single-phase 230 V chargers; the per-connector limit is 32 A.
const (
	chargerVoltage    = 230.0
	chargerMaxCurrent = 32.0
)

var dispatchClient = &http.Client{Timeout: 10 * time.Second}

// KWToAmps converts a per-vehicle charging power into a charger current
// limit, clamped to [0, 32] A and rounded to 0.1 A.
func KWToAmps(kw float64) float64 {
	amps := kw * 1000 / chargerVoltage
	if amps < 0 {
		amps = 0
	}
	if amps > chargerMaxCurrent {
		amps = chargerMaxCurrent
	}
	return math.Round(amps*10) / 10
}

// runDispatch pushes the current hour's planned charging power to every
// site's chargers. Dispatch is fire-and-forget; no charger state re-enters
// the planner.
func (s *FleetScheduler) runDispatch(ctx context.Context) {
	config := s.GetConfig()
	now := time.Now().In(s.location)
	hour := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, s.location)

	for i := range config.Sites {
		site := &config.Sites[i]
		result := s.GetLastResult(site.Name)
		if result == nil {
			continue
		}

		setpointKW := -1.0
		for _, point := range result.HourlyData {
			if point.Timestamp.Equal(hour) {
				setpointKW = point.EVKWWith
				break
			}
		}
		if setpointKW < 0 {
			// Plan does not cover this hour (stale or future plan).
			continue
		}

		perVehicleKW := setpointKW / float64(site.Fleet.Vehicles)
		amps := KWToAmps(perVehicleKW)

		if config.DryRun || site.ChargerAPIURL == "" {
			s.logger.Printf("Dispatch [%s] [DRY-RUN]: would set %.1f A per charger (%.1f kW fleet) for %s",
				site.Name, amps, setpointKW, hour.Format(time.RFC3339))
			continue
		}

		if err := s.postChargerSetting(ctx, site, amps); err != nil {
			s.logger.Printf("Dispatch [%s]: failed to set charger current: %v", site.Name, err)
			continue
		}
		s.logger.Printf("Dispatch [%s]: set %.1f A per charger (%.1f kW fleet) for %s",
			site.Name, amps, setpointKW, hour.Format(time.RFC3339))
	}
}

// postChargerSetting posts the current limit to the charger cloud API.
func (s *FleetScheduler) postChargerSetting(ctx context.Context, site *SiteConfig, amps float64) error {
	payload, err := json.Marshal(map[string]any{
		"setting_id": chargerCurrentSettingID,
		"value":      amps,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, site.ChargerAPIURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := dispatchClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("charger API returned status %d", resp.StatusCode)
	}
	return nil
}
