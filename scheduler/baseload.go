package scheduler

import (
	"sync"
	"time"

	"github.com/devskill-org/fleetcharge/meter"
)

// LoadSample represents a single power measurement from a site meter.
type LoadSample struct {
	kw float64
	ts time.Time
}

// LoadSamples is a thread-safe collection of power measurement samples.
type LoadSamples struct {
	mu      sync.Mutex
	samples []LoadSample
}

// Add records a new power measurement.
func (d *LoadSamples) Add(kw float64, ts time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.samples = append(d.samples, LoadSample{kw: kw, ts: ts})
}

// Drain removes and returns all samples with timestamp <= cutoffTime.
func (d *LoadSamples) Drain(cutoffTime time.Time) []LoadSample {
	d.mu.Lock()
	defer d.mu.Unlock()

	var drained, kept []LoadSample
	for _, sample := range d.samples {
		if sample.ts.After(cutoffTime) {
			kept = append(kept, sample)
		} else {
			drained = append(drained, sample)
		}
	}
	d.samples = kept
	return drained
}

// IsEmpty returns true if there are no samples collected.
func (d *LoadSamples) IsEmpty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.samples) == 0
}

// BaseloadProfile accumulates measured power into a 24-slot hourly average
// curve. The profile counts as measured only once every local hour has at
// least one sample; until then the optimizer runs on a synthetic curve.
type BaseloadProfile struct {
	mu    sync.Mutex
	sumKW [24]float64
	count [24]int
}

// Fold merges a batch of samples into the hourly slots.
func (p *BaseloadProfile) Fold(samples []LoadSample, location *time.Location) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, sample := range samples {
		h := sample.ts.In(location).Hour()
		p.sumKW[h] += sample.kw
		p.count[h]++
	}
}

// Complete reports whether every hour of the day has been observed.
func (p *BaseloadProfile) Complete() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.count {
		if c == 0 {
			return false
		}
	}
	return true
}

// Series tiles the hourly averages across the given timestamp grid.
func (p *BaseloadProfile) Series(timestamps []time.Time) []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	series := make([]float64, len(timestamps))
	for i, ts := range timestamps {
		h := ts.Hour()
		if p.count[h] > 0 {
			series[i] = p.sumKW[h] / float64(p.count[h])
		}
	}
	return series
}

// runMeterPoll samples every site meter once. Connections are opened per
// poll so a flaky meter cannot wedge the task.
func (s *FleetScheduler) runMeterPoll() {
	config := s.GetConfig()
	for i := range config.Sites {
		site := &config.Sites[i]
		if site.MeterAddress == "" {
			continue
		}

		m, err := meter.NewModbusMeter(site.MeterAddress, byte(site.MeterSlaveID))
		if err != nil {
			s.logger.Printf("Baseload [%s]: failed to create modbus client: %v", site.Name, err)
			continue
		}
		kw, err := m.ActivePowerKW()
		m.Close()
		if err != nil {
			s.logger.Printf("Baseload [%s]: failed to read active power: %v", site.Name, err)
			continue
		}

		s.samples[site.Name].Add(kw, time.Now())
	}
}

// runProfileIntegration folds collected samples into each site's hourly
// baseload profile.
func (s *FleetScheduler) runProfileIntegration() {
	now := time.Now()
	for name, samples := range s.samples {
		if samples.IsEmpty() {
			continue
		}
		batch := samples.Drain(now)
		s.profiles[name].Fold(batch, s.location)
		s.logger.Printf("Baseload [%s]: integrated %d samples", name, len(batch))
	}
}
