// Package scheduler runs the fleet charging service: it polls baseload
// meters, re-optimizes every site's charging plan nightly when the next
// day-ahead prices are out, persists the results and pushes hourly charger
// setpoints.
package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/devskill-org/fleetcharge/entsoe"
	"github.com/devskill-org/fleetcharge/simulator"
	_ "github.com/lib/pq"
)

// PeriodicTask represents a task that runs periodically with an optional initial delay
type PeriodicTask struct {
	name         string
	initialDelay time.Duration
	interval     time.Duration
	runFunc      func()
}

// run executes the periodic task in a loop, respecting the initial delay and context cancellation
func (pt *PeriodicTask) run(ctx context.Context, stopChan <-chan struct{}, logger *log.Logger) {
	if pt.initialDelay > 0 {
		logger.Printf("[%s] Waiting for initial delay: %v", pt.name, pt.initialDelay)
		select {
		case <-time.After(pt.initialDelay):
			logger.Printf("[%s] Initial delay passed, running first iteration", pt.name)
			pt.runFunc()
		case <-ctx.Done():
			logger.Printf("[%s] Stopped during initial delay due to context cancellation", pt.name)
			return
		case <-stopChan:
			logger.Printf("[%s] Stopped during initial delay due to stop signal", pt.name)
			return
		}
	} else {
		logger.Printf("[%s] Running immediately (no initial delay)", pt.name)
		pt.runFunc()
	}

	ticker := time.NewTicker(pt.interval)
	defer ticker.Stop()

	logger.Printf("[%s] Started with interval: %v", pt.name, pt.interval)

	for {
		select {
		case <-ticker.C:
			pt.runFunc()
		case <-ctx.Done():
			logger.Printf("[%s] Stopped due to context cancellation", pt.name)
			return
		case <-stopChan:
			logger.Printf("[%s] Stopped due to stop signal", pt.name)
			return
		}
	}
}

// FleetScheduler coordinates price fetching, baseload measurement, nightly
// optimization and setpoint dispatch for all configured sites.
type FleetScheduler struct {
	// Configuration
	config   *Config
	location *time.Location

	// Collaborators
	prices    *entsoe.Client
	simulator *simulator.Simulator

	// State
	samples     map[string]*LoadSamples
	profiles    map[string]*BaseloadProfile
	lastResults map[string]*simulator.Result
	lastRunAt   map[string]time.Time
	isRunning   bool
	stopChan    chan struct{}
	mu          sync.RWMutex

	// Web server
	webServer *WebServer

	// Database connection
	db *sql.DB

	// Logging
	logger *log.Logger
}

// NewFleetScheduler creates a new scheduler instance
func NewFleetScheduler(config *Config, logger *log.Logger) (*FleetScheduler, error) {
	if logger == nil {
		logger = log.Default()
	}

	location, err := time.LoadLocation(config.Location)
	if err != nil {
		return nil, fmt.Errorf("invalid location %q: %w", config.Location, err)
	}

	s := &FleetScheduler{
		config:      config,
		location:    location,
		prices:      entsoe.NewClient(config.APIBaseURL, config.SecurityToken, location, logger),
		simulator:   simulator.New(location, logger),
		samples:     make(map[string]*LoadSamples),
		profiles:    make(map[string]*BaseloadProfile),
		lastResults: make(map[string]*simulator.Result),
		lastRunAt:   make(map[string]time.Time),
		stopChan:    make(chan struct{}),
		logger:      logger,
	}
	for i := range config.Sites {
		s.samples[config.Sites[i].Name] = &LoadSamples{}
		s.profiles[config.Sites[i].Name] = &BaseloadProfile{}
	}

	return s, nil
}

// NewFleetSchedulerWithHealthCheck creates a new scheduler instance with health check server
func NewFleetSchedulerWithHealthCheck(config *Config, logger *log.Logger) (*FleetScheduler, error) {
	s, err := NewFleetScheduler(config, logger)
	if err != nil {
		return nil, err
	}
	s.webServer = NewWebServer(s, config.HealthCheckPort)
	return s, nil
}

// GetConfig returns the current configuration
func (s *FleetScheduler) GetConfig() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// GetLastResult returns the most recent optimization result for a site.
func (s *FleetScheduler) GetLastResult(site string) *simulator.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastResults[site]
}

// nextOccurrence returns the delay until the next local occurrence of the
// given hour.
func (s *FleetScheduler) nextOccurrence(now time.Time, hour int) time.Duration {
	local := now.In(s.location)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, s.location)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(local)
}

func (s *FleetScheduler) getInitialDelay(now time.Time, delayInterval time.Duration) time.Duration {
	top := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())
	delay := now.Sub(top)
	for delay > 0 {
		delay = delay - delayInterval
	}
	return -delay
}

// Start begins the scheduler's periodic tasks
func (s *FleetScheduler) Start(ctx context.Context, serverOnly bool) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	if s.config.DryRun {
		s.logger.Printf("DRY-RUN MODE ENABLED: Actions will be simulated only")
	}

	// Start web server if configured
	if s.webServer != nil {
		err := s.webServer.Start()
		if err != nil {
			s.logger.Printf("Failed to start web server: %v", err)
		} else {
			s.logger.Printf("Web server started on port %d", s.webServer.port)
		}
		if serverOnly {
			return err
		}
	}

	config := s.GetConfig()

	if config.PostgresConnString != "" {
		db, err := sql.Open("postgres", config.PostgresConnString)
		if err != nil {
			s.logger.Printf("Persistence: failed to connect to DB: %v", err)
		} else {
			s.db = db
		}
	}

	// Calculate initial delays
	now := time.Now()
	profileInitialDelay := s.getInitialDelay(now, config.ProfileIntegration)
	dispatchInitialDelay := s.getInitialDelay(now, config.DispatchInterval) + 2*time.Second
	nightlyInitialDelay := s.nextOccurrence(now, config.OptimizationHour)

	// Create periodic tasks
	tasks := []PeriodicTask{
		{
			name:         "MeterPoll",
			initialDelay: 0, // Run immediately
			interval:     config.MeterPollInterval,
			runFunc: func() {
				s.runMeterPoll()
			},
		},
		{
			name:         "ProfileIntegration",
			initialDelay: profileInitialDelay,
			interval:     config.ProfileIntegration,
			runFunc: func() {
				s.runProfileIntegration()
			},
		},
		{
			name:         "NightlyOptimization",
			initialDelay: nightlyInitialDelay,
			interval:     24 * time.Hour,
			runFunc: func() {
				s.runNightlyOptimization(ctx)
			},
		},
		{
			name:         "Dispatch",
			initialDelay: dispatchInitialDelay,
			interval:     config.DispatchInterval,
			runFunc: func() {
				s.runDispatch(ctx)
			},
		},
	}

	// Start each periodic task in its own goroutine
	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		task := task // capture loop variable
		go func() {
			defer wg.Done()
			task.run(ctx, s.stopChan, s.logger)
		}()
	}

	// Wait for all tasks to complete
	wg.Wait()

	s.logger.Printf("All periodic tasks stopped")
	s.stop()
	return nil
}

// Stop gracefully stops the scheduler
func (s *FleetScheduler) Stop() {
	s.stop()
}

func (s *FleetScheduler) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	s.isRunning = false

	// Close stopChan if it's not already closed
	select {
	case <-s.stopChan:
		// Already closed
	default:
		close(s.stopChan)
	}

	// Stop web server if running
	if s.webServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.webServer.Stop(ctx); err != nil {
			s.logger.Printf("Error stopping web server: %v", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Printf("Error closing database: %v", err)
		}
		s.db = nil
	}
}

// IsRunning returns whether the scheduler is currently running
func (s *FleetScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// SchedulerStatus represents the current status of the scheduler
type SchedulerStatus struct {
	IsRunning      bool `json:"is_running"`
	SitesCount     int  `json:"sites_count"`
	OptimizedSites int  `json:"optimized_sites"`
}

// GetStatus returns the current status of the scheduler
func (s *FleetScheduler) GetStatus() SchedulerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return SchedulerStatus{
		IsRunning:      s.isRunning,
		SitesCount:     len(s.config.Sites),
		OptimizedSites: len(s.lastResults),
	}
}
