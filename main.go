// Package main provides the fleet charging optimizer entry point and CLI interface.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/devskill-org/fleetcharge/scheduler"
	"github.com/devskill-org/fleetcharge/utils"
)

func main() {
	// Command line flags
	var (
		configFile = flag.String("config", "config.json", "Configuration file path")
		simulate   = flag.Bool("simulate", false, "Run one optimization per site and print the plan")
		date       = flag.String("date", "", "Start date for -simulate (YYYY-MM-DD, default tomorrow)")
		serverOnly = flag.Bool("serverOnly", false, "Run only web server without periodic tasks")
		help       = flag.Bool("help", false, "Show help message")
	)
	flag.Parse()

	if *help {
		showHelp()
		return
	}

	config, err := scheduler.LoadConfig(*configFile)
	if err != nil {
		fmt.Println("Error loading configuration:", err)
		return
	}

	if *simulate {
		runSimulate(config, *date)
		return
	}

	fmt.Printf("Starting fleet charging optimizer with the following configuration:\n")
	fmt.Printf("  Sites: %d\n", len(config.Sites))
	fmt.Printf("  Optimization Hour: %02d:00 (%s)\n", config.OptimizationHour, config.Location)
	fmt.Printf("  Planning Horizon: %d day(s)\n", config.HorizonDays)
	fmt.Printf("  Dispatch Interval: %s\n", config.DispatchInterval)

	if config.DryRun {
		fmt.Printf("  Mode: DRY-RUN (actions will be simulated only)\n")
	}
	fmt.Println()

	// Create logger
	logger := log.New(os.Stdout, "[FLEETCHARGE] ", log.LstdFlags)

	// Create scheduler
	fleetScheduler, err := scheduler.NewFleetSchedulerWithHealthCheck(config, logger)
	if err != nil {
		fmt.Println("Error creating scheduler:", err)
		return
	}

	// Set up context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start scheduler in a goroutine
	go func() {
		if err := fleetScheduler.Start(ctx, *serverOnly); err != nil {
			if err != context.Canceled {
				logger.Printf("Scheduler error: %v", err)
			}
		}
	}()

	logger.Printf("Scheduler started. Press Ctrl+C to stop...")

	// Wait for shutdown signal
	<-sigChan
	logger.Printf("Shutdown signal received, stopping scheduler...")

	// Cancel context to stop scheduler
	cancel()

	// Give the scheduler a moment to clean up
	fleetScheduler.Stop()

	logger.Printf("Scheduler stopped successfully")
}

func runSimulate(config *scheduler.Config, date string) {
	logger := log.New(os.Stdout, "[SIMULATE] ", log.LstdFlags)

	fleetScheduler, err := scheduler.NewFleetScheduler(config, logger)
	if err != nil {
		fmt.Println("Error creating scheduler:", err)
		return
	}

	location, err := time.LoadLocation(config.Location)
	if err != nil {
		fmt.Println("Error loading location:", err)
		return
	}

	var start time.Time
	if date != "" {
		start, err = time.ParseInLocation("2006-01-02", date, location)
		if err != nil {
			fmt.Println("Error parsing -date:", err)
			return
		}
	} else {
		start = utils.Midnight(time.Now().In(location)).AddDate(0, 0, 1)
	}
	end := start.AddDate(0, 0, config.HorizonDays-1)

	ctx := context.Background()

	for i := range config.Sites {
		site := &config.Sites[i]
		result, err := fleetScheduler.OptimizeSite(ctx, site, start, end)
		if err != nil {
			logger.Printf("Site %s: %v", site.Name, err)
			continue
		}

		fmt.Println("\n========================================")
		fmt.Printf("SITE: %s (%s, %s..%s)\n", site.Name, site.Property.GridArea, result.PeriodStart, result.PeriodEnd)
		fmt.Println("========================================")
		fmt.Printf("Data quality:   %s\n", result.DataQuality)
		fmt.Printf("Cost naive:     %10.2f SEK\n", result.CostWithout)
		fmt.Printf("Cost optimized: %10.2f SEK\n", result.CostWith)
		fmt.Printf("Savings:        %10.2f SEK (%.1f%%)\n", result.SavingsTotal, result.SavingsPct)
		fmt.Printf("Billing peak:   %.1f kW -> %.1f kW\n", result.PeakKWWithout, result.PeakKWWith)
		fmt.Printf("Monte Carlo:    mean %.0f, p10 %.0f, p90 %.0f over %d trials\n",
			result.MonteCarlo.Mean, result.MonteCarlo.P10, result.MonteCarlo.P90, result.MonteCarlo.NSimulations)
		fmt.Println()

		// Print table header
		fmt.Println("┌─────────────────────┬──────────┬──────────┬──────────┬──────────┬──────────┬──────┐")
		fmt.Println("│     Timestamp       │ Base kW  │ EV naive │ EV optim │ Total kW │   Spot   │ Peak │")
		fmt.Println("│                     │          │   (kW)   │   (kW)   │  (optim) │ (öre/kWh)│ hour │")
		fmt.Println("├─────────────────────┼──────────┼──────────┼──────────┼──────────┼──────────┼──────┤")

		for _, point := range result.HourlyData {
			peak := " "
			if point.IsPeakHour {
				peak = "*"
			}
			fmt.Printf("│ %19s │  %6.1f  │  %6.1f  │  %6.1f  │  %6.1f  │  %6.1f  │  %s   │\n",
				point.Timestamp.Format("2006-01-02 15:04"),
				point.BaseKW,
				point.EVKWWithout,
				point.EVKWWith,
				point.TotalKWWith,
				point.SpotPrice,
				peak,
			)
		}

		fmt.Println("└─────────────────────┴──────────┴──────────┴──────────┴──────────┴──────────┴──────┘")
		if len(result.WorstDaysAvoided) > 0 {
			fmt.Printf("Worst days avoided: %v\n", result.WorstDaysAvoided)
		}
	}
}

func showHelp() {
	fmt.Println("Fleet Charging Optimizer - Minimize EV fleet charging costs under a capacity tariff")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Plans EV fleet charging against Nordic day-ahead spot prices and a grid")
	fmt.Println("  operator's power tariff. A linear program jointly minimizes energy cost and")
	fmt.Println("  peak-power charges under the subscribed connection ceiling, with a naive")
	fmt.Println("  cheapest-hours schedule as benchmark and failsafe.")
	fmt.Println()
	fmt.Println("  Key Features:")
	fmt.Println("  - Day-ahead price fetching with fallback pricing")
	fmt.Println("  - Joint energy + capacity tariff optimization")
	fmt.Println("  - Monte-Carlo robustness analysis of claimed savings")
	fmt.Println("  - Baseload measurement via Modbus energy meters")
	fmt.Println("  - Hourly charger setpoint dispatch")
	fmt.Println("  - Health endpoints and live status over WebSocket")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  fleetcharge [OPTIONS]")
	fmt.Println()
	fmt.Println("OPTIONS:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Run the scheduler with the default config")
	fmt.Println("  fleetcharge")
	fmt.Println()
	fmt.Println("  # Custom configuration")
	fmt.Println("  fleetcharge --config=config.json")
	fmt.Println()
	fmt.Println("  # Plan tomorrow once and print the hourly schedule")
	fmt.Println("  fleetcharge -simulate")
	fmt.Println()
	fmt.Println("  # Plan a specific date")
	fmt.Println("  fleetcharge -simulate -date=2025-01-08")
	fmt.Println()
	fmt.Println("  # Run only web server without periodic tasks")
	fmt.Println("  fleetcharge -serverOnly")
	fmt.Println()
	fmt.Println("  # Show this help")
	fmt.Println("  fleetcharge -help")
}
