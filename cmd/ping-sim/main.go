package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/fanpulse/internal/pingsim"
)

// Default configuration constants.
const (
	defaultVenues         = 5
	defaultEntities       = 1000
	defaultPingsPerEntity = 10
	defaultPastEvents     = 3
	defaultWorkers        = 2 // multiplier for runtime.NumCPU()
	defaultTimeout        = 30 * time.Second
	defaultRunTimeout     = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		venues     = flag.Int("venues", defaultVenues, "Number of venues to seed")
		entities   = flag.Int("entities", defaultEntities, "Number of simulated visitors")
		pings      = flag.Int("pings", defaultPingsPerEntity, "Location pings per visitor")
		past       = flag.Int("past", defaultPastEvents, "Historical events seeded per venue")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		settle     = flag.Duration("settle", pingsim.DefaultSettle, "Wait before verifying")
		seed       = flag.Uint64("seed", 0, "Random seed; 0 picks one from the clock")
		outputFile = flag.String("output", "", `Output file for the generated plan, "-" to skip`)
		logFile    = flag.String("log", "", "Log file for run output (default: sim_log_TIMESTAMP.log)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		pingsim.ShowHelp()
		return
	}

	closer, err := pingsim.SetupLogging(*logFile)
	if err != nil {
		_, _ = os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = closer.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
	defer cancel()

	config := &pingsim.Config{
		BaseURL:        *baseURL,
		Venues:         *venues,
		Entities:       *entities,
		PingsPerEntity: *pings,
		PastEvents:     *past,
		Workers:        *workers,
		Timeout:        *timeout,
		Settle:         *settle,
		Seed:           *seed,
		OutputFile:     *outputFile,
		LogFile:        *logFile,
		Verbose:        *verbose,
	}

	if _, err := pingsim.Run(ctx, config); err != nil {
		_, _ = os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		cancel()
		stop()
		_ = closer.Close()
		os.Exit(1) //nolint:gocritic // deferred calls run above
	}
}
