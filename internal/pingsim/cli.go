package pingsim

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/fanpulse/pkg/logger"
)

// SetupLogging sends console-formatted logs to stdout and a file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string) (io.Closer, error) {
	if logFile == "" {
		logFile = "sim_log_" + time.Now().Format("20060102_150405") + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	if err := logger.InitWithOptions(logger.Options{
		Writer: io.MultiWriter(os.Stdout, file),
		Format: "console",
	}); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return file, nil
}

// ShowHelp prints usage information for the ping simulator.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`FanPulse Ping Simulator
=======================

Seeds venues and events, replays concurrent visitors against a running
FanPulse service, then reads snapshots, heatmap, forecasts and the dashboard
back.

Usage:
  go run ./cmd/ping-sim [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -venues int
        Number of venues to seed (default 5)
  -entities int
        Number of simulated visitors (default 1000)
  -pings int
        Location pings per visitor (default 10)
  -past int
        Historical events seeded per venue (default 3)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -settle duration
        Wait before verifying (default 2s)
  -seed uint
        Random seed; 0 picks one from the clock
  -output string
        Output file for the generated plan, "-" to skip
        (default: generated_pings_TIMESTAMP.json)
  -log string
        Log file for run output (default: sim_log_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Simulate with default settings
  go run ./cmd/ping-sim

  # A larger crowd on a different port
  go run ./cmd/ping-sim -entities 50000 -workers 16 -url http://localhost:8080

  # Reproducible run
  go run ./cmd/ping-sim -seed 42 -verbose
`)
}
