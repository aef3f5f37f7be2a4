// Package pingsim drives a running service with simulated visitors: it seeds
// venues and events, replays location pings, check-ins and usage over HTTP,
// then reads the analytics back.
package pingsim

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/okian/fanpulse/pkg/logger"
)

// ErrInvalidConfig is returned by Run for unusable settings.
var ErrInvalidConfig = errors.New("invalid simulation config")

// Run executes the complete simulation.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	if err := validate(config); err != nil {
		return nil, err
	}
	if config.Seed == 0 {
		config.Seed = uint64(time.Now().UnixNano()) //nolint:gosec // clock is non-negative
	}

	stats := &Stats{StartTime: time.Now()}

	logger.Get().Info(ctx, "starting fanpulse ping simulation",
		logger.String("baseURL", config.BaseURL),
		logger.Int("venues", config.Venues),
		logger.Int("entities", config.Entities),
		logger.Int("pingsPerEntity", config.PingsPerEntity),
		logger.Int("workers", config.Workers),
		logger.Duration("timeout", config.Timeout),
		logger.Any("seed", config.Seed),
		logger.Any("verbose", config.Verbose))

	client := newHTTPClient(config.BaseURL, config.Timeout)

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, client); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Generate the plan
	plan, err := generatePlan(ctx, config, time.Now(), stats)
	if err != nil {
		return nil, fmt.Errorf("plan generation failed: %w", err)
	}

	// Step 3: Seed venues and events
	if err := seedRegistry(ctx, client, plan, stats); err != nil {
		return nil, fmt.Errorf("registry seeding failed: %w", err)
	}

	// Step 4: Submit visitors concurrently
	submitVisitors(ctx, config, client, plan.Visitors, stats)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("submission interrupted: %w", err)
	}

	// Step 5: Wait for the append workers
	if config.Settle > 0 {
		logger.Get().Info(ctx, "waiting for records to be appended", logger.Duration("settle", config.Settle))
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("settle interrupted: %w", ctx.Err())
		case <-time.After(config.Settle):
		}
	}

	// Step 6: Verify results
	if err := verifyResults(ctx, config, client, plan, stats); err != nil {
		return nil, fmt.Errorf("result verification failed: %w", err)
	}

	// Step 7: Save the plan to file
	if config.OutputFile != "-" {
		if err := savePlanToFile(ctx, config, plan); err != nil {
			logger.Get().Warn(ctx, "failed to save plan to file", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	displayFinalStats(stats)

	logger.Get().Info(ctx, "simulation completed successfully")
	return stats, nil
}

func validate(config *Config) error {
	switch {
	case config.BaseURL == "":
		return fmt.Errorf("%w: base url is required", ErrInvalidConfig)
	case config.Venues <= 0:
		return fmt.Errorf("%w: venues must be positive", ErrInvalidConfig)
	case config.Entities < 0:
		return fmt.Errorf("%w: entities must not be negative", ErrInvalidConfig)
	case config.PingsPerEntity <= 0:
		return fmt.Errorf("%w: pings per entity must be positive", ErrInvalidConfig)
	case config.PastEvents < 0:
		return fmt.Errorf("%w: past events must not be negative", ErrInvalidConfig)
	case config.Workers <= 0:
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	case config.Timeout <= 0:
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, client *HTTPClient) error {
	logger.Get().Info(ctx, "checking service health")

	// Any 200 is healthy; the route answers with Prometheus metrics.
	if err := client.GetJSON(ctx, "/healthz", nil); err != nil {
		return fmt.Errorf("failed to reach service: %w", err)
	}

	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// savePlanToFile writes the generated events and visitors as JSON.
func savePlanToFile(ctx context.Context, config *Config, plan *Plan) error {
	filename := config.OutputFile
	if filename == "" {
		filename = "generated_pings_" + time.Now().Format("20060102_150405") + ".json"
	}

	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}
	if err := os.WriteFile(filename, append(data, '\n'), logFilePermission); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	logger.Get().Info(ctx, "plan saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(stats *Stats) {
	var successRate, pingsPerSecond float64

	if stats.PingsSubmitted > 0 {
		successRate = float64(stats.PingsAccepted) / float64(stats.PingsSubmitted) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		pingsPerSecond = float64(stats.PingsSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("venuesSeeded", stats.VenuesSeeded),
		logger.Int("eventsSeeded", stats.EventsSeeded),
		logger.Int("pingsGenerated", stats.PingsGenerated),
		logger.Int("pingsSubmitted", stats.PingsSubmitted),
		logger.Int("pingsAccepted", stats.PingsAccepted),
		logger.Int("pingsFailed", stats.PingsFailed),
		logger.Int("checkinsAccepted", stats.CheckinsAccepted),
		logger.Int("usageAccepted", stats.UsageAccepted),
		logger.Int("requestsThrottled", stats.RequestsThrottled),
		logger.Int("snapshotMismatches", stats.SnapshotMismatches),
		logger.Int("heatmapRecords", stats.HeatmapRecords),
		logger.Int("popularAreas", stats.PopularAreas),
		logger.Int("movementEdges", stats.MovementEdges),
		logger.Int("forecastsRetrieved", stats.ForecastsRetrieved),
		logger.Int("dashboardEntities", stats.DashboardEntities),
		logger.Duration("duration", stats.Duration),
		logger.Float64("successRate", successRate),
		logger.Float64("pingsPerSecond", pingsPerSecond))
}
