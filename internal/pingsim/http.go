package pingsim

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/okian/fanpulse/pkg/logger"
)

// Submission outcomes.
const (
	resultAccepted  = "accepted"
	resultThrottled = "throttled"
	resultFailed    = "failed"
)

// errUnexpectedStatus is returned when the service answers with a status the
// caller did not ask for.
var errUnexpectedStatus = errors.New("unexpected status")

// HTTPClient wraps http.Client with the service base URL
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// newHTTPClient creates a new HTTP client with timeout
func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// do sends body as JSON (when non-nil) and returns the status and response body.
func (c *HTTPClient) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, data, nil
}

// Put sends body and expects 204.
func (c *HTTPClient) Put(ctx context.Context, path string, body any) error {
	status, data, err := c.do(ctx, http.MethodPut, path, body)
	if err != nil {
		return err
	}
	if status != http.StatusNoContent {
		return fmt.Errorf("%w: PUT %s: %d %s", errUnexpectedStatus, path, status, bytes.TrimSpace(data))
	}
	return nil
}

// Post sends body and classifies the answer of an ingestion route.
func (c *HTTPClient) Post(ctx context.Context, path string, body any) string {
	status, data, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return resultFailed
	}

	switch status {
	case http.StatusAccepted:
		var ack AckResponse
		if err := json.Unmarshal(data, &ack); err == nil && ack.Status != resultAccepted {
			return resultFailed
		}
		return resultAccepted
	case http.StatusTooManyRequests:
		return resultThrottled
	default:
		return resultFailed
	}
}

// GetJSON fetches path and decodes a 200 answer into out.
func (c *HTTPClient) GetJSON(ctx context.Context, path string, out any) error {
	status, data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: GET %s: %d %s", errUnexpectedStatus, path, status, bytes.TrimSpace(data))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// seedRegistry writes every venue and event. Seeding stops at the first failure.
func seedRegistry(ctx context.Context, client *HTTPClient, plan *Plan, stats *Stats) error {
	for _, v := range plan.Venues {
		if err := client.Put(ctx, "/v1/venues/"+v.ID, v); err != nil {
			return fmt.Errorf("failed to seed venue %s: %w", v.ID, err)
		}
		stats.VenuesSeeded++
	}
	for _, e := range plan.Events {
		if err := client.Put(ctx, "/v1/events/"+e.ID, e); err != nil {
			return fmt.Errorf("failed to seed event %s: %w", e.ID, err)
		}
		stats.EventsSeeded++
	}
	logger.Get().Info(ctx, "registry seeded",
		logger.Int("venues", stats.VenuesSeeded),
		logger.Int("events", stats.EventsSeeded))
	return nil
}

// submitVisitors replays every visitor with a worker pool. A visitor's pings
// go out in order from one worker, followed by its check-in and one usage
// record.
func submitVisitors(ctx context.Context, config *Config, client *HTTPClient, visitors []Visitor, stats *Stats) {
	logger.Get().Info(ctx, "submitting visitors",
		logger.Int("visitors", len(visitors)),
		logger.Int("workers", config.Workers))

	var (
		submitted atomic.Int64
		accepted  atomic.Int64
		failed    atomic.Int64
		throttled atomic.Int64
		checkins  atomic.Int64
		usage     atomic.Int64
	)
	count := func(result string) bool {
		switch result {
		case resultAccepted:
			return true
		case resultThrottled:
			throttled.Add(1)
		}
		return false
	}

	var lastReport atomic.Int64
	report := func() {
		now := time.Now().UnixNano()
		last := lastReport.Load()
		if now-last < int64(progressInterval) || !lastReport.CompareAndSwap(last, now) {
			return
		}
		fields := []logger.Field{
			logger.Int("submitted", int(submitted.Load())),
			logger.Int("accepted", int(accepted.Load())),
			logger.Int("failed", int(failed.Load())),
		}
		if config.Verbose {
			fields = append(fields, logger.Int("throttled", int(throttled.Load())))
		}
		logger.Get().Info(ctx, "progress", fields...)
	}

	visitorChan := make(chan int, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range visitorChan {
				if ctx.Err() != nil {
					return
				}
				v := visitors[index]
				for _, p := range v.Pings {
					submitted.Add(1)
					if count(client.Post(ctx, "/v1/locations", p)) {
						accepted.Add(1)
					} else {
						failed.Add(1)
					}
					report()
				}

				last := v.Pings[len(v.Pings)-1].ObservedAt
				if count(client.Post(ctx, "/v1/checkins", checkinRequest{EntityID: v.EntityID, EventID: v.EventID, At: last})) {
					checkins.Add(1)
				}
				if count(client.Post(ctx, "/v1/usage", usageRequest{EntityID: v.EntityID, Action: usageAction, At: last})) {
					usage.Add(1)
				}
			}
		}()
	}

	go func() {
		defer close(visitorChan)
		for i := range visitors {
			select {
			case <-ctx.Done():
				return
			case visitorChan <- i:
			}
		}
	}()

	wg.Wait()

	stats.PingsSubmitted = int(submitted.Load())
	stats.PingsAccepted = int(accepted.Load())
	stats.PingsFailed = int(failed.Load())
	stats.CheckinsAccepted = int(checkins.Load())
	stats.UsageAccepted = int(usage.Load())
	stats.RequestsThrottled = int(throttled.Load())

	logger.Get().Info(ctx, "visitor submission completed",
		logger.Int("accepted", stats.PingsAccepted),
		logger.Int("failed", stats.PingsFailed),
		logger.Int("checkins", stats.CheckinsAccepted),
		logger.Int("usage", stats.UsageAccepted),
		logger.Int("throttled", stats.RequestsThrottled))
}
