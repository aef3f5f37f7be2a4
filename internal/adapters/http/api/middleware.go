package api

import (
	"net/http"
	"strconv"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/okian/fanpulse/pkg/metrics"
)

// MetricsMiddleware wraps a route handler to record request count, latency
// and, for 4xx/5xx answers, the error breakdown.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			// Handler wrote nothing; net/http answers 200.
			status = http.StatusOK
		}
		durationMs := float64(time.Since(start).Microseconds()) / 1000
		code := strconv.Itoa(status)

		metrics.RecordHTTPRequest(endpoint, r.Method, code)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, code, durationMs)

		if status >= http.StatusBadRequest {
			errorType := errorTypeFor(status)
			metrics.RecordErrorByEndpoint(endpoint, r.Method, errorType)
			metrics.RecordErrorByType(errorType, severityFor(status))
			metrics.RecordErrorLatency("http", errorType, durationMs)
		}
	}
}

// errorTypeFor labels a failed status with the response code the handlers
// use for it.
func errorTypeFor(status int) string {
	switch {
	case status == http.StatusTooManyRequests:
		return codeRateLimited
	case status == http.StatusNotFound:
		return codeNotFound
	case status == http.StatusBadGateway:
		return codeUpstream
	case status >= http.StatusInternalServerError:
		return codeInternal
	default:
		return codeBadRequest
	}
}

// severityFor ranks failures: server faults page, throttling does not.
func severityFor(status int) string {
	switch {
	case status >= http.StatusInternalServerError:
		return "high"
	case status == http.StatusTooManyRequests:
		return "low"
	default:
		return "medium"
	}
}
