package api

import (
	"errors"
	"net/http"

	"github.com/okian/fanpulse/internal/domain/errkind"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrRateLimited  = errors.New("rate limit exceeded")
	ErrNoLiveRecord = errors.New("no live location")
)

// Response codes carried in errorResponse.Code and used as the error_type
// label on HTTP error metrics.
const (
	codeBadRequest  = "bad_request"
	codeNotFound    = "not_found"
	codeRateLimited = "rate_limited"
	codeUpstream    = "upstream_error"
	codeInternal    = "internal_error"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusFor maps an engine error to its HTTP status and response code.
func statusFor(err error) (int, string) {
	switch errkind.KindOf(err) {
	case errkind.ErrValidation:
		return http.StatusBadRequest, codeBadRequest
	case errkind.ErrNotFound:
		return http.StatusNotFound, codeNotFound
	case errkind.ErrUpstream:
		return http.StatusBadGateway, codeUpstream
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

// writeEngineError writes err with the status its kind maps to.
func writeEngineError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	writeError(w, status, code, err)
}

// badRequest classifies a decoding or parameter error as a validation error.
func badRequest(op string, err error) error {
	return errkind.Wrap(op, errkind.ErrValidation, errors.Join(ErrBadRequest, err))
}
