package client

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/url"

	"github.com/kjstillabower/forecast-alert-service/internal/circuitbreaker"
)

// ErrorCategory labels weather_api_errors_total.
type ErrorCategory string

const (
	ErrorCategoryTimeout             ErrorCategory = "timeout"
	ErrorCategoryCanceled            ErrorCategory = "canceled"
	ErrorCategoryNetwork             ErrorCategory = "network"
	ErrorCategoryInvalidAPIKey       ErrorCategory = "invalid_api_key"
	ErrorCategoryUnsupportedLocation ErrorCategory = "unsupported_location"
	ErrorCategoryRateLimited         ErrorCategory = "rate_limited"
	ErrorCategoryUpstream5xx         ErrorCategory = "upstream_5xx"
	ErrorCategoryCircuitOpen         ErrorCategory = "circuit_open"
	ErrorCategoryBadRequest          ErrorCategory = "bad_request"
	ErrorCategoryDecode              ErrorCategory = "decode"
	ErrorCategoryUnknown             ErrorCategory = "unknown"
)

// CategorizeError maps a lookup error to a stable label. Sentinels win over
// transport errors so a wrapped HTTP 503 is never counted as a network failure.
func CategorizeError(err error) ErrorCategory {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, circuitbreaker.ErrOpen):
		return ErrorCategoryCircuitOpen
	case errors.Is(err, ErrInvalidAPIKey):
		return ErrorCategoryInvalidAPIKey
	case errors.Is(err, ErrLocationNotFound):
		return ErrorCategoryUnsupportedLocation
	case errors.Is(err, ErrRateLimited):
		return ErrorCategoryRateLimited
	case errors.Is(err, ErrUpstreamFailure):
		return ErrorCategoryUpstream5xx
	case errors.Is(err, ErrBadRequest):
		return ErrorCategoryBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorCategoryTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorCategoryTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ErrorCategoryCanceled
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return ErrorCategoryDecode
	}
	var opErr *net.OpError
	var urlErr *url.Error
	if errors.As(err, &opErr) || errors.As(err, &urlErr) {
		return ErrorCategoryNetwork
	}
	return ErrorCategoryUnknown
}
