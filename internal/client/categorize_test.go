package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"

	"github.com/kjstillabower/forecast-alert-service/internal/circuitbreaker"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestCategorizeError(t *testing.T) {
	var syntaxErr error
	if err := json.Unmarshal([]byte("{"), &struct{}{}); err != nil {
		syntaxErr = fmt.Errorf("parse hourly response: %w", err)
	}
	refused := &url.Error{Op: "Get", URL: "https://weather.example.com", Err: &net.OpError{Op: "dial", Err: errors.New("connection refused")}}

	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ""},
		{"deadline", fmt.Errorf("request timeout: %w", context.DeadlineExceeded), ErrorCategoryTimeout},
		{"canceled", fmt.Errorf("request timeout: %w", context.Canceled), ErrorCategoryCanceled},
		{"transport timeout", &url.Error{Op: "Get", URL: "x", Err: timeoutErr{}}, ErrorCategoryTimeout},
		{"invalid API key", fmt.Errorf("%w: HTTP 403", ErrInvalidAPIKey), ErrorCategoryInvalidAPIKey},
		{"unsupported location", ErrLocationNotFound, ErrorCategoryUnsupportedLocation},
		{"rate limited", ErrRateLimited, ErrorCategoryRateLimited},
		{"upstream 5xx", fmt.Errorf("%w: HTTP 503", ErrUpstreamFailure), ErrorCategoryUpstream5xx},
		{"bad request", fmt.Errorf("%w: HTTP 400", ErrBadRequest), ErrorCategoryBadRequest},
		{"circuit open", fmt.Errorf("%w: %w", ErrUpstreamFailure, circuitbreaker.ErrOpen), ErrorCategoryCircuitOpen},
		{"decode", syntaxErr, ErrorCategoryDecode},
		{"connection refused", fmt.Errorf("http request failed: %w", refused), ErrorCategoryNetwork},
		{"unknown", errors.New("something else"), ErrorCategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategorizeError(tt.err); got != tt.want {
				t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}
