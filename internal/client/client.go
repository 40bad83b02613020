package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/forecast-alert-service/internal/circuitbreaker"
	"github.com/kjstillabower/forecast-alert-service/internal/forecast"
	"github.com/kjstillabower/forecast-alert-service/internal/observability"
)

// WeatherClient fetches the three raw forecast sub-resources for a coordinate.
type WeatherClient interface {
	CurrentConditions(ctx context.Context, lat, lon float64) (*forecast.RawCurrent, error)
	DailyForecast(ctx context.Context, lat, lon float64) (*forecast.RawDaily, error)
	HourlyForecast(ctx context.Context, lat, lon float64) (*forecast.RawHourly, error)
}

var (
	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrLocationNotFound = errors.New("location not found")
	ErrUpstreamFailure  = errors.New("upstream failure")
	ErrRateLimited      = errors.New("rate limited")
	ErrBadRequest       = errors.New("bad request")
)

// Endpoint names, used as metric labels.
const (
	EndpointCurrent = "current"
	EndpointDaily   = "daily"
	EndpointHourly  = "hourly"
)

var endpointPaths = map[string]string{
	EndpointCurrent: "/currentConditions:lookup",
	EndpointDaily:   "/forecast/days:lookup",
	EndpointHourly:  "/forecast/hours:lookup",
}

// Config configures GoogleWeatherClient. Zero values take defaults.
type Config struct {
	APIKey         string
	BaseURL        string
	Timeout        time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	Days           int
	Hours          int
	PageSize       int
	// Breaker is optional; nil disables circuit breaking.
	Breaker *circuitbreaker.CircuitBreaker
}

// GoogleWeatherClient talks to the Google Weather API lookup endpoints.
type GoogleWeatherClient struct {
	apiKey         string
	baseURL        string
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	days           int
	hours          int
	pageSize       int
	breaker        *circuitbreaker.CircuitBreaker
}

// NewGoogleWeatherClient validates cfg and returns a client.
func NewGoogleWeatherClient(cfg Config) (*GoogleWeatherClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(cfg.APIKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil || cfg.BaseURL == "" {
		return nil, fmt.Errorf("invalid API URL %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 100 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 2 * time.Second
	}
	if cfg.Days <= 0 {
		cfg.Days = 7
	}
	if cfg.Hours <= 0 {
		cfg.Hours = 168
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 24
	}

	return &GoogleWeatherClient{
		apiKey:         cfg.APIKey,
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		timeout:        cfg.Timeout,
		retryAttempts:  cfg.RetryAttempts,
		retryBaseDelay: cfg.RetryBaseDelay,
		retryMaxDelay:  cfg.RetryMaxDelay,
		days:           cfg.Days,
		hours:          cfg.Hours,
		pageSize:       cfg.PageSize,
		breaker:        cfg.Breaker,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}, nil
}

// CurrentConditions fetches currentConditions:lookup.
func (c *GoogleWeatherClient) CurrentConditions(ctx context.Context, lat, lon float64) (*forecast.RawCurrent, error) {
	var out forecast.RawCurrent
	if err := c.get(ctx, EndpointCurrent, c.locationParams(lat, lon), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DailyForecast fetches forecast/days:lookup for the configured number of days.
func (c *GoogleWeatherClient) DailyForecast(ctx context.Context, lat, lon float64) (*forecast.RawDaily, error) {
	params := c.locationParams(lat, lon)
	params.Set("days", strconv.Itoa(c.days))
	var out forecast.RawDaily
	if err := c.get(ctx, EndpointDaily, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// HourlyForecast fetches forecast/hours:lookup, following nextPageToken until
// the configured number of hours is collected or the provider stops paging.
func (c *GoogleWeatherClient) HourlyForecast(ctx context.Context, lat, lon float64) (*forecast.RawHourly, error) {
	merged := &forecast.RawHourly{}
	token := ""
	for {
		params := c.locationParams(lat, lon)
		params.Set("hours", strconv.Itoa(c.hours))
		params.Set("pageSize", strconv.Itoa(c.pageSize))
		if token != "" {
			params.Set("pageToken", token)
		}
		var page forecast.RawHourly
		if err := c.get(ctx, EndpointHourly, params, &page); err != nil {
			return nil, err
		}
		merged.ForecastHours = append(merged.ForecastHours, page.ForecastHours...)
		token = page.NextPageToken
		if token == "" || len(page.ForecastHours) == 0 || len(merged.ForecastHours) >= c.hours {
			break
		}
	}
	if len(merged.ForecastHours) > c.hours {
		merged.ForecastHours = merged.ForecastHours[:c.hours]
	}
	return merged, nil
}

func (c *GoogleWeatherClient) locationParams(lat, lon float64) url.Values {
	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("location.latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("location.longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	return params
}

// get runs one logical request with retry and the optional circuit breaker.
func (c *GoogleWeatherClient) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	call := func() error { return c.getWithRetry(ctx, endpoint, params, out) }
	if c.breaker == nil {
		return call()
	}
	err := c.breaker.Call(ctx, call)
	if errors.Is(err, circuitbreaker.ErrOpen) {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "circuit_open").Inc()
		return fmt.Errorf("%w: %w", ErrUpstreamFailure, err)
	}
	return err
}

func (c *GoogleWeatherClient) getWithRetry(ctx context.Context, endpoint string, params url.Values, out any) error {
	var lastErr error

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.WeatherAPIRetriesTotal.WithLabelValues(endpoint).Inc()
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := c.callAPI(ctx, endpoint, params, out)
		if err == nil {
			return nil
		}
		observability.WeatherAPIErrorsTotal.WithLabelValues(string(CategorizeError(err))).Inc()

		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !c.isRetryable(err) {
			return err
		}
	}

	return fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *GoogleWeatherClient) callAPI(ctx context.Context, endpoint string, params url.Values, out any) error {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, endpoint, params)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("build request: %w", err)
	}

	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.WeatherAPIDuration.WithLabelValues(endpoint, "error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("request timeout: %w", err)
		}
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(endpoint, status).Observe(duration)

	if err := c.handleErrorResponse(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse %s response: %w", endpoint, err)
	}
	return nil
}

func (c *GoogleWeatherClient) isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamFailure) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "timeout")
}

func (c *GoogleWeatherClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func (c *GoogleWeatherClient) buildRequest(ctx context.Context, endpoint string, params url.Values) (*http.Request, error) {
	path, ok := endpointPaths[endpoint]
	if !ok {
		return nil, fmt.Errorf("unknown endpoint %q", endpoint)
	}
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *GoogleWeatherClient) handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrInvalidAPIKey, resp.StatusCode)
	case http.StatusNotFound:
		return fmt.Errorf("%w", ErrLocationNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	}

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: HTTP %d", ErrBadRequest, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
	return nil
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
