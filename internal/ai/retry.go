// retry.go - Error categorisation and bounded retry for provider calls

package ai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"

	"github.com/bosocmputer/product_ocr_reconcile/internal/common"
)

// RetryConfig defines retry behavior for provider calls
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
}

// DefaultRetryConfig makes a single attempt. Raising MaxAttempts enables backoff.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     1,
	InitialDelay:    1 * time.Second,
	MaxDelay:        8 * time.Second,
	BackoffMultiple: 2.0,
}

// ProviderError represents a categorized provider error
type ProviderError struct {
	Err        error
	Category   string
	StatusCode int
	Message    string
	Retryable  bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s (status: %d, retryable: %v)", e.Category, e.Message, e.StatusCode, e.Retryable)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// CategorizeError analyzes an error and determines retry strategy
func CategorizeError(err error) *ProviderError {
	if err == nil {
		return nil
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}

	pe = &ProviderError{
		Err:      err,
		Category: "unknown",
		Message:  err.Error(),
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		pe.StatusCode = apiErr.Code
		categorizeStatus(pe)
		return pe
	}

	var oaiErr *openai.Error
	if errors.As(err, &oaiErr) {
		pe.StatusCode = oaiErr.StatusCode
		categorizeStatus(pe)
		return pe
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		pe.Category = "timeout"
		pe.Message = "Request timeout - processing took too long"
		pe.Retryable = true
		return pe
	case errors.Is(err, context.Canceled):
		pe.Category = "canceled"
		pe.Message = "Request was canceled"
		return pe
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			pe.Category = "timeout"
		} else {
			pe.Category = "network_error"
		}
		pe.Retryable = true
	}
	return pe
}

func categorizeStatus(pe *ProviderError) {
	switch code := pe.StatusCode; {
	case code == http.StatusBadRequest:
		pe.Category = "bad_request"
	case code == http.StatusUnauthorized:
		pe.Category = "unauthorized"
	case code == http.StatusForbidden:
		pe.Category = "forbidden"
	case code == http.StatusNotFound:
		pe.Category = "not_found"
	case code == http.StatusRequestEntityTooLarge:
		pe.Category = "payload_too_large"
	case code == http.StatusTooManyRequests:
		pe.Category = "rate_limit"
		pe.Retryable = true
	case code >= 500:
		pe.Category = "server_error"
		pe.Retryable = true
	default:
		pe.Category = "unknown_api_error"
	}
}

// FailureText turns an error into a failure variant of the given kind
func FailureText(kind common.FailureKind, err error) common.Text {
	pe := CategorizeError(err)
	if pe.Retryable {
		return common.TransientError(kind, pe.Message)
	}
	return common.PermanentError(kind, pe.Message)
}

type retryingProvider struct {
	next   Provider
	config RetryConfig
	logger zerolog.Logger
}

// WithRetry wraps a provider with bounded exponential backoff. With
// MaxAttempts <= 1 the provider is returned unchanged.
func WithRetry(p Provider, config RetryConfig, logger zerolog.Logger) Provider {
	if config.MaxAttempts <= 1 {
		return p
	}
	return &retryingProvider{next: p, config: config, logger: logger}
}

func (r *retryingProvider) GetProviderName() string {
	return r.next.GetProviderName()
}

func (r *retryingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	var lastErr *ProviderError

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		resp, err := r.next.Generate(ctx, req)
		if err == nil {
			if attempt > 1 {
				r.logger.Info().Int("attempt", attempt).Msg("retry succeeded")
			}
			return resp, nil
		}

		lastErr = CategorizeError(err)
		r.logger.Warn().
			Int("attempt", attempt).
			Int("max_attempts", r.config.MaxAttempts).
			Str("category", lastErr.Category).
			Msg("provider call failed")

		if !lastErr.Retryable || attempt >= r.config.MaxAttempts {
			break
		}

		delay := calculateBackoff(attempt, r.config)
		if lastErr.Category == "rate_limit" {
			delay *= 2
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context canceled during retry wait: %w", ctx.Err())
		case <-time.After(delay):
		}
	}

	return nil, lastErr
}

// calculateBackoff computes exponential backoff delay
func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	delay := float64(config.InitialDelay) * math.Pow(config.BackoffMultiple, float64(attempt-1))
	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	return time.Duration(delay)
}
