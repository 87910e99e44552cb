// factory.go - Provider construction and call middleware

package ai

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/bosocmputer/product_ocr_reconcile/internal/ratelimit"
)

// NewProvider creates the configured backend wrapped with rate limiting and retry.
// The returned close func releases backend resources.
func NewProvider(ctx context.Context, cfg ProviderConfig, logger zerolog.Logger) (Provider, func() error, error) {
	var (
		base    Provider
		closeFn = func() error { return nil }
	)

	switch cfg.Provider {
	case "gemini":
		g, err := NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, nil, err
		}
		base, closeFn = g, g.Close
		logger.Info().Str("model", cfg.GeminiModel).Msg("created Gemini provider")

	case "openai":
		o, err := NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		if err != nil {
			return nil, nil, err
		}
		base = o
		logger.Info().Str("model", cfg.OpenAIModel).Msg("created OpenAI provider")

	default:
		return nil, nil, fmt.Errorf("unsupported AI provider: %s (supported: gemini, openai)", cfg.Provider)
	}

	retry := DefaultRetryConfig
	if cfg.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.MaxAttempts
	}

	p := WithRateLimit(base, ratelimit.NewRateLimiter(cfg.RequestsPerMinute, 1))
	p = WithRetry(p, retry, logger)
	return p, closeFn, nil
}

type rateLimitedProvider struct {
	next    Provider
	limiter *ratelimit.RateLimiter
}

// WithRateLimit makes every call wait for the limiter first. A nil limiter
// returns p unchanged.
func WithRateLimit(p Provider, limiter *ratelimit.RateLimiter) Provider {
	if limiter == nil {
		return p
	}
	return &rateLimitedProvider{next: p, limiter: limiter}
}

func (r *rateLimitedProvider) GetProviderName() string {
	return r.next.GetProviderName()
}

func (r *rateLimitedProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return r.next.Generate(ctx, req)
}

type meteredProvider struct {
	next     Provider
	recorder UsageRecorder
}

// WithUsage records the token usage of every successful call
func WithUsage(p Provider, recorder UsageRecorder) Provider {
	return &meteredProvider{next: p, recorder: recorder}
}

func (m *meteredProvider) GetProviderName() string {
	return m.next.GetProviderName()
}

func (m *meteredProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	resp, err := m.next.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	m.recorder.AddUsage(resp.InputTokens, resp.OutputTokens)
	return resp, nil
}
