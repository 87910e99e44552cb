package ai

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/bosocmputer/product_ocr_reconcile/internal/common"
	"github.com/bosocmputer/product_ocr_reconcile/internal/ratelimit"
)

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		category  string
		retryable bool
	}{
		{"rate limit", &googleapi.Error{Code: 429}, "rate_limit", true},
		{"server", &googleapi.Error{Code: 503}, "server_error", true},
		{"unauthorized", &googleapi.Error{Code: 401}, "unauthorized", false},
		{"wrapped", errors.Join(errors.New("ctx"), &googleapi.Error{Code: 400}), "bad_request", false},
		{"deadline", context.DeadlineExceeded, "timeout", true},
		{"canceled", context.Canceled, "canceled", false},
		{"other", errors.New("boom"), "unknown", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pe := CategorizeError(tt.err)
			assert.Equal(t, tt.category, pe.Category)
			assert.Equal(t, tt.retryable, pe.Retryable)
		})
	}

	assert.Nil(t, CategorizeError(nil))
}

func TestFailureText(t *testing.T) {
	txt := FailureText(common.FailureAIEndpoint, &googleapi.Error{Code: 500})
	assert.Equal(t, common.OutcomeTransient, txt.Outcome)

	txt = FailureText(common.FailureAIEndpoint, errors.New("bad key"))
	assert.Equal(t, common.OutcomePermanent, txt.Outcome)
	assert.Equal(t, "AI APIエラー: bad key", txt.Display())
}

func TestWithRetrySingleAttemptIsPassthrough(t *testing.T) {
	p := &fakeProvider{respond: answer("x")}
	assert.Same(t, p, WithRetry(p, DefaultRetryConfig, zerolog.Nop()))
}

func TestWithRetry(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffMultiple: 2}

	t.Run("retries transient errors", func(t *testing.T) {
		var mu sync.Mutex
		n := 0
		p := &fakeProvider{respond: func(Request) (*Response, error) {
			mu.Lock()
			defer mu.Unlock()
			n++
			if n < 3 {
				return nil, &googleapi.Error{Code: 503}
			}
			return &Response{Text: "done"}, nil
		}}

		resp, err := WithRetry(p, cfg, zerolog.Nop()).Generate(context.Background(), Request{})
		require.NoError(t, err)
		assert.Equal(t, "done", resp.Text)
		assert.Equal(t, 3, p.calls())
	})

	t.Run("stops on permanent errors", func(t *testing.T) {
		p := &fakeProvider{respond: failWith(&googleapi.Error{Code: 401})}

		_, err := WithRetry(p, cfg, zerolog.Nop()).Generate(context.Background(), Request{})
		require.Error(t, err)
		assert.Equal(t, 1, p.calls())

		var pe *ProviderError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "unauthorized", pe.Category)
	})
}

func TestCalculateBackoff(t *testing.T) {
	cfg := RetryConfig{InitialDelay: time.Second, MaxDelay: 3 * time.Second, BackoffMultiple: 2}
	assert.Equal(t, time.Second, calculateBackoff(1, cfg))
	assert.Equal(t, 2*time.Second, calculateBackoff(2, cfg))
	assert.Equal(t, 3*time.Second, calculateBackoff(3, cfg))
}

type usageSink struct {
	in, out int
}

func (u *usageSink) AddUsage(in, out int) {
	u.in += in
	u.out += out
}

func TestWithUsage(t *testing.T) {
	sink := &usageSink{}
	p := WithUsage(&fakeProvider{respond: answer("x")}, sink)

	_, err := p.Generate(context.Background(), Request{})
	require.NoError(t, err)
	_, err = p.Generate(context.Background(), Request{})
	require.NoError(t, err)

	assert.Equal(t, 20, sink.in)
	assert.Equal(t, 4, sink.out)
	assert.Equal(t, "fake", p.GetProviderName())
}

func TestWithRateLimit(t *testing.T) {
	base := &fakeProvider{respond: answer("x")}
	assert.Same(t, base, WithRateLimit(base, nil))

	limited := WithRateLimit(base, ratelimit.NewRateLimiter(1, 1))
	_, err := limited.Generate(context.Background(), Request{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = limited.Generate(ctx, Request{})
	assert.Error(t, err)
	assert.Equal(t, 1, base.calls())
}

func TestNewProviderRejectsUnknownBackend(t *testing.T) {
	_, _, err := NewProvider(context.Background(), ProviderConfig{Provider: "mistral"}, zerolog.Nop())
	assert.ErrorContains(t, err, "unsupported AI provider")

	_, _, err = NewProvider(context.Background(), ProviderConfig{Provider: "openai"}, zerolog.Nop())
	assert.ErrorContains(t, err, "OPENAI_API_KEY")
}
