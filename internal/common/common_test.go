package common

import (
	"bytes"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestText(t *testing.T) {
	t.Run("zero value is an empty success", func(t *testing.T) {
		var txt Text
		assert.True(t, txt.IsSuccess())
		assert.False(t, txt.Usable())
		assert.Equal(t, "", txt.Display())
	})

	t.Run("success with content is usable", func(t *testing.T) {
		txt := Success("500g")
		assert.True(t, txt.Usable())
		assert.Equal(t, "500g", txt.Display())
		assert.Equal(t, "", txt.Label())
	})

	t.Run("failures carry a label and no value", func(t *testing.T) {
		txt := TransientError(FailureTimeout, "")
		assert.True(t, txt.IsFailure())
		assert.False(t, txt.Usable())
		assert.Equal(t, "タイムアウトエラー", txt.Display())

		txt = PermanentError(FailureImageFetch, "HttpError 404")
		assert.Equal(t, OutcomePermanent, txt.Outcome)
		assert.Equal(t, "画像取得失敗: HttpError 404", txt.Display())
	})

	t.Run("unknown failure kind falls back to unexpected label", func(t *testing.T) {
		txt := PermanentError(FailureKind("strange"), "")
		assert.Equal(t, "予期せぬエラー", txt.Label())
	})
}

func TestRunContext(t *testing.T) {
	assert.True(t, RunContext{ProductCode: AllProducts}.AllProductsSelected())
	assert.True(t, RunContext{}.AllProductsSelected())
	assert.False(t, RunContext{ProductCode: "AEDG001"}.AllProductsSelected())
}

func TestQuantityOutcomeFlagged(t *testing.T) {
	assert.True(t, QuantityMismatch.Flagged())
	assert.True(t, QuantityNeedsReview.Flagged())
	assert.False(t, QuantityOK.Flagged())
	assert.False(t, QuantityNotStated.Flagged())
}

func TestCalculateTokenCost(t *testing.T) {
	p := Pricing{InputPerMillion: 2.50, OutputPerMillion: 10.00, USDToJPY: 150}
	usage := CalculateTokenCost(p, 1_000_000, 1_000_000)

	assert.Equal(t, 2_000_000, usage.TotalTokens)
	assert.InDelta(t, 12.5, usage.CostUSD, 1e-9)
	assert.InDelta(t, 1875.0, usage.CostJPY, 1e-9)
}

func TestRequestContext(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	rc := NewRequestContext(logger, "tester", Pricing{InputPerMillion: 1, OutputPerMillion: 1, USDToJPY: 100})

	require.NotEmpty(t, rc.RequestID)
	assert.Contains(t, buf.String(), rc.RequestID)

	t.Run("usage accumulates across goroutines", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				rc.AddUsage(10, 5)
			}()
		}
		wg.Wait()

		usage := rc.Usage()
		assert.Equal(t, 500, usage.InputTokens)
		assert.Equal(t, 250, usage.OutputTokens)
		assert.Equal(t, 750, usage.TotalTokens)
		assert.Equal(t, 50, rc.AICalls())
	})

	t.Run("steps are recorded", func(t *testing.T) {
		rc.StartStep("fetch_reference")
		rc.EndStep("success", nil)

		require.Len(t, rc.Steps, 1)
		assert.Equal(t, "fetch_reference", rc.Steps[0].Name)

		summary := rc.GetSummary()
		assert.Equal(t, rc.RequestID, summary["request_id"])
		assert.Equal(t, 1, summary["total_steps"])
	})
}

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("warn", "json", &buf)

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
