// request_context.go - Run tracking: id, step timing, token usage and cost

package common

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RequestContext tracks one reconciliation run. Token accounting is safe for concurrent use;
// step tracking is meant to be driven from the run's own goroutine.
type RequestContext struct {
	RequestID string
	User      string
	StartTime time.Time
	Steps     []StepLog

	logger  zerolog.Logger
	pricing Pricing

	mu          sync.Mutex
	totalTokens TokenUsage
	aiCalls     int

	currentStep      string
	currentStepStart time.Time
}

// StepLog represents a single processing step
type StepLog struct {
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	Duration  int64     `json:"duration_ms"`
	Status    string    `json:"status"` // "success", "failed", "skipped"
	Error     string    `json:"error,omitempty"`
}

// TokenUsage tracks AI token consumption
type TokenUsage struct {
	InputTokens  int     `json:"input_tokens" bson:"input_tokens"`
	OutputTokens int     `json:"output_tokens" bson:"output_tokens"`
	TotalTokens  int     `json:"total_tokens" bson:"total_tokens"`
	CostUSD      float64 `json:"cost_usd" bson:"cost_usd"`
	CostJPY      float64 `json:"cost_jpy" bson:"cost_jpy"`
}

// Pricing is the per-million-token price of the configured model
type Pricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
	USDToJPY         float64
}

// CalculateTokenCost computes USD and JPY cost from token counts
func CalculateTokenCost(p Pricing, inputTokens, outputTokens int) TokenUsage {
	inputCost := float64(inputTokens) * p.InputPerMillion / 1_000_000
	outputCost := float64(outputTokens) * p.OutputPerMillion / 1_000_000
	costUSD := inputCost + outputCost

	return TokenUsage{
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		TotalTokens:  inputTokens + outputTokens,
		CostUSD:      costUSD,
		CostJPY:      costUSD * p.USDToJPY,
	}
}

// NewRequestContext creates a new run tracking context
func NewRequestContext(logger zerolog.Logger, user string, pricing Pricing) *RequestContext {
	reqID := uuid.New().String()
	now := time.Now()

	l := logger.With().Str("run_id", reqID).Logger()
	l.Info().Str("user", user).Msg("run started")

	return &RequestContext{
		RequestID: reqID,
		User:      user,
		StartTime: now,
		logger:    l,
		pricing:   pricing,
	}
}

// Logger returns the run-scoped logger
func (rc *RequestContext) Logger() *zerolog.Logger {
	return &rc.logger
}

// StartStep begins tracking a new processing step
func (rc *RequestContext) StartStep(stepName string) {
	rc.currentStep = stepName
	rc.currentStepStart = time.Now()
	rc.logger.Debug().Str("step", stepName).Msg("step started")
}

// EndStep completes the current step and records timing
func (rc *RequestContext) EndStep(status string, err error) {
	duration := time.Since(rc.currentStepStart).Milliseconds()

	step := StepLog{
		Name:      rc.currentStep,
		StartTime: rc.currentStepStart,
		Duration:  duration,
		Status:    status,
	}

	if err != nil {
		step.Error = err.Error()
		rc.logger.Error().Err(err).Str("step", rc.currentStep).Int64("duration_ms", duration).Msg("step failed")
	} else {
		rc.logger.Info().Str("step", rc.currentStep).Str("status", status).Int64("duration_ms", duration).Msg("step finished")
	}

	rc.Steps = append(rc.Steps, step)
	rc.currentStep = ""
}

// AddUsage records the tokens of one AI call
func (rc *RequestContext) AddUsage(inputTokens, outputTokens int) {
	usage := CalculateTokenCost(rc.pricing, inputTokens, outputTokens)

	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.aiCalls++
	rc.totalTokens.InputTokens += usage.InputTokens
	rc.totalTokens.OutputTokens += usage.OutputTokens
	rc.totalTokens.TotalTokens += usage.TotalTokens
	rc.totalTokens.CostUSD += usage.CostUSD
	rc.totalTokens.CostJPY += usage.CostJPY
}

// Usage returns a snapshot of the accumulated token usage
func (rc *RequestContext) Usage() TokenUsage {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.totalTokens
}

// AICalls returns the number of AI calls recorded so far
func (rc *RequestContext) AICalls() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.aiCalls
}

// LogInfo logs info-level message with the run id
func (rc *RequestContext) LogInfo(format string, args ...interface{}) {
	rc.logger.Info().Msg(fmt.Sprintf(format, args...))
}

// LogWarning logs warning-level message with the run id
func (rc *RequestContext) LogWarning(format string, args ...interface{}) {
	rc.logger.Warn().Msg(fmt.Sprintf(format, args...))
}

// LogError logs error-level message with the run id
func (rc *RequestContext) LogError(format string, args ...interface{}) {
	rc.logger.Error().Msg(fmt.Sprintf(format, args...))
}

// GetSummary returns a final summary of the run
func (rc *RequestContext) GetSummary() map[string]interface{} {
	totalDuration := time.Since(rc.StartTime).Milliseconds()
	usage := rc.Usage()

	stepBreakdown := make(map[string]int64)
	for _, step := range rc.Steps {
		stepBreakdown[step.Name] = step.Duration
	}

	rc.logger.Info().
		Int64("duration_ms", totalDuration).
		Int("steps", len(rc.Steps)).
		Int("ai_calls", rc.AICalls()).
		Int("total_tokens", usage.TotalTokens).
		Float64("cost_jpy", usage.CostJPY).
		Msg("run summary")

	return map[string]interface{}{
		"request_id":         rc.RequestID,
		"user":               rc.User,
		"total_duration_ms":  totalDuration,
		"total_duration_sec": float64(totalDuration) / 1000,
		"step_breakdown":     stepBreakdown,
		"total_steps":        len(rc.Steps),
		"ai_calls":           rc.AICalls(),
		"token_usage": map[string]interface{}{
			"input_tokens":  usage.InputTokens,
			"output_tokens": usage.OutputTokens,
			"total_tokens":  usage.TotalTokens,
			"cost_usd":      fmt.Sprintf("$%.4f", usage.CostUSD),
			"cost_jpy":      fmt.Sprintf("¥%.2f", usage.CostJPY),
		},
	}
}
