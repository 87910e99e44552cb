// interface.go - AI provider interface shared by the Gemini and OpenAI backends

package ai

import "context"

// Provider is a single prompt-in, text-out model backend
type Provider interface {
	// Generate runs one model call. Image is optional; JSONMode asks the
	// backend to constrain the answer to a JSON object.
	Generate(ctx context.Context, req Request) (*Response, error)

	// GetProviderName returns the name of the provider (e.g., "gemini", "openai")
	GetProviderName() string
}

// ImagePart is an inline image sent with a prompt
type ImagePart struct {
	MIMEType string
	Data     []byte
}

// Request is one model call
type Request struct {
	Prompt          string
	Image           *ImagePart
	JSONMode        bool
	MaxOutputTokens int
}

// Response is the text answer and the tokens it cost
type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// UsageRecorder accumulates token usage, e.g. *common.RequestContext
type UsageRecorder interface {
	AddUsage(inputTokens, outputTokens int)
}

// ProviderConfig contains configuration for AI providers
type ProviderConfig struct {
	// Provider name: "gemini" or "openai"
	Provider string

	GeminiAPIKey string
	GeminiModel  string

	OpenAIAPIKey string
	OpenAIModel  string

	// MaxAttempts per call; 1 disables retries
	MaxAttempts int
	// RequestsPerMinute across all calls; 0 is unlimited
	RequestsPerMinute int
}
