// openai.go - OpenAI backend built on the official openai-go SDK

package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"
)

// OpenAIProvider implements Provider for OpenAI chat completions
type OpenAIProvider struct {
	client    openai.Client
	modelName string
}

// NewOpenAIProvider creates an OpenAI provider; extra options are passed to the client
func NewOpenAIProvider(apiKey, modelName string, opts ...openaioption.RequestOption) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY is not set")
	}
	opts = append([]openaioption.RequestOption{openaioption.WithAPIKey(apiKey)}, opts...)
	return &OpenAIProvider{
		client:    openai.NewClient(opts...),
		modelName: modelName,
	}, nil
}

// GetProviderName returns "openai"
func (o *OpenAIProvider) GetProviderName() string {
	return "openai"
}

// Generate implements Provider
func (o *OpenAIProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	var message openai.ChatCompletionMessageParamUnion
	if req.Image != nil {
		dataURL := fmt.Sprintf("data:%s;base64,%s", req.Image.MIMEType, base64.StdEncoding.EncodeToString(req.Image.Data))
		message = openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
			openai.TextContentPart(req.Prompt),
			openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
		})
	} else {
		message = openai.UserMessage(req.Prompt)
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(o.modelName),
		Messages:    []openai.ChatCompletionMessageParamUnion{message},
		Temperature: openai.Float(0),
	}
	if req.MaxOutputTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxOutputTokens))
	}
	if req.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		}
	}

	completion, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(completion.Choices) == 0 {
		return nil, errors.New("openai returned no choices")
	}

	return &Response{
		Text:         completion.Choices[0].Message.Content,
		InputTokens:  int(completion.Usage.PromptTokens),
		OutputTokens: int(completion.Usage.CompletionTokens),
	}, nil
}
