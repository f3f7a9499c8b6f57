package llm

import (
	"context"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAI implements Client over any OpenAI-compatible chat endpoint via
// langchaingo. Works with a custom base URL for self-hosted gateways.
type OpenAI struct {
	model       llms.Model
	name        string
	temperature float64
	maxTokens   int
}

// OpenAIOption configures the OpenAI client.
type OpenAIOption func(*openAIConfig)

type openAIConfig struct {
	token       string
	model       string
	baseURL     string
	temperature float64
	maxTokens   int
}

// WithToken sets the API token. Defaults to the OPENAI_API_KEY environment
// variable handled by the underlying library.
func WithToken(token string) OpenAIOption {
	return func(c *openAIConfig) { c.token = token }
}

// WithModel sets the model name.
func WithModel(model string) OpenAIOption {
	return func(c *openAIConfig) { c.model = model }
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) OpenAIOption {
	return func(c *openAIConfig) { c.baseURL = url }
}

// WithTemperature sets the default sampling temperature.
func WithTemperature(t float64) OpenAIOption {
	return func(c *openAIConfig) { c.temperature = t }
}

// WithMaxTokens sets the default completion token limit.
func WithMaxTokens(n int) OpenAIOption {
	return func(c *openAIConfig) { c.maxTokens = n }
}

// NewOpenAI creates an OpenAI-compatible client.
func NewOpenAI(opts ...OpenAIOption) (*OpenAI, error) {
	cfg := openAIConfig{temperature: 0.2}
	for _, opt := range opts {
		opt(&cfg)
	}

	var oaiOpts []openai.Option
	if cfg.token != "" {
		oaiOpts = append(oaiOpts, openai.WithToken(cfg.token))
	}
	if cfg.model != "" {
		oaiOpts = append(oaiOpts, openai.WithModel(cfg.model))
	}
	if cfg.baseURL != "" {
		oaiOpts = append(oaiOpts, openai.WithBaseURL(cfg.baseURL))
	}

	model, err := openai.New(oaiOpts...)
	if err != nil {
		return nil, NewError("init", err, false)
	}

	return &OpenAI{
		model:       model,
		name:        cfg.model,
		temperature: cfg.temperature,
		maxTokens:   cfg.maxTokens,
	}, nil
}

// Complete implements Client.
func (o *OpenAI) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	content := make([]llms.MessageContent, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, req.SystemPrompt))
	}
	for _, m := range req.Messages {
		content = append(content, llms.TextParts(chatMessageType(m.Role), m.Content))
	}

	callOpts := []llms.CallOption{
		llms.WithTemperature(o.pickTemperature(req)),
	}
	if n := o.pickMaxTokens(req); n > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(n))
	}
	if req.Model != "" {
		callOpts = append(callOpts, llms.WithModel(req.Model))
	}

	resp, err := o.model.GenerateContent(ctx, content, callOpts...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, NewError("complete", ctx.Err(), false)
		}
		// Provider/network failures are generally worth a retry.
		return nil, NewError("complete", err, true)
	}
	if len(resp.Choices) == 0 {
		return nil, NewError("complete", errEmptyResponse, true)
	}

	choice := resp.Choices[0]
	return &CompletionResponse{
		Content:      choice.Content,
		Model:        o.name,
		FinishReason: choice.StopReason,
		Duration:     time.Since(start),
	}, nil
}

func (o *OpenAI) pickTemperature(req CompletionRequest) float64 {
	if req.Temperature != 0 {
		return req.Temperature
	}
	return o.temperature
}

func (o *OpenAI) pickMaxTokens(req CompletionRequest) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return o.maxTokens
}

func chatMessageType(role Role) llms.ChatMessageType {
	switch role {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	case RoleTool:
		return llms.ChatMessageTypeTool
	default:
		return llms.ChatMessageTypeHuman
	}
}
