package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultClaudeModel     = "claude-3-5-sonnet-latest"
	defaultClaudeMaxTokens = 1024
)

// AnthropicProvider implements Provider on top of the official Anthropic SDK.
// SDK-level retries are disabled; RetryDo owns the retry policy.
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
	retryConfig  RetryConfig
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(apiKey string, opts ...AnthropicOption) *AnthropicProvider {
	p := &AnthropicProvider{
		defaultModel: defaultClaudeModel,
		retryConfig:  DefaultRetryConfig(),
	}
	cfg := anthropicSettings{timeout: 120 * time.Second}
	for _, o := range opts {
		o(p, &cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.timeout),
	}
	if apiKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(apiKey))
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	p.client = anthropic.NewClient(reqOpts...)
	return p
}

type anthropicSettings struct {
	baseURL string
	timeout time.Duration
}

type AnthropicOption func(*AnthropicProvider, *anthropicSettings)

func WithAnthropicModel(model string) AnthropicOption {
	return func(p *AnthropicProvider, _ *anthropicSettings) {
		if model != "" {
			p.defaultModel = model
		}
	}
}

func WithAnthropicBaseURL(baseURL string) AnthropicOption {
	return func(_ *AnthropicProvider, s *anthropicSettings) {
		if baseURL != "" {
			s.baseURL = strings.TrimRight(baseURL, "/") + "/"
		}
	}
}

func WithAnthropicRetryConfig(cfg RetryConfig) AnthropicOption {
	return func(p *AnthropicProvider, _ *anthropicSettings) { p.retryConfig = cfg }
}

func (p *AnthropicProvider) Name() string         { return "anthropic" }
func (p *AnthropicProvider) DefaultModel() string { return p.defaultModel }

func (p *AnthropicProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	var messages []anthropic.MessageParam
	for _, m := range req.Messages {
		switch m.Role {
		case "user":
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case "assistant":
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	maxTokens := int64(defaultClaudeMaxTokens)
	if v, ok := optFloat(req.Options, OptMaxTokens); ok && v > 0 {
		maxTokens = int64(v)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if v, ok := optFloat(req.Options, OptTemperature); ok {
		params.Temperature = anthropic.Float(v)
	}

	return RetryDo(ctx, p.retryConfig, func() (*ChatResponse, error) {
		msg, err := p.client.Messages.New(ctx, params)
		if err != nil {
			return nil, wrapAnthropicError(err)
		}

		var content strings.Builder
		for _, block := range msg.Content {
			if text, ok := block.AsAny().(anthropic.TextBlock); ok {
				content.WriteString(text.Text)
			}
		}

		in, out := int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens)
		return &ChatResponse{
			Content:      content.String(),
			Model:        string(msg.Model),
			FinishReason: string(msg.StopReason),
			Usage:        &Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out},
		}, nil
	})
}

// wrapAnthropicError converts SDK API errors into HTTPError so RetryDo can
// classify them.
func wrapAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		httpErr := &HTTPError{
			Status: apiErr.StatusCode,
			Body:   fmt.Sprintf("anthropic: %s", apiErr.Error()),
		}
		if apiErr.Response != nil {
			httpErr.RetryAfter = ParseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
		}
		return httpErr
	}
	return fmt.Errorf("anthropic: %w", err)
}

func optFloat(opts map[string]interface{}, key string) (float64, bool) {
	v, ok := opts[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
