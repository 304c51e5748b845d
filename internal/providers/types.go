package providers

import "context"

//go:generate go run go.uber.org/mock/mockgen -source=types.go -destination=../mocks/mock_provider.go -package=mocks

// Provider is the interface all LLM backends must implement.
type Provider interface {
	// Chat sends one completion request and returns the generated text.
	// req.Model overrides the default model.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// DefaultModel returns the provider's default model name.
	DefaultModel() string

	// Name returns the provider identifier (e.g. "openrouter", "anthropic").
	Name() string
}

// ChatRequest contains the input for a Chat call.
type ChatRequest struct {
	Model    string                 `json:"model,omitempty"`
	System   string                 `json:"system,omitempty"` // fixed system-level directive
	Messages []Message              `json:"messages"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

// ChatResponse is the result from an LLM call.
type ChatResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model,omitempty"`
	FinishReason string `json:"finish_reason"` // "stop", "length"
	Usage        *Usage `json:"usage,omitempty"`
}

// Message represents a conversation turn sent to the model.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Request option keys.
const (
	OptTemperature = "temperature"
	OptMaxTokens   = "max_tokens"
)
