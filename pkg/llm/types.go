package llm

import (
	"context"
	"time"
)

// Provider tags used by the model registry.
const (
	ProviderOpenAI    = "openai"
	ProviderAzure     = "azure"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
)

// Message roles accepted by the gateway.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation in the provider-neutral format.
type Message struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content" validate:"required"`
}

// Request is the uniform generate request accepted by the gateway.
type Request struct {
	Model        string    `json:"model" validate:"required"`
	Messages     []Message `json:"messages" validate:"required,min=1,dive"`
	Temperature  *float64  `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens    int       `json:"max_tokens,omitempty" validate:"gte=0"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
}

// DefaultTemperature applies when a request omits temperature.
const DefaultTemperature = 0.7

// EffectiveTemperature returns the requested temperature or the default.
func (r Request) EffectiveTemperature() float64 {
	if r.Temperature == nil {
		return DefaultTemperature
	}
	return *r.Temperature
}

// Usage reports token accounting. Estimated is set when the provider did not
// report counts and they were approximated from word counts.
type Usage struct {
	PromptTokens     int  `json:"prompt_tokens"`
	CompletionTokens int  `json:"completion_tokens"`
	TotalTokens      int  `json:"total_tokens"`
	Estimated        bool `json:"estimated,omitempty"`
}

// Completion is what a provider adapter returns for one call.
type Completion struct {
	Content string
	Usage   Usage
}

// Response is the uniform generate response.
type Response struct {
	Model     string    `json:"model"`
	Content   string    `json:"content"`
	Usage     Usage     `json:"usage"`
	LatencyMs int64     `json:"latency_ms"`
	Provider  string    `json:"provider"`
	CreatedAt time.Time `json:"created_at"`
}

// ModelInfo describes one registry entry. ID is the key clients send;
// ProviderModel is the identifier passed to the backing provider.
type ModelInfo struct {
	ID                string `json:"id" toml:"id"`
	ProviderModel     string `json:"provider_model" toml:"provider_model"`
	Provider          string `json:"provider" toml:"provider"`
	Name              string `json:"name" toml:"name"`
	Description       string `json:"description" toml:"description"`
	ContextWindow     int    `json:"context_window" toml:"context_window"`
	MaxOutputTokens   int    `json:"max_output_tokens" toml:"max_output_tokens"`
	SupportsVision    bool   `json:"supports_vision" toml:"supports_vision"`
	SupportsFunctions bool   `json:"supports_functions" toml:"supports_functions"`
}

// Health is the gateway health payload.
type Health struct {
	Status          string          `json:"status"`
	Service         string          `json:"service"`
	Providers       map[string]bool `json:"providers"`
	AvailableModels int             `json:"available_models"`
}

// Provider adapts one backing LLM API to the uniform request shape.
type Provider interface {
	Name() string
	Complete(ctx context.Context, model ModelInfo, req Request) (Completion, error)
}

// Generator is anything able to serve a uniform generate call.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}
