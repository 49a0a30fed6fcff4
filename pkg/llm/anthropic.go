package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	anthropicDefaultSystem = "You are a helpful AI assistant."
	anthropicDefaultTokens = 4096
)

// AnthropicConfig configures the Anthropic messages adapter.
type AnthropicConfig struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// AnthropicProvider talks to the Anthropic messages API.
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider builds the Anthropic adapter. SDK retries are off; the
// gateway's route fallback decides what happens after a failure.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if baseURL := strings.TrimRight(cfg.BaseURL, "/"); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &AnthropicProvider{client: anthropic.NewClient(opts...)}, nil
}

// Name returns the provider tag.
func (p *AnthropicProvider) Name() string {
	return ProviderAnthropic
}

// Complete sends a messages request. System-role turns are folded into the
// system prompt since the messages API only accepts user and assistant turns.
func (p *AnthropicProvider) Complete(ctx context.Context, model ModelInfo, req Request) (Completion, error) {
	systemParts := make([]string, 0, 1)
	if req.SystemPrompt != "" {
		systemParts = append(systemParts, req.SystemPrompt)
	}

	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, message := range req.Messages {
		switch message.Role {
		case RoleSystem:
			systemParts = append(systemParts, message.Content)
		case RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(message.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(message.Content)))
		}
	}

	system := strings.Join(systemParts, "\n\n")
	if system == "" {
		system = anthropicDefaultSystem
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultTokens
	}

	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(model.ProviderModel),
		System:      []anthropic.TextBlockParam{{Text: system}},
		Messages:    messages,
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(req.EffectiveTemperature()),
	})
	if err != nil {
		return Completion{}, anthropicError(err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	promptTokens := int(resp.Usage.InputTokens)
	completionTokens := int(resp.Usage.OutputTokens)
	return Completion{
		Content: content.String(),
		Usage: Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	}, nil
}

func anthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &APIError{
			Provider:   ProviderAnthropic,
			StatusCode: apiErr.StatusCode,
			Message:    errorMessage([]byte(apiErr.RawJSON())),
		}
	}
	return fmt.Errorf("%s request failed: %w", ProviderAnthropic, err)
}
