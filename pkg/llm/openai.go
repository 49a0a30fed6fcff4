package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the OpenAI chat completion adapter.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
}

// AzureConfig configures the Azure OpenAI adapter. Registry entries for Azure
// carry the deployment name as ProviderModel.
type AzureConfig struct {
	APIKey     string
	Endpoint   string
	APIVersion string
}

// OpenAIProvider serves both the OpenAI and the Azure OpenAI chat APIs.
type OpenAIProvider struct {
	name   string
	client *openai.Client
}

// NewOpenAIProvider builds the OpenAI adapter.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &OpenAIProvider{
		name:   ProviderOpenAI,
		client: openai.NewClientWithConfig(config),
	}, nil
}

// NewAzureProvider builds the Azure OpenAI adapter.
func NewAzureProvider(cfg AzureConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" || cfg.Endpoint == "" {
		return nil, fmt.Errorf("azure openai api key and endpoint are required")
	}

	config := openai.DefaultAzureConfig(cfg.APIKey, strings.TrimRight(cfg.Endpoint, "/"))
	if cfg.APIVersion != "" {
		config.APIVersion = cfg.APIVersion
	}
	config.AzureModelMapperFunc = func(model string) string {
		return model
	}

	return &OpenAIProvider{
		name:   ProviderAzure,
		client: openai.NewClientWithConfig(config),
	}, nil
}

// Name returns the provider tag this adapter serves.
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Complete sends a chat completion request for the given registry entry.
func (p *OpenAIProvider) Complete(ctx context.Context, model ModelInfo, req Request) (Completion, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, message := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    message.Role,
			Content: message.Content,
		})
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model.ProviderModel,
		Messages:    messages,
		Temperature: float32(req.EffectiveTemperature()),
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return Completion{}, fmt.Errorf("%s chat completion: %w", p.name, err)
	}

	if len(resp.Choices) == 0 {
		return Completion{}, errors.New("no choices returned from " + p.name)
	}

	return Completion{
		Content: resp.Choices[0].Message.Content,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}
