package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiConfig configures the Google Gemini adapter.
type GeminiConfig struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// GeminiProvider talks to the Gemini API through the genai client.
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider builds the Gemini adapter.
func NewGeminiProvider(cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: strings.TrimRight(cfg.BaseURL, "/"),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("build gemini client: %w", err)
	}

	return &GeminiProvider{client: client}, nil
}

// Name returns the provider tag.
func (p *GeminiProvider) Name() string {
	return ProviderGoogle
}

// Complete sends a generateContent request for the given registry entry.
// Token usage comes from the response metadata and is estimated only when the
// API omits it.
func (p *GeminiProvider) Complete(ctx context.Context, model ModelInfo, req Request) (Completion, error) {
	systemParts := make([]*genai.Part, 0, 1)
	if req.SystemPrompt != "" {
		systemParts = append(systemParts, genai.NewPartFromText(req.SystemPrompt))
	}

	contents := make([]*genai.Content, 0, len(req.Messages))
	lastUser := ""
	for _, message := range req.Messages {
		switch message.Role {
		case RoleSystem:
			systemParts = append(systemParts, genai.NewPartFromText(message.Content))
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(message.Content, genai.RoleModel))
		default:
			lastUser = message.Content
			contents = append(contents, genai.NewContentFromText(message.Content, genai.RoleUser))
		}
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.EffectiveTemperature())),
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if len(systemParts) > 0 {
		config.SystemInstruction = &genai.Content{Parts: systemParts}
	}

	resp, err := p.client.Models.GenerateContent(ctx, model.ProviderModel, contents, config)
	if err != nil {
		return Completion{}, geminiError(err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Completion{}, fmt.Errorf("no candidates returned from gemini")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			text.WriteString(part.Text)
		}
	}
	content := text.String()

	if usage := resp.UsageMetadata; usage != nil && usage.TotalTokenCount > 0 {
		return Completion{
			Content: content,
			Usage: Usage{
				PromptTokens:     int(usage.PromptTokenCount),
				CompletionTokens: int(usage.CandidatesTokenCount),
				TotalTokens:      int(usage.TotalTokenCount),
			},
		}, nil
	}

	return Completion{Content: content, Usage: EstimateUsage(lastUser, content)}, nil
}

func geminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{Provider: ProviderGoogle, StatusCode: apiErr.Code, Message: apiErr.Message}
	}
	return fmt.Errorf("%s request failed: %w", ProviderGoogle, err)
}

// EstimateUsage approximates token counts as twice the whitespace-separated
// word count. It is not billing accurate and is flagged as Estimated.
func EstimateUsage(prompt, completion string) Usage {
	promptWords := len(strings.Fields(prompt))
	completionWords := len(strings.Fields(completion))
	return Usage{
		PromptTokens:     promptWords * 2,
		CompletionTokens: completionWords * 2,
		TotalTokens:      (promptWords + completionWords) * 2,
		Estimated:        true,
	}
}
