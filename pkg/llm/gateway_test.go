package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name     string
	content  string
	usage    Usage
	err      error
	calls    int
	lastSeen ModelInfo
	lastReq  Request
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(ctx context.Context, model ModelInfo, req Request) (Completion, error) {
	f.calls++
	f.lastSeen = model
	f.lastReq = req
	if f.err != nil {
		return Completion{}, f.err
	}
	return Completion{Content: f.content, Usage: f.usage}, nil
}

func TestGatewayDispatchesByProviderTag(t *testing.T) {
	openaiFake := &fakeProvider{name: ProviderOpenAI, content: "from openai"}
	anthropicFake := &fakeProvider{name: ProviderAnthropic, content: "from claude", usage: Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5}}

	gateway := NewGateway("llm-gateway", DefaultRegistry(), zerolog.Nop(), openaiFake, anthropicFake, nil)

	resp, err := gateway.Generate(context.Background(), Request{
		Model:    "claude-3-haiku",
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	})
	require.NoError(t, err)
	require.Equal(t, "from claude", resp.Content)
	require.Equal(t, ProviderAnthropic, resp.Provider)
	require.Equal(t, "claude-3-haiku", resp.Model)
	require.Equal(t, 5, resp.Usage.TotalTokens)
	require.Equal(t, "claude-3-haiku-20240307", anthropicFake.lastSeen.ProviderModel)
	require.Zero(t, openaiFake.calls)
	require.False(t, resp.CreatedAt.IsZero())
}

func TestGatewayRejectsUnknownModelBeforeDispatch(t *testing.T) {
	provider := &fakeProvider{name: ProviderGoogle}
	gateway := NewGateway("llm-gateway", DefaultRegistry(), zerolog.Nop(), provider)

	_, err := gateway.Generate(context.Background(), Request{Model: "gemini-ultra", Messages: []Message{{Role: RoleUser, Content: "x"}}})
	require.ErrorIs(t, err, ErrUnknownModel)
	require.Zero(t, provider.calls)
}

func TestGatewayReportsMissingProvider(t *testing.T) {
	gateway := NewGateway("llm-gateway", DefaultRegistry(), zerolog.Nop())

	_, err := gateway.Generate(context.Background(), Request{Model: "azure-gpt-4", Messages: []Message{{Role: RoleUser, Content: "x"}}})
	require.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestGatewayWrapsProviderFailures(t *testing.T) {
	upstream := errors.New("rate limited")
	gateway := NewGateway("llm-gateway", DefaultRegistry(), zerolog.Nop(), &fakeProvider{name: ProviderOpenAI, err: upstream})

	_, err := gateway.Generate(context.Background(), Request{Model: "gpt-4", Messages: []Message{{Role: RoleUser, Content: "x"}}})
	require.ErrorIs(t, err, upstream)

	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	require.Equal(t, ProviderOpenAI, providerErr.Provider)
}

func TestGatewayMeasuresProviderLatency(t *testing.T) {
	provider := &fakeProvider{name: ProviderOpenAI, content: "ok"}
	gateway := NewGateway("llm-gateway", DefaultRegistry(), zerolog.Nop(), provider)

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	ticks := []time.Time{base, base.Add(250 * time.Millisecond), base.Add(300 * time.Millisecond)}
	gateway.now = func() time.Time {
		next := ticks[0]
		ticks = ticks[1:]
		return next
	}

	resp, err := gateway.Generate(context.Background(), Request{Model: "gpt-4", Messages: []Message{{Role: RoleUser, Content: "x"}}})
	require.NoError(t, err)
	require.Equal(t, int64(250), resp.LatencyMs)
}

func TestGatewayHealthListsEveryProvider(t *testing.T) {
	gateway := NewGateway("llm-gateway", DefaultRegistry(), zerolog.Nop(), &fakeProvider{name: ProviderGoogle})

	health := gateway.Health()
	require.Equal(t, "healthy", health.Status)
	require.Equal(t, "llm-gateway", health.Service)
	require.Equal(t, 10, health.AvailableModels)
	require.Equal(t, map[string]bool{
		ProviderOpenAI:    false,
		ProviderAzure:     false,
		ProviderAnthropic: false,
		ProviderGoogle:    true,
	}, health.Providers)
}

func TestDirectGeneratorPinsModel(t *testing.T) {
	provider := &fakeProvider{name: ProviderGoogle, content: "direct"}
	direct := NewDirectGenerator(provider, ModelInfo{ID: "gemini-1.5-flash"}, zerolog.Nop())

	resp, err := direct.Generate(context.Background(), Request{Model: "ignored", Messages: []Message{{Role: RoleUser, Content: "x"}}})
	require.NoError(t, err)
	require.Equal(t, "gemini-1.5-flash", resp.Model)
	require.Equal(t, ProviderGoogle, resp.Provider)
	require.Equal(t, "gemini-1.5-flash", provider.lastSeen.ProviderModel)
}
