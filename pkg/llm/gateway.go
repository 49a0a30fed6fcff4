package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrProviderUnavailable indicates the model's provider has no configured adapter.
var ErrProviderUnavailable = errors.New("provider not configured")

// ProviderError wraps a failed provider call.
type ProviderError struct {
	Provider string
	Model    string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s api error for %s: %v", e.Provider, e.Model, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// KnownProviders lists the provider tags reported by Health.
var KnownProviders = []string{ProviderOpenAI, ProviderAzure, ProviderAnthropic, ProviderGoogle}

// Gateway routes uniform generate calls to provider adapters by registry tag.
type Gateway struct {
	service   string
	registry  *Registry
	providers map[string]Provider
	tracer    trace.Tracer
	logger    zerolog.Logger
	now       func() time.Time
}

// NewGateway builds a gateway over the registry. Nil providers are ignored so
// callers can pass adapters whose construction was skipped.
func NewGateway(service string, registry *Registry, logger zerolog.Logger, providers ...Provider) *Gateway {
	if registry == nil {
		registry = DefaultRegistry()
	}

	byName := make(map[string]Provider, len(providers))
	for _, provider := range providers {
		if provider == nil {
			continue
		}
		byName[provider.Name()] = provider
	}

	return &Gateway{
		service:   service,
		registry:  registry,
		providers: byName,
		tracer:    otel.Tracer("github.com/noah-isme/aisensei-api/pkg/llm/gateway"),
		logger:    logger.With().Str("component", "llm_gateway").Logger(),
		now:       time.Now,
	}
}

// Generate resolves the model, dispatches to its provider and wraps the result.
func (g *Gateway) Generate(ctx context.Context, req Request) (Response, error) {
	model, err := g.registry.Lookup(req.Model)
	if err != nil {
		return Response{}, err
	}

	provider, ok := g.providers[model.Provider]
	if !ok {
		return Response{}, fmt.Errorf("%w: %s", ErrProviderUnavailable, model.Provider)
	}

	return invoke(ctx, g.tracer, g.logger, g.now, provider, model, req)
}

// ListModels returns the full registry.
func (g *Gateway) ListModels() []ModelInfo {
	return g.registry.List()
}

// GetModel returns a single registry entry.
func (g *Gateway) GetModel(id string) (ModelInfo, error) {
	return g.registry.Lookup(id)
}

// Health reports which providers are configured.
func (g *Gateway) Health() Health {
	providers := make(map[string]bool, len(KnownProviders))
	for _, name := range KnownProviders {
		_, ok := g.providers[name]
		providers[name] = ok
	}

	return Health{
		Status:          "healthy",
		Service:         g.service,
		Providers:       providers,
		AvailableModels: g.registry.Len(),
	}
}

// invoke measures latency around the provider call only.
func invoke(ctx context.Context, tracer trace.Tracer, logger zerolog.Logger, now func() time.Time, provider Provider, model ModelInfo, req Request) (Response, error) {
	ctx, span := tracer.Start(ctx, "llm.generate", trace.WithAttributes(
		attribute.String("llm.provider", model.Provider),
		attribute.String("llm.model", model.ID),
	))
	defer span.End()

	start := now()
	completion, err := provider.Complete(ctx, model, req)
	elapsed := now().Sub(start)
	providerDuration.WithLabelValues(model.Provider, model.ID).Observe(elapsed.Seconds())

	if err != nil {
		providerFailures.WithLabelValues(model.Provider, model.ID).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn().Err(err).Str("provider", model.Provider).Str("model", model.ID).Msg("provider call failed")
		return Response{}, &ProviderError{Provider: model.Provider, Model: model.ID, Err: err}
	}

	tokensUsed.WithLabelValues(model.Provider, model.ID, "prompt").Add(float64(completion.Usage.PromptTokens))
	tokensUsed.WithLabelValues(model.Provider, model.ID, "completion").Add(float64(completion.Usage.CompletionTokens))
	span.SetAttributes(
		attribute.Int("llm.total_tokens", completion.Usage.TotalTokens),
		attribute.Bool("llm.usage_estimated", completion.Usage.Estimated),
	)

	return Response{
		Model:     model.ID,
		Content:   completion.Content,
		Usage:     completion.Usage,
		LatencyMs: elapsed.Milliseconds(),
		Provider:  model.Provider,
		CreatedAt: now().UTC(),
	}, nil
}

// DirectGenerator pins one provider and model, bypassing the registry. It is
// used for provider fallback paths outside the gateway service.
type DirectGenerator struct {
	provider Provider
	model    ModelInfo
	tracer   trace.Tracer
	logger   zerolog.Logger
	now      func() time.Time
}

// NewDirectGenerator builds a generator that always calls model on provider.
func NewDirectGenerator(provider Provider, model ModelInfo, logger zerolog.Logger) *DirectGenerator {
	if model.ProviderModel == "" {
		model.ProviderModel = model.ID
	}
	if model.Provider == "" {
		model.Provider = provider.Name()
	}

	return &DirectGenerator{
		provider: provider,
		model:    model,
		tracer:   otel.Tracer("github.com/noah-isme/aisensei-api/pkg/llm/direct"),
		logger:   logger.With().Str("component", "llm_direct").Logger(),
		now:      time.Now,
	}
}

// Generate ignores req.Model and calls the pinned model.
func (d *DirectGenerator) Generate(ctx context.Context, req Request) (Response, error) {
	return invoke(ctx, d.tracer, d.logger, d.now, d.provider, d.model, req)
}
