package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/aisensei-api/internal/config"
	"github.com/noah-isme/aisensei-api/internal/gateway"
	"github.com/noah-isme/aisensei-api/pkg/llm"
)

func main() {
	cfg, err := config.LoadGateway()
	if err != nil {
		log.Fatalf("failed to load gateway configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()

	registry := llm.DefaultRegistry()
	if cfg.ModelRegistryFile != "" {
		if err := registry.LoadFile(cfg.ModelRegistryFile); err != nil {
			log.Fatalf("failed to load model registry: %v", err)
		}
	}

	core := llm.NewGateway(cfg.AppName, registry, logger, buildProviders(cfg, logger)...)
	handler := gateway.NewHandler(core, logger)

	serverCfg := gateway.ServerConfig{
		Address:        cfg.HTTPAddress(),
		AllowedOrigins: cfg.CORSAllowedOrigins,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   cfg.ProviderTimeout + 15*time.Second,
		IdleTimeout:    60 * time.Second,
	}
	server := gateway.NewServer(serverCfg, gateway.NewRouter(serverCfg, handler, logger), logger)

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start gateway: %v", err)
		}
	}()

	waitForShutdown(server)
}

// buildProviders returns adapters for every provider with credentials.
func buildProviders(cfg config.GatewayConfig, logger zerolog.Logger) []llm.Provider {
	providers := make([]llm.Provider, 0, len(llm.KnownProviders))

	if cfg.OpenAIAPIKey != "" {
		if provider, err := llm.NewOpenAIProvider(llm.OpenAIConfig{APIKey: cfg.OpenAIAPIKey}); err == nil {
			providers = append(providers, provider)
		} else {
			logger.Warn().Err(err).Msg("openai provider disabled")
		}
	}

	if cfg.AzureAPIKey != "" {
		provider, err := llm.NewAzureProvider(llm.AzureConfig{
			APIKey:     cfg.AzureAPIKey,
			Endpoint:   cfg.AzureEndpoint,
			APIVersion: cfg.AzureAPIVersion,
		})
		if err == nil {
			providers = append(providers, provider)
		} else {
			logger.Warn().Err(err).Msg("azure provider disabled")
		}
	}

	if cfg.AnthropicAPIKey != "" {
		provider, err := llm.NewAnthropicProvider(llm.AnthropicConfig{
			APIKey:  cfg.AnthropicAPIKey,
			BaseURL: cfg.AnthropicBaseURL,
			Timeout: cfg.ProviderTimeout,
		})
		if err == nil {
			providers = append(providers, provider)
		} else {
			logger.Warn().Err(err).Msg("anthropic provider disabled")
		}
	}

	if cfg.GeminiAPIKey != "" {
		provider, err := llm.NewGeminiProvider(llm.GeminiConfig{
			APIKey:  cfg.GeminiAPIKey,
			BaseURL: cfg.GeminiBaseURL,
			Timeout: cfg.ProviderTimeout,
		})
		if err == nil {
			providers = append(providers, provider)
		} else {
			logger.Warn().Err(err).Msg("gemini provider disabled")
		}
	}

	return providers
}

func waitForShutdown(server *gateway.Server) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("gateway stopped")
}
