package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/noah-isme/aisensei-api/internal/dto"
	"github.com/noah-isme/aisensei-api/pkg/llm"
)

// ModelCatalog lists the models a gateway can serve.
type ModelCatalog interface {
	ListModels(ctx context.Context) ([]llm.ModelInfo, error)
}

var fallbackGradingModels = []dto.GradingModel{
	{ID: "azure-gpt-4", Provider: llm.ProviderAzure, Name: "Azure GPT-4", Description: "GPT-4 via Azure OpenAI"},
	{ID: "azure-gpt-35-turbo", Provider: llm.ProviderAzure, Name: "Azure GPT-3.5 Turbo", Description: "GPT-3.5 Turbo via Azure OpenAI"},
}

// GradingModelsService reports which models may be requested for grading.
type GradingModelsService interface {
	List(ctx context.Context) dto.GradingModelsResponse
}

type gradingModelsService struct {
	catalog ModelCatalog
	logger  zerolog.Logger
}

// NewGradingModelsService wraps a catalog. A nil catalog always yields the fallback list.
func NewGradingModelsService(catalog ModelCatalog, logger zerolog.Logger) GradingModelsService {
	return &gradingModelsService{
		catalog: catalog,
		logger:  logger.With().Str("component", "grading_models_service").Logger(),
	}
}

func (s *gradingModelsService) List(ctx context.Context) dto.GradingModelsResponse {
	if s.catalog == nil {
		return fallbackModels()
	}

	models, err := s.catalog.ListModels(ctx)
	if err != nil || len(models) == 0 {
		s.logger.Warn().Err(err).Msg("model catalog unavailable, serving fallback list")
		return fallbackModels()
	}

	items := make([]dto.GradingModel, 0, len(models))
	for _, model := range models {
		items = append(items, dto.GradingModel{
			ID:          model.ID,
			Provider:    model.Provider,
			Name:        model.Name,
			Description: model.Description,
		})
	}

	return dto.GradingModelsResponse{Models: items}
}

func fallbackModels() dto.GradingModelsResponse {
	items := make([]dto.GradingModel, len(fallbackGradingModels))
	copy(items, fallbackGradingModels)
	return dto.GradingModelsResponse{Models: items, Fallback: true}
}
