package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/aisensei-api/pkg/llm"
)

// Service is the subset of the gateway core exposed over HTTP.
type Service interface {
	Generate(ctx context.Context, req llm.Request) (llm.Response, error)
	ListModels() []llm.ModelInfo
	GetModel(id string) (llm.ModelInfo, error)
	Health() llm.Health
}

// Handler serves the gateway REST surface.
type Handler struct {
	service   Service
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewHandler constructs the gateway handler.
func NewHandler(service Service, logger zerolog.Logger) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
		logger:    logger.With().Str("component", "gateway_handler").Logger(),
	}
}

// Register mounts the gateway routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.health)
	r.Get("/models", h.listModels)
	r.Get("/models/{id}", h.getModel)
	r.Post("/generate", h.generate)
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Health())
}

func (h *Handler) listModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.ListModels())
}

func (h *Handler) getModel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	model, err := h.service.GetModel(id)
	if err != nil {
		if errors.Is(err, llm.ErrUnknownModel) {
			writeJSON(w, http.StatusNotFound, errorResponse{Detail: fmt.Sprintf("Model '%s' not found", id)})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, model)
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	var req llm.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: "Invalid request body"})
		return
	}

	if err := h.validator.Struct(req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: err.Error()})
		return
	}

	resp, err := h.service.Generate(r.Context(), req)
	if err != nil {
		h.handleError(w, req.Model, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleError(w http.ResponseWriter, model string, err error) {
	var providerErr *llm.ProviderError

	switch {
	case errors.Is(err, llm.ErrUnknownModel):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Detail: fmt.Sprintf("Model '%s' not available. Use /models endpoint to see available models.", model),
		})
	case errors.Is(err, llm.ErrProviderUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Detail: err.Error()})
	case errors.As(err, &providerErr):
		h.logger.Error().Err(err).Str("model", model).Msg("generation failed")
		writeJSON(w, http.StatusBadGateway, errorResponse{Detail: fmt.Sprintf("Error generating response: %v", providerErr.Err)})
	default:
		h.logger.Error().Err(err).Str("model", model).Msg("generation failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: fmt.Sprintf("Error generating response: %v", err)})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
