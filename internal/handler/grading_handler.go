package handler

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/aisensei-api/internal/dto"
	"github.com/noah-isme/aisensei-api/internal/middleware"
	"github.com/noah-isme/aisensei-api/internal/service"
	"github.com/noah-isme/aisensei-api/internal/utils"
)

// GradingHandler exposes single and batch grading, progress and feedback.
type GradingHandler struct {
	grading   service.GradingService
	batch     service.BatchGradingService
	progress  service.GradingProgressService
	models    service.GradingModelsService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewGradingHandler builds a grading handler.
func NewGradingHandler(grading service.GradingService, batch service.BatchGradingService, progress service.GradingProgressService, models service.GradingModelsService, validator *validator.Validate, logger zerolog.Logger) *GradingHandler {
	return &GradingHandler{
		grading:   grading,
		batch:     batch,
		progress:  progress,
		models:    models,
		validator: validator,
		logger:    logger.With().Str("component", "grading_handler").Logger(),
	}
}

// Register attaches the grading routes. Calls that reach a model go through limit.
func (h *GradingHandler) Register(router fiber.Router, limit fiber.Handler) {
	if limit == nil {
		limit = func(c *fiber.Ctx) error { return c.Next() }
	}

	router.Post("/submissions/:id", limit, h.grade)
	router.Get("/submissions/:id/feedback", h.feedback)
	router.Post("/assignments/:id/batch", limit, h.gradeBatch)
	router.Get("/assignments/:id/progress", h.progressReport)
	router.Get("/models", h.listModels)
}

func (h *GradingHandler) grade(c *fiber.Ctx) error {
	submissionID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.GradeRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
		}
	}
	if model := strings.TrimSpace(c.Query("model")); model != "" {
		payload.Model = model
	}
	if err := h.validator.Struct(payload); err != nil {
		return respondError(c, h.logger, err)
	}

	result, err := h.grading.Grade(requestContext(c), middleware.TeacherID(c), submissionID, payload.Model)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, result.Message, result)
}

func (h *GradingHandler) gradeBatch(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.BatchGradeRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
		}
	}
	if err := h.validator.Struct(payload); err != nil {
		return respondError(c, h.logger, err)
	}

	result, err := h.batch.GradeAssignment(requestContext(c), middleware.TeacherID(c), assignmentID, service.BatchOptions{
		Model:        payload.Model,
		StatusFilter: payload.StatusFilter,
	})
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, result.Message, result)
}

func (h *GradingHandler) progressReport(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.progress.Progress(requestContext(c), middleware.TeacherID(c), assignmentID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "grading progress", result)
}

func (h *GradingHandler) feedback(c *fiber.Ctx) error {
	submissionID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.progress.Feedback(requestContext(c), middleware.TeacherID(c), submissionID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submission feedback", result)
}

func (h *GradingHandler) listModels(c *fiber.Ctx) error {
	result := h.models.List(requestContext(c))
	return utils.OK(c, result.Models, "available models", fiber.Map{"fallback": result.Fallback})
}
