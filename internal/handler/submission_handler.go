package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/aisensei-api/internal/middleware"
	"github.com/noah-isme/aisensei-api/internal/service"
	"github.com/noah-isme/aisensei-api/internal/utils"
)

// GoogleAccessTokenHeader carries the caller's Google OAuth token for Drive reads.
const GoogleAccessTokenHeader = "X-Google-Access-Token"

// SubmissionHandler manages submission file endpoints.
type SubmissionHandler struct {
	files       service.SubmissionFileService
	attachments service.AttachmentService
	logger      zerolog.Logger
}

// NewSubmissionHandler builds a submission handler instance.
func NewSubmissionHandler(files service.SubmissionFileService, attachments service.AttachmentService, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		files:       files,
		attachments: attachments,
		logger:      logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *SubmissionHandler) Register(router fiber.Router) {
	router.Post("/:id/files", h.upload)
	router.Get("/:id/status", h.status)
	router.Post("/:id/attachments/process", h.processAttachments)
}

func (h *SubmissionHandler) upload(c *fiber.Ctx) error {
	submissionID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return respondError(c, h.logger, service.ErrUploadMissing)
	}

	result, err := h.files.Upload(requestContext(c), middleware.TeacherID(c), submissionID, fileHeader)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, result.Message, result)
}

func (h *SubmissionHandler) status(c *fiber.Ctx) error {
	submissionID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.files.Status(requestContext(c), middleware.TeacherID(c), submissionID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submission status", result)
}

func (h *SubmissionHandler) processAttachments(c *fiber.Ctx) error {
	submissionID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	token := strings.TrimSpace(c.Get(GoogleAccessTokenHeader))
	result, err := h.attachments.ProcessAttachments(requestContext(c), middleware.TeacherID(c), submissionID, token)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, result.Message, result)
}
