package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/aisensei-api/internal/dto"
	"github.com/noah-isme/aisensei-api/internal/models"
	"github.com/noah-isme/aisensei-api/internal/observability"
	"github.com/noah-isme/aisensei-api/internal/repository"
	"github.com/noah-isme/aisensei-api/pkg/llm"
)

var (
	// ErrSubmissionNotFound indicates the submission does not exist or belongs to another teacher.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrAssignmentNotFound indicates the assignment does not exist or belongs to another teacher.
	ErrAssignmentNotFound = errors.New("assignment not found")
	// ErrAlreadyInState indicates the submission is already being graded or was graded.
	ErrAlreadyInState = errors.New("submission already in that state")
	// ErrGradingFailed indicates a grading attempt failed after the submission was claimed.
	ErrGradingFailed = errors.New("grading failed")
	// ErrNoGradingRoutes indicates no model route is configured.
	ErrNoGradingRoutes = errors.New("no AI service available")
)

// DefaultGradingModel is the alias target for unknown model hints.
const DefaultGradingModel = "gemini-pro"

var modelAliases = map[string]string{
	"gemini":           "gemini-pro",
	"gemini-pro":       "gemini-pro",
	"gemini-1.5-flash": "gemini-pro",
	"gpt-4":            "gpt-4",
	"gpt-3.5-turbo":    "gpt-3.5-turbo",
	"claude-3-sonnet":  "claude-3-sonnet",
	"claude-3-haiku":   "claude-3-haiku",
}

// ResolveModelAlias maps a caller's model hint to a gateway model id.
func ResolveModelAlias(hint string) string {
	if model, ok := modelAliases[strings.ToLower(strings.TrimSpace(hint))]; ok {
		return model
	}
	return DefaultGradingModel
}

// AlreadyInStateError reports the status that blocked a grading call.
type AlreadyInStateError struct {
	Status string
}

func (e *AlreadyInStateError) Error() string {
	return fmt.Sprintf("Submission is already %s", e.Status)
}

// Is lets errors.Is match ErrAlreadyInState.
func (e *AlreadyInStateError) Is(target error) bool {
	return target == ErrAlreadyInState
}

// GradingRoute is one way of reaching a model. Routes are tried in order.
type GradingRoute struct {
	Name      string
	Generator llm.Generator
	// Model pins the model id; empty uses the resolved hint.
	Model string
	// Label is reported as model_used; empty uses the model id.
	Label string
}

// AttemptResult records one route attempt.
type AttemptResult struct {
	Route   string
	Model   string
	Latency time.Duration
	Err     error
}

// RoutesExhaustedError reports that every route failed.
type RoutesExhaustedError struct {
	Attempts []AttemptResult
}

func (e *RoutesExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, attempt := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", attempt.Route, attempt.Err))
	}
	return "All AI services failed. " + strings.Join(parts, ", ")
}

// GradingError is returned when a claimed submission could not be graded.
type GradingError struct {
	SubmissionID uint
	Attempts     []AttemptResult
	Err          error
}

func (e *GradingError) Error() string {
	return "Grading failed: " + e.Err.Error()
}

func (e *GradingError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrGradingFailed.
func (e *GradingError) Is(target error) bool {
	return target == ErrGradingFailed
}

// GradingConfig tunes the grading request.
type GradingConfig struct {
	DefaultModel   string
	Temperature    float64
	MaxTokens      int
	AttemptTimeout time.Duration
}

// GradingService drives one submission through grading.
type GradingService interface {
	Grade(ctx context.Context, teacherID, submissionID uint, modelHint string) (dto.GradeResponse, error)
	// GradeClaimed grades a submission the caller already moved into
	// processing. The submission must carry its assignment, questions, rubric
	// and files.
	GradeClaimed(ctx context.Context, submission models.Submission, modelHint string) (dto.GradeResponse, error)
}

type progressInvalidator interface {
	Invalidate(ctx context.Context, assignmentID uint)
}

type gradingService struct {
	submissions repository.SubmissionRepository
	routes      []GradingRoute
	events      GradingEventHub
	progress    progressInvalidator
	config      GradingConfig
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewGradingService builds the orchestrator. events and progress may be nil.
func NewGradingService(submissions repository.SubmissionRepository, routes []GradingRoute, events GradingEventHub, progress GradingProgressService, cfg GradingConfig, logger zerolog.Logger) GradingService {
	return newGradingService(submissions, routes, events, progress, cfg, logger)
}

func newGradingService(submissions repository.SubmissionRepository, routes []GradingRoute, events GradingEventHub, progress GradingProgressService, cfg GradingConfig, logger zerolog.Logger) *gradingService {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gemini"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2000
	}

	service := &gradingService{
		submissions: submissions,
		routes:      routes,
		events:      events,
		config:      cfg,
		logger:      logger.With().Str("component", "grading_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/aisensei-api/internal/service/grading"),
		now:         time.Now,
	}
	if progress != nil {
		service.progress = progress
	}

	return service
}

func (s *gradingService) Grade(ctx context.Context, teacherID, submissionID uint, modelHint string) (dto.GradeResponse, error) {
	ctx, span := s.tracer.Start(ctx, "grading.grade", trace.WithAttributes(
		attribute.Int64("grading.submission_id", int64(submissionID)),
		attribute.String("grading.model_hint", modelHint),
	))
	defer span.End()

	submission, err := s.submissions.GetForTeacher(ctx, teacherID, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.GradeResponse{}, ErrSubmissionNotFound
		}
		span.RecordError(err)
		return dto.GradeResponse{}, err
	}

	if submission.Status == models.SubmissionStatusProcessing || submission.Status == models.SubmissionStatusGraded {
		observability.GradingOutcomes().WithLabelValues("rejected").Inc()
		return dto.GradeResponse{}, &AlreadyInStateError{Status: submission.Status}
	}

	if !IsGradeable(submission, len(submission.Files)) {
		observability.GradingOutcomes().WithLabelValues("no_content").Inc()
		return dto.GradeResponse{}, ErrNoContent
	}

	if err := s.claim(ctx, submission.ID); err != nil {
		if errors.Is(err, ErrAlreadyInState) {
			observability.GradingOutcomes().WithLabelValues("rejected").Inc()
		} else {
			span.RecordError(err)
		}
		return dto.GradeResponse{}, err
	}
	submission.Status = models.SubmissionStatusProcessing
	s.announce(ctx, submission, dto.GradingEvent{Status: models.SubmissionStatusProcessing})

	response, err := s.GradeClaimed(ctx, submission, modelHint)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "grading failed")
	}
	return response, err
}

// claim moves a submission into processing with a conditional update so two
// callers cannot both grade it.
func (s *gradingService) claim(ctx context.Context, submissionID uint) error {
	err := s.submissions.TransitionStatus(ctx, submissionID, models.ClaimableStatuses, models.SubmissionStatusProcessing)
	if err == nil {
		return nil
	}

	var conflict *repository.StatusConflictError
	if errors.As(err, &conflict) {
		return &AlreadyInStateError{Status: conflict.Current}
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrSubmissionNotFound
	}
	return err
}

func (s *gradingService) GradeClaimed(ctx context.Context, submission models.Submission, modelHint string) (dto.GradeResponse, error) {
	start := s.now()
	assignment := submission.Assignment

	blocks, err := AssembleContent(submission, submission.Files)
	if err != nil {
		return dto.GradeResponse{}, s.fail(ctx, submission, err, nil, start)
	}

	prompt := BuildGradingPrompt(assignment, assignment.Questions, assignment.Rubric, blocks, len(submission.Files))

	response, modelUsed, attempts, err := s.generate(ctx, modelHint, prompt)
	if err != nil {
		return dto.GradeResponse{}, s.fail(ctx, submission, err, attempts, start)
	}

	result := ParseGradingResponse(response.Content, assignment.EffectiveMaxPoints())
	if !result.Structured {
		s.logger.Warn().Uint("submission_id", submission.ID).Msg("model response was not valid grading JSON, using default score")
	}

	gradedAt := s.now().UTC()
	update := repository.GradeUpdate{
		Score:    result.Score,
		Feedback: result.Feedback,
		AIFeedback: &models.AIFeedback{
			Model:          modelUsed,
			DetailedScores: result.RubricScores,
			Strengths:      result.Strengths,
			Improvements:   result.Improvements,
			RawResponse:    response.Content,
			Structured:     result.Structured,
			TokensUsed:     response.Usage.TotalTokens,
			GradedAt:       gradedAt,
		},
		GradedAt: gradedAt,
	}

	if err := s.submissions.SaveGrade(ctx, submission.ID, update); err != nil {
		return dto.GradeResponse{}, s.fail(ctx, submission, fmt.Errorf("save grade: %w", err), attempts, start)
	}

	observability.GradingOutcomes().WithLabelValues("graded").Inc()
	observability.GradingLatency().WithLabelValues("graded").Observe(s.now().Sub(start).Seconds())

	score := result.Score
	s.announce(ctx, submission, dto.GradingEvent{
		Status:    models.SubmissionStatusGraded,
		Score:     &score,
		ModelUsed: modelUsed,
	})

	s.logger.Info().
		Uint("submission_id", submission.ID).
		Str("model", modelUsed).
		Float64("score", score).
		Bool("structured", result.Structured).
		Msg("submission graded")

	return dto.GradeResponse{
		Message:      "Grading completed",
		SubmissionID: submission.ID,
		Score:        score,
		Status:       models.SubmissionStatusGraded,
		ModelUsed:    modelUsed,
	}, nil
}

// generate walks the routes in order until one returns a response.
func (s *gradingService) generate(ctx context.Context, modelHint, prompt string) (llm.Response, string, []AttemptResult, error) {
	if len(s.routes) == 0 {
		return llm.Response{}, "", nil, ErrNoGradingRoutes
	}

	hint := modelHint
	if strings.TrimSpace(hint) == "" {
		hint = s.config.DefaultModel
	}
	resolved := ResolveModelAlias(hint)
	temperature := s.config.Temperature

	attempts := make([]AttemptResult, 0, len(s.routes))
	for _, route := range s.routes {
		model := route.Model
		if model == "" {
			model = resolved
		}

		request := llm.Request{
			Model:        model,
			Messages:     []llm.Message{{Role: llm.RoleUser, Content: prompt}},
			Temperature:  &temperature,
			MaxTokens:    s.config.MaxTokens,
			SystemPrompt: GradingSystemPrompt,
		}

		attemptCtx := ctx
		cancel := func() {}
		if s.config.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, s.config.AttemptTimeout)
		}
		started := s.now()
		response, err := route.Generator.Generate(attemptCtx, request)
		cancel()

		attempt := AttemptResult{Route: route.Name, Model: model, Latency: s.now().Sub(started), Err: err}
		attempts = append(attempts, attempt)

		if err != nil {
			observability.GradingRouteAttempts().WithLabelValues(route.Name, "error").Inc()
			s.logger.Warn().Err(err).Str("route", route.Name).Str("model", model).Msg("grading route failed, trying next")
			continue
		}

		observability.GradingRouteAttempts().WithLabelValues(route.Name, "ok").Inc()
		label := route.Label
		if label == "" {
			label = model
		}
		return response, label, attempts, nil
	}

	return llm.Response{}, "", attempts, &RoutesExhaustedError{Attempts: attempts}
}

// fail marks a claimed submission failed and returns the caller-facing error.
func (s *gradingService) fail(ctx context.Context, submission models.Submission, cause error, attempts []AttemptResult, start time.Time) error {
	gradingErr := &GradingError{SubmissionID: submission.ID, Attempts: attempts, Err: cause}

	persistCtx := context.WithoutCancel(ctx)
	if err := s.submissions.MarkFailed(persistCtx, submission.ID, gradingErr.Error()); err != nil {
		s.logger.Error().Err(err).Uint("submission_id", submission.ID).Msg("failed to mark submission failed")
	}

	observability.GradingOutcomes().WithLabelValues("failed").Inc()
	observability.GradingLatency().WithLabelValues("failed").Observe(s.now().Sub(start).Seconds())

	s.announce(persistCtx, submission, dto.GradingEvent{
		Status: models.SubmissionStatusFailed,
		Error:  gradingErr.Error(),
	})

	s.logger.Error().Err(cause).Uint("submission_id", submission.ID).Msg("grading failed")
	return gradingErr
}

func (s *gradingService) announce(ctx context.Context, submission models.Submission, event dto.GradingEvent) {
	if s.progress != nil {
		s.progress.Invalidate(ctx, submission.AssignmentID)
	}
	if s.events == nil {
		return
	}

	event.AssignmentID = submission.AssignmentID
	event.SubmissionID = submission.ID
	event.OccurredAt = s.now().UTC()
	s.events.Publish(ctx, event)
}
