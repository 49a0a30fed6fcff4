package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/noah-isme/aisensei-api/internal/dto"
	"github.com/noah-isme/aisensei-api/internal/models"
	"github.com/noah-isme/aisensei-api/internal/observability"
	"github.com/noah-isme/aisensei-api/internal/repository"
)

// BatchItemConflict marks a batch item another caller claimed first.
const BatchItemConflict = "conflict"

// BatchOptions configures one batch run.
type BatchOptions struct {
	Model        string
	StatusFilter string
}

// BatchGradingService grades every eligible submission of an assignment.
type BatchGradingService interface {
	GradeAssignment(ctx context.Context, teacherID, assignmentID uint, opts BatchOptions) (dto.BatchGradeResponse, error)
}

type batchGradingService struct {
	assignments repository.AssignmentRepository
	submissions repository.SubmissionRepository
	files       repository.SubmissionFileRepository
	grading     GradingService
	concurrency int
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// NewBatchGradingService builds the coordinator. concurrency below 1 grades sequentially.
func NewBatchGradingService(assignments repository.AssignmentRepository, submissions repository.SubmissionRepository, files repository.SubmissionFileRepository, grading GradingService, concurrency int, logger zerolog.Logger) BatchGradingService {
	if concurrency < 1 {
		concurrency = 1
	}

	return &batchGradingService{
		assignments: assignments,
		submissions: submissions,
		files:       files,
		grading:     grading,
		concurrency: concurrency,
		logger:      logger.With().Str("component", "batch_grading_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/aisensei-api/internal/service/batch_grading"),
	}
}

func (s *batchGradingService) GradeAssignment(ctx context.Context, teacherID, assignmentID uint, opts BatchOptions) (dto.BatchGradeResponse, error) {
	ctx, span := s.tracer.Start(ctx, "grading.batch", trace.WithAttributes(
		attribute.Int64("grading.assignment_id", int64(assignmentID)),
		attribute.String("grading.status_filter", opts.StatusFilter),
	))
	defer span.End()

	assignment, err := s.assignments.GetForTeacher(ctx, teacherID, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.BatchGradeResponse{}, ErrAssignmentNotFound
		}
		span.RecordError(err)
		return dto.BatchGradeResponse{}, err
	}

	statuses := models.GradeableStatuses
	if opts.StatusFilter != "" {
		statuses = []string{opts.StatusFilter}
	}

	response := dto.BatchGradeResponse{
		AssignmentID: assignment.ID,
		Model:        opts.Model,
		Items:        []dto.BatchItemResult{},
	}

	candidates, err := s.submissions.ListByAssignment(ctx, assignment.ID, statuses)
	if err != nil {
		span.RecordError(err)
		return dto.BatchGradeResponse{}, err
	}
	response.TotalSubmissions = len(candidates)
	observability.BatchSubmissions().WithLabelValues("candidates").Observe(float64(len(candidates)))

	if len(candidates) == 0 {
		response.Message = "No submissions found to grade"
		return response, nil
	}

	ids := make([]uint, 0, len(candidates))
	for _, candidate := range candidates {
		ids = append(ids, candidate.ID)
	}
	fileCounts, err := s.files.CountBySubmissions(ctx, ids)
	if err != nil {
		span.RecordError(err)
		return dto.BatchGradeResponse{}, err
	}

	// Stamp every content-bearing submission before grading any of them.
	claimed := make([]models.Submission, 0, len(candidates))
	for _, candidate := range candidates {
		if !HasContent(candidate, fileCounts[candidate.ID]) {
			response.SkippedNoContent++
			continue
		}
		response.GradeableSubmissions++

		err := s.submissions.TransitionStatus(ctx, candidate.ID, statuses, models.SubmissionStatusProcessing)
		if err != nil {
			var conflict *repository.StatusConflictError
			if errors.As(err, &conflict) {
				response.Items = append(response.Items, dto.BatchItemResult{
					SubmissionID: candidate.ID,
					Status:       BatchItemConflict,
					Error:        (&AlreadyInStateError{Status: conflict.Current}).Error(),
				})
				continue
			}
			span.RecordError(err)
			s.abandon(ctx, claimed, err)
			return dto.BatchGradeResponse{}, err
		}

		candidate.Status = models.SubmissionStatusProcessing
		candidate.Assignment = assignment
		claimed = append(claimed, candidate)
	}
	observability.BatchSubmissions().WithLabelValues("gradeable").Observe(float64(response.GradeableSubmissions))

	if response.GradeableSubmissions == 0 {
		response.Message = "No submissions have content to grade"
		return response, nil
	}

	results := make([]dto.BatchItemResult, len(claimed))
	var (
		mu     sync.Mutex
		graded int
		failed int
	)

	var group errgroup.Group
	group.SetLimit(s.concurrency)
	for i := range claimed {
		group.Go(func() error {
			result := s.gradeOne(ctx, claimed[i], opts.Model)
			results[i] = result

			mu.Lock()
			if result.Status == models.SubmissionStatusGraded {
				graded++
			} else {
				failed++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	response.Items = append(response.Items, results...)
	response.GradedCount = graded
	response.FailedCount = failed
	response.Message = "Batch grading completed"

	s.logger.Info().
		Uint("assignment_id", assignment.ID).
		Int("total", response.TotalSubmissions).
		Int("gradeable", response.GradeableSubmissions).
		Int("graded", graded).
		Int("failed", failed).
		Msg("batch grading finished")

	return response, nil
}

func (s *batchGradingService) gradeOne(ctx context.Context, submission models.Submission, model string) dto.BatchItemResult {
	files, err := s.files.ListBySubmission(ctx, submission.ID)
	if err != nil {
		return s.failItem(ctx, submission, fmt.Errorf("load files: %w", err))
	}
	submission.Files = files

	graded, err := s.grading.GradeClaimed(ctx, submission, model)
	if err != nil {
		s.logger.Error().Err(err).Uint("submission_id", submission.ID).Msg("failed to grade submission in batch")
		return dto.BatchItemResult{
			SubmissionID: submission.ID,
			Status:       models.SubmissionStatusFailed,
			Error:        err.Error(),
		}
	}

	score := graded.Score
	return dto.BatchItemResult{
		SubmissionID: submission.ID,
		Status:       models.SubmissionStatusGraded,
		Score:        &score,
		ModelUsed:    graded.ModelUsed,
	}
}

// abandon marks submissions this run already claimed as failed, so an aborted
// batch never leaves them in processing.
func (s *batchGradingService) abandon(ctx context.Context, claimed []models.Submission, cause error) {
	for _, submission := range claimed {
		s.failItem(ctx, submission, fmt.Errorf("batch aborted: %w", cause))
	}
	if len(claimed) > 0 {
		s.logger.Warn().Err(cause).Int("released", len(claimed)).Msg("batch aborted while claiming submissions")
	}
}

func (s *batchGradingService) failItem(ctx context.Context, submission models.Submission, cause error) dto.BatchItemResult {
	message := (&GradingError{SubmissionID: submission.ID, Err: cause}).Error()
	if err := s.submissions.MarkFailed(context.WithoutCancel(ctx), submission.ID, message); err != nil {
		s.logger.Error().Err(err).Uint("submission_id", submission.ID).Msg("failed to mark submission failed")
	}
	observability.GradingOutcomes().WithLabelValues("failed").Inc()

	return dto.BatchItemResult{
		SubmissionID: submission.ID,
		Status:       models.SubmissionStatusFailed,
		Error:        message,
	}
}
