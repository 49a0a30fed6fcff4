package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/aisensei-api/internal/dto"
	"github.com/noah-isme/aisensei-api/internal/models"
	"github.com/noah-isme/aisensei-api/internal/repository"
)

// GradingProgressService reports grading progress and committed feedback.
type GradingProgressService interface {
	Progress(ctx context.Context, teacherID, assignmentID uint) (dto.GradingProgressResponse, error)
	Feedback(ctx context.Context, teacherID, submissionID uint) (dto.SubmissionFeedbackResponse, error)
	Invalidate(ctx context.Context, assignmentID uint)
}

type gradingProgressService struct {
	assignments repository.AssignmentRepository
	submissions repository.SubmissionRepository
	cache       *redis.Client
	cacheTTL    time.Duration
	logger      zerolog.Logger
}

// NewGradingProgressService builds the progress aggregator. cache may be nil.
func NewGradingProgressService(assignments repository.AssignmentRepository, submissions repository.SubmissionRepository, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) GradingProgressService {
	return &gradingProgressService{
		assignments: assignments,
		submissions: submissions,
		cache:       cache,
		cacheTTL:    ttl,
		logger:      logger.With().Str("component", "grading_progress_service").Logger(),
	}
}

func progressCacheKey(assignmentID uint) string {
	return fmt.Sprintf("grading:progress:assignment:%d", assignmentID)
}

func (s *gradingProgressService) Progress(ctx context.Context, teacherID, assignmentID uint) (dto.GradingProgressResponse, error) {
	if _, err := s.assignments.GetForTeacher(ctx, teacherID, assignmentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.GradingProgressResponse{}, ErrAssignmentNotFound
		}
		return dto.GradingProgressResponse{}, err
	}

	cacheKey := progressCacheKey(assignmentID)
	if s.cache != nil && s.cacheTTL > 0 {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var response dto.GradingProgressResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				s.logger.Debug().Uint("assignment_id", assignmentID).Msg("progress cache hit")
				return response, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read progress cache")
		}
	}

	counts, err := s.submissions.CountByStatus(ctx, assignmentID)
	if err != nil {
		return dto.GradingProgressResponse{}, err
	}

	average, err := s.submissions.AverageScore(ctx, assignmentID)
	if err != nil {
		return dto.GradingProgressResponse{}, err
	}

	response := buildProgress(assignmentID, counts, average)

	if s.cache != nil && s.cacheTTL > 0 {
		payload, err := json.Marshal(response)
		if err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store progress cache")
			}
		}
	}

	return response, nil
}

func (s *gradingProgressService) Feedback(ctx context.Context, teacherID, submissionID uint) (dto.SubmissionFeedbackResponse, error) {
	submission, err := s.submissions.GetForTeacher(ctx, teacherID, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionFeedbackResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionFeedbackResponse{}, err
	}

	return dto.NewSubmissionFeedbackResponse(submission), nil
}

func (s *gradingProgressService) Invalidate(ctx context.Context, assignmentID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, progressCacheKey(assignmentID)).Err(); err != nil {
		s.logger.Warn().Err(err).Uint("assignment_id", assignmentID).Msg("failed to invalidate progress cache")
	}
}

func buildProgress(assignmentID uint, counts []repository.StatusCount, average *float64) dto.GradingProgressResponse {
	response := dto.GradingProgressResponse{AssignmentID: assignmentID}

	for _, count := range counts {
		response.TotalSubmissions += count.Count
		switch count.Status {
		case models.SubmissionStatusPending:
			response.Pending = count.Count
		case models.SubmissionStatusProcessing:
			response.Processing = count.Count
		case models.SubmissionStatusGraded:
			response.Graded = count.Count
		case models.SubmissionStatusFailed:
			response.Failed = count.Count
		}
	}

	total := response.TotalSubmissions
	if total < 1 {
		total = 1
	}
	response.CompletionPercentage = roundTo(float64(response.Graded)/float64(total)*100, 1)

	if average != nil {
		rounded := roundTo(*average, 2)
		response.AverageScore = &rounded
	}

	return response
}

func roundTo(value float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(value*factor) / factor
}
