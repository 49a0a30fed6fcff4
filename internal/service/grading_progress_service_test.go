package service

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/aisensei-api/internal/models"
	"github.com/noah-isme/aisensei-api/internal/repository"
)

type countingSubmissionRepo struct {
	repository.SubmissionRepository
	countCalls int
}

func (r *countingSubmissionRepo) CountByStatus(ctx context.Context, assignmentID uint) ([]repository.StatusCount, error) {
	r.countCalls++
	return r.SubmissionRepository.CountByStatus(ctx, assignmentID)
}

func gradeDirectly(t *testing.T, f gradingFixture, score float64) {
	t.Helper()
	submission := f.submission(t, models.SubmissionStatusProcessing, models.ShortAnswer("answer"))
	require.NoError(t, f.submissions.SaveGrade(context.Background(), submission.ID, repository.GradeUpdate{
		Score:    score,
		Feedback: "ok",
		GradedAt: time.Now(),
	}))
}

func TestGradingProgressAggregatesStatuses(t *testing.T) {
	f := newGradingFixture(t)
	gradeDirectly(t, f, 80)
	gradeDirectly(t, f, 91)
	f.submission(t, models.SubmissionStatusFailed, models.ShortAnswer("x"))
	f.submission(t, models.SubmissionStatusPending, nil)
	f.submission(t, models.SubmissionStatusProcessing, models.ShortAnswer("y"))
	f.submission(t, models.SubmissionStatusSubmitted, models.ShortAnswer("z"))

	svc := NewGradingProgressService(f.assignments, f.submissions, nil, 0, testLogger())

	progress, err := svc.Progress(context.Background(), f.owner.ID, f.assignment.ID)
	require.NoError(t, err)
	require.Equal(t, f.assignment.ID, progress.AssignmentID)
	require.EqualValues(t, 6, progress.TotalSubmissions)
	require.EqualValues(t, 2, progress.Graded)
	require.EqualValues(t, 1, progress.Failed)
	require.EqualValues(t, 1, progress.Pending)
	require.EqualValues(t, 1, progress.Processing)
	require.Equal(t, 33.3, progress.CompletionPercentage)
	require.NotNil(t, progress.AverageScore)
	require.Equal(t, 85.5, *progress.AverageScore)
}

func TestGradingProgressEmptyAssignment(t *testing.T) {
	f := newGradingFixture(t)
	svc := NewGradingProgressService(f.assignments, f.submissions, nil, 0, testLogger())

	progress, err := svc.Progress(context.Background(), f.owner.ID, f.assignment.ID)
	require.NoError(t, err)
	require.Zero(t, progress.TotalSubmissions)
	require.Zero(t, progress.CompletionPercentage)
	require.Nil(t, progress.AverageScore)
}

func TestGradingProgressCachesUntilInvalidated(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer redisClient.Close()

	f := newGradingFixture(t)
	gradeDirectly(t, f, 60)
	repo := &countingSubmissionRepo{SubmissionRepository: f.submissions}

	svc := NewGradingProgressService(f.assignments, repo, redisClient, time.Minute, testLogger())

	first, err := svc.Progress(context.Background(), f.owner.ID, f.assignment.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, first.Graded)
	require.Equal(t, 1, repo.countCalls)
	require.True(t, server.Exists(progressCacheKey(f.assignment.ID)))

	gradeDirectly(t, f, 100)

	cached, err := svc.Progress(context.Background(), f.owner.ID, f.assignment.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, cached.Graded)
	require.Equal(t, 1, repo.countCalls)

	svc.Invalidate(context.Background(), f.assignment.ID)

	fresh, err := svc.Progress(context.Background(), f.owner.ID, f.assignment.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, fresh.Graded)
	require.Equal(t, 80.0, *fresh.AverageScore)
	require.Equal(t, 2, repo.countCalls)
}

func TestGradingProgressChecksOwnershipBeforeCache(t *testing.T) {
	f := newGradingFixture(t)
	svc := NewGradingProgressService(f.assignments, f.submissions, nil, 0, testLogger())

	_, err := svc.Progress(context.Background(), f.stranger.ID, f.assignment.ID)
	require.ErrorIs(t, err, ErrAssignmentNotFound)
}

func TestGradingFeedback(t *testing.T) {
	f := newGradingFixture(t)
	submission := f.submission(t, models.SubmissionStatusSubmitted, models.ShortAnswer("Mitochondria"))

	grading := newTestGradingService(f, []GradingRoute{{Name: "gateway", Generator: &generatorStub{content: gradedJSON}}}, nil)
	_, err := grading.Grade(context.Background(), f.owner.ID, submission.ID, "")
	require.NoError(t, err)

	svc := NewGradingProgressService(f.assignments, f.submissions, nil, 0, testLogger())

	feedback, err := svc.Feedback(context.Background(), f.owner.ID, submission.ID)
	require.NoError(t, err)
	require.Equal(t, submission.ID, feedback.SubmissionID)
	require.Equal(t, models.SubmissionStatusGraded, feedback.Status)
	require.Equal(t, "Correct and concise.", feedback.Feedback)

	_, err = svc.Feedback(context.Background(), f.stranger.ID, submission.ID)
	require.ErrorIs(t, err, ErrSubmissionNotFound)
}
