package service

import (
	"context"
	"database/sql/driver"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/aisensei-api/internal/models"
	"github.com/noah-isme/aisensei-api/internal/repository"
)

// flakySubmissionRepo fails the nth TransitionStatus call with a driver error.
type flakySubmissionRepo struct {
	repository.SubmissionRepository
	mu     sync.Mutex
	calls  int
	failAt int
}

func (r *flakySubmissionRepo) TransitionStatus(ctx context.Context, id uint, from []string, to string) error {
	r.mu.Lock()
	r.calls++
	call := r.calls
	r.mu.Unlock()

	if call == r.failAt {
		return driver.ErrBadConn
	}
	return r.SubmissionRepository.TransitionStatus(ctx, id, from, to)
}

func newTestBatchService(f gradingFixture, gateway *generatorStub) BatchGradingService {
	grading := newTestGradingService(f, []GradingRoute{{Name: "gateway", Generator: gateway}}, nil)
	return NewBatchGradingService(f.assignments, f.submissions, f.files, grading, 1, testLogger())
}

func TestBatchGradingIsolatesFailures(t *testing.T) {
	f := newGradingFixture(t)
	first := f.submission(t, models.SubmissionStatusSubmitted, models.ShortAnswer("alpha"))
	second := f.submission(t, models.SubmissionStatusSubmitted, models.ShortAnswer("beta-explode"))
	third := f.submission(t, models.SubmissionStatusReturned, models.ShortAnswer("gamma"))
	empty := f.submission(t, models.SubmissionStatusPending, nil)
	graded := f.submission(t, models.SubmissionStatusGraded, models.ShortAnswer("delta"))

	gateway := &generatorStub{content: gradedJSON, failOn: "beta-explode"}
	svc := newTestBatchService(f, gateway)

	resp, err := svc.GradeAssignment(context.Background(), f.owner.ID, f.assignment.ID, BatchOptions{})
	require.NoError(t, err)
	require.Equal(t, "Batch grading completed", resp.Message)
	require.Equal(t, 4, resp.TotalSubmissions)
	require.Equal(t, 3, resp.GradeableSubmissions)
	require.Equal(t, 1, resp.SkippedNoContent)
	require.Equal(t, 2, resp.GradedCount)
	require.Equal(t, 1, resp.FailedCount)
	require.Len(t, resp.Items, 3)

	byID := map[uint]string{}
	for _, item := range resp.Items {
		byID[item.SubmissionID] = item.Status
	}
	require.Equal(t, models.SubmissionStatusGraded, byID[first.ID])
	require.Equal(t, models.SubmissionStatusFailed, byID[second.ID])
	require.Equal(t, models.SubmissionStatusGraded, byID[third.ID])

	require.Equal(t, models.SubmissionStatusGraded, f.reload(t, first.ID).Status)
	require.Equal(t, models.SubmissionStatusFailed, f.reload(t, second.ID).Status)
	require.Equal(t, models.SubmissionStatusGraded, f.reload(t, third.ID).Status)
	require.Equal(t, models.SubmissionStatusPending, f.reload(t, empty.ID).Status)
	require.Equal(t, models.SubmissionStatusGraded, f.reload(t, graded.ID).Status)
	require.Len(t, gateway.calls(), 3)
}

func TestBatchGradingStatusFilter(t *testing.T) {
	f := newGradingFixture(t)
	failed := f.submission(t, models.SubmissionStatusFailed, models.ShortAnswer("retry me"))
	f.submission(t, models.SubmissionStatusSubmitted, models.ShortAnswer("leave me"))

	svc := newTestBatchService(f, &generatorStub{content: gradedJSON})

	resp, err := svc.GradeAssignment(context.Background(), f.owner.ID, f.assignment.ID, BatchOptions{StatusFilter: models.SubmissionStatusFailed, Model: "gpt-4"})
	require.NoError(t, err)
	require.Equal(t, 1, resp.TotalSubmissions)
	require.Equal(t, 1, resp.GradedCount)
	require.Equal(t, "gpt-4", resp.Model)
	require.Equal(t, "gpt-4", resp.Items[0].ModelUsed)
	require.Equal(t, models.SubmissionStatusGraded, f.reload(t, failed.ID).Status)
}

func TestBatchGradingNothingToGrade(t *testing.T) {
	f := newGradingFixture(t)
	gateway := &generatorStub{content: gradedJSON}
	svc := newTestBatchService(f, gateway)

	resp, err := svc.GradeAssignment(context.Background(), f.owner.ID, f.assignment.ID, BatchOptions{})
	require.NoError(t, err)
	require.Equal(t, "No submissions found to grade", resp.Message)
	require.Zero(t, resp.TotalSubmissions)

	f.submission(t, models.SubmissionStatusSubmitted, nil)
	f.submission(t, models.SubmissionStatusSubmitted, models.ShortAnswer(" "))
	f.submission(t, models.SubmissionStatusSubmitted, models.AssignmentAnswer("", models.Attachment{DriveFile: &models.DriveFile{ID: "drive-1"}}))

	resp, err = svc.GradeAssignment(context.Background(), f.owner.ID, f.assignment.ID, BatchOptions{})
	require.NoError(t, err)
	require.Equal(t, "No submissions have content to grade", resp.Message)
	require.Equal(t, 3, resp.TotalSubmissions)
	require.Equal(t, 3, resp.SkippedNoContent)
	require.Empty(t, gateway.calls())
}

func TestBatchGradingCountsFileOnlySubmissions(t *testing.T) {
	f := newGradingFixture(t)
	submission := f.submission(t, models.SubmissionStatusSubmitted, nil)
	require.NoError(t, f.db.Create(&models.SubmissionFile{
		SubmissionID: submission.ID,
		Filename:     "essay.pdf",
		FilePath:     "submissions/1/essay.pdf",
		OCRStatus:    models.OCRStatusCompleted,
		OCRText:      "Cells divide by mitosis",
	}).Error)

	gateway := &generatorStub{content: gradedJSON}
	svc := newTestBatchService(f, gateway)

	resp, err := svc.GradeAssignment(context.Background(), f.owner.ID, f.assignment.ID, BatchOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, resp.GradedCount)
	require.Contains(t, gateway.calls()[0].Messages[0].Content, "Cells divide by mitosis")
}

func TestBatchGradingEnforcesOwnership(t *testing.T) {
	f := newGradingFixture(t)
	f.submission(t, models.SubmissionStatusSubmitted, models.ShortAnswer("alpha"))

	svc := newTestBatchService(f, &generatorStub{content: gradedJSON})

	_, err := svc.GradeAssignment(context.Background(), f.stranger.ID, f.assignment.ID, BatchOptions{})
	require.ErrorIs(t, err, ErrAssignmentNotFound)
}

func TestBatchGradingReleasesClaimsWhenStampingFails(t *testing.T) {
	f := newGradingFixture(t)
	first := f.submission(t, models.SubmissionStatusSubmitted, models.ShortAnswer("alpha"))
	second := f.submission(t, models.SubmissionStatusSubmitted, models.ShortAnswer("beta"))

	gateway := &generatorStub{content: gradedJSON}
	flaky := &flakySubmissionRepo{SubmissionRepository: f.submissions, failAt: 2}
	grading := newTestGradingService(f, []GradingRoute{{Name: "gateway", Generator: gateway}}, nil)
	svc := NewBatchGradingService(f.assignments, flaky, f.files, grading, 1, testLogger())

	_, err := svc.GradeAssignment(context.Background(), f.owner.ID, f.assignment.ID, BatchOptions{})
	require.ErrorIs(t, err, driver.ErrBadConn)
	require.Empty(t, gateway.calls())

	require.Equal(t, models.SubmissionStatusFailed, f.reload(t, first.ID).Status)
	require.Equal(t, models.SubmissionStatusSubmitted, f.reload(t, second.ID).Status)

	resp, err := grading.Grade(context.Background(), f.owner.ID, first.ID, "")
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusGraded, resp.Status)
}
