package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/aisensei-api/internal/models"
)

// ErrStatusConflict indicates a conditional status update matched no row.
var ErrStatusConflict = errors.New("submission status conflict")

// StatusConflictError carries the status observed after a failed transition.
type StatusConflictError struct {
	ID      uint
	Current string
}

func (e *StatusConflictError) Error() string {
	return fmt.Sprintf("submission %d is %s", e.ID, e.Current)
}

// Is lets errors.Is match ErrStatusConflict.
func (e *StatusConflictError) Is(target error) bool {
	return target == ErrStatusConflict
}

// GradeUpdate is the committed outcome of a grading attempt.
type GradeUpdate struct {
	Score      float64
	Feedback   string
	AIFeedback *models.AIFeedback
	GradedAt   time.Time
}

// StatusCount is the number of submissions in one status.
type StatusCount struct {
	Status string
	Count  int64
}

// SubmissionRepository defines data operations for submissions.
type SubmissionRepository interface {
	Create(ctx context.Context, submission *models.Submission) error
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	GetForTeacher(ctx context.Context, teacherID, id uint) (models.Submission, error)
	ListByAssignment(ctx context.Context, assignmentID uint, statuses []string) ([]models.Submission, error)
	TransitionStatus(ctx context.Context, id uint, from []string, to string) error
	SaveGrade(ctx context.Context, id uint, update GradeUpdate) error
	MarkFailed(ctx context.Context, id uint, message string) error
	UpdateStudentAnswers(ctx context.Context, id uint, answers *models.StudentAnswers) error
	CountByStatus(ctx context.Context, assignmentID uint) ([]StatusCount, error)
	AverageScore(ctx context.Context, assignmentID uint) (*float64, error)
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func orderFiles(db *gorm.DB) *gorm.DB {
	return db.Order("uploaded_at ASC, filename ASC, id ASC")
}

func orderQuestions(db *gorm.DB) *gorm.DB {
	return db.Order("order_index ASC, id ASC")
}

func (r *submissionRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Submission{}).
		Preload("Assignment").
		Preload("Assignment.Questions", orderQuestions).
		Preload("Assignment.Rubric").
		Preload("Files", orderFiles)
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

// GetForTeacher loads a submission only when its classroom belongs to teacherID.
func (r *submissionRepository) GetForTeacher(ctx context.Context, teacherID, id uint) (models.Submission, error) {
	var submission models.Submission
	err := r.baseQuery(ctx).
		Joins("JOIN assignments ON assignments.id = submissions.assignment_id").
		Joins("JOIN classrooms ON classrooms.id = assignments.classroom_id").
		Where("submissions.id = ? AND classrooms.teacher_id = ?", id, teacherID).
		First(&submission).Error
	if err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

// ListByAssignment returns submissions without their files, ordered by id.
func (r *submissionRepository) ListByAssignment(ctx context.Context, assignmentID uint, statuses []string) ([]models.Submission, error) {
	query := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("assignment_id = ?", assignmentID)

	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}

	var submissions []models.Submission
	if err := query.Order("id ASC").Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

// TransitionStatus moves a submission to `to` only if its current status is in
// `from`. A lost race returns a StatusConflictError with the observed status.
func (r *submissionRepository) TransitionStatus(ctx context.Context, id uint, from []string, to string) error {
	result := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("id = ? AND status IN ?", id, from).
		Update("status", to)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.conflict(ctx, id)
	}

	return nil
}

// SaveGrade commits a grade in one update, conditional on the submission still
// being in processing.
func (r *submissionRepository) SaveGrade(ctx context.Context, id uint, update GradeUpdate) error {
	score := update.Score
	gradedAt := update.GradedAt

	result := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("id = ? AND status = ?", id, models.SubmissionStatusProcessing).
		Select("status", "total_score", "feedback", "ai_feedback", "graded_at").
		Updates(&models.Submission{
			Status:     models.SubmissionStatusGraded,
			TotalScore: &score,
			Feedback:   update.Feedback,
			AIFeedback: update.AIFeedback,
			GradedAt:   &gradedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.conflict(ctx, id)
	}

	return nil
}

// MarkFailed records a failed attempt on a processing submission.
func (r *submissionRepository) MarkFailed(ctx context.Context, id uint, message string) error {
	result := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("id = ? AND status = ?", id, models.SubmissionStatusProcessing).
		Updates(map[string]interface{}{
			"status":   models.SubmissionStatusFailed,
			"feedback": message,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.conflict(ctx, id)
	}

	return nil
}

func (r *submissionRepository) UpdateStudentAnswers(ctx context.Context, id uint, answers *models.StudentAnswers) error {
	result := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("id = ?", id).
		Select("student_answers").
		Updates(&models.Submission{StudentAnswers: answers})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

func (r *submissionRepository) CountByStatus(ctx context.Context, assignmentID uint) ([]StatusCount, error) {
	var counts []StatusCount
	err := r.db.WithContext(ctx).Model(&models.Submission{}).
		Select("status, COUNT(*) AS count").
		Where("assignment_id = ?", assignmentID).
		Group("status").
		Order("status ASC").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}

	return counts, nil
}

// AverageScore averages committed scores of graded submissions; nil when none.
func (r *submissionRepository) AverageScore(ctx context.Context, assignmentID uint) (*float64, error) {
	var avg sql.NullFloat64
	err := r.db.WithContext(ctx).Model(&models.Submission{}).
		Select("AVG(total_score)").
		Where("assignment_id = ? AND status = ? AND total_score IS NOT NULL", assignmentID, models.SubmissionStatusGraded).
		Row().
		Scan(&avg)
	if err != nil {
		return nil, err
	}
	if !avg.Valid {
		return nil, nil
	}

	value := avg.Float64
	return &value, nil
}

func (r *submissionRepository) conflict(ctx context.Context, id uint) error {
	var current models.Submission
	if err := r.db.WithContext(ctx).Select("id", "status").First(&current, id).Error; err != nil {
		return err
	}

	return &StatusConflictError{ID: id, Current: current.Status}
}
