package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/aisensei-api/internal/models"
)

// AssignmentRepository defines persistence operations for assignments.
type AssignmentRepository interface {
	Create(ctx context.Context, assignment *models.Assignment) error
	GetByID(ctx context.Context, id uint) (models.Assignment, error)
	GetForTeacher(ctx context.Context, teacherID, id uint) (models.Assignment, error)
}

type assignmentRepository struct {
	db *gorm.DB
}

// NewAssignmentRepository instantiates a GORM-backed repository.
func NewAssignmentRepository(db *gorm.DB) AssignmentRepository {
	return &assignmentRepository{db: db}
}

func (r *assignmentRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Assignment{}).
		Preload("Questions", orderQuestions).
		Preload("Rubric")
}

func (r *assignmentRepository) Create(ctx context.Context, assignment *models.Assignment) error {
	return r.db.WithContext(ctx).Create(assignment).Error
}

func (r *assignmentRepository) GetByID(ctx context.Context, id uint) (models.Assignment, error) {
	var assignment models.Assignment
	if err := r.baseQuery(ctx).First(&assignment, id).Error; err != nil {
		return models.Assignment{}, err
	}

	return assignment, nil
}

// GetForTeacher loads an assignment only when its classroom belongs to teacherID.
func (r *assignmentRepository) GetForTeacher(ctx context.Context, teacherID, id uint) (models.Assignment, error) {
	var assignment models.Assignment
	err := r.baseQuery(ctx).
		Joins("JOIN classrooms ON classrooms.id = assignments.classroom_id").
		Where("assignments.id = ? AND classrooms.teacher_id = ?", id, teacherID).
		First(&assignment).Error
	if err != nil {
		return models.Assignment{}, err
	}

	return assignment, nil
}
