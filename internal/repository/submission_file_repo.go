package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/aisensei-api/internal/models"
)

// ErrOCRConflict indicates a conditional OCR status update matched no row.
var ErrOCRConflict = errors.New("ocr status conflict")

// SubmissionFileRepository defines data operations for submission files.
type SubmissionFileRepository interface {
	Create(ctx context.Context, file *models.SubmissionFile) error
	GetByID(ctx context.Context, id uint) (models.SubmissionFile, error)
	ListBySubmission(ctx context.Context, submissionID uint) ([]models.SubmissionFile, error)
	CountBySubmissions(ctx context.Context, submissionIDs []uint) (map[uint]int, error)
	TransitionOCR(ctx context.Context, id uint, from []string, to string) error
	SaveOCRResult(ctx context.Context, id uint, result *models.OCRResult) error
	MarkOCRFailed(ctx context.Context, id uint, message string) error
}

type submissionFileRepository struct {
	db *gorm.DB
}

// NewSubmissionFileRepository instantiates the repository.
func NewSubmissionFileRepository(db *gorm.DB) SubmissionFileRepository {
	return &submissionFileRepository{db: db}
}

func (r *submissionFileRepository) Create(ctx context.Context, file *models.SubmissionFile) error {
	return r.db.WithContext(ctx).Create(file).Error
}

func (r *submissionFileRepository) GetByID(ctx context.Context, id uint) (models.SubmissionFile, error) {
	var file models.SubmissionFile
	if err := r.db.WithContext(ctx).First(&file, id).Error; err != nil {
		return models.SubmissionFile{}, err
	}

	return file, nil
}

// ListBySubmission returns files in upload order.
func (r *submissionFileRepository) ListBySubmission(ctx context.Context, submissionID uint) ([]models.SubmissionFile, error) {
	var files []models.SubmissionFile
	if err := orderFiles(r.db.WithContext(ctx).Where("submission_id = ?", submissionID)).Find(&files).Error; err != nil {
		return nil, err
	}

	return files, nil
}

func (r *submissionFileRepository) CountBySubmissions(ctx context.Context, submissionIDs []uint) (map[uint]int, error) {
	counts := make(map[uint]int, len(submissionIDs))
	if len(submissionIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		SubmissionID uint
		Count        int
	}
	err := r.db.WithContext(ctx).Model(&models.SubmissionFile{}).
		Select("submission_id, COUNT(*) AS count").
		Where("submission_id IN ?", submissionIDs).
		Group("submission_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		counts[row.SubmissionID] = row.Count
	}
	return counts, nil
}

// TransitionOCR moves a file's OCR status only if it is currently in `from`.
func (r *submissionFileRepository) TransitionOCR(ctx context.Context, id uint, from []string, to string) error {
	result := r.db.WithContext(ctx).Model(&models.SubmissionFile{}).
		Where("id = ? AND ocr_status IN ?", id, from).
		Update("ocr_status", to)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: file %d", ErrOCRConflict, id)
	}

	return nil
}

func (r *submissionFileRepository) SaveOCRResult(ctx context.Context, id uint, result *models.OCRResult) error {
	text := ""
	if result != nil {
		text = result.Text
	}

	return r.db.WithContext(ctx).Model(&models.SubmissionFile{}).
		Where("id = ?", id).
		Select("ocr_status", "ocr_result", "ocr_text", "ocr_error").
		Updates(&models.SubmissionFile{
			OCRStatus: models.OCRStatusCompleted,
			OCRResult: result,
			OCRText:   text,
		}).Error
}

func (r *submissionFileRepository) MarkOCRFailed(ctx context.Context, id uint, message string) error {
	return r.db.WithContext(ctx).Model(&models.SubmissionFile{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"ocr_status": models.OCRStatusFailed,
			"ocr_error":  message,
		}).Error
}
