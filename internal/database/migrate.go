package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/aisensei-api/internal/models"
)

// Migrate creates or updates the grading schema. Parents are listed before
// the tables that reference them.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Teacher{},
		&models.Classroom{},
		&models.Assignment{},
		&models.Question{},
		&models.Rubric{},
		&models.Submission{},
		&models.SubmissionFile{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}
