package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DefaultMaxPoints applies when an assignment was synchronised without a point value.
const DefaultMaxPoints = 100.0

// Assignment is a piece of coursework that submissions are graded against.
type Assignment struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	ClassroomID     uint           `gorm:"not null;index" json:"classroom_id"`
	ExternalID      string         `gorm:"size:128;index" json:"external_id"`
	Title           string         `gorm:"size:255;not null" json:"title"`
	Description     string         `gorm:"type:text" json:"description"`
	Instructions    string         `gorm:"type:text" json:"instructions"`
	AssignmentType  string         `gorm:"size:64" json:"assignment_type"`
	MaxPoints       float64        `gorm:"not null;default:100" json:"max_points"`
	GradingCriteria datatypes.JSON `gorm:"type:json" json:"grading_criteria,omitempty"`
	DueDate         *time.Time     `json:"due_date,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	Classroom       Classroom      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Questions       []Question     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"questions,omitempty"`
	Rubric          *Rubric        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"rubric,omitempty"`
}

// EffectiveMaxPoints returns the point ceiling used for score clamping.
func (a Assignment) EffectiveMaxPoints() float64 {
	if a.MaxPoints <= 0 {
		return DefaultMaxPoints
	}
	return a.MaxPoints
}

// CriteriaQuestion is an entry of the unstructured grading_criteria.questions array.
type CriteriaQuestion struct {
	QuestionText    string  `json:"question_text"`
	Points          float64 `json:"points"`
	GradingCriteria string  `json:"grading_criteria"`
}

// CriteriaQuestions decodes grading_criteria.questions. Malformed criteria yield no questions.
func (a Assignment) CriteriaQuestions() []CriteriaQuestion {
	if len(a.GradingCriteria) == 0 {
		return nil
	}

	var criteria struct {
		Questions []CriteriaQuestion `json:"questions"`
	}
	if err := json.Unmarshal(a.GradingCriteria, &criteria); err != nil {
		return nil
	}

	return criteria.Questions
}

// Question is one discrete, ordered item of an assignment.
type Question struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	AssignmentID    uint      `gorm:"not null;index" json:"assignment_id"`
	QuestionText    string    `gorm:"type:text;not null" json:"question_text"`
	QuestionType    string    `gorm:"size:64" json:"question_type"`
	Points          float64   `gorm:"not null;default:0" json:"points"`
	CorrectAnswer   string    `gorm:"type:text" json:"correct_answer,omitempty"`
	GradingCriteria string    `gorm:"type:text" json:"grading_criteria,omitempty"`
	Order           int       `gorm:"column:order_index;not null;default:0" json:"order"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// RubricLevel is a performance band within a criterion.
type RubricLevel struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Points      float64 `json:"points"`
}

// RubricCriterion is one scored dimension of a rubric.
type RubricCriterion struct {
	ID          string        `json:"id,omitempty"`
	Description string        `json:"description"`
	Points      float64       `json:"points"`
	Levels      []RubricLevel `json:"levels,omitempty"`
}

// Rubric holds the scoring criteria attached to an assignment.
type Rubric struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	AssignmentID uint              `gorm:"not null;uniqueIndex" json:"assignment_id"`
	Title        string            `gorm:"size:255" json:"title"`
	Description  string            `gorm:"type:text" json:"description"`
	Criteria     []RubricCriterion `gorm:"type:json;serializer:json" json:"criteria"`
	TotalPoints  float64           `gorm:"not null;default:0" json:"total_points"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// ComputeTotalPoints sums the criterion point values.
func (r Rubric) ComputeTotalPoints() float64 {
	var total float64
	for _, criterion := range r.Criteria {
		total += criterion.Points
	}
	return total
}

// BeforeSave keeps the stored total in line with the criteria.
func (r *Rubric) BeforeSave(tx *gorm.DB) error {
	r.TotalPoints = r.ComputeTotalPoints()
	return nil
}
