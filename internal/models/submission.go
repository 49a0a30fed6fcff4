package models

import "time"

const (
	// SubmissionStatusPending indicates the submission was synchronised but not handed in.
	SubmissionStatusPending = "pending"
	// SubmissionStatusSubmitted indicates the student handed the work in.
	SubmissionStatusSubmitted = "submitted"
	// SubmissionStatusReturned indicates the work was returned on the classroom platform.
	SubmissionStatusReturned = "returned"
	// SubmissionStatusProcessing indicates a grading attempt owns the submission.
	SubmissionStatusProcessing = "processing"
	// SubmissionStatusGraded indicates a score and feedback were committed.
	SubmissionStatusGraded = "graded"
	// SubmissionStatusFailed indicates the last grading attempt failed.
	SubmissionStatusFailed = "failed"
)

// GradeableStatuses are the statuses a batch selects when no filter is given.
var GradeableStatuses = []string{SubmissionStatusSubmitted, SubmissionStatusReturned, SubmissionStatusPending}

// ClaimableStatuses are the statuses a grading attempt may move into processing.
var ClaimableStatuses = []string{
	SubmissionStatusPending,
	SubmissionStatusSubmitted,
	SubmissionStatusReturned,
	SubmissionStatusFailed,
}

// Submission is one student's hand-in for an assignment.
type Submission struct {
	ID             uint             `gorm:"primaryKey" json:"id"`
	AssignmentID   uint             `gorm:"not null;index" json:"assignment_id"`
	StudentID      uint             `gorm:"not null;index" json:"student_id"`
	ExternalID     string           `gorm:"size:255;index" json:"external_id"`
	Status         string           `gorm:"size:32;not null;default:pending;index" json:"status"`
	SubmittedAt    *time.Time       `json:"submitted_at,omitempty"`
	GradedAt       *time.Time       `json:"graded_at,omitempty"`
	TotalScore     *float64         `json:"total_score"`
	Feedback       string           `gorm:"type:text" json:"feedback"`
	AIFeedback     *AIFeedback      `gorm:"type:json;serializer:json" json:"ai_feedback,omitempty"`
	StudentAnswers *StudentAnswers  `gorm:"type:json;serializer:json" json:"student_answers,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	Assignment     Assignment       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Files          []SubmissionFile `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"files,omitempty"`
}

// IsGraded reports whether the submission has a committed grade.
func (s Submission) IsGraded() bool {
	return s.Status == SubmissionStatusGraded
}

// AIFeedback is the structured envelope stored next to a machine grade.
type AIFeedback struct {
	Model          string             `json:"model"`
	DetailedScores map[string]float64 `json:"detailed_scores"`
	Strengths      []string           `json:"strengths"`
	Improvements   []string           `json:"improvements"`
	RawResponse    string             `json:"raw_response"`
	Structured     bool               `json:"structured"`
	TokensUsed     int                `json:"tokens_used,omitempty"`
	GradedAt       time.Time          `json:"graded_at"`
}
