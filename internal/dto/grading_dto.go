package dto

import (
	"time"

	"github.com/noah-isme/aisensei-api/internal/models"
)

// GradeRequest carries the optional model hint of a single grading call.
type GradeRequest struct {
	Model string `query:"model" json:"model" validate:"omitempty,max=64"`
}

// BatchGradeRequest configures a batch grading run.
type BatchGradeRequest struct {
	Model        string `json:"model" validate:"omitempty,max=64"`
	StatusFilter string `json:"status_filter" validate:"omitempty,oneof=pending submitted returned failed"`
}

// GradeResponse is returned after a submission was graded.
type GradeResponse struct {
	Message      string  `json:"message"`
	SubmissionID uint    `json:"submission_id"`
	Score        float64 `json:"score"`
	Status       string  `json:"status"`
	ModelUsed    string  `json:"model_used"`
}

// BatchItemResult reports the outcome for one submission of a batch.
type BatchItemResult struct {
	SubmissionID uint     `json:"submission_id"`
	Status       string   `json:"status"`
	Score        *float64 `json:"score,omitempty"`
	ModelUsed    string   `json:"model_used,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// BatchGradeResponse summarises a batch grading run.
type BatchGradeResponse struct {
	Message              string            `json:"message"`
	AssignmentID         uint              `json:"assignment_id"`
	TotalSubmissions     int               `json:"total_submissions"`
	GradeableSubmissions int               `json:"gradeable_submissions"`
	GradedCount          int               `json:"graded_count"`
	FailedCount          int               `json:"failed_count"`
	SkippedNoContent     int               `json:"skipped_no_content"`
	Model                string            `json:"model"`
	Items                []BatchItemResult `json:"items"`
}

// GradingProgressResponse aggregates grading state for an assignment.
type GradingProgressResponse struct {
	AssignmentID         uint     `json:"assignment_id"`
	TotalSubmissions     int64    `json:"total_submissions"`
	Pending              int64    `json:"pending"`
	Processing           int64    `json:"processing"`
	Graded               int64    `json:"graded"`
	Failed               int64    `json:"failed"`
	CompletionPercentage float64  `json:"completion_percentage"`
	AverageScore         *float64 `json:"average_score"`
}

// SubmissionFeedbackResponse exposes the committed grade of a submission.
type SubmissionFeedbackResponse struct {
	SubmissionID uint               `json:"submission_id"`
	Status       string             `json:"status"`
	TotalScore   *float64           `json:"total_score"`
	Feedback     string             `json:"feedback"`
	AIFeedback   *models.AIFeedback `json:"ai_feedback"`
	GradedAt     *time.Time         `json:"graded_at"`
}

// NewSubmissionFeedbackResponse maps a submission into its feedback view.
func NewSubmissionFeedbackResponse(submission models.Submission) SubmissionFeedbackResponse {
	return SubmissionFeedbackResponse{
		SubmissionID: submission.ID,
		Status:       submission.Status,
		TotalScore:   submission.TotalScore,
		Feedback:     submission.Feedback,
		AIFeedback:   submission.AIFeedback,
		GradedAt:     submission.GradedAt,
	}
}

// GradingModel describes a model offered for grading.
type GradingModel struct {
	ID          string `json:"id"`
	Provider    string `json:"provider"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// GradingModelsResponse lists the models offered for grading.
type GradingModelsResponse struct {
	Models   []GradingModel `json:"models"`
	Fallback bool           `json:"fallback"`
}

// GradingEvent is streamed to clients watching an assignment.
type GradingEvent struct {
	AssignmentID uint      `json:"assignment_id"`
	SubmissionID uint      `json:"submission_id"`
	Status       string    `json:"status"`
	Score        *float64  `json:"score,omitempty"`
	ModelUsed    string    `json:"model_used,omitempty"`
	Error        string    `json:"error,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Grading stream message types.
const (
	StreamMessageProgress = "progress"
	StreamMessageEvent    = "event"
)

// GradingStreamMessage is one frame written to a grading websocket.
type GradingStreamMessage struct {
	Type     string                   `json:"type"`
	Progress *GradingProgressResponse `json:"progress,omitempty"`
	Event    *GradingEvent            `json:"event,omitempty"`
}
