package dto

import (
	"time"

	"github.com/noah-isme/aisensei-api/internal/models"
)

// SubmissionFileResponse is returned to API clients when viewing uploaded files.
type SubmissionFileResponse struct {
	ID           uint      `json:"id"`
	SubmissionID uint      `json:"submission_id"`
	Filename     string    `json:"filename"`
	FilePath     string    `json:"file_path"`
	FileType     string    `json:"file_type"`
	FileSize     int64     `json:"file_size"`
	OCRStatus    string    `json:"ocr_status"`
	OCRError     string    `json:"ocr_error,omitempty"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

// NewSubmissionFileResponse maps a file model to its response.
func NewSubmissionFileResponse(file models.SubmissionFile) SubmissionFileResponse {
	return SubmissionFileResponse{
		ID:           file.ID,
		SubmissionID: file.SubmissionID,
		Filename:     file.Filename,
		FilePath:     file.FilePath,
		FileType:     file.FileType,
		FileSize:     file.FileSize,
		OCRStatus:    file.OCRStatus,
		OCRError:     file.OCRError,
		UploadedAt:   file.UploadedAt,
	}
}

// UploadFileResponse is returned after a file upload.
type UploadFileResponse struct {
	Message string                 `json:"message"`
	File    SubmissionFileResponse `json:"file"`
}

// FileOCRStatus reports text extraction progress of one file.
type FileOCRStatus struct {
	ID        uint   `json:"id"`
	Filename  string `json:"filename"`
	OCRStatus string `json:"ocr_status"`
	HasText   bool   `json:"has_text"`
}

// SubmissionStatusResponse reports grading and OCR state of a submission.
type SubmissionStatusResponse struct {
	SubmissionID uint            `json:"submission_id"`
	Status       string          `json:"status"`
	TotalScore   *float64        `json:"total_score"`
	GradedAt     *time.Time      `json:"graded_at"`
	Files        []FileOCRStatus `json:"files"`
	PendingOCR   int             `json:"pending_ocr"`
}

// ProcessedAttachment describes one external attachment after ingestion.
type ProcessedAttachment struct {
	FileID    uint   `json:"file_id"`
	DriveID   string `json:"drive_id"`
	Filename  string `json:"filename"`
	OCRStatus string `json:"ocr_status"`
}

// AttachmentProcessResponse summarises an attachment ingestion run.
type AttachmentProcessResponse struct {
	Message            string                `json:"message"`
	SubmissionID       uint                  `json:"submission_id"`
	ProcessedFiles     []ProcessedAttachment `json:"processed_files"`
	FailedFiles        []string              `json:"failed_files"`
	ExtractedTextChars int                   `json:"extracted_text_length"`
}
