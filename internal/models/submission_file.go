package models

import (
	"strings"
	"time"
)

const (
	OCRStatusPending     = "pending"
	OCRStatusProcessing  = "processing"
	OCRStatusCompleted   = "completed"
	OCRStatusFailed      = "failed"
	OCRStatusNotRequired = "not_required"
)

// OCRLine is a recognised line of text with its bounding box.
type OCRLine struct {
	Text       string    `json:"text"`
	BBox       []float64 `json:"bbox"`
	Confidence float64   `json:"confidence"`
}

// OCRResult is the stored output of text extraction for one file.
type OCRResult struct {
	Text       string    `json:"text"`
	Lines      []OCRLine `json:"lines"`
	Confidence float64   `json:"confidence"`
	Pages      int       `json:"pages,omitempty"`
}

// SubmissionFile is a file uploaded to, or ingested for, a submission.
type SubmissionFile struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	SubmissionID uint       `gorm:"not null;index" json:"submission_id"`
	Filename     string     `gorm:"size:255;not null" json:"filename"`
	FilePath     string     `gorm:"size:512;not null" json:"file_path"`
	FileType     string     `gorm:"size:128" json:"file_type"`
	FileSize     int64      `json:"file_size"`
	OCRStatus    string     `gorm:"size:32;not null;default:pending;index" json:"ocr_status"`
	OCRText      string     `gorm:"type:text" json:"ocr_text,omitempty"`
	OCRResult    *OCRResult `gorm:"type:json;serializer:json" json:"ocr_result,omitempty"`
	OCRError     string     `gorm:"type:text" json:"ocr_error,omitempty"`
	UploadedAt   time.Time  `gorm:"autoCreateTime" json:"uploaded_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Text returns the best extracted text for the file.
func (f SubmissionFile) Text() string {
	if f.OCRResult != nil && strings.TrimSpace(f.OCRResult.Text) != "" {
		return f.OCRResult.Text
	}
	return f.OCRText
}

// OCRPending reports whether extraction may still produce text.
func (f SubmissionFile) OCRPending() bool {
	return f.OCRStatus == OCRStatusPending || f.OCRStatus == OCRStatusProcessing
}
