package service

import (
	"errors"
	"sort"
	"strings"

	"github.com/noah-isme/aisensei-api/internal/models"
)

// ErrNoContent indicates a submission has neither typed answers nor files.
var ErrNoContent = errors.New("no content to grade")

// ContentKind tags where a block of submission content came from.
type ContentKind string

const (
	ContentAnswer    ContentKind = "answer"
	ContentExtracted ContentKind = "extracted"
	ContentFile      ContentKind = "file"
)

// ExtractedContentLabel labels text pulled from external attachments.
const ExtractedContentLabel = "Extracted File Content"

// ContentBlock is one labelled piece of gradeable content.
type ContentBlock struct {
	Kind  ContentKind
	Label string
	Text  string
}

// HasContent reports whether a submission carries a non-blank answer or any
// file. Files count whether or not their OCR has finished. Batch grading uses
// it to skip submissions not worth a model call.
func HasContent(submission models.Submission, fileCount int) bool {
	return !submission.StudentAnswers.IsEmpty() || fileCount > 0
}

// IsGradeable is the single-grade precondition: any synchronised payload or
// any file is enough.
func IsGradeable(submission models.Submission, fileCount int) bool {
	return submission.StudentAnswers.IsPresent() || fileCount > 0
}

// AssembleContent gathers typed answers, extracted attachment text and OCR
// text of files, in that order.
func AssembleContent(submission models.Submission, files []models.SubmissionFile) ([]ContentBlock, error) {
	if !IsGradeable(submission, len(files)) {
		return nil, ErrNoContent
	}

	blocks := make([]ContentBlock, 0, len(files)+2)

	if answers := submission.StudentAnswers; answers != nil {
		if text, ok := answerText(answers); ok {
			blocks = append(blocks, ContentBlock{Kind: ContentAnswer, Text: text})
		}
		if answers.Type == models.AnswerTypeAssignment && strings.TrimSpace(answers.ExtractedText) != "" {
			blocks = append(blocks, ContentBlock{Kind: ContentExtracted, Label: ExtractedContentLabel, Text: answers.ExtractedText})
		}
	}

	for _, file := range sortedFiles(files) {
		text := file.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		blocks = append(blocks, ContentBlock{Kind: ContentFile, Label: file.Filename, Text: text})
	}

	return blocks, nil
}

// PendingOCR returns the files whose text extraction has not finished yet.
func PendingOCR(files []models.SubmissionFile) []models.SubmissionFile {
	pending := make([]models.SubmissionFile, 0)
	for _, file := range files {
		if file.OCRPending() {
			pending = append(pending, file)
		}
	}
	return pending
}

func answerText(answers *models.StudentAnswers) (string, bool) {
	switch answers.Type {
	case models.AnswerTypeShortAnswer:
		if answers.Answer == "" {
			return "No answer provided", true
		}
		return answers.Answer, true
	case models.AnswerTypeMultipleChoice:
		if answers.Answer == "" {
			return "Selected: No selection", true
		}
		return "Selected: " + answers.Answer, true
	case models.AnswerTypeAssignment:
		if answers.Text == "" {
			return "See attached files", true
		}
		return answers.Text, true
	default:
		if answers.IsEmpty() {
			return "", false
		}
		return string(answers.Raw), true
	}
}

func sortedFiles(files []models.SubmissionFile) []models.SubmissionFile {
	ordered := append([]models.SubmissionFile(nil), files...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].UploadedAt.Equal(ordered[j].UploadedAt) {
			return ordered[i].UploadedAt.Before(ordered[j].UploadedAt)
		}
		if ordered[i].Filename != ordered[j].Filename {
			return ordered[i].Filename < ordered[j].Filename
		}
		return ordered[i].ID < ordered[j].ID
	})
	return ordered
}
