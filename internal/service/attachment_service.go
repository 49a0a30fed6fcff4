package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/aisensei-api/internal/dto"
	"github.com/noah-isme/aisensei-api/internal/models"
	"github.com/noah-isme/aisensei-api/internal/repository"
	"github.com/noah-isme/aisensei-api/pkg/classroom"
	"github.com/noah-isme/aisensei-api/pkg/storage"
)

var (
	// ErrNoDriveFiles indicates the submission is not an assignment hand-in.
	ErrNoDriveFiles = errors.New("No Drive files found in submission")
	// ErrNoDriveFilesToProcess indicates the hand-in has no drive attachments.
	ErrNoDriveFilesToProcess = errors.New("No Drive files to process")
	// ErrDriveAuthRequired indicates no access token was supplied.
	ErrDriveAuthRequired = errors.New("Google authentication required")
)

const minMeaningfulTextLength = 10

// DriveDownloader fetches attachment metadata and bytes.
type DriveDownloader interface {
	Metadata(ctx context.Context, token, fileID string) (classroom.File, error)
	Download(ctx context.Context, token string, file classroom.File) ([]byte, error)
}

// AttachmentService ingests external attachments of a submission.
type AttachmentService interface {
	ProcessAttachments(ctx context.Context, teacherID, submissionID uint, accessToken string) (dto.AttachmentProcessResponse, error)
}

type attachmentService struct {
	submissions repository.SubmissionRepository
	files       repository.SubmissionFileRepository
	drive       DriveDownloader
	storage     storage.Storage
	ocr         OCRService
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// NewAttachmentService builds the ingestion service.
func NewAttachmentService(submissions repository.SubmissionRepository, files repository.SubmissionFileRepository, drive DriveDownloader, store storage.Storage, ocrService OCRService, logger zerolog.Logger) AttachmentService {
	return &attachmentService{
		submissions: submissions,
		files:       files,
		drive:       drive,
		storage:     store,
		ocr:         ocrService,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "attachment_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/aisensei-api/internal/service/attachment"),
	}
}

func (s *attachmentService) ProcessAttachments(ctx context.Context, teacherID, submissionID uint, accessToken string) (dto.AttachmentProcessResponse, error) {
	ctx, span := s.tracer.Start(ctx, "attachments.process", trace.WithAttributes(
		attribute.Int64("attachments.submission_id", int64(submissionID)),
	))
	defer span.End()

	submission, err := s.submissions.GetForTeacher(ctx, teacherID, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AttachmentProcessResponse{}, ErrSubmissionNotFound
		}
		span.RecordError(err)
		return dto.AttachmentProcessResponse{}, err
	}

	answers := submission.StudentAnswers
	if answers == nil || answers.Type != models.AnswerTypeAssignment {
		return dto.AttachmentProcessResponse{}, ErrNoDriveFiles
	}

	driveFiles := answers.DriveFiles()
	if len(driveFiles) == 0 {
		return dto.AttachmentProcessResponse{}, ErrNoDriveFilesToProcess
	}

	if strings.TrimSpace(accessToken) == "" {
		return dto.AttachmentProcessResponse{}, ErrDriveAuthRequired
	}

	response := dto.AttachmentProcessResponse{
		SubmissionID:   submission.ID,
		ProcessedFiles: []dto.ProcessedAttachment{},
		FailedFiles:    []string{},
	}

	for _, driveFile := range driveFiles {
		processed, err := s.ingest(ctx, submission.ID, accessToken, driveFile)
		if err != nil {
			s.logger.Error().Err(err).Str("drive_id", driveFile.ID).Uint("submission_id", submission.ID).Msg("failed to process drive file")
			response.FailedFiles = append(response.FailedFiles, driveFile.ID)
			continue
		}
		response.ProcessedFiles = append(response.ProcessedFiles, processed)
	}

	if len(response.ProcessedFiles) > 0 {
		extracted, err := s.refreshExtractedText(ctx, submission.ID, answers)
		if err != nil {
			span.RecordError(err)
			return dto.AttachmentProcessResponse{}, fmt.Errorf("update extracted text: %w", err)
		}
		response.ExtractedTextChars = len(extracted)
	}

	response.Message = fmt.Sprintf("Processed %d Drive files", len(response.ProcessedFiles))
	return response, nil
}

func (s *attachmentService) ingest(ctx context.Context, submissionID uint, token string, driveFile models.DriveFile) (dto.ProcessedAttachment, error) {
	file, err := s.drive.Metadata(ctx, token, driveFile.ID)
	if err != nil {
		return dto.ProcessedAttachment{}, fmt.Errorf("metadata: %w", err)
	}

	data, err := s.drive.Download(ctx, token, file)
	if err != nil {
		return dto.ProcessedAttachment{}, fmt.Errorf("download: %w", err)
	}

	title := strings.TrimSpace(driveFile.Title)
	if title == "" {
		title = strings.TrimSpace(file.Name)
	}
	if title == "" {
		title = "untitled"
	}

	detected := mimetype.Detect(data)
	record := models.SubmissionFile{
		SubmissionID: submissionID,
		FileSize:     int64(len(data)),
	}

	if text, ok := s.meaningfulText(data, detected); ok {
		record.Filename = title + ".txt"
		record.FileType = "text/plain"
		record.OCRStatus = models.OCRStatusCompleted
		record.OCRText = text
	} else {
		record.Filename = title + ".pdf"
		record.FileType = detected.String()
		record.OCRStatus = models.OCRStatusPending
	}

	path, err := s.storage.Save(ctx, data, record.Filename, SubmissionFolder(submissionID))
	if err != nil {
		return dto.ProcessedAttachment{}, fmt.Errorf("store: %w", err)
	}
	record.FilePath = path

	if err := s.files.Create(ctx, &record); err != nil {
		return dto.ProcessedAttachment{}, fmt.Errorf("persist: %w", err)
	}

	if record.OCRStatus == models.OCRStatusPending && s.ocr != nil {
		s.ocr.Dispatch(ctx, record.ID)
	}

	s.logger.Info().
		Uint("submission_id", submissionID).
		Str("drive_id", driveFile.ID).
		Str("filename", record.Filename).
		Str("ocr_status", record.OCRStatus).
		Msg("drive file processed")

	return dto.ProcessedAttachment{
		FileID:    record.ID,
		DriveID:   driveFile.ID,
		Filename:  record.Filename,
		OCRStatus: record.OCRStatus,
	}, nil
}

// meaningfulText returns the markup-free text of data when it is text with
// more than a few characters and no NUL bytes near the start.
func (s *attachmentService) meaningfulText(data []byte, detected *mimetype.MIME) (string, bool) {
	if !detected.Is("text/plain") && !strings.HasPrefix(detected.String(), "text/") {
		return "", false
	}

	head := data
	if len(head) > 100 {
		head = head[:100]
	}
	if strings.ContainsRune(string(head), '\x00') {
		return "", false
	}

	text := strings.ToValidUTF8(string(data), "")
	if detected.Is("text/html") {
		text = html.UnescapeString(s.sanitizer.Sanitize(text))
	}
	if len(strings.TrimSpace(text)) <= minMeaningfulTextLength {
		return "", false
	}

	return text, true
}

func (s *attachmentService) refreshExtractedText(ctx context.Context, submissionID uint, answers *models.StudentAnswers) (string, error) {
	files, err := s.files.ListBySubmission(ctx, submissionID)
	if err != nil {
		return "", err
	}

	sections := make([]string, 0, len(files))
	for _, file := range files {
		text := file.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		sections = append(sections, fmt.Sprintf("--- %s ---\n%s", file.Filename, text))
	}

	if len(sections) == 0 {
		s.logger.Warn().Uint("submission_id", submissionID).Msg("no text content found in any files")
		return "", nil
	}

	extracted := strings.Join(sections, "\n\n")
	updated := *answers
	updated.ExtractedText = extracted
	if err := s.submissions.UpdateStudentAnswers(ctx, submissionID, &updated); err != nil {
		return "", err
	}

	return extracted, nil
}
