package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/aisensei-api/internal/dto"
	"github.com/noah-isme/aisensei-api/internal/models"
	"github.com/noah-isme/aisensei-api/internal/observability"
	"github.com/noah-isme/aisensei-api/internal/repository"
	"github.com/noah-isme/aisensei-api/pkg/ocr"
	"github.com/noah-isme/aisensei-api/pkg/storage"
)

var (
	// ErrUploadTooLarge indicates the payload exceeded the configured limit.
	ErrUploadTooLarge = errors.New("file exceeds maximum allowed size")
	// ErrUploadMissing indicates the request carried no file.
	ErrUploadMissing = errors.New("file is required")
)

// UnsupportedFileTypeError rejects an upload by extension.
type UnsupportedFileTypeError struct {
	Extension string
}

func (e *UnsupportedFileTypeError) Error() string {
	return fmt.Sprintf("File type %s not supported", e.Extension)
}

var allowedUploadExtensions = map[string]bool{
	".pdf":  true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".doc":  true,
	".docx": true,
}

// SubmissionFolder is the storage folder of a submission's files.
func SubmissionFolder(submissionID uint) string {
	return fmt.Sprintf("submissions/%d", submissionID)
}

// SubmissionFileService stores files handed in with a submission.
type SubmissionFileService interface {
	Upload(ctx context.Context, teacherID, submissionID uint, file *multipart.FileHeader) (dto.UploadFileResponse, error)
	Status(ctx context.Context, teacherID, submissionID uint) (dto.SubmissionStatusResponse, error)
}

type submissionFileService struct {
	submissions repository.SubmissionRepository
	files       repository.SubmissionFileRepository
	storage     storage.Storage
	ocr         OCRService
	maxSize     int64
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// NewSubmissionFileService constructs the upload service.
func NewSubmissionFileService(submissions repository.SubmissionRepository, files repository.SubmissionFileRepository, store storage.Storage, ocrService OCRService, maxSizeMB int, logger zerolog.Logger) SubmissionFileService {
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}

	return &submissionFileService{
		submissions: submissions,
		files:       files,
		storage:     store,
		ocr:         ocrService,
		maxSize:     int64(maxSizeMB) * 1024 * 1024,
		logger:      logger.With().Str("component", "submission_file_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/aisensei-api/internal/service/submission_file"),
	}
}

func (s *submissionFileService) Upload(ctx context.Context, teacherID, submissionID uint, file *multipart.FileHeader) (dto.UploadFileResponse, error) {
	ctx, span := s.tracer.Start(ctx, "submission_files.upload")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("upload.max_bytes", s.maxSize),
		attribute.Int64("upload.submission_id", int64(submissionID)),
	)

	start := time.Now()
	defer func() {
		observability.UploadLatency().Observe(time.Since(start).Seconds())
	}()

	if file == nil {
		span.SetStatus(codes.Error, "validation failed")
		return dto.UploadFileResponse{}, ErrUploadMissing
	}
	span.SetAttributes(
		attribute.String("upload.original_name", strings.TrimSpace(file.Filename)),
		attribute.Int64("upload.request_size", file.Size),
	)

	if _, err := s.submissions.GetForTeacher(ctx, teacherID, submissionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.UploadFileResponse{}, ErrSubmissionNotFound
		}
		span.RecordError(err)
		return dto.UploadFileResponse{}, err
	}

	extension := strings.ToLower(filepath.Ext(file.Filename))
	if !allowedUploadExtensions[extension] {
		observability.UploadRejected().WithLabelValues("type").Inc()
		err := &UnsupportedFileTypeError{Extension: extension}
		span.RecordError(err)
		span.SetStatus(codes.Error, "type not allowed")
		return dto.UploadFileResponse{}, err
	}

	if file.Size > s.maxSize {
		observability.UploadRejected().WithLabelValues("size").Inc()
		span.RecordError(ErrUploadTooLarge)
		span.SetStatus(codes.Error, "payload too large")
		return dto.UploadFileResponse{}, ErrUploadTooLarge
	}

	handle, err := file.Open()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "open failed")
		return dto.UploadFileResponse{}, err
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, s.maxSize+1)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		return dto.UploadFileResponse{}, err
	}
	if int64(buf.Len()) > s.maxSize {
		observability.UploadRejected().WithLabelValues("size").Inc()
		span.RecordError(ErrUploadTooLarge)
		span.SetStatus(codes.Error, "payload too large")
		return dto.UploadFileResponse{}, ErrUploadTooLarge
	}

	detected := mimetype.Detect(buf.Bytes())
	span.SetAttributes(attribute.String("upload.detected_mime", detected.String()))

	path, err := s.storage.Save(ctx, buf.Bytes(), file.Filename, SubmissionFolder(submissionID))
	if err != nil {
		observability.UploadRejected().WithLabelValues("storage").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage failed")
		return dto.UploadFileResponse{}, fmt.Errorf("store file: %w", err)
	}

	needsOCR := ocr.Supports(file.Filename)
	record := models.SubmissionFile{
		SubmissionID: submissionID,
		Filename:     file.Filename,
		FilePath:     path,
		FileType:     detected.String(),
		FileSize:     int64(buf.Len()),
		OCRStatus:    models.OCRStatusNotRequired,
	}
	if needsOCR {
		record.OCRStatus = models.OCRStatusPending
	}

	if err := s.files.Create(ctx, &record); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persistence failed")
		return dto.UploadFileResponse{}, err
	}

	if needsOCR && s.ocr != nil {
		s.ocr.Dispatch(ctx, record.ID)
	}

	observability.UploadRequests().WithLabelValues(extension).Inc()
	span.SetStatus(codes.Ok, "stored")

	s.logger.Info().
		Uint("submission_id", submissionID).
		Uint("file_id", record.ID).
		Str("mime", detected.String()).
		Bool("ocr", needsOCR).
		Msg("submission file stored")

	return dto.UploadFileResponse{
		Message: "File uploaded",
		File:    dto.NewSubmissionFileResponse(record),
	}, nil
}

func (s *submissionFileService) Status(ctx context.Context, teacherID, submissionID uint) (dto.SubmissionStatusResponse, error) {
	submission, err := s.submissions.GetForTeacher(ctx, teacherID, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionStatusResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionStatusResponse{}, err
	}

	files := make([]dto.FileOCRStatus, 0, len(submission.Files))
	for _, file := range submission.Files {
		files = append(files, dto.FileOCRStatus{
			ID:        file.ID,
			Filename:  file.Filename,
			OCRStatus: file.OCRStatus,
			HasText:   strings.TrimSpace(file.Text()) != "",
		})
	}

	return dto.SubmissionStatusResponse{
		SubmissionID: submission.ID,
		Status:       submission.Status,
		TotalScore:   submission.TotalScore,
		GradedAt:     submission.GradedAt,
		Files:        files,
		PendingOCR:   len(PendingOCR(submission.Files)),
	}, nil
}
