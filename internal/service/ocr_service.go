package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/aisensei-api/internal/models"
	"github.com/noah-isme/aisensei-api/internal/observability"
	"github.com/noah-isme/aisensei-api/internal/repository"
	"github.com/noah-isme/aisensei-api/pkg/ocr"
	"github.com/noah-isme/aisensei-api/pkg/storage"
)

const (
	// OCRJobsSubject is the NATS subject OCR jobs are queued on.
	OCRJobsSubject = "aisensei.ocr.jobs"
	ocrQueueGroup  = "aisensei-ocr"
)

// TextExtractor turns file bytes into text.
type TextExtractor interface {
	Extract(ctx context.Context, filename string, data []byte, languages []string) (ocr.Result, error)
}

// OCRConfig tunes the OCR pipeline.
type OCRConfig struct {
	Languages  []string
	MaxRetries int
	RetryDelay time.Duration
	Workers    int
}

// OCRService extracts text from stored submission files.
type OCRService interface {
	// Process runs extraction once for a file in pending or failed state.
	Process(ctx context.Context, fileID uint) error
	// Dispatch queues a file for extraction with retries.
	Dispatch(ctx context.Context, fileID uint)
	Start(ctx context.Context)
	Wait()
}

type ocrJob struct {
	FileID uint `json:"file_id"`
}

type ocrService struct {
	files     repository.SubmissionFileRepository
	storage   storage.Storage
	extractor TextExtractor
	nats      *nats.Conn
	config    OCRConfig
	logger    zerolog.Logger
	tracer    trace.Tracer
	slots     chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	baseCtx   context.Context
}

// NewOCRService builds the pipeline. Without NATS, dispatched jobs run in
// goroutines of this process.
func NewOCRService(files repository.SubmissionFileRepository, store storage.Storage, extractor TextExtractor, natsConn *nats.Conn, cfg OCRConfig, logger zerolog.Logger) OCRService {
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"en"}
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}

	return &ocrService{
		files:     files,
		storage:   store,
		extractor: extractor,
		nats:      natsConn,
		config:    cfg,
		logger:    logger.With().Str("component", "ocr_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/aisensei-api/internal/service/ocr"),
		slots:     make(chan struct{}, cfg.Workers),
		baseCtx:   context.Background(),
	}
}

func (s *ocrService) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	if s.nats == nil {
		return
	}

	sub, err := s.nats.QueueSubscribe(OCRJobsSubject, ocrQueueGroup, func(msg *nats.Msg) {
		var job ocrJob
		if err := json.Unmarshal(msg.Data, &job); err != nil || job.FileID == 0 {
			s.logger.Warn().Err(err).Msg("invalid ocr job payload")
			return
		}
		s.spawn(job.FileID)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to ocr jobs subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain ocr jobs subscription")
		}
	}()
}

func (s *ocrService) Dispatch(ctx context.Context, fileID uint) {
	if s.nats != nil {
		payload, err := json.Marshal(ocrJob{FileID: fileID})
		if err == nil {
			if err = s.nats.Publish(OCRJobsSubject, payload); err == nil {
				return
			}
		}
		s.logger.Warn().Err(err).Uint("file_id", fileID).Msg("failed to queue ocr job, running locally")
	}

	s.spawn(fileID)
}

// Wait blocks until locally running jobs finish.
func (s *ocrService) Wait() {
	s.wg.Wait()
}

func (s *ocrService) spawn(fileID uint) {
	s.mu.RLock()
	ctx := s.baseCtx
	s.mu.RUnlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case s.slots <- struct{}{}:
		case <-ctx.Done():
			return
		}
		defer func() { <-s.slots }()

		s.runWithRetry(ctx, fileID)
	}()
}

// runWithRetry retries failed extractions with exponential backoff.
func (s *ocrService) runWithRetry(ctx context.Context, fileID uint) {
	for attempt := 0; ; attempt++ {
		err := s.Process(ctx, fileID)
		if err == nil || errors.Is(err, repository.ErrOCRConflict) {
			return
		}
		if attempt >= s.config.MaxRetries {
			s.logger.Error().Err(err).Uint("file_id", fileID).Int("attempts", attempt+1).Msg("ocr job exhausted retries")
			return
		}

		delay := s.config.RetryDelay * time.Duration(1<<attempt)
		s.logger.Warn().Err(err).Uint("file_id", fileID).Dur("retry_in", delay).Msg("ocr job failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (s *ocrService) Process(ctx context.Context, fileID uint) error {
	ctx, span := s.tracer.Start(ctx, "ocr.process", trace.WithAttributes(
		attribute.Int64("ocr.file_id", int64(fileID)),
	))
	defer span.End()

	if err := s.files.TransitionOCR(ctx, fileID, []string{models.OCRStatusPending, models.OCRStatusFailed}, models.OCRStatusProcessing); err != nil {
		if errors.Is(err, repository.ErrOCRConflict) {
			observability.OCRJobs().WithLabelValues("skipped").Inc()
		}
		return err
	}

	file, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		return s.fail(ctx, span, fileID, fmt.Errorf("load file: %w", err))
	}

	data, err := s.storage.Get(ctx, file.FilePath)
	if err != nil {
		return s.fail(ctx, span, fileID, fmt.Errorf("read %s: %w", file.FilePath, err))
	}

	started := time.Now()
	result, err := s.extractor.Extract(ctx, file.Filename, data, s.config.Languages)
	observability.OCRLatency().Observe(time.Since(started).Seconds())
	if err != nil {
		return s.fail(ctx, span, fileID, err)
	}

	if err := s.files.SaveOCRResult(ctx, fileID, toOCRModel(result)); err != nil {
		return s.fail(ctx, span, fileID, fmt.Errorf("save ocr result: %w", err))
	}

	observability.OCRJobs().WithLabelValues("completed").Inc()
	s.logger.Info().Uint("file_id", fileID).Int("pages", result.Pages).Float64("confidence", result.Confidence).Msg("ocr completed")
	return nil
}

func (s *ocrService) fail(ctx context.Context, span trace.Span, fileID uint, cause error) error {
	span.RecordError(cause)
	span.SetStatus(codes.Error, "ocr failed")
	observability.OCRJobs().WithLabelValues("failed").Inc()

	if err := s.files.MarkOCRFailed(context.WithoutCancel(ctx), fileID, cause.Error()); err != nil {
		s.logger.Error().Err(err).Uint("file_id", fileID).Msg("failed to mark ocr failed")
	}
	return cause
}

func toOCRModel(result ocr.Result) *models.OCRResult {
	lines := make([]models.OCRLine, 0, len(result.Lines))
	for _, line := range result.Lines {
		lines = append(lines, models.OCRLine{Text: line.Text, BBox: line.BBox, Confidence: line.Confidence})
	}

	return &models.OCRResult{
		Text:       result.Text,
		Lines:      lines,
		Confidence: result.Confidence,
		Pages:      result.Pages,
	}
}
