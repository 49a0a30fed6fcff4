package service

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/aisensei-api/internal/models"
	"github.com/noah-isme/aisensei-api/pkg/storage"
)

type ocrDispatchStub struct {
	mu         sync.Mutex
	dispatched []uint
}

func (o *ocrDispatchStub) Process(ctx context.Context, fileID uint) error { return nil }
func (o *ocrDispatchStub) Start(ctx context.Context)                      {}
func (o *ocrDispatchStub) Wait()                                          {}

func (o *ocrDispatchStub) Dispatch(ctx context.Context, fileID uint) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dispatched = append(o.dispatched, fileID)
}

func (o *ocrDispatchStub) ids() []uint {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]uint(nil), o.dispatched...)
}

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func TestSubmissionFileUploadStoresAndQueuesOCR(t *testing.T) {
	f := newGradingFixture(t)
	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	submission := f.submission(t, models.SubmissionStatusSubmitted, nil)
	dispatcher := &ocrDispatchStub{}

	svc := NewSubmissionFileService(f.submissions, f.files, store, dispatcher, 5, testLogger())

	resp, err := svc.Upload(context.Background(), f.owner.ID, submission.ID, multipartFile(t, "answer.png", pngHeader))
	require.NoError(t, err)
	require.Equal(t, "File uploaded", resp.Message)
	require.Equal(t, "answer.png", resp.File.Filename)
	require.Equal(t, models.OCRStatusPending, resp.File.OCRStatus)
	require.Equal(t, []uint{resp.File.ID}, dispatcher.ids())

	stored, err := f.files.GetByID(context.Background(), resp.File.ID)
	require.NoError(t, err)
	require.Equal(t, "image/png", stored.FileType)
	require.True(t, strings.HasPrefix(stored.FilePath, SubmissionFolder(submission.ID)+"/"))

	data, err := store.Get(context.Background(), stored.FilePath)
	require.NoError(t, err)
	require.Equal(t, pngHeader, data)
}

func TestSubmissionFileUploadSkipsOCRForDocuments(t *testing.T) {
	f := newGradingFixture(t)
	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	submission := f.submission(t, models.SubmissionStatusSubmitted, nil)
	dispatcher := &ocrDispatchStub{}

	svc := NewSubmissionFileService(f.submissions, f.files, store, dispatcher, 5, testLogger())

	resp, err := svc.Upload(context.Background(), f.owner.ID, submission.ID, multipartFile(t, "essay.docx", []byte("PK\x03\x04 document")))
	require.NoError(t, err)
	require.Equal(t, models.OCRStatusNotRequired, resp.File.OCRStatus)
	require.Empty(t, dispatcher.ids())
}

func TestSubmissionFileUploadValidation(t *testing.T) {
	f := newGradingFixture(t)
	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	submission := f.submission(t, models.SubmissionStatusSubmitted, nil)

	svc := NewSubmissionFileService(f.submissions, f.files, store, nil, 1, testLogger())

	_, err = svc.Upload(context.Background(), f.owner.ID, submission.ID, multipartFile(t, "script.exe", []byte("MZ")))
	require.EqualError(t, err, "File type .exe not supported")

	_, err = svc.Upload(context.Background(), f.owner.ID, submission.ID, multipartFile(t, "huge.pdf", bytes.Repeat([]byte("a"), 2*1024*1024)))
	require.ErrorIs(t, err, ErrUploadTooLarge)

	_, err = svc.Upload(context.Background(), f.owner.ID, submission.ID, nil)
	require.ErrorIs(t, err, ErrUploadMissing)

	_, err = svc.Upload(context.Background(), f.stranger.ID, submission.ID, multipartFile(t, "answer.png", pngHeader))
	require.ErrorIs(t, err, ErrSubmissionNotFound)

	files, err := f.files.ListBySubmission(context.Background(), submission.ID)
	require.NoError(t, err)
	require.Empty(t, files)
}

func TestSubmissionFileStatusReportsPendingOCR(t *testing.T) {
	f := newGradingFixture(t)
	submission := f.submission(t, models.SubmissionStatusSubmitted, nil)
	require.NoError(t, f.db.Create(&models.SubmissionFile{SubmissionID: submission.ID, Filename: "a.png", FilePath: "a", OCRStatus: models.OCRStatusPending}).Error)
	require.NoError(t, f.db.Create(&models.SubmissionFile{SubmissionID: submission.ID, Filename: "b.png", FilePath: "b", OCRStatus: models.OCRStatusCompleted, OCRText: "text"}).Error)

	svc := NewSubmissionFileService(f.submissions, f.files, nil, nil, 5, testLogger())

	status, err := svc.Status(context.Background(), f.owner.ID, submission.ID)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusSubmitted, status.Status)
	require.Len(t, status.Files, 2)
	require.Equal(t, 1, status.PendingOCR)
	require.False(t, status.Files[0].HasText)
	require.True(t, status.Files[1].HasText)
}
