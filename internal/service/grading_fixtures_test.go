package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/aisensei-api/internal/models"
	"github.com/noah-isme/aisensei-api/internal/repository"
	"github.com/noah-isme/aisensei-api/pkg/llm"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func setupGradingDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.Teacher{},
		&models.Classroom{},
		&models.Assignment{},
		&models.Question{},
		&models.Rubric{},
		&models.Submission{},
		&models.SubmissionFile{},
	))
	return db
}

type gradingFixture struct {
	db          *gorm.DB
	owner       models.Teacher
	stranger    models.Teacher
	assignment  models.Assignment
	submissions repository.SubmissionRepository
	assignments repository.AssignmentRepository
	files       repository.SubmissionFileRepository
}

func newGradingFixture(t *testing.T) gradingFixture {
	t.Helper()
	db := setupGradingDB(t)

	owner := models.Teacher{Email: "owner@school.test", Name: "Owner"}
	stranger := models.Teacher{Email: "stranger@school.test", Name: "Stranger"}
	require.NoError(t, db.Create(&owner).Error)
	require.NoError(t, db.Create(&stranger).Error)

	classroom := models.Classroom{TeacherID: owner.ID, Name: "Biology 101"}
	require.NoError(t, db.Create(&classroom).Error)

	assignment := models.Assignment{
		ClassroomID:    classroom.ID,
		Title:          "Cell structure",
		Instructions:   "Answer in one sentence.",
		AssignmentType: "short_answer",
		MaxPoints:      100,
	}
	require.NoError(t, db.Create(&assignment).Error)
	require.NoError(t, db.Create(&models.Question{
		AssignmentID:  assignment.ID,
		QuestionText:  "What is the powerhouse of the cell?",
		Points:        100,
		CorrectAnswer: "Mitochondria",
	}).Error)

	return gradingFixture{
		db:          db,
		owner:       owner,
		stranger:    stranger,
		assignment:  assignment,
		submissions: repository.NewSubmissionRepository(db),
		assignments: repository.NewAssignmentRepository(db),
		files:       repository.NewSubmissionFileRepository(db),
	}
}

func (f gradingFixture) submission(t *testing.T, status string, answers *models.StudentAnswers) models.Submission {
	t.Helper()
	submission := models.Submission{
		AssignmentID:   f.assignment.ID,
		StudentID:      1,
		Status:         status,
		StudentAnswers: answers,
	}
	require.NoError(t, f.db.Create(&submission).Error)
	return submission
}

func (f gradingFixture) reload(t *testing.T, id uint) models.Submission {
	t.Helper()
	var submission models.Submission
	require.NoError(t, f.db.First(&submission, id).Error)
	return submission
}

// generatorStub answers with content, or fails when err is set or the prompt
// contains failOn.
type generatorStub struct {
	mu       sync.Mutex
	content  string
	err      error
	failOn   string
	requests []llm.Request
}

func (g *generatorStub) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()

	if g.err != nil {
		return llm.Response{}, g.err
	}
	if g.failOn != "" && len(req.Messages) > 0 && strings.Contains(req.Messages[0].Content, g.failOn) {
		return llm.Response{}, errors.New("gateway error (502)")
	}

	return llm.Response{
		Model:   req.Model,
		Content: g.content,
		Usage:   llm.Usage{TotalTokens: 42},
	}, nil
}

func (g *generatorStub) calls() []llm.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]llm.Request(nil), g.requests...)
}

func multipartFile(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {"form-data; name=\"file\"; filename=\"" + filename + "\""},
		"Content-Type":        {"application/octet-stream"},
	})
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	reader := multipart.NewReader(body, writer.Boundary())
	form, err := reader.ReadForm(int64(len(content) + 1024))
	require.NoError(t, err)
	files := form.File["file"]
	require.Len(t, files, 1)
	return files[0]
}
