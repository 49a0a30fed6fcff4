package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestStudentAnswersRoundTripKnownVariants(t *testing.T) {
	payload := []byte(`{"type":"assignment","text":"See attached","attachments":[{"driveFile":{"id":"abc","title":"Essay"}},{"link":{"url":"https://example.com"}}]}`)

	var answers StudentAnswers
	require.NoError(t, json.Unmarshal(payload, &answers))
	require.Equal(t, AnswerTypeAssignment, answers.Type)
	require.Equal(t, "See attached", answers.Text)
	require.Len(t, answers.Attachments, 2)
	require.Equal(t, []DriveFile{{ID: "abc", Title: "Essay"}}, answers.DriveFiles())

	encoded, err := json.Marshal(answers)
	require.NoError(t, err)
	require.JSONEq(t, string(payload), string(encoded))
}

func TestStudentAnswersKeepsUnknownShapes(t *testing.T) {
	payload := []byte(`{"type":"essay_v2","body":"hello"}`)

	var answers StudentAnswers
	require.NoError(t, json.Unmarshal(payload, &answers))
	require.Equal(t, AnswerTypeUnstructured, answers.Type)
	require.False(t, answers.IsEmpty())

	encoded, err := json.Marshal(answers)
	require.NoError(t, err)
	require.JSONEq(t, string(payload), string(encoded))
}

func TestStudentAnswersIsEmpty(t *testing.T) {
	var missing *StudentAnswers
	require.True(t, missing.IsEmpty())
	require.True(t, ShortAnswer("  ").IsEmpty())
	require.False(t, ShortAnswer("Paris").IsEmpty())
	require.False(t, MultipleChoice("B").IsEmpty())
	require.True(t, AssignmentAnswer("").IsEmpty())

	withExtracted := AssignmentAnswer("")
	withExtracted.ExtractedText = "--- essay.txt ---\nbody"
	require.False(t, withExtracted.IsEmpty())

	require.True(t, (&StudentAnswers{Type: AnswerTypeUnstructured, Raw: json.RawMessage(`{}`)}).IsEmpty())
}

func TestStudentAnswersIsPresent(t *testing.T) {
	var missing *StudentAnswers
	require.False(t, missing.IsPresent())
	require.True(t, ShortAnswer("").IsPresent())
	require.True(t, MultipleChoice("").IsPresent())
	require.True(t, AssignmentAnswer("", Attachment{DriveFile: &DriveFile{ID: "drive-1"}}).IsPresent())
	require.False(t, (&StudentAnswers{Type: AnswerTypeUnstructured, Raw: json.RawMessage(`null`)}).IsPresent())
	require.True(t, (&StudentAnswers{Type: AnswerTypeUnstructured, Raw: json.RawMessage(`{"essay":"body"}`)}).IsPresent())
}

func TestRubricComputeTotalPoints(t *testing.T) {
	rubric := Rubric{Criteria: []RubricCriterion{{Description: "Accuracy", Points: 6}, {Description: "Clarity", Points: 4.5}}}
	require.InDelta(t, 10.5, rubric.ComputeTotalPoints(), 1e-9)

	require.NoError(t, rubric.BeforeSave(nil))
	require.InDelta(t, 10.5, rubric.TotalPoints, 1e-9)
}

func TestAssignmentCriteriaQuestions(t *testing.T) {
	assignment := Assignment{GradingCriteria: datatypes.JSON(`{"questions":[{"question_text":"Define osmosis","points":5,"grading_criteria":"mentions membrane"}]}`)}

	questions := assignment.CriteriaQuestions()
	require.Len(t, questions, 1)
	require.Equal(t, "Define osmosis", questions[0].QuestionText)
	require.Equal(t, 5.0, questions[0].Points)

	require.Nil(t, Assignment{GradingCriteria: datatypes.JSON(`[1,2]`)}.CriteriaQuestions())
	require.Equal(t, DefaultMaxPoints, Assignment{}.EffectiveMaxPoints())
}

func TestSubmissionFileTextPrefersOCRResult(t *testing.T) {
	file := SubmissionFile{OCRText: "fallback", OCRResult: &OCRResult{Text: "recognised"}}
	require.Equal(t, "recognised", file.Text())

	file.OCRResult = &OCRResult{}
	require.Equal(t, "fallback", file.Text())
}
