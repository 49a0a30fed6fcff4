package service

import (
	"strconv"
	"strings"

	"github.com/noah-isme/aisensei-api/internal/models"
)

// GradingSystemPrompt is sent as the system prompt of every grading request.
const GradingSystemPrompt = "You are an experienced teacher. Grade fairly against the rubric and answer only with the requested JSON object."

const (
	noContentLine    = "No text response provided and no files uploaded."
	filesHeader      = "\n\nUploaded Files Content:\n"
	filesPendingLine = "Files were uploaded but their text is still being extracted."
)

// BuildGradingPrompt renders the grading instruction for one submission.
// fileCount is the number of uploaded files, including those whose text is not
// extracted yet. The output depends only on its arguments.
func BuildGradingPrompt(assignment models.Assignment, questions []models.Question, rubric *models.Rubric, blocks []ContentBlock, fileCount int) string {
	var b strings.Builder

	b.WriteString("You are an AI teacher assistant. Grade this student submission.\n\n")
	b.WriteString("Assignment: " + assignment.Title + "\n")
	b.WriteString("Instructions: " + orNA(assignment.Instructions) + "\n")
	b.WriteString("Max Points: " + formatPoints(assignment.EffectiveMaxPoints()) + "\n")
	b.WriteString("Assignment Type: " + assignment.AssignmentType + "\n\n")

	if rubric != nil {
		writeRubric(&b, rubric)
	}

	if len(questions) > 0 {
		b.WriteString("\nQuestions and Expected Answers:\n")
		for i, q := range questions {
			b.WriteString(strconv.Itoa(i+1) + ". " + q.QuestionText + " (" + formatPoints(q.Points) + " points)\n")
			if q.CorrectAnswer != "" {
				b.WriteString("   Expected Answer: " + q.CorrectAnswer + "\n")
			}
			if q.GradingCriteria != "" {
				b.WriteString("   Grading Criteria: " + q.GradingCriteria + "\n")
			}
			b.WriteString("\n")
		}
	} else if criteria := assignment.CriteriaQuestions(); len(criteria) > 0 {
		b.WriteString("\nQuestions:\n")
		for i, q := range criteria {
			b.WriteString(strconv.Itoa(i+1) + ". " + q.QuestionText + " (" + formatPoints(q.Points) + " points)\n")
			if q.GradingCriteria != "" {
				b.WriteString("   Grading criteria: " + q.GradingCriteria + "\n")
			}
		}
	}

	b.WriteString("\nStudent's Response:\n")
	writeContent(&b, blocks, fileCount)

	b.WriteString("\n\nPlease provide:\n")
	b.WriteString("1. A numerical score out of " + formatPoints(assignment.EffectiveMaxPoints()) + "\n")
	b.WriteString("2. Detailed feedback for the student\n")
	b.WriteString("3. Strengths and areas for improvement\n\n")
	b.WriteString("Format your response as JSON:\n")
	b.WriteString("{\n")
	b.WriteString("  \"score\": <number>,\n")
	b.WriteString("  \"feedback\": \"<detailed feedback>\",\n")
	b.WriteString("  \"strengths\": [\"<strength1>\", \"<strength2>\"],\n")
	b.WriteString("  \"improvements\": [\"<area1>\", \"<area2>\"],\n")
	b.WriteString("  \"rubric_scores\": {\"<criterion>\": <score>}\n")
	b.WriteString("}\n")

	return b.String()
}

func writeRubric(b *strings.Builder, rubric *models.Rubric) {
	b.WriteString("Rubric:\n")
	b.WriteString("Title: " + rubric.Title + "\n")
	b.WriteString(rubric.Description + "\n\n")
	b.WriteString("Criteria:\n")
	for _, criterion := range rubric.Criteria {
		b.WriteString("- " + criterion.Description + ": " + formatPoints(criterion.Points) + " points\n")
		for _, level := range criterion.Levels {
			b.WriteString("  • " + level.Title + ": " + formatPoints(level.Points) + " pts - " + level.Description + "\n")
		}
	}
}

func writeContent(b *strings.Builder, blocks []ContentBlock, fileCount int) {
	if len(blocks) == 0 && fileCount == 0 {
		b.WriteString(noContentLine)
		return
	}

	fileBlocks := 0
	for _, block := range blocks {
		switch block.Kind {
		case ContentAnswer:
			b.WriteString(block.Text)
		case ContentExtracted:
			b.WriteString("\n\n" + block.Label + ":\n" + block.Text)
		case ContentFile:
			if fileBlocks == 0 {
				b.WriteString(filesHeader)
			}
			fileBlocks++
			b.WriteString("\n--- " + block.Label + " ---\n" + block.Text + "\n")
		}
	}

	if fileCount > 0 && fileBlocks == 0 {
		b.WriteString(filesHeader)
		b.WriteString(filesPendingLine + "\n")
	}
}

func orNA(value string) string {
	if strings.TrimSpace(value) == "" {
		return "N/A"
	}
	return value
}

func formatPoints(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
