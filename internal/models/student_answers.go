package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// AnswerType tags the shape of a StudentAnswers payload.
type AnswerType string

const (
	AnswerTypeShortAnswer    AnswerType = "short_answer"
	AnswerTypeMultipleChoice AnswerType = "multiple_choice"
	AnswerTypeAssignment     AnswerType = "assignment"
	AnswerTypeUnstructured   AnswerType = "unstructured"
)

// DriveFile references a file attached from the classroom platform's drive.
type DriveFile struct {
	ID            string `json:"id"`
	Title         string `json:"title,omitempty"`
	AlternateLink string `json:"alternateLink,omitempty"`
}

// LinkAttachment references a plain URL attachment.
type LinkAttachment struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// Attachment is one item of an assignment submission's attachment list.
type Attachment struct {
	DriveFile *DriveFile      `json:"driveFile,omitempty"`
	Link      *LinkAttachment `json:"link,omitempty"`
}

// StudentAnswers is the typed answer payload synchronised with a submission.
// Only the fields belonging to Type are meaningful; Raw carries payloads whose
// type is not recognised.
type StudentAnswers struct {
	Type          AnswerType
	Answer        string
	Text          string
	ExtractedText string
	Attachments   []Attachment
	Raw           json.RawMessage
}

// ShortAnswer builds a short_answer payload.
func ShortAnswer(answer string) *StudentAnswers {
	return &StudentAnswers{Type: AnswerTypeShortAnswer, Answer: answer}
}

// MultipleChoice builds a multiple_choice payload.
func MultipleChoice(answer string) *StudentAnswers {
	return &StudentAnswers{Type: AnswerTypeMultipleChoice, Answer: answer}
}

// AssignmentAnswer builds an assignment payload.
func AssignmentAnswer(text string, attachments ...Attachment) *StudentAnswers {
	return &StudentAnswers{Type: AnswerTypeAssignment, Text: text, Attachments: attachments}
}

type choicePayload struct {
	Type   AnswerType `json:"type"`
	Answer string     `json:"answer"`
}

type assignmentPayload struct {
	Type          AnswerType   `json:"type"`
	Text          string       `json:"text,omitempty"`
	ExtractedText string       `json:"extracted_text,omitempty"`
	Attachments   []Attachment `json:"attachments,omitempty"`
}

// MarshalJSON encodes the variant selected by Type.
func (a StudentAnswers) MarshalJSON() ([]byte, error) {
	switch a.Type {
	case AnswerTypeShortAnswer, AnswerTypeMultipleChoice:
		return json.Marshal(choicePayload{Type: a.Type, Answer: a.Answer})
	case AnswerTypeAssignment:
		return json.Marshal(assignmentPayload{
			Type:          a.Type,
			Text:          a.Text,
			ExtractedText: a.ExtractedText,
			Attachments:   a.Attachments,
		})
	default:
		if len(a.Raw) > 0 {
			return a.Raw, nil
		}
		return []byte(`{"type":"unstructured"}`), nil
	}
}

// UnmarshalJSON decodes known variants and keeps anything else verbatim.
func (a *StudentAnswers) UnmarshalJSON(data []byte) error {
	var probe struct {
		Type AnswerType `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	switch probe.Type {
	case AnswerTypeShortAnswer, AnswerTypeMultipleChoice:
		var payload choicePayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return err
		}
		*a = StudentAnswers{Type: payload.Type, Answer: payload.Answer}
	case AnswerTypeAssignment:
		var payload assignmentPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return err
		}
		*a = StudentAnswers{
			Type:          payload.Type,
			Text:          payload.Text,
			ExtractedText: payload.ExtractedText,
			Attachments:   payload.Attachments,
		}
	default:
		*a = StudentAnswers{Type: AnswerTypeUnstructured, Raw: append(json.RawMessage(nil), data...)}
	}

	return nil
}

// IsEmpty reports whether the payload carries nothing gradeable.
func (a *StudentAnswers) IsEmpty() bool {
	if a == nil {
		return true
	}

	switch a.Type {
	case AnswerTypeShortAnswer, AnswerTypeMultipleChoice:
		return strings.TrimSpace(a.Answer) == ""
	case AnswerTypeAssignment:
		return strings.TrimSpace(a.Text) == "" && strings.TrimSpace(a.ExtractedText) == ""
	default:
		trimmed := bytes.TrimSpace(a.Raw)
		return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("{}")) || bytes.Equal(trimmed, []byte("null"))
	}
}

// IsPresent reports whether a payload was synchronised at all. Known variants
// count even with blank fields, since attachments may still await extraction.
func (a *StudentAnswers) IsPresent() bool {
	if a == nil {
		return false
	}

	switch a.Type {
	case AnswerTypeShortAnswer, AnswerTypeMultipleChoice, AnswerTypeAssignment:
		return true
	default:
		return !a.IsEmpty()
	}
}

// DriveFiles returns the drive attachments of an assignment payload.
func (a *StudentAnswers) DriveFiles() []DriveFile {
	if a == nil || a.Type != AnswerTypeAssignment {
		return nil
	}

	files := make([]DriveFile, 0, len(a.Attachments))
	for _, attachment := range a.Attachments {
		if attachment.DriveFile != nil && attachment.DriveFile.ID != "" {
			files = append(files, *attachment.DriveFile)
		}
	}
	return files
}
