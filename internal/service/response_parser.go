package service

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// DefaultScoreRatio is the share of max points awarded when the model output
// cannot be decoded.
const DefaultScoreRatio = 0.7

const gradingResponseSchema = `{
  "type": "object",
  "properties": {
    "score": {"type": ["number", "string"]},
    "feedback": {"type": "string"},
    "strengths": {"type": "array", "items": {"type": "string"}},
    "improvements": {"type": "array", "items": {"type": "string"}},
    "rubric_scores": {"type": "object", "additionalProperties": {"type": "number"}}
  }
}`

var gradingSchema = jsonschema.MustCompileString("grading_response.schema.json", gradingResponseSchema)

// GradingResult is the decoded model verdict.
type GradingResult struct {
	Score        float64
	Feedback     string
	Strengths    []string
	Improvements []string
	RubricScores map[string]float64
	Structured   bool
}

type gradingPayload struct {
	Score        json.RawMessage    `json:"score"`
	Feedback     string             `json:"feedback"`
	Strengths    []string           `json:"strengths"`
	Improvements []string           `json:"improvements"`
	RubricScores map[string]float64 `json:"rubric_scores"`
}

// ParseGradingResponse decodes the JSON object between the first `{` and the
// last `}` of raw. Undecodable output falls back to the raw text as feedback
// with a default score. The score is capped at maxPoints; negative scores are
// kept.
func ParseGradingResponse(raw string, maxPoints float64) GradingResult {
	result, ok := decodeGradingPayload(raw)
	if !ok {
		result = GradingResult{
			Score:    maxPoints * DefaultScoreRatio,
			Feedback: raw,
		}
	}

	result.Score = math.Min(result.Score, maxPoints)
	if result.Strengths == nil {
		result.Strengths = []string{}
	}
	if result.Improvements == nil {
		result.Improvements = []string{}
	}
	if result.RubricScores == nil {
		result.RubricScores = map[string]float64{}
	}

	return result
}

func decodeGradingPayload(raw string) (GradingResult, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return GradingResult{}, false
	}
	fragment := raw[start : end+1]

	var document interface{}
	if err := json.Unmarshal([]byte(fragment), &document); err != nil {
		return GradingResult{}, false
	}
	if err := gradingSchema.Validate(document); err != nil {
		return GradingResult{}, false
	}

	var payload gradingPayload
	if err := json.Unmarshal([]byte(fragment), &payload); err != nil {
		return GradingResult{}, false
	}

	score, ok := decodeScore(payload.Score)
	if !ok {
		return GradingResult{}, false
	}

	return GradingResult{
		Score:        score,
		Feedback:     payload.Feedback,
		Strengths:    payload.Strengths,
		Improvements: payload.Improvements,
		RubricScores: payload.RubricScores,
		Structured:   true,
	}, true
}

// decodeScore accepts a JSON number or a numeric string. A missing score is 0.
func decodeScore(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, true
	}

	var number float64
	if err := json.Unmarshal(raw, &number); err == nil {
		return number, true
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return 0, false
	}
	number, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || math.IsNaN(number) || math.IsInf(number, 0) {
		return 0, false
	}
	return number, true
}
