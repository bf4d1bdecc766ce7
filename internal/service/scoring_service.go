package service

import (
	"math"
	"strings"

	"github.com/examguard/examguard-backend/internal/model"
)

// ScoreResult is the outcome of one grading pass over an attempt.
type ScoreResult struct {
	Score         float64
	TotalMarks    float64
	Percentage    float64
	Passed        bool
	HasSubjective bool
	Diagnostic    model.ScoreDiagnostic
}

// QuestionScore is the per-question line of a result breakdown.
type QuestionScore struct {
	QuestionID string             `json:"question_id"`
	Type       model.QuestionType `json:"type"`
	Marks      float64            `json:"marks"`
	Awarded    float64            `json:"awarded"`
	Manual     bool               `json:"manual"`
	Answer     model.Answer       `json:"answer"`
}

// ScoringService grades attempts. All methods are pure; the same
// computation backs the submit path, mark revision and the result
// detail view so the three can never disagree.
type ScoringService struct{}

// NewScoringService creates a ScoringService.
func NewScoringService() *ScoringService {
	return &ScoringService{}
}

// Compute grades answers against questions under the exam's pass mark.
// Manual overrides, when present, replace the machine mark for the
// questions they name; untouched questions keep their machine marks.
func (s *ScoringService) Compute(exam *model.Exam, questions []model.Question, answers model.AnswerMap, manual map[string]float64) ScoreResult {
	res := ScoreResult{}

	for i := range questions {
		q := &questions[i]
		res.TotalMarks += q.MarkValue()
		if q.Type.Subjective() {
			res.HasSubjective = true
		}

		if override, ok := manual[q.ID.String()]; ok {
			res.Score += override
			continue
		}
		res.Score += autoMark(q, answers[q.ID.String()])
	}

	if res.TotalMarks > 0 {
		res.Percentage = round2(res.Score / res.TotalMarks * 100)
	}
	res.Passed = res.Percentage >= exam.PassMark()

	switch {
	case len(questions) == 0:
		res.Diagnostic = model.DiagnosticNoQuestionsResolved
	case answers.Answered() == 0:
		res.Diagnostic = model.DiagnosticNoAnswersSubmitted
	}
	return res
}

// Breakdown returns the per-question grading detail behind a Compute
// result, in question order.
func (s *ScoringService) Breakdown(questions []model.Question, answers model.AnswerMap, manual map[string]float64) []QuestionScore {
	out := make([]QuestionScore, 0, len(questions))
	for i := range questions {
		q := &questions[i]
		qs := QuestionScore{
			QuestionID: q.ID.String(),
			Type:       q.Type,
			Marks:      q.MarkValue(),
			Answer:     answers[q.ID.String()],
		}
		if override, ok := manual[q.ID.String()]; ok {
			qs.Awarded = override
			qs.Manual = true
		} else {
			qs.Awarded = autoMark(q, qs.Answer)
		}
		out = append(out, qs)
	}
	return out
}

// autoMark awards the question's full marks or zero. Partial credit only
// enters through manual overrides.
func autoMark(q *model.Question, ans model.Answer) float64 {
	if ans.IsEmpty() || q.Type.Subjective() {
		return 0
	}

	switch q.Type {
	case model.QuestionTypeSingleChoice, model.QuestionTypeTrueFalse:
		// A list submission still grades correctly when its set of
		// values equals the correct set.
		if sameSet(ans.Values(), q.CorrectTexts()) {
			return q.MarkValue()
		}
	case model.QuestionTypeMultipleChoice:
		if sameSet(ans.Values(), q.CorrectTexts()) {
			return q.MarkValue()
		}
	case model.QuestionTypeShortAnswer:
		got, ok := ans.Single()
		if !ok {
			return 0
		}
		for _, want := range q.CorrectTexts() {
			if strings.EqualFold(strings.TrimSpace(got), strings.TrimSpace(want)) {
				return q.MarkValue()
			}
		}
	}
	return 0
}

// sameSet compares two value lists as exact sets. Submission order and
// duplicates never affect the grade, but the texts must equal the
// correct option texts verbatim.
func sameSet(got, want []string) bool {
	a := model.MultipleAnswer(got).ValueSet()
	b := model.MultipleAnswer(want).ValueSet()
	if len(a) != len(b) || len(a) == 0 {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
