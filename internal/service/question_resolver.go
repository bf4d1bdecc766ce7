package service

import (
	"context"

	"github.com/examguard/examguard-backend/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// QuestionResolver locates the question set an attempt is graded
// against. Sources are tried in order and the first one yielding any
// questions wins:
//
//  1. the exam's question groups
//  2. the exam's subjects
//  3. the question ids appearing in the submitted answers
//
// The answer-key fallback keeps legacy exams gradable when their group
// and subject links were never populated.
type QuestionResolver struct {
	questions QuestionStore
	log       zerolog.Logger
}

// NewQuestionResolver creates a QuestionResolver.
func NewQuestionResolver(questions QuestionStore, log zerolog.Logger) *QuestionResolver {
	return &QuestionResolver{questions: questions, log: log}
}

// Resolve returns the gradable question set for exam, possibly empty.
func (r *QuestionResolver) Resolve(ctx context.Context, exam *model.Exam, answers model.AnswerMap) ([]model.Question, error) {
	type source struct {
		name string
		load func(context.Context) ([]model.Question, error)
	}

	sources := []source{
		{"groups", func(ctx context.Context) ([]model.Question, error) {
			if len(exam.QuestionGroupIDs) == 0 {
				return nil, nil
			}
			return r.questions.FindByGroupIDs(ctx, exam.QuestionGroupIDs)
		}},
		{"subjects", func(ctx context.Context) ([]model.Question, error) {
			if len(exam.SubjectIDs) == 0 {
				return nil, nil
			}
			return r.questions.FindBySubjectIDs(ctx, exam.SubjectIDs)
		}},
		{"answer_keys", func(ctx context.Context) ([]model.Question, error) {
			ids := answeredQuestionIDs(answers)
			if len(ids) == 0 {
				return nil, nil
			}
			return r.questions.FindByIDs(ctx, ids)
		}},
	}

	for _, src := range sources {
		qs, err := src.load(ctx)
		if err != nil {
			return nil, err
		}
		if len(qs) > 0 {
			r.log.Debug().
				Str("exam_id", exam.ID.String()).
				Str("source", src.name).
				Int("count", len(qs)).
				Msg("resolved question set")
			return qs, nil
		}
	}

	r.log.Warn().Str("exam_id", exam.ID.String()).Msg("no question source yielded questions")
	return nil, nil
}

func answeredQuestionIDs(answers model.AnswerMap) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(answers))
	for _, raw := range answers.QuestionIDs() {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}
