package repository

import (
	"context"
	"encoding/json"

	"github.com/examguard/examguard-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// QuestionRepository reads question definitions for scoring and the
// result detail view.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

const questionColumns = `id, group_id, subject_id, question_text, question_type, options, marks`

func (r *QuestionRepository) queryQuestions(ctx context.Context, query string, args ...any) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, *q)
	}
	return questions, rows.Err()
}

func scanQuestion(row pgx.Row) (*model.Question, error) {
	q := &model.Question{}
	var options []byte
	if err := row.Scan(&q.ID, &q.GroupID, &q.SubjectID, &q.Text, &q.Type, &options, &q.Marks); err != nil {
		return nil, err
	}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &q.Options); err != nil {
			return nil, err
		}
	}
	return q, nil
}

// FindByGroupIDs returns all questions belonging to the given question groups.
func (r *QuestionRepository) FindByGroupIDs(ctx context.Context, groupIDs []uuid.UUID) ([]model.Question, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	return r.queryQuestions(ctx,
		`SELECT `+questionColumns+`
		 FROM questions
		 WHERE group_id = ANY($1)
		 ORDER BY group_id, id`, groupIDs)
}

// FindBySubjectIDs returns all questions belonging to the given subjects.
func (r *QuestionRepository) FindBySubjectIDs(ctx context.Context, subjectIDs []uuid.UUID) ([]model.Question, error) {
	if len(subjectIDs) == 0 {
		return nil, nil
	}
	return r.queryQuestions(ctx,
		`SELECT `+questionColumns+`
		 FROM questions
		 WHERE subject_id = ANY($1)
		 ORDER BY subject_id, id`, subjectIDs)
}

// FindByIDs returns the questions with the given ids.
func (r *QuestionRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.queryQuestions(ctx,
		`SELECT `+questionColumns+`
		 FROM questions
		 WHERE id = ANY($1)
		 ORDER BY id`, ids)
}
