package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/examguard/examguard-backend/internal/apperr"
	"github.com/examguard/examguard-backend/internal/config"
	"github.com/examguard/examguard-backend/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	student = model.Principal{ID: 7, Role: model.RoleStudent}
	proctor = model.Principal{ID: 99, Role: model.RoleAdmin}
)

type attemptEnv struct {
	cfg       *config.Config
	store     *fakeAttemptStore
	exams     *fakeExamStore
	questions *fakeQuestionStore
	bus       *fakeBus
	svc       *AttemptService
	exam      *model.Exam
}

// newAttemptEnv wires an AttemptService over in-memory fakes with one
// exam whose question group holds the given questions.
func newAttemptEnv(questions ...model.Question) *attemptEnv {
	groupID := uuid.New()
	exam := &model.Exam{
		ID:               uuid.New(),
		Title:            "Final Exam",
		DurationMinutes:  60,
		QuestionGroupIDs: []uuid.UUID{groupID},
		Status:           model.ExamStatusPublished,
	}
	qs := &fakeQuestionStore{byGroup: map[uuid.UUID][]model.Question{groupID: questions}}
	store := newFakeAttemptStore()
	exams := &fakeExamStore{exams: map[uuid.UUID]*model.Exam{exam.ID: exam}}
	bus := newFakeBus()
	cfg := &config.Config{SessionSecret: "test-secret", UploadTimeout: time.Second}
	svc := NewAttemptService(
		cfg,
		store,
		exams,
		NewQuestionResolver(qs, zerolog.Nop()),
		NewScoringService(),
		bus,
		zerolog.Nop(),
	)
	return &attemptEnv{
		cfg:       cfg,
		store:     store,
		exams:     exams,
		questions: qs,
		bus:       bus,
		svc:       svc,
		exam:      exam,
	}
}

func wantCode(t *testing.T, err error, code apperr.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("err = nil, want code %s", code)
	}
	if got := apperr.CodeOf(err); got != code {
		t.Fatalf("code = %s, want %s (err: %v)", got, code, err)
	}
}

func TestStartCreatesActiveAttempt(t *testing.T) {
	env := newAttemptEnv(singleChoice(1, "a"))

	a, err := env.svc.Start(context.Background(), student, env.exam.ID)
	if err != nil {
		t.Fatal(err)
	}
	if a.Status != model.AttemptStatusActive {
		t.Fatalf("status = %s, want ACTIVE", a.Status)
	}
	if a.SessionToken == "" {
		t.Fatal("session token is empty")
	}
	if a.StartedAt == nil {
		t.Fatal("started_at is nil")
	}
	if _, ok := env.bus.starts[a.ID.String()]; !ok {
		t.Fatal("start time was not cached")
	}
}

func TestStartTwiceReturnsSameAttempt(t *testing.T) {
	env := newAttemptEnv(singleChoice(1, "a"))
	ctx := context.Background()

	first, err := env.svc.Start(ctx, student, env.exam.ID)
	if err != nil {
		t.Fatal(err)
	}
	second, err := env.svc.Start(ctx, student, env.exam.ID)
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Fatalf("second start created a new attempt: %s vs %s", first.ID, second.ID)
	}
	if second.SessionToken != first.SessionToken {
		t.Fatal("resumed attempt has a different session token")
	}
}

func TestStartUnknownExam(t *testing.T) {
	env := newAttemptEnv()
	_, err := env.svc.Start(context.Background(), student, uuid.New())
	wantCode(t, err, apperr.CodeNotFound)
}

func TestSaveAnswersBuffersAndEnqueues(t *testing.T) {
	q := singleChoice(1, "a")
	env := newAttemptEnv(q)
	ctx := context.Background()

	a, err := env.svc.Start(ctx, student, env.exam.ID)
	if err != nil {
		t.Fatal(err)
	}

	req := model.SaveAnswersRequest{
		SessionToken: a.SessionToken,
		Answers:      model.AnswerMap{q.ID.String(): model.SingleAnswer("a")},
	}
	if err := env.svc.SaveAnswers(ctx, student, a.ID, req); err != nil {
		t.Fatal(err)
	}

	if len(env.bus.enqueues) != 1 {
		t.Fatalf("enqueues = %d, want 1", len(env.bus.enqueues))
	}
	if env.bus.enqueues[0].queue != config.WorkerKey.PersistAnswersQueue {
		t.Fatalf("queue = %s, want %s", env.bus.enqueues[0].queue, config.WorkerKey.PersistAnswersQueue)
	}
	if len(env.bus.answers[a.ID.String()]) != 1 {
		t.Fatal("answer was not cached")
	}
}

func TestSaveAnswersQueueOutageWritesDirectly(t *testing.T) {
	q := singleChoice(1, "a")
	env := newAttemptEnv(q)
	ctx := context.Background()

	a, err := env.svc.Start(ctx, student, env.exam.ID)
	if err != nil {
		t.Fatal(err)
	}
	env.bus.enqueueErr = errors.New("redis down")

	req := model.SaveAnswersRequest{
		SessionToken: a.SessionToken,
		Answers:      model.AnswerMap{q.ID.String(): model.SingleAnswer("a")},
	}
	if err := env.svc.SaveAnswers(ctx, student, a.ID, req); err != nil {
		t.Fatal(err)
	}

	stored, _ := env.store.GetByID(ctx, a.ID)
	if stored.Answers.Answered() != 1 {
		t.Fatal("answers did not reach the store through the fallback")
	}
}

func TestSaveAnswersTokenMismatch(t *testing.T) {
	q := singleChoice(1, "a")
	env := newAttemptEnv(q)
	ctx := context.Background()

	a, _ := env.svc.Start(ctx, student, env.exam.ID)
	req := model.SaveAnswersRequest{
		SessionToken: "wrong-token",
		Answers:      model.AnswerMap{q.ID.String(): model.SingleAnswer("a")},
	}
	err := env.svc.SaveAnswers(ctx, student, a.ID, req)
	wantCode(t, err, apperr.CodeSessionMismatch)
	if len(env.bus.enqueues) != 0 {
		t.Fatal("mismatched token still enqueued answers")
	}
}

func TestSaveAnswersClosedAttempt(t *testing.T) {
	q := singleChoice(1, "a")
	env := newAttemptEnv(q)
	ctx := context.Background()

	a, _ := env.svc.Start(ctx, student, env.exam.ID)
	env.store.Terminate(ctx, a.ID)

	req := model.SaveAnswersRequest{
		SessionToken: a.SessionToken,
		Answers:      model.AnswerMap{q.ID.String(): model.SingleAnswer("a")},
	}
	err := env.svc.SaveAnswers(ctx, student, a.ID, req)
	wantCode(t, err, apperr.CodeConflict)
}

func TestSubmitGradesAndPublishes(t *testing.T) {
	q := singleChoice(10, "a", "b")
	env := newAttemptEnv(q)
	ctx := context.Background()

	a, _ := env.svc.Start(ctx, student, env.exam.ID)
	req := model.SubmitRequest{
		SessionToken: a.SessionToken,
		Answers:      model.AnswerMap{q.ID.String(): model.SingleAnswer("a")},
	}
	out, err := env.svc.Submit(ctx, student, a.ID, req)
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != model.AttemptStatusSubmitted {
		t.Fatalf("status = %s, want SUBMITTED", out.Status)
	}
	if out.ResultStatus != model.ResultStatusPublished {
		t.Fatalf("result status = %s, want PUBLISHED", out.ResultStatus)
	}
	if out.Score != 10 || out.Percentage != 100 || !out.Passed {
		t.Fatalf("got score=%v pct=%v passed=%v", out.Score, out.Percentage, out.Passed)
	}
	if out.SubmittedAt == nil {
		t.Fatal("submitted_at is nil")
	}
	if _, ok := env.bus.answers[a.ID.String()]; ok {
		t.Fatal("answer buffer was not cleared")
	}
}

func TestSubmitFinalAnswersWin(t *testing.T) {
	q := singleChoice(1, "a", "b")
	env := newAttemptEnv(q)
	ctx := context.Background()

	a, _ := env.svc.Start(ctx, student, env.exam.ID)
	env.store.MergeAnswers(ctx, a.ID, model.AnswerMap{q.ID.String(): model.SingleAnswer("b")})

	req := model.SubmitRequest{
		SessionToken: a.SessionToken,
		Answers:      model.AnswerMap{q.ID.String(): model.SingleAnswer("a")},
	}
	out, err := env.svc.Submit(ctx, student, a.ID, req)
	if err != nil {
		t.Fatal(err)
	}
	if out.Score != 1 {
		t.Fatalf("score = %v, want 1 (final answer replaces autosave)", out.Score)
	}
}

func TestSubmitKeepsAutosavedAnswers(t *testing.T) {
	q1 := singleChoice(1, "a")
	q2 := singleChoice(1, "x")
	env := newAttemptEnv(q1, q2)
	ctx := context.Background()

	a, _ := env.svc.Start(ctx, student, env.exam.ID)
	env.store.MergeAnswers(ctx, a.ID, model.AnswerMap{q1.ID.String(): model.SingleAnswer("a")})

	req := model.SubmitRequest{
		SessionToken: a.SessionToken,
		Answers:      model.AnswerMap{q2.ID.String(): model.SingleAnswer("x")},
	}
	out, err := env.svc.Submit(ctx, student, a.ID, req)
	if err != nil {
		t.Fatal(err)
	}
	if out.Score != 2 {
		t.Fatalf("score = %v, want 2 (autosave merged with final payload)", out.Score)
	}
}

func TestSubmitIdempotent(t *testing.T) {
	q := singleChoice(1, "a", "b")
	env := newAttemptEnv(q)
	ctx := context.Background()

	a, _ := env.svc.Start(ctx, student, env.exam.ID)
	req := model.SubmitRequest{
		SessionToken: a.SessionToken,
		Answers:      model.AnswerMap{q.ID.String(): model.SingleAnswer("a")},
	}
	first, err := env.svc.Submit(ctx, student, a.ID, req)
	if err != nil {
		t.Fatal(err)
	}

	// Resubmission returns the stored result before the token is even
	// looked at, so a retrying client with a lost token still converges.
	again, err := env.svc.Submit(ctx, student, a.ID, model.SubmitRequest{SessionToken: "stale"})
	if err != nil {
		t.Fatal(err)
	}
	if again.Score != first.Score || again.Status != model.AttemptStatusSubmitted {
		t.Fatalf("resubmit changed the result: %+v", again)
	}
}

func TestSubmitTerminatedAttempt(t *testing.T) {
	env := newAttemptEnv(singleChoice(1, "a"))
	ctx := context.Background()

	a, _ := env.svc.Start(ctx, student, env.exam.ID)
	env.store.Terminate(ctx, a.ID)

	_, err := env.svc.Submit(ctx, student, a.ID, model.SubmitRequest{SessionToken: a.SessionToken})
	wantCode(t, err, apperr.CodeAttemptTerminated)
}

func TestSubmitAnotherUsersAttempt(t *testing.T) {
	env := newAttemptEnv(singleChoice(1, "a"))
	ctx := context.Background()

	a, _ := env.svc.Start(ctx, student, env.exam.ID)
	other := model.Principal{ID: 8, Role: model.RoleStudent}
	_, err := env.svc.Submit(ctx, other, a.ID, model.SubmitRequest{SessionToken: a.SessionToken})
	wantCode(t, err, apperr.CodeForbidden)
}

func TestSubmitSubjectiveDraftsResult(t *testing.T) {
	essay := model.Question{ID: uuid.New(), Type: model.QuestionTypeLongAnswer, Marks: 5}
	env := newAttemptEnv(essay)
	ctx := context.Background()

	a, _ := env.svc.Start(ctx, student, env.exam.ID)
	req := model.SubmitRequest{
		SessionToken: a.SessionToken,
		Answers:      model.AnswerMap{essay.ID.String(): model.SingleAnswer("my essay")},
	}
	out, err := env.svc.Submit(ctx, student, a.ID, req)
	if err != nil {
		t.Fatal(err)
	}
	if out.ResultStatus != model.ResultStatusDraft {
		t.Fatalf("result status = %s, want DRAFT", out.ResultStatus)
	}
}

func TestForceSubmitRequiresStaff(t *testing.T) {
	env := newAttemptEnv(singleChoice(1, "a"))
	ctx := context.Background()

	a, _ := env.svc.Start(ctx, student, env.exam.ID)
	_, err := env.svc.ForceSubmit(ctx, student, a.ID)
	wantCode(t, err, apperr.CodeForbidden)
}

func TestForceSubmitGradesAndWarns(t *testing.T) {
	q := singleChoice(1, "a")
	env := newAttemptEnv(q)
	ctx := context.Background()

	a, _ := env.svc.Start(ctx, student, env.exam.ID)
	env.store.MergeAnswers(ctx, a.ID, model.AnswerMap{q.ID.String(): model.SingleAnswer("a")})

	out, err := env.svc.ForceSubmit(ctx, proctor, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != model.AttemptStatusSubmitted {
		t.Fatalf("status = %s, want SUBMITTED", out.Status)
	}
	if out.Score != 1 {
		t.Fatalf("score = %v, want 1 from persisted answers", out.Score)
	}

	stored, _ := env.store.GetByID(ctx, a.ID)
	if len(stored.Warnings) != 1 || stored.Warnings[0].Type != model.WarningTypeAdmin {
		t.Fatalf("warnings = %+v, want one ADMIN entry", stored.Warnings)
	}
}

func TestResultHiddenWhileDraft(t *testing.T) {
	essay := model.Question{ID: uuid.New(), Type: model.QuestionTypeLongAnswer, Marks: 5}
	obj := singleChoice(5, "a")
	env := newAttemptEnv(essay, obj)
	ctx := context.Background()

	a, _ := env.svc.Start(ctx, student, env.exam.ID)
	req := model.SubmitRequest{
		SessionToken: a.SessionToken,
		Answers: model.AnswerMap{
			essay.ID.String(): model.SingleAnswer("essay"),
			obj.ID.String():   model.SingleAnswer("a"),
		},
	}
	if _, err := env.svc.Submit(ctx, student, a.ID, req); err != nil {
		t.Fatal(err)
	}

	view, err := env.svc.Result(ctx, student, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !view.UnderReview {
		t.Fatal("UnderReview = false for a draft result")
	}
	if view.Attempt.Score != 0 || view.Attempt.Percentage != 0 || view.Attempt.Passed {
		t.Fatalf("draft leaked scores to student: %+v", view.Attempt)
	}
	if len(view.Breakdown) != 0 {
		t.Fatal("draft leaked breakdown to student")
	}

	staffView, err := env.svc.Result(ctx, proctor, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if staffView.UnderReview {
		t.Fatal("staff view flagged under review")
	}
	if len(staffView.Breakdown) != 2 {
		t.Fatalf("staff breakdown rows = %d, want 2", len(staffView.Breakdown))
	}
}

func TestResultBeforeSubmission(t *testing.T) {
	env := newAttemptEnv(singleChoice(1, "a"))
	ctx := context.Background()

	a, _ := env.svc.Start(ctx, student, env.exam.ID)
	_, err := env.svc.Result(ctx, student, a.ID)
	wantCode(t, err, apperr.CodeConflict)
}

func TestReviseMarksPublishesDraft(t *testing.T) {
	essay := model.Question{ID: uuid.New(), Type: model.QuestionTypeLongAnswer, Marks: 10}
	env := newAttemptEnv(essay)
	ctx := context.Background()

	a, _ := env.svc.Start(ctx, student, env.exam.ID)
	req := model.SubmitRequest{
		SessionToken: a.SessionToken,
		Answers:      model.AnswerMap{essay.ID.String(): model.SingleAnswer("my essay")},
	}
	if _, err := env.svc.Submit(ctx, student, a.ID, req); err != nil {
		t.Fatal(err)
	}

	out, err := env.svc.ReviseMarks(ctx, proctor, a.ID, model.ReviseMarksRequest{
		Marks: map[string]float64{essay.ID.String(): 5},
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Score != 5 || out.Percentage != 50 || !out.Passed {
		t.Fatalf("got score=%v pct=%v passed=%v, want 5 50 true", out.Score, out.Percentage, out.Passed)
	}
	if out.ResultStatus != model.ResultStatusPublished {
		t.Fatalf("result status = %s, want PUBLISHED", out.ResultStatus)
	}
	if out.ModifiedBy == nil || *out.ModifiedBy != proctor.ID {
		t.Fatalf("modified_by = %v, want %d", out.ModifiedBy, proctor.ID)
	}

	// The student may now see the revised result.
	view, err := env.svc.Result(ctx, student, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if view.UnderReview || view.Attempt.Score != 5 {
		t.Fatalf("published result still hidden: %+v", view)
	}
}

func TestReviseMarksAccumulate(t *testing.T) {
	e1 := model.Question{ID: uuid.New(), Type: model.QuestionTypeLongAnswer, Marks: 5}
	e2 := model.Question{ID: uuid.New(), Type: model.QuestionTypeLongAnswer, Marks: 5}
	env := newAttemptEnv(e1, e2)
	ctx := context.Background()

	a, _ := env.svc.Start(ctx, student, env.exam.ID)
	req := model.SubmitRequest{
		SessionToken: a.SessionToken,
		Answers: model.AnswerMap{
			e1.ID.String(): model.SingleAnswer("one"),
			e2.ID.String(): model.SingleAnswer("two"),
		},
	}
	if _, err := env.svc.Submit(ctx, student, a.ID, req); err != nil {
		t.Fatal(err)
	}

	if _, err := env.svc.ReviseMarks(ctx, proctor, a.ID, model.ReviseMarksRequest{
		Marks: map[string]float64{e1.ID.String(): 4},
	}); err != nil {
		t.Fatal(err)
	}
	out, err := env.svc.ReviseMarks(ctx, proctor, a.ID, model.ReviseMarksRequest{
		Marks: map[string]float64{e2.ID.String(): 3},
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Score != 7 {
		t.Fatalf("score = %v, want 7 (earlier revision retained)", out.Score)
	}
}

func TestReviseMarksValidation(t *testing.T) {
	essay := model.Question{ID: uuid.New(), Type: model.QuestionTypeLongAnswer, Marks: 5}
	env := newAttemptEnv(essay)
	ctx := context.Background()

	a, _ := env.svc.Start(ctx, student, env.exam.ID)

	// Not submitted yet.
	_, err := env.svc.ReviseMarks(ctx, proctor, a.ID, model.ReviseMarksRequest{
		Marks: map[string]float64{essay.ID.String(): 3},
	})
	wantCode(t, err, apperr.CodeConflict)

	req := model.SubmitRequest{
		SessionToken: a.SessionToken,
		Answers:      model.AnswerMap{essay.ID.String(): model.SingleAnswer("essay")},
	}
	if _, err := env.svc.Submit(ctx, student, a.ID, req); err != nil {
		t.Fatal(err)
	}

	_, err = env.svc.ReviseMarks(ctx, proctor, a.ID, model.ReviseMarksRequest{
		Marks: map[string]float64{essay.ID.String(): -1},
	})
	wantCode(t, err, apperr.CodeInvalidInput)

	_, err = env.svc.ReviseMarks(ctx, proctor, a.ID, model.ReviseMarksRequest{
		Marks: map[string]float64{uuid.NewString(): 3},
	})
	wantCode(t, err, apperr.CodeInvalidInput)

	_, err = env.svc.ReviseMarks(ctx, student, a.ID, model.ReviseMarksRequest{
		Marks: map[string]float64{essay.ID.String(): 3},
	})
	wantCode(t, err, apperr.CodeForbidden)
}

func TestSessionTokens(t *testing.T) {
	examID := uuid.New()
	t1 := newSessionToken("secret", examID, 1)
	t2 := newSessionToken("secret", examID, 1)
	if t1 == t2 {
		t.Fatal("two tokens for the same pair are identical")
	}
	if !tokenMatches(t1, t1) {
		t.Fatal("token does not match itself")
	}
	if tokenMatches(t1, t2) {
		t.Fatal("distinct tokens matched")
	}
}
