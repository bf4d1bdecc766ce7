package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/examguard/examguard-backend/internal/apperr"
	"github.com/examguard/examguard-backend/internal/config"
	"github.com/examguard/examguard-backend/internal/model"
	"github.com/examguard/examguard-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// AttemptService owns the attempt session lifecycle: start, answer
// autosave, submission and result access.
type AttemptService struct {
	cfg      *config.Config
	attempts AttemptStore
	exams    ExamStore
	resolver *QuestionResolver
	scorer   *ScoringService
	bus      EventBus
	log      zerolog.Logger
}

// NewAttemptService creates an AttemptService.
func NewAttemptService(
	cfg *config.Config,
	attempts AttemptStore,
	exams ExamStore,
	resolver *QuestionResolver,
	scorer *ScoringService,
	bus EventBus,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		cfg:      cfg,
		attempts: attempts,
		exams:    exams,
		resolver: resolver,
		scorer:   scorer,
		bus:      bus,
		log:      log,
	}
}

// Start opens or resumes the caller's attempt for an exam. Starting
// twice yields the same attempt: an existing non-terminal attempt is
// reactivated (or returned as is) instead of creating a second one.
func (s *AttemptService) Start(ctx context.Context, p model.Principal, examID uuid.UUID) (*model.ExamAttempt, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.New(apperr.CodeNotFound, "exam %s not found", examID)
		}
		return nil, apperr.Wrap(apperr.CodeInternal, err, "load exam")
	}

	open, err := s.attempts.GetOpenByExamAndUser(ctx, exam.ID, p.ID)
	if err == nil {
		return s.resumeOpen(ctx, open)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "load open attempt")
	}

	now := time.Now()
	a := &model.ExamAttempt{
		ExamID:       exam.ID,
		UserID:       p.ID,
		SessionToken: newSessionToken(s.cfg.SessionSecret, exam.ID, p.ID),
		Status:       model.AttemptStatusActive,
		ResultStatus: model.ResultStatusNone,
		StartedAt:    &now,
	}
	err = s.attempts.Create(ctx, a)
	if errors.Is(err, repository.ErrNoOpenAttempt) {
		// Lost the creation race; the winner's attempt is the session.
		open, err := s.attempts.GetOpenByExamAndUser(ctx, exam.ID, p.ID)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeInternal, err, "load racing attempt")
		}
		return s.resumeOpen(ctx, open)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "create attempt")
	}

	s.cacheStart(ctx, a)
	s.log.Info().
		Str("attempt_id", a.ID.String()).
		Str("exam_id", exam.ID.String()).
		Int("user_id", p.ID).
		Msg("attempt started")
	return a, nil
}

func (s *AttemptService) resumeOpen(ctx context.Context, a *model.ExamAttempt) (*model.ExamAttempt, error) {
	if a.Status == model.AttemptStatusNotStarted {
		now := time.Now()
		ok, err := s.attempts.Activate(ctx, a.ID, now)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeInternal, err, "activate attempt")
		}
		if ok {
			a.Status = model.AttemptStatusActive
			a.StartedAt = &now
		}
	}
	s.cacheStart(ctx, a)
	return a, nil
}

func (s *AttemptService) cacheStart(ctx context.Context, a *model.ExamAttempt) {
	if a.StartedAt == nil {
		return
	}
	if err := s.bus.CacheStart(ctx, a.ID.String(), *a.StartedAt); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", a.ID.String()).Msg("failed to cache start time")
	}
}

// Get returns an attempt visible to the caller: its owner or staff.
func (s *AttemptService) Get(ctx context.Context, p model.Principal, attemptID uuid.UUID) (*model.ExamAttempt, error) {
	return s.loadVisible(ctx, p, attemptID)
}

// SaveAnswers autosaves answers on an ACTIVE attempt. Values land in
// the redis buffer immediately and reach the database through the
// persistence worker; a queue outage falls back to a direct write.
func (s *AttemptService) SaveAnswers(ctx context.Context, p model.Principal, attemptID uuid.UUID, req model.SaveAnswersRequest) error {
	a, err := s.loadOwned(ctx, p, attemptID)
	if err != nil {
		return err
	}
	if a.Status != model.AttemptStatusActive {
		return apperr.New(apperr.CodeConflict, "attempt is %s, answers are closed", a.Status)
	}
	if !tokenMatches(a.SessionToken, req.SessionToken) {
		return apperr.New(apperr.CodeSessionMismatch, "session token mismatch")
	}
	if len(req.Answers) == 0 {
		return apperr.New(apperr.CodeInvalidInput, "no answers in payload")
	}

	for qid, ans := range req.Answers {
		raw, err := json.Marshal(ans)
		if err != nil {
			continue
		}
		if err := s.bus.CacheAnswer(ctx, a.ID.String(), qid, string(raw)); err != nil {
			s.log.Warn().Err(err).Str("attempt_id", a.ID.String()).Msg("failed to cache answer")
		}
	}

	item := model.AnswerQueueItem{AttemptID: a.ID, Answers: req.Answers}
	if err := s.bus.Enqueue(ctx, config.WorkerKey.PersistAnswersQueue, item); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", a.ID.String()).Msg("answer queue unavailable, writing directly")
		if _, err := s.attempts.MergeAnswers(ctx, a.ID, req.Answers); err != nil {
			return apperr.Wrap(apperr.CodeInternal, err, "persist answers")
		}
	}
	return nil
}

// Submit closes an ACTIVE attempt and grades it. Submitting an already
// SUBMITTED attempt returns the stored result unchanged.
func (s *AttemptService) Submit(ctx context.Context, p model.Principal, attemptID uuid.UUID, req model.SubmitRequest) (*model.ExamAttempt, error) {
	a, err := s.loadOwned(ctx, p, attemptID)
	if err != nil {
		return nil, err
	}

	switch a.Status {
	case model.AttemptStatusSubmitted:
		return a, nil
	case model.AttemptStatusTerminated:
		return nil, apperr.New(apperr.CodeAttemptTerminated, "attempt was terminated")
	case model.AttemptStatusNotStarted:
		return nil, apperr.New(apperr.CodeConflict, "attempt has not started")
	}
	if !tokenMatches(a.SessionToken, req.SessionToken) {
		return nil, apperr.New(apperr.CodeSessionMismatch, "session token mismatch")
	}

	// The final payload wins over autosaved values question by question.
	merged := make(model.AnswerMap, len(a.Answers)+len(req.Answers))
	for qid, ans := range a.Answers {
		merged[qid] = ans
	}
	for qid, ans := range req.Answers {
		merged[qid] = ans
	}
	a.Answers = merged

	return s.finalize(ctx, a)
}

// ForceSubmit closes an attempt on behalf of a proctor, bypassing the
// session token. The grade is computed from whatever answers have been
// persisted so far, and the intervention is recorded as a warning.
func (s *AttemptService) ForceSubmit(ctx context.Context, actor model.Principal, attemptID uuid.UUID) (*model.ExamAttempt, error) {
	if !actor.Staff() {
		return nil, apperr.New(apperr.CodeForbidden, "proctor role required")
	}
	a, err := s.load(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	switch a.Status {
	case model.AttemptStatusSubmitted:
		return a, nil
	case model.AttemptStatusTerminated:
		return nil, apperr.New(apperr.CodeAttemptTerminated, "attempt was terminated")
	case model.AttemptStatusNotStarted:
		return nil, apperr.New(apperr.CodeConflict, "attempt has not started")
	}

	warn := model.Warning{
		Message:   "attempt closed by proctor",
		Type:      model.WarningTypeAdmin,
		Timestamp: time.Now(),
	}
	if err := s.attempts.AppendWarning(ctx, a.ID, warn); err != nil {
		s.log.Error().Err(err).Str("attempt_id", a.ID.String()).Msg("failed to record force-submit warning")
	}

	submitted, err := s.finalize(ctx, a)
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Str("attempt_id", a.ID.String()).
		Int("actor_id", actor.ID).
		Msg("attempt force-submitted")
	return submitted, nil
}

// finalize grades the attempt and transitions ACTIVE -> SUBMITTED. A
// concurrent submission winning the transition is resolved by returning
// the stored result.
func (s *AttemptService) finalize(ctx context.Context, a *model.ExamAttempt) (*model.ExamAttempt, error) {
	exam, err := s.exams.GetByID(ctx, a.ExamID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "load exam")
	}
	questions, err := s.resolver.Resolve(ctx, exam, a.Answers)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "resolve questions")
	}

	res := s.scorer.Compute(exam, questions, a.Answers, nil)
	now := time.Now()
	a.Score = res.Score
	a.TotalMarks = res.TotalMarks
	a.Percentage = res.Percentage
	a.Passed = res.Passed
	a.Diagnostic = res.Diagnostic
	a.SubmittedAt = &now
	a.ResultStatus = model.ResultStatusPublished
	if res.HasSubjective {
		// Subjective questions need manual grading before the student
		// may see a number.
		a.ResultStatus = model.ResultStatusDraft
	}

	ok, err := s.attempts.SubmitResult(ctx, a)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "store result")
	}
	if !ok {
		stored, err := s.load(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		if stored.Status == model.AttemptStatusSubmitted {
			return stored, nil
		}
		return nil, apperr.New(apperr.CodeConflict, "attempt is %s, cannot submit", stored.Status)
	}
	a.Status = model.AttemptStatusSubmitted

	if err := s.bus.ClearAnswers(ctx, a.ID.String()); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", a.ID.String()).Msg("failed to clear answer buffer")
	}
	return a, nil
}

// ResultView is the graded detail of a submitted attempt. Breakdown is
// withheld while the result is under review for its owner.
type ResultView struct {
	Attempt     *model.ExamAttempt `json:"attempt"`
	Breakdown   []QuestionScore    `json:"breakdown,omitempty"`
	UnderReview bool               `json:"under_review"`
}

// Result returns the result detail for a submitted attempt. Students
// see a draft result only as "under review"; staff always see the full
// grading detail.
func (s *AttemptService) Result(ctx context.Context, p model.Principal, attemptID uuid.UUID) (*ResultView, error) {
	a, err := s.loadVisible(ctx, p, attemptID)
	if err != nil {
		return nil, err
	}
	if a.Status != model.AttemptStatusSubmitted {
		return nil, apperr.New(apperr.CodeConflict, "attempt is %s, no result available", a.Status)
	}

	if a.ResultStatus == model.ResultStatusDraft && !p.Staff() {
		hidden := *a
		hidden.Score = 0
		hidden.TotalMarks = 0
		hidden.Percentage = 0
		hidden.Passed = false
		hidden.ManualMarks = nil
		return &ResultView{Attempt: &hidden, UnderReview: true}, nil
	}

	exam, err := s.exams.GetByID(ctx, a.ExamID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "load exam")
	}
	questions, err := s.resolver.Resolve(ctx, exam, a.Answers)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "resolve questions")
	}
	return &ResultView{
		Attempt:   a,
		Breakdown: s.scorer.Breakdown(questions, a.Answers, a.ManualMarks),
	}, nil
}

// ReviseMarks applies an admin's manual per-question marks on a
// SUBMITTED attempt, regrades it with the overrides in place and
// publishes the result.
func (s *AttemptService) ReviseMarks(ctx context.Context, actor model.Principal, attemptID uuid.UUID, req model.ReviseMarksRequest) (*model.ExamAttempt, error) {
	if !actor.Staff() {
		return nil, apperr.New(apperr.CodeForbidden, "staff role required")
	}
	a, err := s.load(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if a.Status != model.AttemptStatusSubmitted {
		return nil, apperr.New(apperr.CodeConflict, "attempt is %s, marks can only be revised after submission", a.Status)
	}
	for qid, mark := range req.Marks {
		if mark < 0 {
			return nil, apperr.New(apperr.CodeInvalidInput, "negative mark for question %s", qid)
		}
	}

	exam, err := s.exams.GetByID(ctx, a.ExamID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "load exam")
	}
	questions, err := s.resolver.Resolve(ctx, exam, a.Answers)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "resolve questions")
	}

	known := make(map[string]struct{}, len(questions))
	for i := range questions {
		known[questions[i].ID.String()] = struct{}{}
	}
	merged := make(map[string]float64, len(a.ManualMarks)+len(req.Marks))
	for qid, mark := range a.ManualMarks {
		merged[qid] = mark
	}
	for qid, mark := range req.Marks {
		if _, ok := known[qid]; !ok {
			return nil, apperr.New(apperr.CodeInvalidInput, "question %s is not part of this attempt", qid)
		}
		merged[qid] = mark
	}

	res := s.scorer.Compute(exam, questions, a.Answers, merged)
	now := time.Now()
	a.ManualMarks = merged
	a.Score = res.Score
	a.TotalMarks = res.TotalMarks
	a.Percentage = res.Percentage
	a.Passed = res.Passed
	a.ResultStatus = model.ResultStatusPublished
	a.ModifiedBy = &actor.ID
	a.ModifiedAt = &now

	ok, err := s.attempts.ReviseMarks(ctx, a)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "store mark revision")
	}
	if !ok {
		return nil, apperr.New(apperr.CodeConflict, "attempt is no longer revisable")
	}

	s.log.Info().
		Str("attempt_id", a.ID.String()).
		Int("actor_id", actor.ID).
		Int("marks", len(req.Marks)).
		Msg("marks revised")
	return a, nil
}

func (s *AttemptService) load(ctx context.Context, attemptID uuid.UUID) (*model.ExamAttempt, error) {
	a, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.New(apperr.CodeNotFound, "attempt %s not found", attemptID)
		}
		return nil, apperr.Wrap(apperr.CodeInternal, err, "load attempt")
	}
	return a, nil
}

func (s *AttemptService) loadVisible(ctx context.Context, p model.Principal, attemptID uuid.UUID) (*model.ExamAttempt, error) {
	a, err := s.load(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if a.UserID != p.ID && !p.Staff() {
		return nil, apperr.New(apperr.CodeForbidden, "attempt belongs to another user")
	}
	return a, nil
}

func (s *AttemptService) loadOwned(ctx context.Context, p model.Principal, attemptID uuid.UUID) (*model.ExamAttempt, error) {
	a, err := s.load(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if a.UserID != p.ID {
		return nil, apperr.New(apperr.CodeForbidden, "attempt belongs to another user")
	}
	return a, nil
}
