package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/examguard/examguard-backend/internal/model"
	"github.com/examguard/examguard-backend/internal/repository"
	"github.com/examguard/examguard-backend/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// In-memory store fakes mirroring the SQL guard semantics of the real
// repositories, so service tests exercise the same state machine edges.

type fakeAttemptStore struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]*model.ExamAttempt
}

func newFakeAttemptStore() *fakeAttemptStore {
	return &fakeAttemptStore{attempts: make(map[uuid.UUID]*model.ExamAttempt)}
}

func copyAttempt(a *model.ExamAttempt) *model.ExamAttempt {
	cp := *a
	cp.Warnings = append([]model.Warning(nil), a.Warnings...)
	cp.Answers = make(model.AnswerMap, len(a.Answers))
	for k, v := range a.Answers {
		cp.Answers[k] = v
	}
	if a.ManualMarks != nil {
		cp.ManualMarks = make(map[string]float64, len(a.ManualMarks))
		for k, v := range a.ManualMarks {
			cp.ManualMarks[k] = v
		}
	}
	return &cp
}

func (s *fakeAttemptStore) GetByID(_ context.Context, id uuid.UUID) (*model.ExamAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return copyAttempt(a), nil
}

func (s *fakeAttemptStore) GetOpenByExamAndUser(_ context.Context, examID uuid.UUID, userID int) (*model.ExamAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attempts {
		if a.ExamID == examID && a.UserID == userID && !a.Status.Terminal() {
			return copyAttempt(a), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *fakeAttemptStore) Create(_ context.Context, a *model.ExamAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.attempts {
		if existing.ExamID == a.ExamID && existing.UserID == a.UserID && !existing.Status.Terminal() {
			return repository.ErrNoOpenAttempt
		}
	}
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	if a.Answers == nil {
		a.Answers = model.AnswerMap{}
	}
	s.attempts[a.ID] = copyAttempt(a)
	return nil
}

func (s *fakeAttemptStore) SetVerification(_ context.Context, id uuid.UUID, rec model.VerificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	a.Verification = rec
	return nil
}

func (s *fakeAttemptStore) AppendWarning(_ context.Context, id uuid.UUID, w model.Warning) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	a.Warnings = append(a.Warnings, w)
	return nil
}

func (s *fakeAttemptStore) Activate(_ context.Context, id uuid.UUID, startedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok || a.Status != model.AttemptStatusNotStarted {
		return false, nil
	}
	a.Status = model.AttemptStatusActive
	a.StartedAt = &startedAt
	return true, nil
}

func (s *fakeAttemptStore) Terminate(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok || a.Status.Terminal() {
		return false, nil
	}
	a.Status = model.AttemptStatusTerminated
	return true, nil
}

func (s *fakeAttemptStore) MergeAnswers(_ context.Context, id uuid.UUID, answers model.AnswerMap) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok || a.Status != model.AttemptStatusActive {
		return false, nil
	}
	if a.Answers == nil {
		a.Answers = model.AnswerMap{}
	}
	for k, v := range answers {
		a.Answers[k] = v
	}
	return true, nil
}

func (s *fakeAttemptStore) SubmitResult(_ context.Context, in *model.ExamAttempt) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[in.ID]
	if !ok || a.Status != model.AttemptStatusActive {
		return false, nil
	}
	a.Status = model.AttemptStatusSubmitted
	a.ResultStatus = in.ResultStatus
	a.Answers = in.Answers
	a.Score = in.Score
	a.TotalMarks = in.TotalMarks
	a.Percentage = in.Percentage
	a.Passed = in.Passed
	a.Diagnostic = in.Diagnostic
	a.SubmittedAt = in.SubmittedAt
	return true, nil
}

func (s *fakeAttemptStore) SetRecordingStream(_ context.Context, id uuid.UUID, patch model.RecordingSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if patch.CameraVideo != "" {
		a.Recordings.CameraVideo = patch.CameraVideo
		a.Recordings.CameraRecordingID = patch.CameraRecordingID
	}
	if patch.ScreenVideo != "" {
		a.Recordings.ScreenVideo = patch.ScreenVideo
		a.Recordings.ScreenRecordingID = patch.ScreenRecordingID
	}
	if patch.RecordedAt != nil {
		a.Recordings.RecordedAt = patch.RecordedAt
	}
	return nil
}

func (s *fakeAttemptStore) SetChatBlocked(_ context.Context, id uuid.UUID, blocked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	a.ChatBlocked = blocked
	return nil
}

func (s *fakeAttemptStore) ReviseMarks(_ context.Context, in *model.ExamAttempt) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[in.ID]
	if !ok || a.Status != model.AttemptStatusSubmitted {
		return false, nil
	}
	a.ManualMarks = in.ManualMarks
	a.Score = in.Score
	a.Percentage = in.Percentage
	a.Passed = in.Passed
	a.ResultStatus = model.ResultStatusPublished
	a.ModifiedBy = in.ModifiedBy
	a.ModifiedAt = in.ModifiedAt
	return true, nil
}

func (s *fakeAttemptStore) ListActiveByExam(_ context.Context, examID uuid.UUID) ([]model.ExamAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ExamAttempt
	for _, a := range s.attempts {
		if a.ExamID == examID && a.Status == model.AttemptStatusActive {
			out = append(out, *copyAttempt(a))
		}
	}
	return out, nil
}

type fakeExamStore struct {
	exams map[uuid.UUID]*model.Exam
}

func (s *fakeExamStore) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	e, ok := s.exams[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *e
	return &cp, nil
}

type fakeQuestionStore struct {
	byGroup   map[uuid.UUID][]model.Question
	bySubject map[uuid.UUID][]model.Question
	byID      map[uuid.UUID]model.Question
}

func (s *fakeQuestionStore) FindByGroupIDs(_ context.Context, ids []uuid.UUID) ([]model.Question, error) {
	var out []model.Question
	for _, id := range ids {
		out = append(out, s.byGroup[id]...)
	}
	return out, nil
}

func (s *fakeQuestionStore) FindBySubjectIDs(_ context.Context, ids []uuid.UUID) ([]model.Question, error) {
	var out []model.Question
	for _, id := range ids {
		out = append(out, s.bySubject[id]...)
	}
	return out, nil
}

func (s *fakeQuestionStore) FindByIDs(_ context.Context, ids []uuid.UUID) ([]model.Question, error) {
	var out []model.Question
	for _, id := range ids {
		if q, ok := s.byID[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

type fakeChatStore struct {
	messages []model.ChatMessage
}

func (s *fakeChatStore) Insert(_ context.Context, m *model.ChatMessage) error {
	m.ID = uuid.New()
	m.CreatedAt = time.Now()
	s.messages = append(s.messages, *m)
	return nil
}

func (s *fakeChatStore) ListByAttempt(_ context.Context, attemptID uuid.UUID) ([]model.ChatMessage, error) {
	var out []model.ChatMessage
	for _, m := range s.messages {
		if m.AttemptID == attemptID {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeCheckStore struct {
	checks []model.PeriodicCheck
}

func (s *fakeCheckStore) ListByAttempt(_ context.Context, attemptID uuid.UUID) ([]model.PeriodicCheck, error) {
	var out []model.PeriodicCheck
	for _, c := range s.checks {
		if c.AttemptID == attemptID {
			out = append(out, c)
		}
	}
	return out, nil
}

type enqueued struct {
	queue   string
	payload any
}

type published struct {
	channel string
	payload any
}

type fakeBus struct {
	mu         sync.Mutex
	enqueues   []enqueued
	publishes  []published
	starts     map[string]time.Time
	answers    map[string]map[string]string
	enqueueErr error
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		starts:  make(map[string]time.Time),
		answers: make(map[string]map[string]string),
	}
}

func (b *fakeBus) Enqueue(_ context.Context, queue string, v any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.enqueueErr != nil {
		return b.enqueueErr
	}
	b.enqueues = append(b.enqueues, enqueued{queue: queue, payload: v})
	return nil
}

func (b *fakeBus) Publish(_ context.Context, channel string, v any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publishes = append(b.publishes, published{channel: channel, payload: v})
	return nil
}

func (b *fakeBus) CacheStart(_ context.Context, attemptID string, t time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.starts[attemptID] = t
	return nil
}

func (b *fakeBus) LookupStart(_ context.Context, attemptID string) (time.Time, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.starts[attemptID]
	return t, ok, nil
}

func (b *fakeBus) CacheAnswer(_ context.Context, attemptID, questionID, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.answers[attemptID] == nil {
		b.answers[attemptID] = make(map[string]string)
	}
	b.answers[attemptID][questionID] = value
	return nil
}

func (b *fakeBus) AnsweredCount(_ context.Context, attemptID string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.answers[attemptID])), nil
}

func (b *fakeBus) ClearAnswers(_ context.Context, attemptID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.answers, attemptID)
	return nil
}

type fakeEvidenceStore struct {
	saves int
	err   error
}

func (s *fakeEvidenceStore) Save(_ context.Context, _ io.Reader, _ int64, kind storage.EvidenceKind, userID int, examID string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.saves++
	return fmt.Sprintf("evidence/%s/%s-%d.jpg", examID, kind, userID), nil
}

type fakeMediaStore struct {
	failKinds map[storage.MediaKind]error
}

func (s *fakeMediaStore) Upload(_ context.Context, _ io.Reader, _ int64, folder string, kind storage.MediaKind, filename string) (storage.UploadResult, error) {
	if err := s.failKinds[kind]; err != nil {
		return storage.UploadResult{}, err
	}
	return storage.UploadResult{Success: true, URL: fmt.Sprintf("recordings/%s/%s/%s", folder, kind, filename)}, nil
}
