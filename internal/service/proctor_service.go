package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/examguard/examguard-backend/internal/apperr"
	"github.com/examguard/examguard-backend/internal/config"
	"github.com/examguard/examguard-backend/internal/model"
	"github.com/examguard/examguard-backend/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// RecordingUpload is one recording stream payload.
type RecordingUpload struct {
	Reader      io.Reader
	Size        int64
	Filename    string
	RecordingID string
}

// SaveRecordingInput carries the camera and/or screen streams for one
// upload call. Either stream may be absent.
type SaveRecordingInput struct {
	SessionToken string
	Camera       *RecordingUpload
	Screen       *RecordingUpload
}

// StreamStatus reports one stream's upload outcome.
type StreamStatus struct {
	Success bool   `json:"success"`
	URL     string `json:"url,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RosterEntry is one live attempt in the proctor's exam roster.
type RosterEntry struct {
	AttemptID        uuid.UUID  `json:"attempt_id"`
	UserID           int        `json:"user_id"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	AnsweredCount    int64      `json:"answered_count"`
	WarningCount     int        `json:"warning_count"`
	ChatBlocked      bool       `json:"chat_blocked"`
	RemainingSeconds int64      `json:"remaining_seconds"`
}

// ProctorService correlates recordings, chat and admin interventions
// with attempts.
type ProctorService struct {
	cfg      *config.Config
	attempts AttemptStore
	exams    ExamStore
	chats    ChatStore
	checks   CheckStore
	media    storage.MediaStore
	bus      EventBus
	log      zerolog.Logger
}

// NewProctorService creates a ProctorService.
func NewProctorService(
	cfg *config.Config,
	attempts AttemptStore,
	exams ExamStore,
	chats ChatStore,
	checks CheckStore,
	media storage.MediaStore,
	bus EventBus,
	log zerolog.Logger,
) *ProctorService {
	return &ProctorService{
		cfg:      cfg,
		attempts: attempts,
		exams:    exams,
		chats:    chats,
		checks:   checks,
		media:    media,
		bus:      bus,
		log:      log,
	}
}

// SaveRecording uploads the supplied streams concurrently. Each stream
// reports its own outcome so a camera failure never loses the screen
// capture, and vice versa. Late uploads after submission are accepted.
func (s *ProctorService) SaveRecording(ctx context.Context, p model.Principal, attemptID uuid.UUID, in SaveRecordingInput) (map[string]StreamStatus, error) {
	a, err := s.loadVisible(ctx, p, attemptID)
	if err != nil {
		return nil, err
	}
	if a.UserID == p.ID && !tokenMatches(a.SessionToken, in.SessionToken) {
		return nil, apperr.New(apperr.CodeSessionMismatch, "session token mismatch")
	}
	if in.Camera == nil && in.Screen == nil {
		return nil, apperr.New(apperr.CodeInvalidInput, "no recording streams in payload")
	}

	type stream struct {
		name   string
		kind   storage.MediaKind
		upload *RecordingUpload
	}
	streams := make([]stream, 0, 2)
	if in.Camera != nil {
		streams = append(streams, stream{"camera", storage.MediaCamera, in.Camera})
	}
	if in.Screen != nil {
		streams = append(streams, stream{"screen", storage.MediaScreen, in.Screen})
	}

	statuses := make(map[string]StreamStatus, len(streams))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, st := range streams {
		wg.Add(1)
		go func(st stream) {
			defer wg.Done()
			status := s.uploadStream(ctx, a, st.kind, st.upload)
			mu.Lock()
			statuses[st.name] = status
			mu.Unlock()
		}(st)
	}
	wg.Wait()

	return statuses, nil
}

func (s *ProctorService) uploadStream(ctx context.Context, a *model.ExamAttempt, kind storage.MediaKind, up *RecordingUpload) StreamStatus {
	upCtx, cancel := context.WithTimeout(ctx, s.cfg.UploadTimeout)
	defer cancel()

	res, err := s.media.Upload(upCtx, up.Reader, up.Size, a.ID.String(), kind, up.Filename)
	if err != nil {
		s.log.Error().Err(err).
			Str("attempt_id", a.ID.String()).
			Str("stream", string(kind)).
			Msg("recording upload failed")
		return StreamStatus{Error: err.Error()}
	}

	now := time.Now()
	patch := model.RecordingSet{RecordedAt: &now}
	switch kind {
	case storage.MediaCamera:
		patch.CameraVideo = res.URL
		patch.CameraRecordingID = up.RecordingID
	case storage.MediaScreen:
		patch.ScreenVideo = res.URL
		patch.ScreenRecordingID = up.RecordingID
	}
	if err := s.attempts.SetRecordingStream(ctx, a.ID, patch); err != nil {
		s.log.Error().Err(err).
			Str("attempt_id", a.ID.String()).
			Str("stream", string(kind)).
			Msg("failed to record stream locator")
		return StreamStatus{Error: "stored but not recorded"}
	}
	return StreamStatus{Success: true, URL: res.URL}
}

// SendMessage posts a proctoring chat message. A blocked attempt
// rejects student sends but admin sends always pass.
func (s *ProctorService) SendMessage(ctx context.Context, p model.Principal, attemptID uuid.UUID, body string) (*model.ChatMessage, error) {
	a, err := s.loadVisible(ctx, p, attemptID)
	if err != nil {
		return nil, err
	}

	sender := model.ChatSenderStudent
	if p.Staff() {
		sender = model.ChatSenderAdmin
	}
	if sender == model.ChatSenderStudent && a.ChatBlocked {
		return nil, apperr.New(apperr.CodeChatBlocked, "chat is blocked for this attempt")
	}

	msg := &model.ChatMessage{
		AttemptID: a.ID,
		ExamID:    a.ExamID,
		Sender:    sender,
		SenderID:  p.ID,
		Body:      body,
	}
	if err := s.chats.Insert(ctx, msg); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "store chat message")
	}

	if err := s.bus.Publish(ctx, config.CacheKey.AttemptChatChannel(a.ID.String()), msg); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", a.ID.String()).Msg("failed to publish chat message")
	}
	return msg, nil
}

// ListMessages returns the attempt's chat history, oldest first.
func (s *ProctorService) ListMessages(ctx context.Context, p model.Principal, attemptID uuid.UUID) ([]model.ChatMessage, error) {
	a, err := s.loadVisible(ctx, p, attemptID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.chats.ListByAttempt(ctx, a.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "load chat history")
	}
	return msgs, nil
}

// ListChecks returns the attempt's periodic re-verification log for
// staff review.
func (s *ProctorService) ListChecks(ctx context.Context, p model.Principal, attemptID uuid.UUID) ([]model.PeriodicCheck, error) {
	if !p.Staff() {
		return nil, apperr.New(apperr.CodeForbidden, "staff role required")
	}
	if _, err := s.load(ctx, attemptID); err != nil {
		return nil, err
	}
	checks, err := s.checks.ListByAttempt(ctx, attemptID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "load periodic checks")
	}
	return checks, nil
}

// SetChatBlocked toggles the chat block flag on an attempt. The change
// takes effect on the very next send.
func (s *ProctorService) SetChatBlocked(ctx context.Context, p model.Principal, attemptID uuid.UUID, blocked bool) error {
	if !p.Staff() {
		return apperr.New(apperr.CodeForbidden, "staff role required")
	}
	a, err := s.load(ctx, attemptID)
	if err != nil {
		return err
	}
	if err := s.attempts.SetChatBlocked(ctx, a.ID, blocked); err != nil {
		return apperr.Wrap(apperr.CodeInternal, err, "store chat block flag")
	}

	event := map[string]any{"type": "chat_blocked", "blocked": blocked}
	if err := s.bus.Publish(ctx, config.CacheKey.AttemptChatChannel(a.ID.String()), event); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", a.ID.String()).Msg("failed to publish chat block event")
	}

	s.log.Info().
		Str("attempt_id", a.ID.String()).
		Int("actor_id", p.ID).
		Bool("blocked", blocked).
		Msg("chat block updated")
	return nil
}

// LiveRoster returns every ACTIVE attempt for an exam with its live
// progress, for the proctor dashboard. Progress counters come from the
// redis buffer when available and fall back to persisted state.
func (s *ProctorService) LiveRoster(ctx context.Context, p model.Principal, examID uuid.UUID) ([]RosterEntry, error) {
	if !p.Staff() {
		return nil, apperr.New(apperr.CodeForbidden, "staff role required")
	}
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.New(apperr.CodeNotFound, "exam %s not found", examID)
		}
		return nil, apperr.Wrap(apperr.CodeInternal, err, "load exam")
	}

	attempts, err := s.attempts.ListActiveByExam(ctx, exam.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "list active attempts")
	}

	duration := time.Duration(exam.DurationMinutes) * time.Minute
	now := time.Now()
	roster := make([]RosterEntry, 0, len(attempts))
	for i := range attempts {
		a := &attempts[i]
		entry := RosterEntry{
			AttemptID:     a.ID,
			UserID:        a.UserID,
			StartedAt:     a.StartedAt,
			AnsweredCount: int64(a.Answers.Answered()),
			WarningCount:  len(a.Warnings),
			ChatBlocked:   a.ChatBlocked,
		}

		if n, err := s.bus.AnsweredCount(ctx, a.ID.String()); err == nil && n > entry.AnsweredCount {
			entry.AnsweredCount = n
		}

		started := a.StartedAt
		if cached, ok, err := s.bus.LookupStart(ctx, a.ID.String()); err == nil && ok {
			started = &cached
		}
		if started != nil && duration > 0 {
			remaining := duration - now.Sub(*started)
			if remaining > 0 {
				entry.RemainingSeconds = int64(remaining.Seconds())
			}
		}
		roster = append(roster, entry)
	}
	return roster, nil
}

func (s *ProctorService) load(ctx context.Context, attemptID uuid.UUID) (*model.ExamAttempt, error) {
	a, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.New(apperr.CodeNotFound, "attempt %s not found", attemptID)
		}
		return nil, apperr.Wrap(apperr.CodeInternal, err, "load attempt")
	}
	return a, nil
}

func (s *ProctorService) loadVisible(ctx context.Context, p model.Principal, attemptID uuid.UUID) (*model.ExamAttempt, error) {
	a, err := s.load(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if a.UserID != p.ID && !p.Staff() {
		return nil, apperr.New(apperr.CodeForbidden, "attempt belongs to another user")
	}
	return a, nil
}
