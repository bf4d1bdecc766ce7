package service

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/examguard/examguard-backend/internal/apperr"
	"github.com/examguard/examguard-backend/internal/config"
	"github.com/examguard/examguard-backend/internal/model"
	"github.com/examguard/examguard-backend/internal/repository"
	"github.com/examguard/examguard-backend/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// Capture is one uploaded evidence image.
type Capture struct {
	Reader io.Reader
	Size   int64
}

// VerificationInput carries the pre-exam identity evidence for one user.
type VerificationInput struct {
	UserID       int
	IsAuthorized bool
	Reason       string
	Face         *Capture
	IDCapture    *Capture
}

// VerificationService gates attempt activation on identity evidence and
// records in-exam re-checks.
type VerificationService struct {
	cfg      *config.Config
	attempts AttemptStore
	exams    ExamStore
	evidence storage.EvidenceStore
	bus      EventBus
	log      zerolog.Logger
}

// NewVerificationService creates a VerificationService.
func NewVerificationService(
	cfg *config.Config,
	attempts AttemptStore,
	exams ExamStore,
	evidence storage.EvidenceStore,
	bus EventBus,
	log zerolog.Logger,
) *VerificationService {
	return &VerificationService{
		cfg:      cfg,
		attempts: attempts,
		exams:    exams,
		evidence: evidence,
		bus:      bus,
		log:      log,
	}
}

// SubmitVerification persists the evidence captures and creates or
// updates the caller's attempt. An unauthorized verdict terminates the
// attempt with a warning; that transition is never reversed here.
func (s *VerificationService) SubmitVerification(ctx context.Context, p model.Principal, examID uuid.UUID, in VerificationInput) (*model.ExamAttempt, error) {
	if in.Face == nil || in.IDCapture == nil {
		return nil, apperr.New(apperr.CodeInvalidInput, "face and id captures are required")
	}
	if p.ID != in.UserID && !p.Staff() {
		return nil, apperr.New(apperr.CodeForbidden, "cannot verify another user")
	}

	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.New(apperr.CodeNotFound, "exam %s not found", examID)
		}
		return nil, apperr.Wrap(apperr.CodeInternal, err, "load exam")
	}

	rec, err := s.saveEvidence(ctx, exam.ID, in)
	if err != nil {
		return nil, err
	}

	open, err := s.attempts.GetOpenByExamAndUser(ctx, exam.ID, in.UserID)
	if err == nil {
		return s.applyToOpen(ctx, open, rec, in)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "load open attempt")
	}

	return s.createFromVerification(ctx, exam.ID, rec, in)
}

// saveEvidence persists both captures through the evidence store, each
// bounded by the upload timeout so a slow upstream cannot stall the gate.
func (s *VerificationService) saveEvidence(ctx context.Context, examID uuid.UUID, in VerificationInput) (model.VerificationRecord, error) {
	var rec model.VerificationRecord

	saveCtx, cancel := context.WithTimeout(ctx, s.cfg.UploadTimeout)
	defer cancel()

	facePath, err := s.evidence.Save(saveCtx, in.Face.Reader, in.Face.Size, storage.EvidenceFace, in.UserID, examID.String())
	if err != nil {
		return rec, storeError(err, "save face capture")
	}
	idPath, err := s.evidence.Save(saveCtx, in.IDCapture.Reader, in.IDCapture.Size, storage.EvidenceID, in.UserID, examID.String())
	if err != nil {
		return rec, storeError(err, "save id capture")
	}

	rec.FaceCapturePath = facePath
	rec.IDCapturePath = idPath
	return rec, nil
}

func (s *VerificationService) applyToOpen(ctx context.Context, a *model.ExamAttempt, rec model.VerificationRecord, in VerificationInput) (*model.ExamAttempt, error) {
	if err := s.attempts.SetVerification(ctx, a.ID, rec); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "store verification")
	}
	a.Verification = rec

	if !in.IsAuthorized {
		return s.terminate(ctx, a, in.Reason)
	}

	if a.Status == model.AttemptStatusNotStarted {
		now := time.Now()
		ok, err := s.attempts.Activate(ctx, a.ID, now)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeInternal, err, "activate attempt")
		}
		if ok {
			a.Status = model.AttemptStatusActive
			a.StartedAt = &now
			s.cacheStart(ctx, a)
		}
	}
	return a, nil
}

func (s *VerificationService) createFromVerification(ctx context.Context, examID uuid.UUID, rec model.VerificationRecord, in VerificationInput) (*model.ExamAttempt, error) {
	now := time.Now()
	a := &model.ExamAttempt{
		ExamID:       examID,
		UserID:       in.UserID,
		SessionToken: newSessionToken(s.cfg.SessionSecret, examID, in.UserID),
		Status:       model.AttemptStatusActive,
		ResultStatus: model.ResultStatusNone,
		Verification: rec,
		StartedAt:    &now,
	}
	if !in.IsAuthorized {
		a.Status = model.AttemptStatusTerminated
		a.StartedAt = nil
		a.AppendWarning(rejectionMessage(in.Reason), model.WarningTypeAutomated)
	}

	err := s.attempts.Create(ctx, a)
	if errors.Is(err, repository.ErrNoOpenAttempt) {
		// Verification raced an attempt creation; apply to the winner.
		open, err := s.attempts.GetOpenByExamAndUser(ctx, a.ExamID, in.UserID)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeInternal, err, "load racing attempt")
		}
		return s.applyToOpen(ctx, open, rec, in)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "create attempt")
	}

	if a.Status == model.AttemptStatusActive {
		s.cacheStart(ctx, a)
	}
	s.log.Info().
		Str("attempt_id", a.ID.String()).
		Str("exam_id", examID.String()).
		Int("user_id", in.UserID).
		Bool("authorized", in.IsAuthorized).
		Msg("verification processed")
	return a, nil
}

func (s *VerificationService) terminate(ctx context.Context, a *model.ExamAttempt, reason string) (*model.ExamAttempt, error) {
	warn := model.Warning{
		Message:   rejectionMessage(reason),
		Type:      model.WarningTypeAutomated,
		Timestamp: time.Now(),
	}
	if err := s.attempts.AppendWarning(ctx, a.ID, warn); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "append warning")
	}
	if _, err := s.attempts.Terminate(ctx, a.ID); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "terminate attempt")
	}
	a.Status = model.AttemptStatusTerminated
	a.Warnings = append(a.Warnings, warn)

	s.log.Warn().
		Str("attempt_id", a.ID.String()).
		Str("reason", reason).
		Msg("attempt terminated by verification")
	return a, nil
}

// RecordPeriodicCheck appends an in-exam re-verification sample to the
// attempt's check log via the proctor event queue. Checks never change
// the attempt status; a flagged check additionally appends a warning.
func (s *VerificationService) RecordPeriodicCheck(ctx context.Context, p model.Principal, attemptID uuid.UUID, req model.PeriodicCheckRequest) error {
	a, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.New(apperr.CodeNotFound, "attempt %s not found", attemptID)
		}
		return apperr.Wrap(apperr.CodeInternal, err, "load attempt")
	}
	if a.UserID != p.ID && !p.Staff() {
		return apperr.New(apperr.CodeForbidden, "attempt belongs to another user")
	}
	if !tokenMatches(a.SessionToken, req.SessionToken) {
		return apperr.New(apperr.CodeSessionMismatch, "session token mismatch")
	}

	check := model.PeriodicCheck{
		AttemptID:   a.ID,
		CapturePath: req.CapturePath,
		Warning:     req.Warning,
		Note:        req.Note,
		CheckedAt:   time.Now(),
	}
	item := model.ProctorEventQueueItem{Check: check}
	if err := s.bus.Enqueue(ctx, config.WorkerKey.PersistProctorEventsQueue, item); err != nil {
		return apperr.Wrap(apperr.CodeUpstreamFailure, err, "enqueue periodic check")
	}
	return nil
}

func (s *VerificationService) cacheStart(ctx context.Context, a *model.ExamAttempt) {
	if a.StartedAt == nil {
		return
	}
	if err := s.bus.CacheStart(ctx, a.ID.String(), *a.StartedAt); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", a.ID.String()).Msg("failed to cache start time")
	}
}

func rejectionMessage(reason string) string {
	if reason == "" {
		return "identity verification rejected"
	}
	return "identity verification rejected: " + reason
}

// storeError maps storage failures onto the service error taxonomy.
func storeError(err error, msg string) error {
	if errors.Is(err, storage.ErrFileTooLarge) {
		return apperr.Wrap(apperr.CodeInvalidInput, err, "%s", msg)
	}
	return apperr.Wrap(apperr.CodeUpstreamFailure, err, "%s", msg)
}
