package handler

import (
	"net/http"

	"github.com/examguard/examguard-backend/internal/middleware"
	"github.com/examguard/examguard-backend/internal/model"
	"github.com/examguard/examguard-backend/internal/response"
	"github.com/examguard/examguard-backend/internal/service"
	"github.com/examguard/examguard-backend/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ProctorHandler exposes recording upload, chat and admin proctoring
// interventions.
type ProctorHandler struct {
	proctor  *service.ProctorService
	attempts *service.AttemptService
	log      zerolog.Logger
}

// NewProctorHandler creates a ProctorHandler.
func NewProctorHandler(proctor *service.ProctorService, attempts *service.AttemptService, log zerolog.Logger) *ProctorHandler {
	return &ProctorHandler{
		proctor:  proctor,
		attempts: attempts,
		log:      log.With().Str("component", "proctor_handler").Logger(),
	}
}

// SaveRecording godoc
// POST /api/v1/attempts/:attempt_id/recordings
// Multipart form: session_token, camera (file), camera_recording_id,
// screen (file), screen_recording_id. Either stream may be absent.
func (h *ProctorHandler) SaveRecording(c *gin.Context) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	in := service.SaveRecordingInput{SessionToken: c.PostForm("session_token")}

	if header, err := c.FormFile("camera"); err == nil {
		f, err := header.Open()
		if err != nil {
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
			return
		}
		defer f.Close()
		in.Camera = &service.RecordingUpload{
			Reader:      f,
			Size:        header.Size,
			Filename:    header.Filename,
			RecordingID: c.PostForm("camera_recording_id"),
		}
	}
	if header, err := c.FormFile("screen"); err == nil {
		f, err := header.Open()
		if err != nil {
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
			return
		}
		defer f.Close()
		in.Screen = &service.RecordingUpload{
			Reader:      f,
			Size:        header.Size,
			Filename:    header.Filename,
			RecordingID: c.PostForm("screen_recording_id"),
		}
	}

	statuses, err := h.proctor.SaveRecording(c.Request.Context(), p, attemptID, in)
	if err != nil {
		response.FailFromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, statuses)
}

// SendMessage godoc
// POST /api/v1/attempts/:attempt_id/chat
func (h *ProctorHandler) SendMessage(c *gin.Context) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SendMessageRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	msg, err := h.proctor.SendMessage(c.Request.Context(), p, attemptID, req.Body)
	if err != nil {
		response.FailFromError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, msg)
}

// ListMessages godoc
// GET /api/v1/attempts/:attempt_id/chat
func (h *ProctorHandler) ListMessages(c *gin.Context) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	msgs, err := h.proctor.ListMessages(c.Request.Context(), p, attemptID)
	if err != nil {
		response.FailFromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, msgs)
}

// ListChecks godoc
// GET /api/v1/admin/attempts/:attempt_id/checks
func (h *ProctorHandler) ListChecks(c *gin.Context) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	checks, err := h.proctor.ListChecks(c.Request.Context(), p, attemptID)
	if err != nil {
		response.FailFromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, checks)
}

// SetChatBlocked godoc
// PUT /api/v1/admin/attempts/:attempt_id/chat-blocked
func (h *ProctorHandler) SetChatBlocked(c *gin.Context) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SetChatBlockedRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.proctor.SetChatBlocked(c.Request.Context(), p, attemptID, *req.Blocked); err != nil {
		response.FailFromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"blocked": *req.Blocked})
}

// ForceSubmit godoc
// POST /api/v1/admin/attempts/:attempt_id/force-submit
func (h *ProctorHandler) ForceSubmit(c *gin.Context) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	attempt, err := h.attempts.ForceSubmit(c.Request.Context(), p, attemptID)
	if err != nil {
		response.FailFromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, attempt)
}

// ReviseMarks godoc
// PUT /api/v1/admin/attempts/:attempt_id/marks
func (h *ProctorHandler) ReviseMarks(c *gin.Context) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.ReviseMarksRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	attempt, err := h.attempts.ReviseMarks(c.Request.Context(), p, attemptID, req)
	if err != nil {
		response.FailFromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, attempt)
}

// LiveRoster godoc
// GET /api/v1/admin/exams/:exam_id/roster
func (h *ProctorHandler) LiveRoster(c *gin.Context) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	roster, err := h.proctor.LiveRoster(c.Request.Context(), p, examID)
	if err != nil {
		response.FailFromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, roster)
}
