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

// AttemptHandler exposes the attempt session lifecycle.
type AttemptHandler struct {
	attempts *service.AttemptService
	log      zerolog.Logger
}

// NewAttemptHandler creates an AttemptHandler.
func NewAttemptHandler(attempts *service.AttemptService, log zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		attempts: attempts,
		log:      log.With().Str("component", "attempt_handler").Logger(),
	}
}

// Start godoc
// POST /api/v1/exams/:exam_id/attempts
func (h *AttemptHandler) Start(c *gin.Context) {
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

	attempt, err := h.attempts.Start(c.Request.Context(), p, examID)
	if err != nil {
		response.FailFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"attempt":       attempt,
		"session_token": attemptSessionToken(attempt),
	})
}

// Get godoc
// GET /api/v1/attempts/:attempt_id
func (h *AttemptHandler) Get(c *gin.Context) {
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

	attempt, err := h.attempts.Get(c.Request.Context(), p, attemptID)
	if err != nil {
		response.FailFromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, attempt)
}

// SaveAnswers godoc
// PUT /api/v1/attempts/:attempt_id/answers
func (h *AttemptHandler) SaveAnswers(c *gin.Context) {
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

	var req model.SaveAnswersRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.attempts.SaveAnswers(c.Request.Context(), p, attemptID, req); err != nil {
		response.FailFromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"saved": len(req.Answers)})
}

// Submit godoc
// POST /api/v1/attempts/:attempt_id/submit
func (h *AttemptHandler) Submit(c *gin.Context) {
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

	var req model.SubmitRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	attempt, err := h.attempts.Submit(c.Request.Context(), p, attemptID, req)
	if err != nil {
		response.FailFromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, attempt)
}

// Result godoc
// GET /api/v1/attempts/:attempt_id/result
func (h *AttemptHandler) Result(c *gin.Context) {
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

	view, err := h.attempts.Result(c.Request.Context(), p, attemptID)
	if err != nil {
		response.FailFromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}
