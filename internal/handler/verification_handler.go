package handler

import (
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/examguard/examguard-backend/internal/middleware"
	"github.com/examguard/examguard-backend/internal/model"
	"github.com/examguard/examguard-backend/internal/response"
	"github.com/examguard/examguard-backend/internal/service"
	"github.com/examguard/examguard-backend/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// VerificationHandler exposes the identity verification gate.
type VerificationHandler struct {
	verification *service.VerificationService
	log          zerolog.Logger
}

// NewVerificationHandler creates a VerificationHandler.
func NewVerificationHandler(verification *service.VerificationService, log zerolog.Logger) *VerificationHandler {
	return &VerificationHandler{
		verification: verification,
		log:          log.With().Str("component", "verification_handler").Logger(),
	}
}

// SubmitVerification godoc
// POST /api/v1/exams/:exam_id/verification
// Multipart form: face (file), id_capture (file), user_id, is_authorized, reason.
func (h *VerificationHandler) SubmitVerification(c *gin.Context) {
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

	userID := p.ID
	if raw := c.PostForm("user_id"); raw != "" {
		userID, err = strconv.Atoi(raw)
		if err != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
				map[string]string{"user_id": "must be an integer"})
			return
		}
	}

	isAuthorized, err := strconv.ParseBool(c.DefaultPostForm("is_authorized", "true"))
	if err != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
			map[string]string{"is_authorized": "must be a boolean"})
		return
	}

	face, faceFile, ok := openFormFile(c, "face")
	if !ok {
		return
	}
	defer face.Close()
	idCap, idFile, ok := openFormFile(c, "id_capture")
	if !ok {
		return
	}
	defer idCap.Close()

	in := service.VerificationInput{
		UserID:       userID,
		IsAuthorized: isAuthorized,
		Reason:       c.PostForm("reason"),
		Face:         &service.Capture{Reader: face, Size: faceFile.Size},
		IDCapture:    &service.Capture{Reader: idCap, Size: idFile.Size},
	}

	attempt, err := h.verification.SubmitVerification(c.Request.Context(), p, examID, in)
	if err != nil {
		response.FailFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"attempt":       attempt,
		"session_token": attemptSessionToken(attempt),
	})
}

// RecordPeriodicCheck godoc
// POST /api/v1/attempts/:attempt_id/checks
func (h *VerificationHandler) RecordPeriodicCheck(c *gin.Context) {
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

	var req model.PeriodicCheckRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.verification.RecordPeriodicCheck(c.Request.Context(), p, attemptID, req); err != nil {
		response.FailFromError(c, err)
		return
	}
	response.Success(c, http.StatusAccepted, gin.H{"queued": true})
}

// openFormFile opens one multipart file field, failing the request with
// a field error when it is missing.
func openFormFile(c *gin.Context, field string) (multipart.File, *multipart.FileHeader, bool) {
	header, err := c.FormFile(field)
	if err != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
			map[string]string{field: "file is required"})
		return nil, nil, false
	}
	f, err := header.Open()
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return nil, nil, false
	}
	return f, header, true
}

// attemptSessionToken exposes the token only on gate/start responses.
// The model field is excluded from JSON everywhere else.
func attemptSessionToken(a *model.ExamAttempt) string {
	if a.Status.Terminal() {
		return ""
	}
	return a.SessionToken
}
