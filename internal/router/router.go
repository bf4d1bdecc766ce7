package router

import (
	"net/http"
	"time"

	"github.com/examguard/examguard-backend/internal/config"
	"github.com/examguard/examguard-backend/internal/handler"
	"github.com/examguard/examguard-backend/internal/middleware"
	"github.com/examguard/examguard-backend/internal/response"
	"github.com/examguard/examguard-backend/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Verification *handler.VerificationHandler
	Attempt      *handler.AttemptHandler
	Proctor      *handler.ProctorHandler
	WS           *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally.
	router.Use(middleware.Brotli())

	// Serve locally stored evidence and recordings with aggressive
	// caching; artifacts are written once and never change.
	uploadsGroup := router.Group("/uploads")
	uploadsGroup.Use(middleware.RequireStaff(authService), middleware.CacheControl(31536000))
	{
		uploadsGroup.Static("/", "./uploads")
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for the upload-heavy endpoints (30 per minute per IP).
	uploadLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Exam Entry (Authenticated) ─────────────────────────────────
	examAPI := router.Group("/api/v1/exams")
	examAPI.Use(middleware.RequireAuth(authService))
	{
		examAPI.POST("/:exam_id/verification", uploadLimiter.Middleware(), handlers.Verification.SubmitVerification)
		examAPI.POST("/:exam_id/attempts", handlers.Attempt.Start)
	}

	// ─── 2. Attempt Session (Authenticated + Session Token in Body) ────
	attemptAPI := router.Group("/api/v1/attempts")
	attemptAPI.Use(middleware.RequireAuth(authService))
	{
		attemptAPI.GET("/:attempt_id", handlers.Attempt.Get)
		attemptAPI.PUT("/:attempt_id/answers", handlers.Attempt.SaveAnswers)
		attemptAPI.POST("/:attempt_id/submit", handlers.Attempt.Submit)
		attemptAPI.GET("/:attempt_id/result", handlers.Attempt.Result)

		attemptAPI.POST("/:attempt_id/checks", handlers.Verification.RecordPeriodicCheck)
		attemptAPI.POST("/:attempt_id/recordings", uploadLimiter.Middleware(), handlers.Proctor.SaveRecording)
		attemptAPI.POST("/:attempt_id/chat", handlers.Proctor.SendMessage)
		attemptAPI.GET("/:attempt_id/chat", handlers.Proctor.ListMessages)
	}

	// ─── 3. WebSocket Group (WS Auth via Query Token) ──────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireWSAuth(authService))
	{
		ws.GET("/attempts/:attempt_id/chat", handlers.WS.AttemptChatStream)
	}

	// ─── 4. Admin Group (Staff Only) ───────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireStaff(authService))
	{
		adminAPI.GET("/exams/:exam_id/roster", handlers.Proctor.LiveRoster)
		adminAPI.GET("/attempts/:attempt_id/checks", handlers.Proctor.ListChecks)
		adminAPI.PUT("/attempts/:attempt_id/chat-blocked", handlers.Proctor.SetChatBlocked)
		adminAPI.POST("/attempts/:attempt_id/force-submit", handlers.Proctor.ForceSubmit)
		adminAPI.PUT("/attempts/:attempt_id/marks", handlers.Proctor.ReviseMarks)
	}

	return router
}
