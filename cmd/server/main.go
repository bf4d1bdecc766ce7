package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/examguard/examguard-backend/internal/bus"
	"github.com/examguard/examguard-backend/internal/config"
	"github.com/examguard/examguard-backend/internal/database"
	"github.com/examguard/examguard-backend/internal/handler"
	"github.com/examguard/examguard-backend/internal/logger"
	"github.com/examguard/examguard-backend/internal/repository"
	"github.com/examguard/examguard-backend/internal/router"
	"github.com/examguard/examguard-backend/internal/service"
	"github.com/examguard/examguard-backend/internal/storage"
	"github.com/examguard/examguard-backend/internal/validator"
	"github.com/examguard/examguard-backend/internal/worker"
	"github.com/rs/zerolog"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("storage", cfg.StorageBackend).
		Msg("Starting ExamGuard Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	eventBus := bus.New(rdb)

	// ─── Select Storage Backend ────────────────────────────────────────
	var evidenceStore storage.EvidenceStore
	var mediaStore storage.MediaStore
	if cfg.StorageBackend == "qiniu" {
		qiniu := storage.NewQiniuStore(cfg)
		evidenceStore, mediaStore = qiniu, qiniu
	} else {
		local := storage.NewLocalStore(cfg)
		evidenceStore, mediaStore = local, local
	}

	// ─── Initialize Repositories ───────────────────────────────────────
	attemptRepo := repository.NewAttemptRepository(pool)
	examRepo := repository.NewExamRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	chatRepo := repository.NewChatRepository(pool)
	checkRepo := repository.NewCheckRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	scoringService := service.NewScoringService()
	questionResolver := service.NewQuestionResolver(questionRepo, log)
	attemptService := service.NewAttemptService(cfg, attemptRepo, examRepo, questionResolver, scoringService, eventBus, log)
	verificationService := service.NewVerificationService(cfg, attemptRepo, examRepo, evidenceStore, eventBus, log)
	proctorService := service.NewProctorService(cfg, attemptRepo, examRepo, chatRepo, checkRepo, mediaStore, eventBus, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Verification: handler.NewVerificationHandler(verificationService, log),
		Attempt:      handler.NewAttemptHandler(attemptService, log),
		Proctor:      handler.NewProctorHandler(proctorService, attemptService, log),
		WS:           handler.NewWSHandler(eventBus, proctorService, attemptService, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	answerWorker := worker.NewAnswerWorker(pool, rdb, log)
	proctorEventWorker := worker.NewProctorEventWorker(pool, rdb, log)

	go answerWorker.Start(workerCtx)
	go proctorEventWorker.Start(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
