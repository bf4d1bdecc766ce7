package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/examguard/examguard-backend/internal/config"
	"github.com/examguard/examguard-backend/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// ProctorEventWorker consumes persist_proctor_events_queue and persists
// periodic re-verification checks in batches. Flagged checks also get a
// warning appended to their attempt.
type ProctorEventWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewProctorEventWorker creates a new ProctorEventWorker.
func NewProctorEventWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ProctorEventWorker {
	return &ProctorEventWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "proctor_event_worker").Logger(),
	}
}

func (w *ProctorEventWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	buffer := make([]*model.PeriodicCheck, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Check flush conditions (time or size)
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0] // Clear buffer, keep capacity
				lastFlushTime = time.Now()
			}
		}

		// 2. Check context (graceful shutdown)
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. Fetch from Redis
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistProctorEventsQueue).Result()
		if err != nil {
			if err == redis.Nil {
				continue // Queue empty, loop back to check flush timer
			}
			if ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		if len(result) < 2 {
			continue
		}

		var item model.ProctorEventQueueItem
		if err := json.Unmarshal([]byte(result[1]), &item); err != nil {
			// Malformed JSON cannot be retried. Log and discard.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}

		buffer = append(buffer, &item.Check)
	}
}

// flushSafe attempts bulk insert, then row-by-row fallback, then requeue.
func (w *ProctorEventWorker) flushSafe(ctx context.Context, batch []*model.PeriodicCheck) {
	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
		return
	}
	w.appendWarnings(ctx, batch)
}

func (w *ProctorEventWorker) bulkInsert(ctx context.Context, batch []*model.PeriodicCheck) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, c := range batch {
		rows = append(rows, []interface{}{
			c.AttemptID, c.CapturePath, c.Warning, c.Note, c.CheckedAt,
		})
	}

	_, err := w.pool.CopyFrom(
		ctx,
		pgx.Identifier{"verification_checks"},
		[]string{"attempt_id", "capture_path", "warning", "note", "checked_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func (w *ProctorEventWorker) fallbackInsert(ctx context.Context, batch []*model.PeriodicCheck) {
	requeueList := make([]*model.PeriodicCheck, 0)

	for _, c := range batch {
		_, err := w.pool.Exec(ctx,
			`INSERT INTO verification_checks (attempt_id, capture_path, warning, note, checked_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			c.AttemptID, c.CapturePath, c.Warning, c.Note, c.CheckedAt,
		)
		if err != nil {
			w.log.Error().Err(err).Str("attempt_id", c.AttemptID.String()).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, c)
			continue
		}
		w.appendWarnings(ctx, []*model.PeriodicCheck{c})
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

// appendWarnings records a warning on each attempt whose check was
// flagged. Warning appends ride the same best-effort path as the check
// rows; the check itself is already durable at this point.
func (w *ProctorEventWorker) appendWarnings(ctx context.Context, batch []*model.PeriodicCheck) {
	for _, c := range batch {
		if !c.Warning {
			continue
		}
		warn := model.Warning{
			Message:   warningMessage(c),
			Type:      model.WarningTypeAutomated,
			Timestamp: c.CheckedAt,
		}
		raw, err := json.Marshal(warn)
		if err != nil {
			continue
		}
		_, err = w.pool.Exec(ctx,
			`UPDATE exam_attempts
			 SET warnings = warnings || jsonb_build_array($2::jsonb), updated_at = NOW()
			 WHERE id = $1`,
			c.AttemptID, raw,
		)
		if err != nil {
			w.log.Error().Err(err).Str("attempt_id", c.AttemptID.String()).Msg("Warning append failed")
		}
	}
}

func warningMessage(c *model.PeriodicCheck) string {
	if c.Note != "" {
		return "periodic check flagged: " + c.Note
	}
	return "periodic check flagged"
}

func (w *ProctorEventWorker) requeue(ctx context.Context, items []*model.PeriodicCheck) {
	// Use a pipeline to push everything back quickly.
	pipe := w.rdb.Pipeline()
	for _, c := range items {
		data, _ := json.Marshal(model.ProctorEventQueueItem{Check: *c})
		pipe.RPush(ctx, config.WorkerKey.PersistProctorEventsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
	// Back off while the DB is down to avoid thrashing.
	time.Sleep(2 * time.Second)
}

func (w *ProctorEventWorker) shutdown(buffer []*model.PeriodicCheck) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
