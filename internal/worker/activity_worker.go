package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-live/internal/config"
	"github.com/stemsi/exstem-live/internal/model"
)

const (
	ActivityBatchSize    = 100
	ActivityBatchTimeout = 2 * time.Second
	ActivityPollTimeout  = 1 * time.Second // BLPop rejects sub-second timeouts
)

var activityColumns = []string{"attempt_id", "exam_id", "student_id", "activity_type", "payload", "recorded_at"}

// ActivityWorker drains persist_activities_queue into the attempt_activities
// audit table in batches.
type ActivityWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewActivityWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ActivityWorker {
	return &ActivityWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "activity_worker").Logger(),
	}
}

// queuedActivity keeps the raw payload next to the decoded activity so the
// stored row is exactly what supervisors were sent.
type queuedActivity struct {
	activity model.Activity
	raw      string
}

func (w *ActivityWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ActivityWorker started")

	buffer := make([]queuedActivity, 0, ActivityBatchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 &&
			(len(buffer) >= ActivityBatchSize || time.Since(lastFlush) >= ActivityBatchTimeout) {
			w.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		item, err := w.rdb.BLPop(ctx, ActivityPollTimeout, config.WorkerKey.PersistActivitiesQueue).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}
		if len(item) < 2 {
			continue
		}

		var a model.Activity
		if err := json.Unmarshal([]byte(item[1]), &a); err != nil {
			w.log.Error().Err(err).Str("data", item[1]).Msg("Discarding malformed activity")
			continue
		}
		buffer = append(buffer, queuedActivity{activity: a, raw: item[1]})
	}
}

// flushSafe tries a bulk COPY first, then row-by-row inserts, then requeues
// whatever still failed.
func (w *ActivityWorker) flushSafe(ctx context.Context, batch []queuedActivity) {
	if len(batch) == 0 {
		return
	}
	_, err := w.pool.CopyFrom(ctx,
		pgx.Identifier{"attempt_activities"},
		activityColumns,
		pgx.CopyFromRows(activityRows(batch)),
	)
	if err == nil {
		w.log.Debug().Int("count", len(batch)).Msg("Activity batch stored")
		return
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
	w.fallbackInsert(ctx, batch)
}

func (w *ActivityWorker) fallbackInsert(ctx context.Context, batch []queuedActivity) {
	failed := make([]queuedActivity, 0)
	for i, row := range activityRows(batch) {
		_, err := w.pool.Exec(ctx,
			`INSERT INTO attempt_activities (attempt_id, exam_id, student_id, activity_type, payload, recorded_at)
			 VALUES ($1, $2, $3, $4, $5::jsonb, $6)`,
			row...,
		)
		if err != nil {
			w.log.Error().Err(err).
				Int("student_id", batch[i].activity.StudentID).
				Msg("Insert failed, requeueing")
			failed = append(failed, batch[i])
		}
	}
	if len(failed) > 0 {
		w.requeue(ctx, failed)
	}
}

func (w *ActivityWorker) requeue(ctx context.Context, items []queuedActivity) {
	pipe := w.rdb.Pipeline()
	for _, q := range items {
		pipe.RPush(ctx, config.WorkerKey.PersistActivitiesQueue, q.raw)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue activities. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed activities")
	time.Sleep(2 * time.Second)
}

func (w *ActivityWorker) shutdown(buffer []queuedActivity) {
	w.log.Info().Int("pending", len(buffer)).Msg("ActivityWorker stopping, flushing remaining buffer...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	w.flushSafe(ctx, buffer)
	w.log.Info().Msg("ActivityWorker stopped")
}

// activityRows converts queued activities into attempt_activities rows.
func activityRows(batch []queuedActivity) [][]any {
	rows := make([][]any, 0, len(batch))
	for _, q := range batch {
		a := q.activity
		rows = append(rows, []any{
			a.AttemptID, a.ExamID, a.StudentID, string(a.Type), []byte(q.raw), a.Timestamp,
		})
	}
	return rows
}
