package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-live/internal/config"
	"github.com/stemsi/exstem-live/internal/model"
)

const (
	ResultBatchSize    = 50
	ResultBatchTimeout = 2 * time.Second
	ResultPollTimeout  = 1 * time.Second
)

// ResultWorker drains persist_results_queue into the results and
// graded_answers tables and closes the matching attempt rows.
type ResultWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewResultWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ResultWorker {
	return &ResultWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "result_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *ResultWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ResultWorker started")

	batch := make([]*model.Result, 0, ResultBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= ResultBatchSize || time.Since(lastFlush) >= ResultBatchTimeout) {
			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Int("pending", len(batch)).Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, ResultPollTimeout, config.WorkerKey.PersistResultsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}
			if len(item) < 2 {
				continue
			}

			var r model.Result
			if err := json.Unmarshal([]byte(item[1]), &r); err != nil {
				w.log.Error().Err(err).Str("data", item[1]).Msg("Discarding malformed result payload")
				continue
			}
			batch = append(batch, &r)
		}
	}
}

// ----------------------------------------------------------------
// Bulk insert, then row-by-row, then requeue
// ----------------------------------------------------------------

func (w *ResultWorker) flushSafe(ctx context.Context, batch []*model.Result) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk result insert failed, using fallback")

		persisted := make([]*model.Result, 0, len(batch))
		for _, r := range batch {
			if err := w.persistSingle(ctx, r); err != nil {
				w.log.Error().Err(err).Str("result_id", r.ID.String()).Msg("persistSingle failed, requeueing")
				raw, _ := json.Marshal(r)
				w.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, raw)
				continue
			}
			persisted = append(persisted, r)
		}
		w.clearBuffers(ctx, persisted)
		return
	}

	w.clearBuffers(ctx, batch)
	w.log.Debug().Int("count", len(batch)).Msg("Results persisted")
}

// bulkInsert writes the whole batch in one transaction: COPY for the result
// and graded answer rows, UNNEST for the attempt updates.
func (w *ResultWorker) bulkInsert(ctx context.Context, batch []*model.Result) error {
	resultRows, answerRows, err := copyRows(batch)
	if err != nil {
		return err
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"results"}, resultColumns, pgx.CopyFromRows(resultRows)); err != nil {
		return fmt.Errorf("copy results: %w", err)
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"graded_answers"}, gradedAnswerColumns, pgx.CopyFromRows(answerRows)); err != nil {
		return fmt.Errorf("copy graded answers: %w", err)
	}

	ids, statuses, started, finished, elapsed := attemptUpdates(batch)
	_, err = tx.Exec(ctx, `
		UPDATE attempts AS a
		SET status = t.status,
		    started_at = t.started_at,
		    finished_at = t.finished_at,
		    elapsed_seconds = t.elapsed
		FROM UNNEST(
			$1::uuid[],
			$2::text[],
			$3::timestamptz[],
			$4::timestamptz[],
			$5::int[]
		) AS t (id, status, started_at, finished_at, elapsed)
		WHERE a.id = t.id`,
		ids, statuses, started, finished, elapsed,
	)
	if err != nil {
		return fmt.Errorf("update attempts: %w", err)
	}

	return tx.Commit(ctx)
}

// persistSingle is idempotent: a result already stored for the attempt is left as is.
func (w *ResultWorker) persistSingle(ctx context.Context, r *model.Result) error {
	resultRows, answerRows, err := copyRows([]*model.Result{r})
	if err != nil {
		return err
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`INSERT INTO results (`+joinColumns(resultColumns)+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (attempt_id) DO NOTHING`,
		resultRows[0]...,
	)
	if err != nil {
		return err
	}

	if tag.RowsAffected() > 0 {
		b := &pgx.Batch{}
		for _, row := range answerRows {
			b.Queue(`INSERT INTO graded_answers (`+joinColumns(gradedAnswerColumns)+`)
				VALUES ($1, $2, $3, $4, $5, $6)`, row...)
		}
		if err := tx.SendBatch(ctx, b).Close(); err != nil {
			return err
		}
	}

	ids, statuses, started, finished, elapsed := attemptUpdates([]*model.Result{r})
	if _, err := tx.Exec(ctx,
		`UPDATE attempts
		 SET status = $2, started_at = $3, finished_at = $4, elapsed_seconds = $5
		 WHERE id = $1`,
		ids[0], statuses[0], started[0], finished[0], elapsed[0],
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// clearBuffers drops the pending result copies and the buffered answers of
// persisted attempts.
func (w *ResultWorker) clearBuffers(ctx context.Context, batch []*model.Result) {
	if len(batch) == 0 {
		return
	}
	pipe := w.rdb.Pipeline()
	for _, r := range batch {
		pipe.Del(ctx, config.CacheKey.PendingResultKey(r.ID.String()))
		pipe.Del(ctx, config.CacheKey.StudentAnswersKey(r.ExamID.String(), r.StudentID))
	}
	_, _ = pipe.Exec(ctx)
}

// ----------------------------------------------------------------
// Row builders
// ----------------------------------------------------------------

var (
	resultColumns = []string{
		"id", "attempt_id", "exam_id", "student_id", "total_points", "max_points",
		"percentage_score", "is_passed", "time_spent_seconds", "expired", "started_at", "completed_at",
	}
	gradedAnswerColumns = []string{
		"result_id", "question_id", "position", "answer", "is_correct", "points_earned",
	}
)

func copyRows(batch []*model.Result) (results [][]any, answers [][]any, err error) {
	results = make([][]any, 0, len(batch))
	for _, r := range batch {
		results = append(results, []any{
			r.ID, r.AttemptID, r.ExamID, r.StudentID, r.TotalPoints, r.MaxPoints,
			r.PercentageScore, r.IsPassed, r.TimeSpentSeconds, r.Expired, r.StartedAt, r.CompletedAt,
		})
		for i, ga := range r.Answers {
			raw, err := json.Marshal(ga.Submitted)
			if err != nil {
				return nil, nil, fmt.Errorf("result %s: %w", r.ID, err)
			}
			answers = append(answers, []any{r.ID, ga.QuestionID, i, raw, ga.IsCorrect, ga.PointsEarned})
		}
	}
	return results, answers, nil
}

func attemptUpdates(batch []*model.Result) (ids []uuid.UUID, statuses []string, started, finished []time.Time, elapsed []int) {
	for _, r := range batch {
		status := model.AttemptStatusSubmitted
		if r.Expired {
			status = model.AttemptStatusExpired
		}
		ids = append(ids, r.AttemptID)
		statuses = append(statuses, string(status))
		started = append(started, r.StartedAt)
		finished = append(finished, r.CompletedAt)
		elapsed = append(elapsed, r.TimeSpentSeconds)
	}
	return
}

func joinColumns(cols []string) string {
	return strings.Join(cols, ", ")
}
