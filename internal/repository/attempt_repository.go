package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-live/internal/model"
	"github.com/stemsi/exstem-live/internal/session"
)

// AttemptRepository records attempt creation. The (exam_id, student_id)
// unique key backs the one-attempt-per-exam rule across restarts.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// CreateAttempt inserts a NotStarted attempt.
func (r *AttemptRepository) CreateAttempt(ctx context.Context, a *model.Attempt) error {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO attempts (id, exam_id, student_id, status, time_limit_seconds)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (exam_id, student_id) DO NOTHING`,
		a.ID, a.ExamID, a.StudentID, a.Status, a.TimeLimitSeconds,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("student %d exam %s: %w", a.StudentID, a.ExamID, session.ErrAttemptExists)
	}
	return nil
}
