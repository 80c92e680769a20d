package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-live/internal/model"
)

var (
	ErrResultNotFound = errors.New("result not found")
	ErrFeedbackExists = errors.New("feedback already recorded for this result")
)

const resultColumns = `id, attempt_id, exam_id, student_id, total_points, max_points,
	percentage_score, is_passed, time_spent_seconds, expired, started_at, completed_at, feedback`

// ResultSummary is a result row joined with its exam title, without graded answers.
type ResultSummary struct {
	model.Result
	ExamTitle          string `json:"exam_title"`
	FormattedTimeSpent string `json:"formatted_time_spent"`
}

// ResultRepository reads persisted results and records supervisor feedback.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

// GetByID returns a result with its graded answers in question order.
func (r *ResultRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Result, error) {
	res, err := scanResult(r.pool.QueryRow(ctx, `SELECT `+resultColumns+` FROM results WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT question_id, answer, is_correct, points_earned
		 FROM graded_answers WHERE result_id = $1
		 ORDER BY position`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res.Answers = []model.GradedAnswer{}
	for rows.Next() {
		var (
			ga  model.GradedAnswer
			raw []byte
		)
		if err := rows.Scan(&ga.QuestionID, &raw, &ga.IsCorrect, &ga.PointsEarned); err != nil {
			return nil, err
		}
		if err := ga.Submitted.UnmarshalJSON(raw); err != nil {
			return nil, err
		}
		res.Answers = append(res.Answers, ga)
	}
	return res, rows.Err()
}

// ListByExam returns result summaries for an exam, best score first, with the total count.
func (r *ResultRepository) ListByExam(ctx context.Context, examID uuid.UUID, limit, offset int) ([]ResultSummary, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM results WHERE exam_id = $1`, examID).Scan(&total); err != nil {
		return nil, 0, err
	}

	list, err := r.summaries(ctx,
		`WHERE r.exam_id = $1 ORDER BY r.percentage_score DESC, r.completed_at LIMIT $2 OFFSET $3`,
		examID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// ListByStudent returns a student's result summaries, newest first.
func (r *ResultRepository) ListByStudent(ctx context.Context, studentID int) ([]ResultSummary, error) {
	return r.summaries(ctx, `WHERE r.student_id = $1 ORDER BY r.completed_at DESC`, studentID)
}

// AddFeedback sets the feedback of a result once. Existing feedback is never overwritten.
func (r *ResultRepository) AddFeedback(ctx context.Context, id uuid.UUID, feedback string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE results SET feedback = $2, feedback_at = NOW()
		 WHERE id = $1 AND feedback IS NULL`, id, feedback)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM results WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrResultNotFound
	}
	return ErrFeedbackExists
}

func (r *ResultRepository) summaries(ctx context.Context, where string, args ...any) ([]ResultSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT r.id, r.attempt_id, r.exam_id, r.student_id, r.total_points, r.max_points,
		        r.percentage_score, r.is_passed, r.time_spent_seconds, r.expired,
		        r.started_at, r.completed_at, r.feedback, e.title
		 FROM results r JOIN exams e ON e.id = r.exam_id `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []ResultSummary{}
	for rows.Next() {
		var s ResultSummary
		if err := rows.Scan(&s.ID, &s.AttemptID, &s.ExamID, &s.StudentID, &s.TotalPoints, &s.MaxPoints,
			&s.PercentageScore, &s.IsPassed, &s.TimeSpentSeconds, &s.Expired,
			&s.StartedAt, &s.CompletedAt, &s.Feedback, &s.ExamTitle); err != nil {
			return nil, err
		}
		s.FormattedTimeSpent = s.Result.FormattedTimeSpent()
		list = append(list, s)
	}
	return list, rows.Err()
}

func scanResult(row pgx.Row) (*model.Result, error) {
	res := &model.Result{}
	err := row.Scan(&res.ID, &res.AttemptID, &res.ExamID, &res.StudentID, &res.TotalPoints, &res.MaxPoints,
		&res.PercentageScore, &res.IsPassed, &res.TimeSpentSeconds, &res.Expired,
		&res.StartedAt, &res.CompletedAt, &res.Feedback)
	if err != nil {
		return nil, err
	}
	return res, nil
}
