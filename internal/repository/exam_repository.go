package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-live/internal/model"
)

const examColumns = `id, title, subject, grade_level, description, time_limit_minutes,
	passing_score, is_active, created_by, created_at, updated_at`

// ExamRepository reads the exam catalog.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetByID retrieves an exam by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+examColumns+` FROM exams WHERE id = $1`, id)
	e, err := scanExam(row)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListActive returns every active exam, newest first.
func (r *ExamRepository) ListActive(ctx context.Context) ([]model.Exam, error) {
	return r.list(ctx, `SELECT `+examColumns+` FROM exams WHERE is_active ORDER BY created_at DESC`)
}

// ListActiveByGrade returns the active exams offered to a grade.
func (r *ExamRepository) ListActiveByGrade(ctx context.Context, gradeLevel int) ([]model.Exam, error) {
	return r.list(ctx,
		`SELECT `+examColumns+` FROM exams
		 WHERE is_active AND grade_level = $1
		 ORDER BY created_at DESC`, gradeLevel)
}

func (r *ExamRepository) list(ctx context.Context, query string, args ...any) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		exams = append(exams, *e)
	}
	return exams, rows.Err()
}

func scanExam(row pgx.Row) (*model.Exam, error) {
	e := &model.Exam{}
	err := row.Scan(&e.ID, &e.Title, &e.Subject, &e.GradeLevel, &e.Description, &e.TimeLimitMinutes,
		&e.PassingScore, &e.IsActive, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if e.PassingScore <= 0 {
		e.PassingScore = model.DefaultPassingScore
	}
	return e, nil
}
