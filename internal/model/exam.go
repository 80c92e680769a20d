package model

import (
	"time"

	"github.com/google/uuid"
)

// DefaultPassingScore is applied when the catalog leaves passing_score unset.
const DefaultPassingScore = 60

// Exam is read-only catalog metadata for an exam.
type Exam struct {
	ID               uuid.UUID `json:"id"`
	Title            string    `json:"title"`
	Subject          string    `json:"subject"`
	GradeLevel       int       `json:"grade_level"`
	Description      string    `json:"description"`
	TimeLimitMinutes int       `json:"time_limit_minutes"` // 0 means no time limit
	PassingScore     float64   `json:"passing_score"`
	IsActive         bool      `json:"is_active"`
	CreatedBy        int       `json:"created_by"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TimeLimit returns the attempt time limit, zero when unbounded.
func (e Exam) TimeLimit() time.Duration {
	if e.TimeLimitMinutes <= 0 {
		return 0
	}
	return time.Duration(e.TimeLimitMinutes) * time.Minute
}

// ExamPaper is the Redis-cached payload sent to students (no correct answers).
type ExamPaper struct {
	ExamID           uuid.UUID            `json:"exam_id"`
	Title            string               `json:"title"`
	Subject          string               `json:"subject"`
	Description      string               `json:"description"`
	TimeLimitMinutes int                  `json:"time_limit_minutes"`
	Questions        []QuestionForStudent `json:"questions"`
}

// NewExamPaper builds the student-facing paper for an exam.
func NewExamPaper(exam *Exam, questions []Question) *ExamPaper {
	qs := make([]QuestionForStudent, len(questions))
	for i, q := range questions {
		qs[i] = q.ForStudent()
	}
	return &ExamPaper{
		ExamID:           exam.ID,
		Title:            exam.Title,
		Subject:          exam.Subject,
		Description:      exam.Description,
		TimeLimitMinutes: exam.TimeLimitMinutes,
		Questions:        qs,
	}
}

// NotifyExamRequest is the payload a supervisor sends to announce an exam to a grade.
type NotifyExamRequest struct {
	ExamID     string `json:"exam_id" binding:"required,uuid"`
	GradeLevel int    `json:"grade_level" binding:"required,grade"`
	Subject    string `json:"subject" binding:"required,min=1,max=100"`
}
