package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GradedAnswer is the grading outcome for one question within a Result.
type GradedAnswer struct {
	QuestionID   uuid.UUID `json:"question_id"`
	Submitted    Answer    `json:"answer"`
	IsCorrect    bool      `json:"is_correct"`
	PointsEarned int       `json:"points_earned"`
}

// Result is the immutable score record of a finished attempt.
// Feedback may be set once by a supervisor after creation.
type Result struct {
	ID               uuid.UUID      `json:"id"`
	AttemptID        uuid.UUID      `json:"attempt_id"`
	ExamID           uuid.UUID      `json:"exam_id"`
	StudentID        int            `json:"student_id"`
	Answers          []GradedAnswer `json:"answers"`
	TotalPoints      int            `json:"total_points"`
	MaxPoints        int            `json:"max_points"`
	PercentageScore  float64        `json:"percentage_score"`
	IsPassed         bool           `json:"is_passed"`
	TimeSpentSeconds int            `json:"time_spent_seconds"`
	Expired          bool           `json:"expired"`
	StartedAt        time.Time      `json:"started_at"`
	CompletedAt      time.Time      `json:"completed_at"`
	Feedback         *string        `json:"feedback,omitempty"`
}

// FormattedTimeSpent renders the time spent as "Xm Ys".
func (r *Result) FormattedTimeSpent() string {
	return fmt.Sprintf("%dm %ds", r.TimeSpentSeconds/60, r.TimeSpentSeconds%60)
}

// AddFeedbackRequest is the payload for attaching supervisor feedback to a result.
type AddFeedbackRequest struct {
	Feedback string `json:"feedback" binding:"required,min=1,max=4000"`
}
