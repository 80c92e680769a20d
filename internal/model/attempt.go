package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates exam attempt states.
type AttemptStatus string

const (
	AttemptStatusNotStarted AttemptStatus = "NOT_STARTED"
	AttemptStatusInProgress AttemptStatus = "IN_PROGRESS"
	AttemptStatusSubmitted  AttemptStatus = "SUBMITTED"
	AttemptStatusExpired    AttemptStatus = "EXPIRED"
)

// Terminal reports whether no further transition is allowed.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptStatusSubmitted || s == AttemptStatusExpired
}

// Attempt represents one student's instance of taking an exam.
type Attempt struct {
	ID               uuid.UUID            `json:"id"`
	ExamID           uuid.UUID            `json:"exam_id"`
	StudentID        int                  `json:"student_id"`
	Status           AttemptStatus        `json:"status"`
	StartedAt        *time.Time           `json:"started_at,omitempty"`
	FinishedAt       *time.Time           `json:"finished_at,omitempty"`
	Answers          map[uuid.UUID]Answer `json:"answers"`
	ElapsedSeconds   int                  `json:"elapsed_seconds"`
	TimeLimitSeconds int                  `json:"time_limit_seconds"` // 0 means unbounded
}

// Clone returns a deep copy safe to hand outside the attempt's lock.
func (a *Attempt) Clone() Attempt {
	cp := *a
	cp.Answers = make(map[uuid.UUID]Answer, len(a.Answers))
	for k, v := range a.Answers {
		cp.Answers[k] = v.Clone()
	}
	if a.StartedAt != nil {
		t := *a.StartedAt
		cp.StartedAt = &t
	}
	if a.FinishedAt != nil {
		t := *a.FinishedAt
		cp.FinishedAt = &t
	}
	return cp
}

// RemainingSeconds reports the time left at now, or -1 when unbounded or not started.
func (a *Attempt) RemainingSeconds(now time.Time) int {
	if a.TimeLimitSeconds <= 0 || a.StartedAt == nil {
		return -1
	}
	if a.Status.Terminal() {
		return 0
	}
	end := a.StartedAt.Add(time.Duration(a.TimeLimitSeconds) * time.Second)
	remaining := int(end.Sub(now).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// SaveAnswerRequest is the HTTP payload for recording a single answer.
type SaveAnswerRequest struct {
	QuestionID string `json:"question_id" binding:"required,uuid"`
	Answer     Answer `json:"answer"`
}
