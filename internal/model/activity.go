package model

import (
	"time"

	"github.com/google/uuid"
)

// ActivityType labels a student-activity event.
type ActivityType string

const (
	ActivityAnswerSubmitted  ActivityType = "answer-submitted"
	ActivityAttemptStarted   ActivityType = "attempt-started"
	ActivityAttemptSubmitted ActivityType = "attempt-submitted"
	ActivityAttemptExpired   ActivityType = "attempt-expired"
	ActivityAttemptFailed    ActivityType = "attempt-failed"
)

// Activity is what supervisors monitoring a student receive.
type Activity struct {
	Type        ActivityType  `json:"type"`
	StudentID   int           `json:"studentId"`
	StudentName string        `json:"studentName"`
	ExamID      uuid.UUID     `json:"examId"`
	AttemptID   uuid.UUID     `json:"attemptId"`
	QuestionID  *uuid.UUID    `json:"questionId,omitempty"`
	Status      AttemptStatus `json:"status,omitempty"`
	Score       *float64      `json:"score,omitempty"`
	Reason      string        `json:"reason,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
}

// NotificationType labels a notification event.
type NotificationType string

const NotificationNewExam NotificationType = "new-exam"

// Notification is a supervisor announcement addressed to a grade.
type Notification struct {
	Type       NotificationType `json:"type"`
	Message    string           `json:"message"`
	ExamID     uuid.UUID        `json:"examId"`
	GradeLevel int              `json:"-"`
	Timestamp  time.Time        `json:"timestamp"`
}
