package websocket

import (
	"encoding/json"

	"github.com/stemsi/exstem-live/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionJoinExam         Action = "join-exam"
	ActionLeaveExam        Action = "leave-exam"
	ActionMonitorStudent   Action = "monitor-student"
	ActionStopMonitoring   Action = "stop-monitoring-student"
	ActionSubmitAnswer     Action = "submit-answer"
	ActionStartExam        Action = "start-exam"
	ActionSubmitExam       Action = "submit-exam"
	ActionNewExamAvailable Action = "new-exam-available"
	ActionPing             Action = "ping"
)

// RequestEnvelope is used to peek at the event name before decoding data.
type RequestEnvelope struct {
	Event Action          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ExamRequest addresses an exam: join-exam, leave-exam, start-exam, submit-exam.
type ExamRequest struct {
	ExamID string `json:"examId" binding:"required,uuid"`
}

// MonitorRequest addresses a student: monitor-student, stop-monitoring-student.
type MonitorRequest struct {
	StudentID int `json:"studentId" binding:"required,min=1"`
}

// SubmitAnswerRequest records one answer of the sender's attempt.
type SubmitAnswerRequest struct {
	ExamID     string       `json:"examId" binding:"required,uuid"`
	QuestionID string       `json:"questionId" binding:"required,uuid"`
	Answer     model.Answer `json:"answer"`
}

// NewExamRequest announces an exam to a grade.
type NewExamRequest struct {
	ExamID     string `json:"examId" binding:"required,uuid"`
	GradeLevel int    `json:"gradeLevel" binding:"required,grade"`
	Subject    string `json:"subject" binding:"required,min=1,max=100"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventStudentActivity Event = "student-activity"
	EventNotification    Event = "notification"
	EventClockTick       Event = "clock-tick"
	EventAttemptGraded   Event = "attempt-graded"
	EventAttemptState    Event = "attempt-state"
	EventError           Event = "error"
	EventPong            Event = "pong"
)

// ResponseEnvelope wraps every server frame.
type ResponseEnvelope struct {
	Event Event `json:"event"`
	Data  any   `json:"data,omitempty"`
}

type ClockTickData struct {
	AttemptID        string `json:"attemptId"`
	RemainingSeconds int    `json:"remainingSeconds"`
}

type AttemptGradedData struct {
	AttemptID          string  `json:"attemptId"`
	ExamID             string  `json:"examId"`
	TotalPoints        int     `json:"totalPoints"`
	MaxPoints          int     `json:"maxPoints"`
	PercentageScore    float64 `json:"percentageScore"`
	IsPassed           bool    `json:"isPassed"`
	Expired            bool    `json:"expired"`
	FormattedTimeSpent string  `json:"formattedTimeSpent"`
}

// AttemptStateData answers start-exam and echoes attempt transitions to the owner.
type AttemptStateData struct {
	AttemptID        string              `json:"attemptId"`
	ExamID           string              `json:"examId"`
	Status           model.AttemptStatus `json:"status"`
	RemainingSeconds int                 `json:"remainingSeconds"`
}

type ErrorData struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// NewAttemptGraded builds the attempt-graded payload for a result.
func NewAttemptGraded(r *model.Result) AttemptGradedData {
	return AttemptGradedData{
		AttemptID:          r.AttemptID.String(),
		ExamID:             r.ExamID.String(),
		TotalPoints:        r.TotalPoints,
		MaxPoints:          r.MaxPoints,
		PercentageScore:    r.PercentageScore,
		IsPassed:           r.IsPassed,
		Expired:            r.Expired,
		FormattedTimeSpent: r.FormattedTimeSpent(),
	}
}
