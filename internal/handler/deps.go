package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/stemsi/exstem-live/internal/events"
	"github.com/stemsi/exstem-live/internal/middleware"
	"github.com/stemsi/exstem-live/internal/model"
	"github.com/stemsi/exstem-live/internal/response"
	"github.com/stemsi/exstem-live/internal/session"
)

// AttemptService drives attempts on behalf of students. *session.Manager implements it.
type AttemptService interface {
	Open(ctx context.Context, identity model.Identity, examID uuid.UUID) (model.Attempt, error)
	Start(ctx context.Context, identity model.Identity, attemptID uuid.UUID) (model.Attempt, error)
	Answer(ctx context.Context, identity model.Identity, attemptID, questionID uuid.UUID, value model.Answer) error
	Submit(ctx context.Context, identity model.Identity, attemptID uuid.UUID) (*model.Result, error)
	PersistResult(ctx context.Context, attemptID uuid.UUID) error
	Result(identity model.Identity, attemptID uuid.UUID) (*model.Result, error)
	ForStudentExam(studentID int, examID uuid.UUID) (model.Attempt, error)
}

// AttemptLister lists the live attempts of an exam.
type AttemptLister interface {
	ListByExam(examID uuid.UUID) []model.Attempt
}

// ExamLookup resolves exam metadata.
type ExamLookup interface {
	GetExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error)
}

// Notifier delivers notifications to a grade and reports how many connections accepted them.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) int
}

// attemptView is an attempt with its remaining time resolved.
type attemptView struct {
	model.Attempt
	RemainingSeconds int `json:"remaining_seconds"`
}

func newAttemptView(a model.Attempt) attemptView {
	return attemptView{Attempt: a, RemainingSeconds: a.RemainingSeconds(time.Now())}
}

// openAndStart opens the student's attempt and starts it when it is new.
// created reports whether this call started the clock.
func openAndStart(ctx context.Context, sessions AttemptService, identity model.Identity, examID uuid.UUID) (model.Attempt, bool, error) {
	attempt, err := sessions.Open(ctx, identity, examID)
	if err != nil {
		return model.Attempt{}, false, err
	}
	if attempt.Status != model.AttemptStatusNotStarted {
		return attempt, false, nil
	}

	started, err := sessions.Start(ctx, identity, attempt.ID)
	if errors.Is(err, session.ErrAlreadyStarted) {
		// A concurrent request won the start.
		current, gerr := sessions.ForStudentExam(identity.ID, examID)
		return current, false, gerr
	}
	if err != nil {
		return model.Attempt{}, false, err
	}
	return started, true, nil
}

// announce checks the exam exists and notifies its grade.
func announce(ctx context.Context, exams ExamLookup, notifier Notifier, examID uuid.UUID, gradeLevel int, subject string) (int, error) {
	if _, err := exams.GetExam(ctx, examID); err != nil {
		return 0, err
	}
	return notifier.Notify(ctx, events.NewExamNotification(examID, gradeLevel, subject)), nil
}

// identityOrAbort returns the verified identity or writes 401.
func identityOrAbort(c *gin.Context) (model.Identity, bool) {
	id, ok := middleware.GetIdentity(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
	}
	return id, ok
}

// uuidParam parses a path parameter or writes 400.
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
