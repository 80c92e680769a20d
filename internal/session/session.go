// Package session owns the lifecycle of exam attempts: the per-attempt state
// machine, its countdown, and the manager that indexes live attempts.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-live/internal/clock"
	"github.com/stemsi/exstem-live/internal/model"
	"github.com/stemsi/exstem-live/internal/scoring"
)

// Hooks receive clock-driven events. They run on the watcher goroutine,
// outside the attempt lock.
type Hooks struct {
	OnTick   func(attempt model.Attempt, remaining time.Duration)
	OnExpire func(attempt model.Attempt, result *model.Result, err error)
}

// Session serializes every transition of a single attempt.
type Session struct {
	mu      sync.Mutex
	attempt model.Attempt

	exam        *model.Exam
	questions   []model.Question
	questionSet map[uuid.UUID]struct{}
	studentName string

	compiler     *scoring.Compiler
	hooks        Hooks
	tickInterval time.Duration
	source       clock.Source

	clock *clock.Clock
}

// New wraps a NotStarted attempt for exam. questions must be the exam's
// catalog questions in display order.
func New(attempt model.Attempt, exam *model.Exam, questions []model.Question, studentName string, compiler *scoring.Compiler, hooks Hooks, tickInterval time.Duration) *Session {
	set := make(map[uuid.UUID]struct{}, len(questions))
	for _, q := range questions {
		set[q.ID] = struct{}{}
	}
	if attempt.Answers == nil {
		attempt.Answers = make(map[uuid.UUID]model.Answer)
	}
	return &Session{
		attempt:      attempt,
		exam:         exam,
		questions:    questions,
		questionSet:  set,
		studentName:  studentName,
		compiler:     compiler,
		hooks:        hooks,
		tickInterval: tickInterval,
		source:       clock.System,
	}
}

// UseClock replaces the time source. Call it before Start.
func (s *Session) UseClock(src clock.Source) {
	s.mu.Lock()
	s.source = src
	s.mu.Unlock()
}

// ID returns the attempt id.
func (s *Session) ID() uuid.UUID { return s.attempt.ID }

// StudentName returns the display name captured when the attempt was opened.
func (s *Session) StudentName() string { return s.studentName }

// Snapshot returns a copy of the attempt.
func (s *Session) Snapshot() model.Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt.Clone()
}

// Start moves the attempt to InProgress and arms the clock.
func (s *Session) Start() (model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.attempt.Status.Terminal():
		return model.Attempt{}, ErrSessionClosed
	case s.attempt.Status != model.AttemptStatusNotStarted:
		return model.Attempt{}, ErrAlreadyStarted
	}

	now := s.source.Now()
	s.attempt.Status = model.AttemptStatusInProgress
	s.attempt.StartedAt = &now

	if limit := time.Duration(s.attempt.TimeLimitSeconds) * time.Second; limit > 0 {
		s.clock = clock.StartWith(s.source, limit, s.tickInterval)
		go s.watch(s.clock)
	}
	return s.attempt.Clone(), nil
}

// Answer records value for questionID. The last write wins.
func (s *Session) Answer(questionID uuid.UUID, value model.Answer) error {
	if questionID == uuid.Nil {
		return &ValidationError{Field: "question_id", Reason: "is required"}
	}
	if value.IsEmpty() {
		return &ValidationError{Field: "answer", Reason: "is required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// The question set is released once the attempt is terminal.
	if s.attempt.Status.Terminal() {
		return ErrSessionClosed
	}
	if _, ok := s.questionSet[questionID]; !ok {
		return &ValidationError{Field: "question_id", Reason: "is not part of this exam"}
	}
	if s.attempt.Status != model.AttemptStatusInProgress {
		return ErrNotStarted
	}
	s.attempt.Answers[questionID] = value.Clone()
	return nil
}

// Submit finishes the attempt and compiles its result. An incomplete attempt
// stays InProgress. Submitting a finished attempt fails with an error that
// matches both ErrSessionClosed and scoring.ErrDuplicateSubmission.
func (s *Session) Submit() (model.Attempt, *model.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.attempt.Status.Terminal():
		return model.Attempt{}, nil, errors.Join(ErrSessionClosed, scoring.ErrDuplicateSubmission)
	case s.attempt.Status != model.AttemptStatusInProgress:
		return model.Attempt{}, nil, ErrNotStarted
	}

	result, err := s.compiler.Compile(&s.attempt, s.exam, s.questions, scoring.Options{At: s.source.Now()})
	if err != nil {
		return model.Attempt{}, nil, err
	}
	s.finishLocked(model.AttemptStatusSubmitted, result.CompletedAt)
	return s.attempt.Clone(), result, nil
}

// Detach cancels the countdown without finishing the attempt. The attempt
// stays InProgress and can still be submitted explicitly.
func (s *Session) Detach() {
	s.mu.Lock()
	c := s.clock
	s.clock = nil
	s.mu.Unlock()
	c.Stop()
}

// expire is the clock's one-shot transition. It is a no-op if the attempt
// already left InProgress.
func (s *Session) expire() {
	s.mu.Lock()
	if s.attempt.Status != model.AttemptStatusInProgress {
		s.mu.Unlock()
		return
	}

	result, err := s.compiler.Compile(&s.attempt, s.exam, s.questions, scoring.Options{AllowUnanswered: true, At: s.source.Now()})
	finishedAt := s.source.Now()
	if err == nil {
		finishedAt = result.CompletedAt
	}
	s.finishLocked(model.AttemptStatusExpired, finishedAt)
	snapshot := s.attempt.Clone()
	s.mu.Unlock()

	if s.hooks.OnExpire != nil {
		s.hooks.OnExpire(snapshot, result, err)
	}
}

// finishLocked records the terminal transition. Callers hold s.mu.
func (s *Session) finishLocked(status model.AttemptStatus, at time.Time) {
	s.attempt.Status = status
	s.attempt.FinishedAt = &at
	if s.attempt.StartedAt != nil {
		s.attempt.ElapsedSeconds = int(at.Sub(*s.attempt.StartedAt).Seconds())
	}
	if s.clock != nil {
		// Stop only waits for the countdown goroutine, never for the watcher.
		s.clock.Stop()
		s.clock = nil
	}
	// Nothing grades a finished attempt again.
	s.exam = nil
	s.questions = nil
	s.questionSet = nil
}

func (s *Session) watch(c *clock.Clock) {
	for {
		select {
		case <-c.Done():
			select {
			case <-c.Expired():
				s.expire()
			default:
			}
			return
		case t := <-c.Ticks():
			if s.hooks.OnTick != nil {
				s.hooks.OnTick(s.Snapshot(), t.Remaining)
			}
		case <-c.Expired():
			s.expire()
			return
		}
	}
}
