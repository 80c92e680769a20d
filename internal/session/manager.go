package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-live/internal/clock"
	"github.com/stemsi/exstem-live/internal/model"
	"github.com/stemsi/exstem-live/internal/scoring"
)

// Catalog supplies read-only exam metadata and questions.
type Catalog interface {
	GetExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error)
	GetQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
}

// ResultStore persists compiled results.
type ResultStore interface {
	SaveResult(ctx context.Context, result *model.Result) error
}

// AttemptStore records attempt creation durably. CreateAttempt returns an
// error wrapping ErrAttemptExists when the student already holds one.
type AttemptStore interface {
	CreateAttempt(ctx context.Context, attempt *model.Attempt) error
}

// AnswerSink receives every accepted answer.
type AnswerSink interface {
	RecordAnswer(ctx context.Context, attempt *model.Attempt, questionID uuid.UUID, value model.Answer) error
}

// Publisher fans attempt events out to observers.
type Publisher interface {
	StudentActivity(ctx context.Context, activity model.Activity)
	Tick(ctx context.Context, studentID int, attemptID uuid.UUID, remaining time.Duration)
	Finished(ctx context.Context, result *model.Result)
}

// Deps are the Manager's collaborators. Attempts, Answers, Publisher and
// Clock are optional; a nil Clock means the wall clock.
type Deps struct {
	Catalog   Catalog
	Results   ResultStore
	Attempts  AttemptStore
	Answers   AnswerSink
	Publisher Publisher
	Clock     clock.Source
}

type attemptKey struct {
	examID    uuid.UUID
	studentID int
}

// reservation marks an Open whose attempt is still being recorded. ready is
// closed once err is final.
type reservation struct {
	ready chan struct{}
	err   error
}

// Manager owns every live Session: an arena keyed by attempt id and an index
// from (exam, student) to attempt id.
type Manager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	index    map[attemptKey]uuid.UUID
	pending  map[attemptKey]*reservation

	deps         Deps
	compiler     *scoring.Compiler
	tickInterval time.Duration
	persistWait  time.Duration
	log          zerolog.Logger
}

// NewManager creates a Manager.
func NewManager(deps Deps, tickInterval time.Duration, log zerolog.Logger) *Manager {
	return &Manager{
		sessions:     make(map[uuid.UUID]*Session),
		index:        make(map[attemptKey]uuid.UUID),
		pending:      make(map[attemptKey]*reservation),
		deps:         deps,
		compiler:     scoring.NewCompiler(),
		tickInterval: tickInterval,
		persistWait:  10 * time.Second,
		log:          log.With().Str("component", "session_manager").Logger(),
	}
}

// Open creates the student's attempt for examID. Re-opening an attempt that is
// still live returns it unchanged; a finished one yields ErrAttemptExists.
func (m *Manager) Open(ctx context.Context, identity model.Identity, examID uuid.UUID) (model.Attempt, error) {
	if identity.Role != model.RoleStudent {
		return model.Attempt{}, ErrNotEligible
	}

	key := attemptKey{examID: examID, studentID: identity.ID}
	if snap, ok, err := m.awaitExisting(ctx, key); ok || err != nil {
		return snap, err
	}

	exam, err := m.deps.Catalog.GetExam(ctx, examID)
	if err != nil {
		return model.Attempt{}, fmt.Errorf("get exam: %w", err)
	}
	if !exam.IsActive {
		return model.Attempt{}, ErrNotEligible
	}
	if exam.GradeLevel > 0 {
		grade, ok := identity.GradeLevel()
		if !ok || grade != exam.GradeLevel {
			return model.Attempt{}, ErrNotEligible
		}
	}

	questions, err := m.deps.Catalog.GetQuestions(ctx, examID)
	if err != nil {
		return model.Attempt{}, fmt.Errorf("get questions: %w", err)
	}
	if len(questions) == 0 {
		return model.Attempt{}, scoring.ErrNoQuestions
	}

	attempt := model.Attempt{
		ID:               uuid.New(),
		ExamID:           examID,
		StudentID:        identity.ID,
		Status:           model.AttemptStatusNotStarted,
		Answers:          make(map[uuid.UUID]model.Answer),
		TimeLimitSeconds: int(exam.TimeLimit().Seconds()),
	}
	s := New(attempt, exam, questions, identity.Name, m.compiler, m.hooksFor(), m.tickInterval)
	if m.deps.Clock != nil {
		s.UseClock(m.deps.Clock)
	}

	// Reserve the slot before any I/O. Concurrent opens wait on the
	// reservation and only see the attempt once it is recorded.
	r, leader := m.reserve(key)
	if !leader {
		if r != nil {
			select {
			case <-r.ready:
			case <-ctx.Done():
				return model.Attempt{}, ctx.Err()
			}
			if r.err != nil {
				return model.Attempt{}, r.err
			}
		}
		snap, _, err := m.awaitExisting(ctx, key)
		return snap, err
	}

	var createErr error
	if m.deps.Attempts != nil {
		createErr = m.deps.Attempts.CreateAttempt(ctx, &attempt)
	}
	switch {
	case createErr == nil:
	case errors.Is(createErr, ErrAttemptExists):
		createErr = ErrAttemptExists
	default:
		createErr = fmt.Errorf("create attempt: %w", createErr)
	}

	m.mu.Lock()
	delete(m.pending, key)
	if createErr == nil {
		m.sessions[attempt.ID] = s
		m.index[key] = attempt.ID
	}
	r.err = createErr
	close(r.ready)
	m.mu.Unlock()

	if createErr != nil {
		return model.Attempt{}, createErr
	}

	m.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Str("exam_id", examID.String()).
		Int("student_id", identity.ID).
		Msg("Attempt opened")

	return s.Snapshot(), nil
}

// Start begins the attempt's countdown.
func (m *Manager) Start(ctx context.Context, identity model.Identity, attemptID uuid.UUID) (model.Attempt, error) {
	s, err := m.owned(identity, attemptID)
	if err != nil {
		return model.Attempt{}, err
	}
	snap, err := s.Start()
	if err != nil {
		return model.Attempt{}, err
	}
	m.publish(ctx, s, snap, model.ActivityAttemptStarted, nil)
	return snap, nil
}

// Answer records one answer and forwards it to the answer sink.
func (m *Manager) Answer(ctx context.Context, identity model.Identity, attemptID, questionID uuid.UUID, value model.Answer) error {
	s, err := m.owned(identity, attemptID)
	if err != nil {
		return err
	}
	if err := s.Answer(questionID, value); err != nil {
		return err
	}

	snap := s.Snapshot()
	if m.deps.Answers != nil {
		if err := m.deps.Answers.RecordAnswer(ctx, &snap, questionID, value); err != nil {
			m.log.Error().Err(err).
				Str("attempt_id", attemptID.String()).
				Str("question_id", questionID.String()).
				Msg("Failed to queue answer")
		}
	}

	qid := questionID
	m.publish(ctx, s, snap, model.ActivityAnswerSubmitted, func(a *model.Activity) {
		a.QuestionID = &qid
	})
	return nil
}

// Submit finishes the attempt and persists its result. When grading succeeds
// but persistence fails, the result is returned together with an error
// wrapping ErrNotPersisted; PersistResult retries.
func (m *Manager) Submit(ctx context.Context, identity model.Identity, attemptID uuid.UUID) (*model.Result, error) {
	s, err := m.owned(identity, attemptID)
	if err != nil {
		return nil, err
	}
	snap, result, err := s.Submit()
	if err != nil {
		return nil, err
	}

	score := result.PercentageScore
	m.publish(ctx, s, snap, model.ActivityAttemptSubmitted, func(a *model.Activity) {
		a.Score = &score
	})
	if m.deps.Publisher != nil {
		m.deps.Publisher.Finished(ctx, result)
	}

	if err := m.persist(ctx, result); err != nil {
		return result, err
	}
	return result, nil
}

// PersistResult re-sends a previously compiled result to the result store.
func (m *Manager) PersistResult(ctx context.Context, attemptID uuid.UUID) error {
	result, ok := m.compiler.Lookup(attemptID)
	if !ok {
		return ErrAttemptNotFound
	}
	return m.persist(ctx, result)
}

// Result returns the compiled result of a finished attempt.
func (m *Manager) Result(identity model.Identity, attemptID uuid.UUID) (*model.Result, error) {
	if _, err := m.owned(identity, attemptID); err != nil {
		return nil, err
	}
	result, ok := m.compiler.Lookup(attemptID)
	if !ok {
		return nil, ErrAttemptNotFound
	}
	return result, nil
}

// Get returns a snapshot of an attempt regardless of owner.
func (m *Manager) Get(attemptID uuid.UUID) (model.Attempt, error) {
	m.mu.RLock()
	s, ok := m.sessions[attemptID]
	m.mu.RUnlock()
	if !ok {
		return model.Attempt{}, ErrAttemptNotFound
	}
	return s.Snapshot(), nil
}

// ForStudentExam returns the student's attempt for examID.
func (m *Manager) ForStudentExam(studentID int, examID uuid.UUID) (model.Attempt, error) {
	s, ok := m.lookupByStudent(studentID, examID)
	if !ok {
		return model.Attempt{}, ErrAttemptNotFound
	}
	return s.Snapshot(), nil
}

// ListByExam returns snapshots of every attempt opened for examID.
func (m *Manager) ListByExam(examID uuid.UUID) []model.Attempt {
	m.mu.RLock()
	var live []*Session
	for key, id := range m.index {
		if key.examID == examID {
			live = append(live, m.sessions[id])
		}
	}
	m.mu.RUnlock()

	out := make([]model.Attempt, 0, len(live))
	for _, s := range live {
		out = append(out, s.Snapshot())
	}
	return out
}

// Detach cancels the countdown of every live attempt held by studentID.
// Attempts remain InProgress.
func (m *Manager) Detach(studentID int) {
	for _, s := range m.studentSessions(studentID) {
		s.Detach()
	}
}

// Shutdown stops every live clock. Attempts are left as they are.
func (m *Manager) Shutdown() {
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	for _, s := range all {
		s.Detach()
	}
	m.log.Info().Int("attempts", len(all)).Msg("Session manager stopped")
}

func (m *Manager) owned(identity model.Identity, attemptID uuid.UUID) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[attemptID]
	m.mu.RUnlock()
	if !ok || s.attempt.StudentID != identity.ID {
		return nil, ErrAttemptNotFound
	}
	return s, nil
}

// reserve claims key for the caller. When another Open already holds the
// slot, or the attempt exists, leader is false.
func (m *Manager) reserve(key attemptKey) (*reservation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.index[key]; ok {
		return nil, false
	}
	if r, ok := m.pending[key]; ok {
		return r, false
	}
	r := &reservation{ready: make(chan struct{})}
	m.pending[key] = r
	return r, true
}

// awaitExisting resolves key against recorded and in-flight attempts. ok is
// false when neither exists. A reservation that failed yields its error.
func (m *Manager) awaitExisting(ctx context.Context, key attemptKey) (model.Attempt, bool, error) {
	for {
		m.mu.RLock()
		id, indexed := m.index[key]
		s := m.sessions[id]
		r := m.pending[key]
		m.mu.RUnlock()

		if indexed {
			snap := s.Snapshot()
			if snap.Status.Terminal() {
				return model.Attempt{}, true, ErrAttemptExists
			}
			return snap, true, nil
		}
		if r == nil {
			return model.Attempt{}, false, nil
		}

		select {
		case <-r.ready:
			if r.err != nil {
				return model.Attempt{}, true, r.err
			}
		case <-ctx.Done():
			return model.Attempt{}, true, ctx.Err()
		}
	}
}

func (m *Manager) lookupByStudent(studentID int, examID uuid.UUID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.index[attemptKey{examID: examID, studentID: studentID}]
	if !ok {
		return nil, false
	}
	return m.sessions[id], true
}

func (m *Manager) studentSessions(studentID int) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Session
	for key, id := range m.index {
		if key.studentID == studentID {
			out = append(out, m.sessions[id])
		}
	}
	return out
}

func (m *Manager) persist(ctx context.Context, result *model.Result) error {
	if m.deps.Results == nil {
		return nil
	}
	if err := m.deps.Results.SaveResult(ctx, result); err != nil {
		m.log.Error().Err(err).Str("attempt_id", result.AttemptID.String()).Msg("Failed to persist result")
		return fmt.Errorf("%w: %w", ErrNotPersisted, err)
	}
	return nil
}

func (m *Manager) publish(ctx context.Context, s *Session, snap model.Attempt, typ model.ActivityType, fill func(*model.Activity)) {
	if m.deps.Publisher == nil {
		return
	}
	a := model.Activity{
		Type:        typ,
		StudentID:   snap.StudentID,
		StudentName: s.StudentName(),
		ExamID:      snap.ExamID,
		AttemptID:   snap.ID,
		Status:      snap.Status,
		Timestamp:   time.Now(),
	}
	if fill != nil {
		fill(&a)
	}
	m.deps.Publisher.StudentActivity(ctx, a)
}

// hooksFor wires clock events of every session back into the manager. They
// run on the session's watcher goroutine with no request context.
func (m *Manager) hooksFor() Hooks {
	return Hooks{
		OnTick: func(attempt model.Attempt, remaining time.Duration) {
			if m.deps.Publisher != nil {
				m.deps.Publisher.Tick(context.Background(), attempt.StudentID, attempt.ID, remaining)
			}
		},
		OnExpire: m.onExpire,
	}
}

func (m *Manager) onExpire(attempt model.Attempt, result *model.Result, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.persistWait)
	defer cancel()

	m.mu.RLock()
	s := m.sessions[attempt.ID]
	m.mu.RUnlock()
	if s == nil {
		return
	}

	log := m.log.With().Str("attempt_id", attempt.ID.String()).Int("student_id", attempt.StudentID).Logger()

	if err != nil {
		log.Error().Err(err).Msg("Failed to grade expired attempt")
		m.publish(ctx, s, attempt, model.ActivityAttemptFailed, func(a *model.Activity) {
			a.Reason = err.Error()
		})
		return
	}

	log.Info().Float64("score", result.PercentageScore).Msg("Attempt expired and graded")
	score := result.PercentageScore
	m.publish(ctx, s, attempt, model.ActivityAttemptExpired, func(a *model.Activity) {
		a.Score = &score
	})
	if m.deps.Publisher != nil {
		m.deps.Publisher.Finished(ctx, result)
	}

	if err := m.persist(ctx, result); err != nil {
		m.publish(ctx, s, attempt, model.ActivityAttemptFailed, func(a *model.Activity) {
			a.Reason = err.Error()
		})
	}
}
