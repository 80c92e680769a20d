package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-live/internal/model"
)

var errStoreDown = errors.New("store down")

type fakeCatalog struct {
	exams     map[uuid.UUID]*model.Exam
	questions map[uuid.UUID][]model.Question
}

func (c *fakeCatalog) GetExam(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	e, ok := c.exams[id]
	if !ok {
		return nil, errors.New("exam not found")
	}
	return e, nil
}

func (c *fakeCatalog) GetQuestions(_ context.Context, id uuid.UUID) ([]model.Question, error) {
	return c.questions[id], nil
}

type fakeResults struct {
	mu    sync.Mutex
	saved []*model.Result
	fail  bool
}

func (r *fakeResults) SaveResult(_ context.Context, res *model.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errStoreDown
	}
	r.saved = append(r.saved, res)
	return nil
}

func (r *fakeResults) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saved)
}

func (r *fakeResults) setFail(v bool) {
	r.mu.Lock()
	r.fail = v
	r.mu.Unlock()
}

type fakeAttempts struct {
	err error
}

func (a *fakeAttempts) CreateAttempt(context.Context, *model.Attempt) error { return a.err }

// gatedAttempts holds CreateAttempt until release is closed.
type gatedAttempts struct {
	entered chan struct{}
	release chan struct{}
	err     error
}

func newGatedAttempts(err error) *gatedAttempts {
	return &gatedAttempts{entered: make(chan struct{}, 4), release: make(chan struct{}), err: err}
}

func (a *gatedAttempts) CreateAttempt(ctx context.Context, _ *model.Attempt) error {
	a.entered <- struct{}{}
	select {
	case <-a.release:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type fakeAnswers struct {
	mu      sync.Mutex
	records []uuid.UUID
}

func (a *fakeAnswers) RecordAnswer(_ context.Context, _ *model.Attempt, qid uuid.UUID, _ model.Answer) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, qid)
	return nil
}

type fakePublisher struct {
	mu         sync.Mutex
	activities []model.Activity
	finished   []*model.Result
	ticks      int
}

func (p *fakePublisher) StudentActivity(_ context.Context, a model.Activity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activities = append(p.activities, a)
}

func (p *fakePublisher) Tick(context.Context, int, uuid.UUID, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ticks++
}

func (p *fakePublisher) Finished(_ context.Context, r *model.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finished = append(p.finished, r)
}

func (p *fakePublisher) types() []model.ActivityType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.ActivityType, len(p.activities))
	for i, a := range p.activities {
		out[i] = a.Type
	}
	return out
}

func intPtr(v int) *int { return &v }

func testQuestions(examID uuid.UUID) []model.Question {
	return []model.Question{
		{ID: uuid.New(), ExamID: examID, Type: model.QuestionTypeSingleChoice, Correct: model.ScalarAnswer("b"), Points: 1},
		{ID: uuid.New(), ExamID: examID, Type: model.QuestionTypeTrueFalse, Correct: model.ScalarAnswer("true"), Points: 1},
		{ID: uuid.New(), ExamID: examID, Type: model.QuestionTypeShortText, Correct: model.ScalarAnswer("Jakarta"), Points: 2},
	}
}

func testExam(grade int) *model.Exam {
	return &model.Exam{
		ID:           uuid.New(),
		Title:        "Geography",
		Subject:      "Geography",
		GradeLevel:   grade,
		PassingScore: model.DefaultPassingScore,
		IsActive:     true,
	}
}
