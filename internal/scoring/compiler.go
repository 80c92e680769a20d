// Package scoring turns a finished attempt into an immutable Result.
package scoring

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-live/internal/grader"
	"github.com/stemsi/exstem-live/internal/model"
)

var (
	ErrDuplicateSubmission = errors.New("result already compiled for this attempt")
	ErrNoQuestions         = errors.New("exam has no questions to grade")
)

// IncompleteAttemptError is returned for an explicit submission that leaves
// questions unanswered.
type IncompleteAttemptError struct {
	Missing []uuid.UUID
}

func (e *IncompleteAttemptError) Error() string {
	ids := make([]string, len(e.Missing))
	for i, id := range e.Missing {
		ids[i] = id.String()
	}
	return fmt.Sprintf("all questions must be answered, missing: %s", strings.Join(ids, ", "))
}

// Options tune a single compilation.
type Options struct {
	// AllowUnanswered grades missing answers as incorrect instead of failing.
	// Only clock expiry sets it.
	AllowUnanswered bool
	// At is the completion instant. Zero means now.
	At time.Time
}

// Compiler grades attempts and remembers every result it issued, so each
// attempt is compiled at most once.
type Compiler struct {
	mu     sync.Mutex
	issued map[uuid.UUID]*model.Result
	now    func() time.Time
}

// NewCompiler creates an empty Compiler.
func NewCompiler() *Compiler {
	return &Compiler{
		issued: make(map[uuid.UUID]*model.Result),
		now:    time.Now,
	}
}

// Compile grades every question of the exam against the attempt's answers.
func (c *Compiler) Compile(attempt *model.Attempt, exam *model.Exam, questions []model.Question, opts Options) (*model.Result, error) {
	if c.has(attempt.ID) {
		return nil, ErrDuplicateSubmission
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	if !opts.AllowUnanswered {
		var missing []uuid.UUID
		for _, q := range questions {
			if a, ok := attempt.Answers[q.ID]; !ok || a.IsEmpty() {
				missing = append(missing, q.ID)
			}
		}
		if len(missing) > 0 {
			return nil, &IncompleteAttemptError{Missing: missing}
		}
	}

	now := opts.At
	if now.IsZero() {
		now = c.now()
	}
	result := &model.Result{
		ID:          uuid.New(),
		AttemptID:   attempt.ID,
		ExamID:      attempt.ExamID,
		StudentID:   attempt.StudentID,
		Answers:     make([]model.GradedAnswer, 0, len(questions)),
		Expired:     opts.AllowUnanswered,
		CompletedAt: now,
	}
	if attempt.StartedAt != nil {
		result.StartedAt = *attempt.StartedAt
		result.TimeSpentSeconds = int(now.Sub(*attempt.StartedAt).Seconds())
	}

	graded := make(map[uuid.UUID]struct{}, len(questions))
	for _, q := range questions {
		if _, dup := graded[q.ID]; dup {
			continue
		}
		graded[q.ID] = struct{}{}

		submitted := attempt.Answers[q.ID].Clone()
		ok, pts := grader.Points(q, submitted)

		result.Answers = append(result.Answers, model.GradedAnswer{
			QuestionID:   q.ID,
			Submitted:    submitted,
			IsCorrect:    ok,
			PointsEarned: pts,
		})
		result.TotalPoints += pts
		result.MaxPoints += q.Points
	}

	if result.MaxPoints <= 0 {
		return nil, ErrNoQuestions
	}
	result.PercentageScore = float64(result.TotalPoints*100) / float64(result.MaxPoints)
	result.IsPassed = result.PercentageScore >= exam.PassingScore

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.issued[attempt.ID]; exists {
		return nil, ErrDuplicateSubmission
	}
	c.issued[attempt.ID] = result

	return cloneResult(result), nil
}

// Lookup returns the result issued for an attempt, if any.
func (c *Compiler) Lookup(attemptID uuid.UUID) (*model.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.issued[attemptID]
	if !ok {
		return nil, false
	}
	return cloneResult(r), true
}

func (c *Compiler) has(attemptID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.issued[attemptID]
	return ok
}

func cloneResult(r *model.Result) *model.Result {
	cp := *r
	cp.Answers = make([]model.GradedAnswer, len(r.Answers))
	for i, a := range r.Answers {
		a.Submitted = a.Submitted.Clone()
		cp.Answers[i] = a
	}
	if r.Feedback != nil {
		f := *r.Feedback
		cp.Feedback = &f
	}
	return &cp
}
