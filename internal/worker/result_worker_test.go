package worker

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-live/internal/model"
)

func TestCopyRows(t *testing.T) {
	started := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	r := &model.Result{
		ID:        uuid.New(),
		AttemptID: uuid.New(),
		ExamID:    uuid.New(),
		StudentID: 3,
		Answers: []model.GradedAnswer{
			{QuestionID: uuid.New(), Submitted: model.ScalarAnswer("b"), IsCorrect: true, PointsEarned: 2},
			{QuestionID: uuid.New(), Submitted: model.MappingAnswer(map[string]string{"a": "1"})},
			{QuestionID: uuid.New()},
		},
		TotalPoints: 2,
		MaxPoints:   4,
		StartedAt:   started,
		CompletedAt: started.Add(time.Minute),
	}

	results, answers, err := copyRows([]*model.Result{r})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Len(t, results[0], len(resultColumns))
	require.Len(t, answers, 3)
	for i, row := range answers {
		assert.Len(t, row, len(gradedAnswerColumns))
		assert.Equal(t, i, row[2])
	}
	assert.Equal(t, `"b"`, string(answers[0][3].([]byte)))
	assert.Equal(t, `{"a":"1"}`, string(answers[1][3].([]byte)))
	assert.Equal(t, `null`, string(answers[2][3].([]byte)))
}

func TestAttemptUpdates(t *testing.T) {
	submitted := &model.Result{AttemptID: uuid.New(), TimeSpentSeconds: 30}
	expired := &model.Result{AttemptID: uuid.New(), Expired: true, TimeSpentSeconds: 600}

	ids, statuses, _, _, elapsed := attemptUpdates([]*model.Result{submitted, expired})
	assert.Equal(t, []uuid.UUID{submitted.AttemptID, expired.AttemptID}, ids)
	assert.Equal(t, []string{"SUBMITTED", "EXPIRED"}, statuses)
	assert.Equal(t, []int{30, 600}, elapsed)
}

func TestJoinColumns(t *testing.T) {
	assert.Equal(t, "a, b, c", joinColumns([]string{"a", "b", "c"}))
	assert.Equal(t, "", joinColumns(nil))
}
