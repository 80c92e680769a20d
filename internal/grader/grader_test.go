package grader

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-live/internal/model"
)

func question(t model.QuestionType, correct model.Answer) model.Question {
	return model.Question{ID: uuid.New(), Type: t, Correct: correct, Points: 1}
}

func TestGrade_RoundTripForEveryType(t *testing.T) {
	questions := []model.Question{
		question(model.QuestionTypeSingleChoice, model.ScalarAnswer("b")),
		question(model.QuestionTypeTrueFalse, model.BoolAnswer(true)),
		question(model.QuestionTypeSingleChoice, model.NumberAnswer(2.5)),
		question(model.QuestionTypeShortText, model.ScalarAnswer("24")),
		question(model.QuestionTypeMatching, model.MappingAnswer(map[string]string{"a": "1", "b": "2"})),
		question(model.QuestionTypeOrderedSequence, model.SequenceAnswer("x", "y", "z")),
	}

	for _, q := range questions {
		t.Run(string(q.Type), func(t *testing.T) {
			assert.True(t, Grade(q, q.Correct.Clone()))
		})
	}
}

func TestGrade_SingleChoiceAndTrueFalseAreExact(t *testing.T) {
	q := question(model.QuestionTypeSingleChoice, model.ScalarAnswer("b"))
	assert.False(t, Grade(q, model.ScalarAnswer("B")))
	assert.False(t, Grade(q, model.ScalarAnswer(" b")))

	tf := question(model.QuestionTypeTrueFalse, model.BoolAnswer(true))
	assert.False(t, Grade(tf, model.BoolAnswer(false)))

	var fromJSON model.Answer
	require.NoError(t, json.Unmarshal([]byte(`true`), &fromJSON))
	assert.True(t, Grade(tf, fromJSON))
}

func TestGrade_ShortTextFoldsCaseAndTrims(t *testing.T) {
	q := question(model.QuestionTypeShortText, model.ScalarAnswer("Jakarta"))

	assert.True(t, Grade(q, model.ScalarAnswer("  jakarta ")))
	assert.True(t, Grade(q, model.ScalarAnswer("JAKARTA")))
	assert.False(t, Grade(q, model.ScalarAnswer("Jakarta Utara")))
}

func TestGrade_Matching(t *testing.T) {
	q := question(model.QuestionTypeMatching, model.MappingAnswer(map[string]string{"a": "1", "b": "2"}))

	tests := []struct {
		name      string
		submitted model.Answer
		want      bool
	}{
		{"all pairs match", model.MappingAnswer(map[string]string{"a": "1", "b": "2"}), true},
		{"one value differs", model.MappingAnswer(map[string]string{"a": "1", "b": "3"}), false},
		{"missing key", model.MappingAnswer(map[string]string{"a": "1"}), false},
		{"extra key", model.MappingAnswer(map[string]string{"a": "1", "b": "2", "c": "3"}), false},
		{"scalar instead of mapping", model.ScalarAnswer("a1b2"), false},
		{"sequence instead of mapping", model.SequenceAnswer("1", "2"), false},
		{"empty", model.Answer{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Grade(q, tt.submitted))
		})
	}
}

func TestGrade_OrderedSequence(t *testing.T) {
	q := question(model.QuestionTypeOrderedSequence, model.SequenceAnswer("x", "y", "z"))

	assert.True(t, Grade(q, model.SequenceAnswer("x", "y", "z")))
	assert.False(t, Grade(q, model.SequenceAnswer("y", "x", "z")))
	assert.False(t, Grade(q, model.SequenceAnswer("x", "y")))
	assert.False(t, Grade(q, model.SequenceAnswer("x", "y", "z", "w")))
	assert.False(t, Grade(q, model.MappingAnswer(map[string]string{"0": "x"})))
}

func TestGrade_FailsClosed(t *testing.T) {
	unknown := model.Question{Type: "ESSAY", Correct: model.ScalarAnswer("anything"), Points: 1}
	assert.False(t, Grade(unknown, model.ScalarAnswer("anything")))

	// A malformed catalog entry must not panic either.
	broken := question(model.QuestionTypeMatching, model.Answer{})
	assert.NotPanics(t, func() {
		assert.False(t, Grade(broken, model.MappingAnswer(nil)))
	})
}

func TestGrade_Deterministic(t *testing.T) {
	q := question(model.QuestionTypeMatching, model.MappingAnswer(map[string]string{"a": "1", "b": "2", "c": "3"}))
	submitted := model.MappingAnswer(map[string]string{"c": "3", "a": "1", "b": "2"})

	for i := 0; i < 100; i++ {
		require.True(t, Grade(q, submitted))
	}
}

func TestPoints(t *testing.T) {
	q := question(model.QuestionTypeShortText, model.ScalarAnswer("24"))
	q.Points = 5

	ok, pts := Points(q, model.ScalarAnswer("24"))
	assert.True(t, ok)
	assert.Equal(t, 5, pts)

	ok, pts = Points(q, model.ScalarAnswer("25"))
	assert.False(t, ok)
	assert.Zero(t, pts)
}

func TestGrade_ScalarTypesMustMatch(t *testing.T) {
	decode := func(raw string) model.Answer {
		var a model.Answer
		require.NoError(t, json.Unmarshal([]byte(raw), &a))
		return a
	}

	tf := question(model.QuestionTypeTrueFalse, model.BoolAnswer(true))
	assert.True(t, Grade(tf, decode(`true`)))
	assert.False(t, Grade(tf, decode(`"true"`)))
	assert.False(t, Grade(tf, decode(`false`)))

	quoted := question(model.QuestionTypeTrueFalse, model.ScalarAnswer("true"))
	assert.False(t, Grade(quoted, decode(`true`)))

	num := question(model.QuestionTypeSingleChoice, model.NumberAnswer(1))
	assert.True(t, Grade(num, decode(`1`)))
	assert.True(t, Grade(num, decode(`1.0`)))
	assert.True(t, Grade(num, decode(`1e0`)))
	assert.False(t, Grade(num, decode(`"1"`)))
	assert.False(t, Grade(num, decode(`2`)))

	short := question(model.QuestionTypeShortText, model.ScalarAnswer("24"))
	assert.False(t, Grade(short, decode(`24`)))
	assert.True(t, Grade(short, decode(`" 24 "`)))
}

func TestGrade_ContainerItemsAreTyped(t *testing.T) {
	var correct, loose, exact model.Answer
	require.NoError(t, json.Unmarshal([]byte(`[1, true, "x"]`), &correct))
	require.NoError(t, json.Unmarshal([]byte(`["1", "true", "x"]`), &loose))
	require.NoError(t, json.Unmarshal([]byte(`[1.0, true, "x"]`), &exact))

	seq := question(model.QuestionTypeOrderedSequence, correct)
	assert.False(t, Grade(seq, loose))
	assert.True(t, Grade(seq, exact))

	var pairs, stringly model.Answer
	require.NoError(t, json.Unmarshal([]byte(`{"a":1,"b":false}`), &pairs))
	require.NoError(t, json.Unmarshal([]byte(`{"a":"1","b":"false"}`), &stringly))
	m := question(model.QuestionTypeMatching, pairs)
	assert.True(t, Grade(m, pairs.Clone()))
	assert.False(t, Grade(m, stringly))
}
