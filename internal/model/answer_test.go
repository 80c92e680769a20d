package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnswer_UnmarshalInfersKind(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Answer
	}{
		{"null", `null`, Answer{}},
		{"string", `"b"`, ScalarAnswer("b")},
		{"bool", `false`, BoolAnswer(false)},
		{"number", `24`, Answer{Kind: AnswerKindScalar, Scalar: Value{Type: ValueNumber, Text: "24"}}},
		{"object", `{"a":"1","b":2}`, Answer{Kind: AnswerKindMapping, Mapping: map[string]Value{
			"a": StringValue("1"),
			"b": {Type: ValueNumber, Text: "2"},
		}}},
		{"array", `["x","y","z"]`, SequenceAnswer("x", "y", "z")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Answer
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAnswer_UnmarshalRejectsNesting(t *testing.T) {
	var a Answer
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"a":{"b":"c"}}`), &a), ErrAnswerShape)
	assert.ErrorIs(t, json.Unmarshal([]byte(`[["x"]]`), &a), ErrAnswerShape)
	assert.ErrorIs(t, json.Unmarshal([]byte(`[null]`), &a), ErrAnswerShape)
}

func TestDecodeCorrectAnswer_ChecksShapeAgainstType(t *testing.T) {
	a, err := DecodeCorrectAnswer(QuestionTypeMatching, json.RawMessage(`{"a":"1"}`))
	require.NoError(t, err)
	assert.Equal(t, AnswerKindMapping, a.Kind)

	_, err = DecodeCorrectAnswer(QuestionTypeMatching, json.RawMessage(`"a"`))
	assert.ErrorIs(t, err, ErrAnswerShape)

	_, err = DecodeCorrectAnswer(QuestionTypeOrderedSequence, json.RawMessage(`{"0":"x"}`))
	assert.ErrorIs(t, err, ErrAnswerShape)

	_, err = DecodeCorrectAnswer("ESSAY", json.RawMessage(`"x"`))
	assert.Error(t, err)
}

func TestQuestion_JSONKeepsAnswerKey(t *testing.T) {
	q := Question{
		Type:    QuestionTypeOrderedSequence,
		Correct: SequenceAnswer("x", "y"),
		Points:  2,
	}
	raw, err := json.Marshal(q)
	require.NoError(t, err)

	var back Question
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, q.Correct, back.Correct)
	assert.Equal(t, 2, back.Points)

	var broken Question
	assert.Error(t, json.Unmarshal([]byte(`{"question_type":"MATCHING","correct_answer":["x"]}`), &broken))
}

func TestAnswer_CloneDoesNotShareStorage(t *testing.T) {
	orig := MappingAnswer(map[string]string{"a": "1"})
	cp := orig.Clone()
	cp.Mapping["a"] = StringValue("2")
	assert.Equal(t, StringValue("1"), orig.Mapping["a"])
}

func TestAnswer_JSONKeepsScalarTypes(t *testing.T) {
	for _, raw := range []string{`true`, `"true"`, `1.50`, `"1.50"`, `[1,"1",false]`, `{"a":2,"b":"2"}`} {
		var a Answer
		require.NoError(t, json.Unmarshal([]byte(raw), &a), raw)
		out, err := json.Marshal(a)
		require.NoError(t, err)
		assert.JSONEq(t, raw, string(out))
	}
}

func TestValue_Equal(t *testing.T) {
	assert.True(t, NumberValue(1).Equal(Value{Type: ValueNumber, Text: "1.0"}))
	assert.True(t, BoolValue(true).Equal(BoolValue(true)))
	assert.False(t, StringValue("true").Equal(BoolValue(true)))
	assert.False(t, StringValue("1").Equal(NumberValue(1)))
	assert.False(t, StringValue("a").Equal(StringValue("A")))
}

func TestValue_MarshalRejectsBadLiteral(t *testing.T) {
	_, err := json.Marshal(Value{Type: ValueNumber, Text: "one"})
	assert.ErrorIs(t, err, ErrAnswerShape)
}
