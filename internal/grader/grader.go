// Package grader decides whether a submitted answer is correct for a question.
// Every function here is pure: no I/O, no shared state.
package grader

import (
	"strings"

	"github.com/stemsi/exstem-live/internal/model"
)

// Grade reports whether submitted is correct for q. It is total: unknown
// question types and shape mismatches grade as incorrect.
func Grade(q model.Question, submitted model.Answer) bool {
	switch q.Type {
	case model.QuestionTypeSingleChoice, model.QuestionTypeTrueFalse:
		return exactScalar(q.Correct, submitted)
	case model.QuestionTypeShortText:
		return foldedScalar(q.Correct, submitted)
	case model.QuestionTypeMatching:
		return sameMapping(q.Correct, submitted)
	case model.QuestionTypeOrderedSequence:
		return sameSequence(q.Correct, submitted)
	default:
		return false
	}
}

// Points returns the points earned for submitted: all or nothing.
func Points(q model.Question, submitted model.Answer) (bool, int) {
	if Grade(q, submitted) {
		return true, q.Points
	}
	return false, 0
}

func exactScalar(correct, submitted model.Answer) bool {
	if correct.Kind != model.AnswerKindScalar || submitted.Kind != model.AnswerKindScalar {
		return false
	}
	return submitted.Scalar.Equal(correct.Scalar)
}

func foldedScalar(correct, submitted model.Answer) bool {
	if correct.Kind != model.AnswerKindScalar || submitted.Kind != model.AnswerKindScalar {
		return false
	}
	// Folding only applies to text.
	if correct.Scalar.Type != model.ValueString || submitted.Scalar.Type != model.ValueString {
		return submitted.Scalar.Equal(correct.Scalar)
	}
	return strings.EqualFold(strings.TrimSpace(submitted.Scalar.Text), strings.TrimSpace(correct.Scalar.Text))
}

// sameMapping requires an identical key set and equal values.
func sameMapping(correct, submitted model.Answer) bool {
	if correct.Kind != model.AnswerKindMapping || submitted.Kind != model.AnswerKindMapping {
		return false
	}
	if len(submitted.Mapping) != len(correct.Mapping) {
		return false
	}
	for k, want := range correct.Mapping {
		got, ok := submitted.Mapping[k]
		if !ok || !got.Equal(want) {
			return false
		}
	}
	return true
}

// sameSequence requires identical length and element order.
func sameSequence(correct, submitted model.Answer) bool {
	if correct.Kind != model.AnswerKindSequence || submitted.Kind != model.AnswerKindSequence {
		return false
	}
	if len(submitted.Sequence) != len(correct.Sequence) {
		return false
	}
	for i := range correct.Sequence {
		if !submitted.Sequence[i].Equal(correct.Sequence[i]) {
			return false
		}
	}
	return true
}
