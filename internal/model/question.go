package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// QuestionType enumerates the gradable question variants.
type QuestionType string

const (
	QuestionTypeSingleChoice    QuestionType = "SINGLE_CHOICE"
	QuestionTypeTrueFalse       QuestionType = "TRUE_FALSE"
	QuestionTypeShortText       QuestionType = "SHORT_TEXT"
	QuestionTypeMatching        QuestionType = "MATCHING"
	QuestionTypeOrderedSequence QuestionType = "ORDERED_SEQUENCE"
)

// AnswerKind returns the answer shape a question type is graded against.
// Unknown types return AnswerKindNone.
func (t QuestionType) AnswerKind() AnswerKind {
	switch t {
	case QuestionTypeSingleChoice, QuestionTypeTrueFalse, QuestionTypeShortText:
		return AnswerKindScalar
	case QuestionTypeMatching:
		return AnswerKindMapping
	case QuestionTypeOrderedSequence:
		return AnswerKindSequence
	default:
		return AnswerKindNone
	}
}

// Valid reports whether t is a known question type.
func (t QuestionType) Valid() bool {
	return t.AnswerKind() != AnswerKindNone
}

// Difficulty is informational catalog metadata.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Option is a selectable choice for choice-type questions.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question represents a single exam question, including its answer key.
type Question struct {
	ID          uuid.UUID    `json:"id"`
	ExamID      uuid.UUID    `json:"exam_id"`
	Text        string       `json:"question_text"`
	Type        QuestionType `json:"question_type"`
	Options     []Option     `json:"options"`
	Correct     Answer       `json:"correct_answer"`
	Points      int          `json:"points"`
	Explanation string       `json:"explanation,omitempty"`
	Difficulty  Difficulty   `json:"difficulty"`
	OrderNum    int          `json:"order_num"`
}

// UnmarshalJSON decodes the correct answer against the declared question type
// so a cached question can never carry a mismatched answer shape.
func (q *Question) UnmarshalJSON(data []byte) error {
	type alias Question
	aux := struct {
		*alias
		Correct json.RawMessage `json:"correct_answer"`
	}{alias: (*alias)(q)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	correct, err := DecodeCorrectAnswer(q.Type, aux.Correct)
	if err != nil {
		return err
	}
	q.Correct = correct
	return nil
}

// QuestionForStudent is a question without the correct answer, sent to students.
type QuestionForStudent struct {
	ID       uuid.UUID    `json:"id"`
	Text     string       `json:"question_text"`
	Type     QuestionType `json:"question_type"`
	Options  []Option     `json:"options"`
	Points   int          `json:"points"`
	OrderNum int          `json:"order_num"`
}

// ForStudent strips the answer key and explanation.
func (q Question) ForStudent() QuestionForStudent {
	opts := q.Options
	if opts == nil {
		opts = []Option{}
	}
	return QuestionForStudent{
		ID:       q.ID,
		Text:     q.Text,
		Type:     q.Type,
		Options:  opts,
		Points:   q.Points,
		OrderNum: q.OrderNum,
	}
}
