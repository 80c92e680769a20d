package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// AnswerKind tags which payload of an Answer is populated.
type AnswerKind string

const (
	AnswerKindNone     AnswerKind = ""
	AnswerKindScalar   AnswerKind = "scalar"
	AnswerKindMapping  AnswerKind = "mapping"
	AnswerKindSequence AnswerKind = "sequence"
)

// ErrAnswerShape is returned when a JSON answer payload cannot be represented
// as a scalar, a flat key→value mapping or a flat list.
var ErrAnswerShape = errors.New("unsupported answer shape")

// ValueType is the JSON type of a scalar value.
type ValueType string

const (
	ValueString ValueType = "string"
	ValueNumber ValueType = "number"
	ValueBool   ValueType = "bool"
)

// Value is a typed JSON scalar. Text holds the string itself, the number
// literal, or "true"/"false".
type Value struct {
	Type ValueType
	Text string
}

// StringValue builds a string value.
func StringValue(v string) Value { return Value{Type: ValueString, Text: v} }

// BoolValue builds a boolean value.
func BoolValue(v bool) Value { return Value{Type: ValueBool, Text: strconv.FormatBool(v)} }

// NumberValue builds a numeric value.
func NumberValue(v float64) Value {
	return Value{Type: ValueNumber, Text: strconv.FormatFloat(v, 'f', -1, 64)}
}

// Equal compares type and value. Numbers compare by magnitude, so 1 equals
// 1.0; a string never equals a number or a boolean.
func (v Value) Equal(o Value) bool {
	if v.Type != o.Type {
		return false
	}
	if v.Type == ValueNumber {
		a, errA := strconv.ParseFloat(v.Text, 64)
		b, errB := strconv.ParseFloat(o.Text, 64)
		if errA == nil && errB == nil {
			return a == b
		}
	}
	return v.Text == o.Text
}

// MarshalJSON renders the value with its JSON type.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Type {
	case ValueBool, ValueNumber:
		if !json.Valid([]byte(v.Text)) {
			return nil, fmt.Errorf("invalid %s literal %q: %w", v.Type, v.Text, ErrAnswerShape)
		}
		return []byte(v.Text), nil
	default:
		return json.Marshal(v.Text)
	}
}

// UnmarshalJSON accepts a JSON string, number or boolean.
func (v *Value) UnmarshalJSON(data []byte) error {
	val, err := decodeValue(data)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

// Answer is the tagged union used for both correct-answer payloads and
// submitted values. Exactly one payload field is meaningful for a given Kind.
type Answer struct {
	Kind     AnswerKind
	Scalar   Value
	Mapping  map[string]Value
	Sequence []Value
}

// ScalarAnswer builds a string scalar answer.
func ScalarAnswer(v string) Answer {
	return Answer{Kind: AnswerKindScalar, Scalar: StringValue(v)}
}

// BoolAnswer builds a boolean scalar answer.
func BoolAnswer(v bool) Answer {
	return Answer{Kind: AnswerKindScalar, Scalar: BoolValue(v)}
}

// NumberAnswer builds a numeric scalar answer.
func NumberAnswer(v float64) Answer {
	return Answer{Kind: AnswerKindScalar, Scalar: NumberValue(v)}
}

// MappingAnswer builds a mapping answer of string values.
func MappingAnswer(m map[string]string) Answer {
	cp := make(map[string]Value, len(m))
	for k, v := range m {
		cp[k] = StringValue(v)
	}
	return Answer{Kind: AnswerKindMapping, Mapping: cp}
}

// SequenceAnswer builds an ordered-sequence answer of string items.
func SequenceAnswer(items ...string) Answer {
	cp := make([]Value, len(items))
	for i, it := range items {
		cp[i] = StringValue(it)
	}
	return Answer{Kind: AnswerKindSequence, Sequence: cp}
}

// IsEmpty reports whether no value was given.
func (a Answer) IsEmpty() bool {
	return a.Kind == AnswerKindNone
}

// Clone returns a deep copy so callers never share map or slice storage.
func (a Answer) Clone() Answer {
	switch a.Kind {
	case AnswerKindMapping:
		cp := make(map[string]Value, len(a.Mapping))
		for k, v := range a.Mapping {
			cp[k] = v
		}
		return Answer{Kind: AnswerKindMapping, Mapping: cp}
	case AnswerKindSequence:
		cp := make([]Value, len(a.Sequence))
		copy(cp, a.Sequence)
		return Answer{Kind: AnswerKindSequence, Sequence: cp}
	default:
		return a
	}
}

// MarshalJSON renders the answer in its natural JSON shape.
func (a Answer) MarshalJSON() ([]byte, error) {
	switch a.Kind {
	case AnswerKindScalar:
		return json.Marshal(a.Scalar)
	case AnswerKindMapping:
		if a.Mapping == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(a.Mapping)
	case AnswerKindSequence:
		if a.Sequence == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(a.Sequence)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON infers the kind from the JSON shape: strings, numbers and
// booleans become scalars, objects become mappings, arrays become sequences.
// Nested containers are rejected.
func (a *Answer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = Answer{}
		return nil
	}

	switch data[0] {
	case '{':
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		m := make(map[string]Value, len(raw))
		for k, v := range raw {
			val, err := decodeValue(v)
			if err != nil {
				return fmt.Errorf("mapping key %q: %w", k, err)
			}
			m[k] = val
		}
		*a = Answer{Kind: AnswerKindMapping, Mapping: m}
		return nil

	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		items := make([]Value, 0, len(raw))
		for i, v := range raw {
			val, err := decodeValue(v)
			if err != nil {
				return fmt.Errorf("sequence item %d: %w", i, err)
			}
			items = append(items, val)
		}
		*a = Answer{Kind: AnswerKindSequence, Sequence: items}
		return nil

	default:
		val, err := decodeValue(data)
		if err != nil {
			return err
		}
		*a = Answer{Kind: AnswerKindScalar, Scalar: val}
		return nil
	}
}

// decodeValue reads a JSON string, number or boolean and keeps its type.
func decodeValue(raw json.RawMessage) (Value, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Value{}, ErrAnswerShape
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, err
		}
		return StringValue(s), nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return Value{}, err
		}
		return BoolValue(b), nil
	case '{', '[', 'n':
		return Value{}, ErrAnswerShape
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return Value{}, err
		}
		return Value{Type: ValueNumber, Text: n.String()}, nil
	}
}

// DecodeCorrectAnswer decodes a catalog correct-answer payload and checks
// that its shape matches what the question type expects.
func DecodeCorrectAnswer(t QuestionType, raw json.RawMessage) (Answer, error) {
	var a Answer
	if err := json.Unmarshal(raw, &a); err != nil {
		return Answer{}, fmt.Errorf("decode correct answer: %w", err)
	}
	want := t.AnswerKind()
	if want == AnswerKindNone {
		return Answer{}, fmt.Errorf("unknown question type %q", t)
	}
	if a.Kind != want {
		return Answer{}, fmt.Errorf("question type %s expects a %s answer, got %q: %w", t, want, a.Kind, ErrAnswerShape)
	}
	return a, nil
}
