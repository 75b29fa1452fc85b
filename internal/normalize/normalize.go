// Package normalize turns published cell text into typed values.
package normalize

import (
	"bytes"
	"covid19au/internal/snapshot"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

type Kind uint8

const (
	// Absent means nothing was published, it is distinct from zero and
	// from an empty string.
	Absent Kind = iota
	Number
	Text
)

func (k Kind) String() string {
	switch k {
	case Absent:
		return "absent"
	case Number:
		return "number"
	case Text:
		return "text"
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Value is a normalized cell, the zero value is absent.
type Value struct {
	kind Kind
	num  float64
	text string
}

func AbsentValue() Value {
	return Value{}
}

func NumberValue(n float64) Value {
	return Value{kind: Number, num: n}
}

func TextValue(s string) Value {
	return Value{kind: Text, text: s}
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) IsAbsent() bool {
	return v.kind == Absent
}

func (v Value) Float() (float64, bool) {
	return v.num, v.kind == Number
}

func (v Value) Text() (string, bool) {
	return v.text, v.kind == Text
}

// CSV is the tabular representation, absent is an empty field.
func (v Value) CSV() string {
	switch v.kind {
	case Number:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case Text:
		return v.text
	}
	return ""
}

func (v Value) String() string {
	if v.kind == Absent {
		return "<absent>"
	}
	return v.CSV()
}

// MarshalJSON writes absent as null, numbers as json numbers and text as strings.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case Number:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return []byte("null"), nil
		}
		return []byte(strconv.FormatFloat(v.num, 'f', -1, 64)), nil
	case Text:
		return json.Marshal(v.text)
	}
	return []byte("null"), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*v = AbsentValue()
	case len(data) > 0 && data[0] == '"':
		var s string
		err := json.Unmarshal(data, &s)
		if err != nil {
			return err
		}
		*v = TextValue(s)
	default:
		var n float64
		err := json.Unmarshal(data, &n)
		if err != nil {
			return fmt.Errorf("value must be a string, number or null: %s", data)
		}
		*v = NumberValue(n)
	}
	return nil
}

var numericPattern = regexp.MustCompile(`^[0-9.]+$`)

// placeholders upstream uses in place of a figure when none was published
var placeholders = map[string]bool{
	"-": true,
	"–": true,
	"—": true,
}

// String normalizes a raw cell text. Thousands separators and percent signs
// are stripped, if what remains apart from surrounding whitespace is made of
// digits and dots only it becomes a number. Anything else passes through
// unchanged, including its separators.
func String(raw string) Value {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || placeholders[trimmed] {
		return AbsentValue()
	}

	stripped := strings.NewReplacer(",", "", "%", "").Replace(trimmed)
	if numericPattern.MatchString(stripped) {
		n, err := strconv.ParseFloat(stripped, 64)
		if err == nil {
			return NumberValue(n)
		}
	}
	return TextValue(raw)
}

// Cell normalizes a raw cell, cells published without a value are absent.
func Cell(c snapshot.Cell) Value {
	if c.Missing {
		return AbsentValue()
	}
	return String(c.Text)
}

// CSVField is the inverse of Value.CSV for values produced by String.
func CSVField(field string) Value {
	return String(field)
}
