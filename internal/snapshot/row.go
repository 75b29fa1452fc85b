package snapshot

import (
	"bytes"
	"covid19au/lib/jsonutil"
	"encoding/json"
	"fmt"
	"strconv"
)

// Cell is a single value exactly as published.
type Cell struct {
	Text string
	// Numeric is set when upstream tagged the value as a number, Text then
	// holds its decimal representation.
	Numeric bool
	// Missing is set when upstream published no value at all.
	Missing bool
}

func TextCell(text string) Cell {
	return Cell{Text: text}
}

func NumberCell(n float64) Cell {
	return Cell{Text: strconv.FormatFloat(n, 'f', -1, 64), Numeric: true}
}

func MissingCell() Cell {
	return Cell{Missing: true}
}

func (c Cell) MarshalJSON() ([]byte, error) {
	if c.Missing {
		return []byte("null"), nil
	}
	if c.Numeric {
		if _, err := strconv.ParseFloat(c.Text, 64); err == nil {
			return []byte(c.Text), nil
		}
	}
	return json.Marshal(c.Text)
}

func (c *Cell) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*c = MissingCell()
	case len(data) > 0 && data[0] == '"':
		var text string
		err := json.Unmarshal(data, &text)
		if err != nil {
			return err
		}
		*c = TextCell(text)
	default:
		var n json.Number
		err := json.Unmarshal(data, &n)
		if err != nil {
			return fmt.Errorf("cell must be a string, number or null: %s", data)
		}
		*c = Cell{Text: n.String(), Numeric: true}
	}
	return nil
}

type Field struct {
	Label string
	Cell  Cell
}

// Row maps raw column labels to cells, keeping the column order.
type Row []Field

func (r Row) Get(label string) (Cell, bool) {
	for _, f := range r {
		if f.Label == label {
			return f.Cell, true
		}
	}
	return Cell{}, false
}

func (r Row) MarshalJSON() ([]byte, error) {
	var w jsonutil.ObjectWriter
	for _, f := range r {
		w.Field(f.Label, f.Cell)
	}
	return w.Bytes()
}

func (r *Row) UnmarshalJSON(data []byte) error {
	out := Row{}
	err := jsonutil.EachField(data, func(key string, value json.RawMessage) error {
		var cell Cell
		err := cell.UnmarshalJSON(value)
		if err != nil {
			return fmt.Errorf("column %q: %w", key, err)
		}
		out = append(out, Field{Label: key, Cell: cell})
		return nil
	})
	if err != nil {
		return err
	}
	*r = out
	return nil
}
