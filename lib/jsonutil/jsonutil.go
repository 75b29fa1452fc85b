// Package jsonutil reads and writes json objects whose key order matters,
// encoding/json only offers maps for that which lose the order.
package jsonutil

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EachField calls fn for every key of a json object in document order.
func EachField(data []byte, fn func(key string, value json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected json object, got %v", tok)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		var value json.RawMessage
		err = dec.Decode(&value)
		if err != nil {
			return fmt.Errorf("decode value of %q: %w", key, err)
		}
		err = fn(key, value)
		if err != nil {
			return err
		}
	}

	_, err = dec.Token()
	return err
}

// ObjectWriter builds a json object one field at a time.
type ObjectWriter struct {
	buf    bytes.Buffer
	fields int
	err    error
}

func (w *ObjectWriter) Field(key string, value any) {
	if w.err != nil {
		return
	}
	if w.fields == 0 {
		w.buf.WriteByte('{')
	} else {
		w.buf.WriteByte(',')
	}
	w.fields++

	encodedKey, err := json.Marshal(key)
	if err != nil {
		w.err = err
		return
	}
	w.buf.Write(encodedKey)
	w.buf.WriteByte(':')

	encodedValue, err := json.Marshal(value)
	if err != nil {
		w.err = fmt.Errorf("encode value of %q: %w", key, err)
		return
	}
	w.buf.Write(encodedValue)
}

func (w *ObjectWriter) Bytes() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	if w.fields == 0 {
		return []byte("{}"), nil
	}
	return append(w.buf.Bytes(), '}'), nil
}
