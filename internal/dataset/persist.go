package dataset

import (
	"bytes"
	"covid19au/internal/normalize"
	"covid19au/internal/snapshot"
	"covid19au/lib/jsonutil"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	CSVName  = "all.csv"
	JSONName = "all.json"
)

// WriteCSV writes the tabular form: a header of every column then one record
// per row, absent values are empty fields.
func (d *Dataset) WriteCSV(w io.Writer) error {
	out := csv.NewWriter(w)
	columns := d.Columns()
	err := out.Write(columns)
	if err != nil {
		return err
	}

	record := make([]string, len(columns))
	for _, row := range d.rows {
		record[0] = row.Date.String()
		for i, key := range d.columns {
			record[i+1] = row.Get(key).CSV()
		}
		err = out.Write(record)
		if err != nil {
			return err
		}
	}
	out.Flush()
	return out.Error()
}

// WriteJSON writes the structured form: an array of objects holding every
// column in column order, absent values are null.
func (d *Dataset) WriteJSON(w io.Writer) error {
	var buf bytes.Buffer
	buf.WriteString("[")
	for i, row := range d.rows {
		if i > 0 {
			buf.WriteString(",")
		}
		buf.WriteString("\n")

		var obj jsonutil.ObjectWriter
		obj.Field(DateColumn, row.Date.String())
		for _, key := range d.columns {
			obj.Field(key, row.Get(key))
		}
		encoded, err := obj.Bytes()
		if err != nil {
			return fmt.Errorf("encode row %s: %w", row.Date, err)
		}
		buf.Write(encoded)
	}
	if len(d.rows) > 0 {
		buf.WriteString("\n")
	}
	buf.WriteString("]\n")

	_, err := w.Write(buf.Bytes())
	return err
}

// ReadJSON reads the structured form. Rows may lack columns, as older files
// do, columns are then collected in first-seen order across rows.
func ReadJSON(r io.Reader) (*Dataset, error) {
	dec := json.NewDecoder(r)
	var rows []json.RawMessage
	err := dec.Decode(&rows)
	if err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}

	d := New()
	for i, raw := range rows {
		var date snapshot.Date
		values := map[string]normalize.Value{}
		err := jsonutil.EachField(raw, func(key string, value json.RawMessage) error {
			if key == DateColumn {
				var s string
				err := json.Unmarshal(value, &s)
				if err != nil {
					return err
				}
				date, err = snapshot.ParseDate(s)
				return err
			}
			var v normalize.Value
			err := v.UnmarshalJSON(value)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			d.addColumn(key)
			values[key] = v
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		if date.IsZero() {
			return nil, fmt.Errorf("row %d: missing %s", i, DateColumn)
		}
		d.put(date, values)
	}
	return d, nil
}

// ReadCSV reads the tabular form, empty fields are absent.
func ReadCSV(r io.Reader) (*Dataset, error) {
	in := csv.NewReader(r)
	header, err := in.Read()
	if errors.Is(err, io.EOF) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	dateIdx := -1
	d := New()
	for i, column := range header {
		if column == DateColumn {
			dateIdx = i
			continue
		}
		d.addColumn(column)
	}
	if dateIdx < 0 {
		return nil, fmt.Errorf("header has no %s column", DateColumn)
	}

	for line := 2; ; line++ {
		record, err := in.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		date, err := snapshot.ParseDate(record[dateIdx])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		values := map[string]normalize.Value{}
		for i, field := range record {
			if i == dateIdx {
				continue
			}
			values[header[i]] = normalize.CSVField(field)
		}
		d.put(date, values)
	}
	return d, nil
}

func readFile(path string, read func(io.Reader) (*Dataset, error)) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	d, err := read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// Load reads the dataset persisted in dir. The structured form is preferred
// since it keeps text and absent values apart, the tabular form is used when
// it is the only one. An empty dataset is returned when there is neither.
func Load(dir string) (*Dataset, error) {
	d, err := readFile(filepath.Join(dir, JSONName), ReadJSON)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	d, err = readFile(filepath.Join(dir, CSVName), ReadCSV)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return New(), nil
}

// Save writes both forms of the dataset to dir. Each file is written to a
// temporary file first and renamed over the previous one, all.json last
// since Load prefers it. A failed save leaves the previous files and no
// temporary files behind.
func Save(dir string, d *Dataset) error {
	var csvBuf, jsonBuf bytes.Buffer
	err := d.WriteCSV(&csvBuf)
	if err != nil {
		return fmt.Errorf("encode %s: %w", CSVName, err)
	}
	err = d.WriteJSON(&jsonBuf)
	if err != nil {
		return fmt.Errorf("encode %s: %w", JSONName, err)
	}

	return WriteAtomic(dir, []File{
		{Name: CSVName, Contents: csvBuf.Bytes()},
		{Name: JSONName, Contents: jsonBuf.Bytes()},
	})
}
