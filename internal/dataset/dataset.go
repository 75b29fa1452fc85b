// Package dataset is the master table of every published day: one row per
// publication date, one column per canonical key ever seen.
package dataset

import (
	"covid19au/internal/normalize"
	"covid19au/internal/reduce"
	"covid19au/internal/snapshot"
	"slices"
)

// DateColumn is the key column, it is always the first column.
const DateColumn = "DATE"

type Row struct {
	Date   snapshot.Date
	Values map[string]normalize.Value
}

// Get returns the value of a column, columns the row has no value for are absent.
func (r Row) Get(column string) normalize.Value {
	return r.Values[column]
}

type Dataset struct {
	// columns holds every known key except DateColumn in first-seen order,
	// it only ever grows.
	columns []string
	known   map[string]bool
	rows    []Row
	index   map[snapshot.Date]int
}

func New() *Dataset {
	return &Dataset{
		known: map[string]bool{},
		index: map[snapshot.Date]int{},
	}
}

// Columns returns DateColumn followed by every known key.
func (d *Dataset) Columns() []string {
	return append([]string{DateColumn}, d.columns...)
}

// Keys returns every known key, without DateColumn.
func (d *Dataset) Keys() []string {
	return slices.Clone(d.columns)
}

func (d *Dataset) Rows() []Row {
	return slices.Clone(d.rows)
}

func (d *Dataset) Len() int {
	return len(d.rows)
}

func (d *Dataset) Row(date snapshot.Date) (Row, bool) {
	i, ok := d.index[date]
	if !ok {
		return Row{}, false
	}
	return d.rows[i], true
}

func (d *Dataset) addColumn(key string) {
	if key == DateColumn || d.known[key] {
		return
	}
	d.known[key] = true
	d.columns = append(d.columns, key)
}

func (d *Dataset) put(date snapshot.Date, values map[string]normalize.Value) bool {
	row := Row{Date: date, Values: values}
	i, ok := d.index[date]
	if ok {
		d.rows[i] = row
		return true
	}
	d.index[date] = len(d.rows)
	d.rows = append(d.rows, row)
	return false
}

// Upsert inserts the flat row of a snapshot, replacing the whole row of the
// same date if there is one: keys missing from flat do not survive from the
// old row. Unseen keys become new columns in flat key order. Reports whether
// a row was replaced.
func (d *Dataset) Upsert(flat reduce.Flat) bool {
	values := make(map[string]normalize.Value, len(flat.Keys))
	for _, key := range flat.Keys {
		d.addColumn(key)
		values[key] = flat.Values[key]
	}
	return d.put(flat.Date, values)
}
