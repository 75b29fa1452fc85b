// Package reduce flattens every table of a snapshot into one row of
// canonical keys.
package reduce

import (
	"covid19au/internal/assert"
	"covid19au/internal/components/telemetry"
	"covid19au/internal/keymap"
	"covid19au/internal/normalize"
	"covid19au/internal/snapshot"
	"errors"
	"fmt"
)

const (
	report_reducer_reduce    = "reducer.reduce"
	report_reducer_table     = "reducer.table"
	report_reducer_collision = "reducer.collision"
	report_reducer_keys      = "reducer.keys"
)

// ErrDateResolution is returned for snapshots without a publication date,
// nothing may be written for such a snapshot.
var ErrDateResolution = errors.New("snapshot has no publication date")

// Flat is the reduction of one snapshot: canonical keys to values, keys in
// the order they were first produced.
type Flat struct {
	Date   snapshot.Date
	Keys   []string
	Values map[string]normalize.Value
}

func newFlat(date snapshot.Date) Flat {
	return Flat{Date: date, Values: map[string]normalize.Value{}}
}

func (f *Flat) set(key string, value normalize.Value) {
	if _, ok := f.Values[key]; !ok {
		f.Keys = append(f.Keys, key)
	}
	f.Values[key] = value
}

func (f Flat) Get(key string) (normalize.Value, bool) {
	v, ok := f.Values[key]
	return v, ok
}

type Reducer struct {
	registry *keymap.Registry
	tel      telemetry.API
}

func NewReducer(registry *keymap.Registry, tel telemetry.API) Reducer {
	assert.NotNil(registry)
	assert.NotNil(tel)
	return Reducer{
		registry: registry,
		tel:      telemetry.NewScopedAPI("reduce", tel),
	}
}

// Table reduces a single table. Rows without a context cell or whose context
// is outside the allow-lists are skipped, so are labels with no registered
// key. Within a table the last value written to a key wins.
func (r Reducer) Table(table snapshot.RawTable) Flat {
	out := newFlat(snapshot.Date{})
	if _, ok := r.registry.Schema(table.Name); !ok {
		if len(table.Rows) > 0 {
			r.tel.ReportWarning(report_reducer_table, fmt.Errorf("%w: %s", keymap.ErrUnknownTable, table.Name))
		}
		return out
	}

	for i, row := range table.Rows {
		ctx, err := r.registry.ResolveContext(table.Name, row)
		if err != nil {
			r.tel.ReportDebug("skipping row", table.Name, i, err)
			continue
		}

		for _, f := range row {
			if r.registry.IsContextLabel(table.Name, f.Label) {
				continue
			}
			key, ok := r.registry.Key(table.Name, f.Label, ctx)
			if !ok {
				r.tel.ReportDebug("unmapped label", table.Name, f.Label)
				continue
			}
			out.set(key, normalize.Cell(f.Cell))
		}

		for _, key := range r.registry.RetiredKeys(table.Name, ctx) {
			if _, ok := out.Values[key]; !ok {
				out.set(key, normalize.AbsentValue())
			}
		}
	}
	return out
}

// Reduce merges the reduction of every table of a snapshot, in table order.
// A key produced by more than one table is reported as a collision and the
// later table wins, an absent value never replaces a present one from
// another table.
func (r Reducer) Reduce(s snapshot.RawSnapshot) (Flat, error) {
	if s.PublicationDate.IsZero() {
		r.tel.ReportBroken(report_reducer_reduce, ErrDateResolution)
		return Flat{}, ErrDateResolution
	}

	out := newFlat(s.PublicationDate)
	producedBy := map[string]snapshot.TableName{}
	for _, table := range s.Tables {
		part := r.Table(table)
		for _, key := range part.Keys {
			value := part.Values[key]

			previous, produced := producedBy[key]
			if produced && previous != table.Name {
				if value.IsAbsent() {
					continue
				}
				r.tel.ReportWarning(
					report_reducer_collision,
					fmt.Errorf("key %s is produced by both %s and %s", key, previous, table.Name),
				)
			}

			out.set(key, value)
			if !value.IsAbsent() {
				producedBy[key] = table.Name
			}
		}
	}

	r.tel.ReportCount(report_reducer_keys, int64(len(out.Keys)))
	return out, nil
}
