package pipeline

import (
	"context"
	"covid19au/internal/assert"
	"covid19au/internal/components/telemetry"
	"covid19au/internal/dataset"
	"covid19au/internal/keymap"
	"covid19au/internal/rawstore"
	"covid19au/internal/reduce"
	"covid19au/internal/snapshot"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("covid19au.internal.pipeline")

const (
	report_runner_run    = "runner.run"
	report_runner_raw    = "runner.raw"
	report_runner_save   = "runner.save"
	report_runner_reduce = "runner.reduce"
)

// Runner owns a data directory: the dataset files and the raw store live
// side by side in it.
type Runner struct {
	dir     string
	store   rawstore.Store
	reducer reduce.Reducer
	tel     telemetry.API
}

func NewRunner(dir string, registry *keymap.Registry, tel telemetry.API) Runner {
	assert.NotEmptyStr("dir", dir)
	assert.NotNil(registry)
	assert.NotNil(tel)
	return Runner{
		dir:     dir,
		store:   rawstore.New(dir),
		reducer: reduce.NewReducer(registry, tel),
		tel:     telemetry.NewScopedAPI("pipeline", tel),
	}
}

func (r Runner) Store() rawstore.Store {
	return r.store
}

type Result struct {
	RunID string
	Date  snapshot.Date
	// Keys is the number of keys the snapshot reduced to.
	Keys int
	// Replaced is set when the date was already in the dataset.
	Replaced bool
	Columns  int
	Rows     int
	// Raw lists the raw artifacts written by this run, artifacts already
	// stored by an earlier run are not rewritten.
	Raw []string
}

// Run fetches one snapshot and merges it into the dataset. Nothing is
// written unless the snapshot was fetched and reduced, the dataset files are
// written last and the raw artifacts of the run are removed again when they
// cannot be.
func (r Runner) Run(ctx context.Context, fetcher Fetcher) (Result, error) {
	result := Result{RunID: uuid.NewString()}
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()
	span.SetAttributes(attribute.String("run_id", result.RunID))

	r.tel.ReportDebug("run started", "run_id", result.RunID)

	capture, err := fetcher.FetchSnapshot(ctx)
	if err != nil {
		r.tel.ReportBroken(report_runner_run, err, result.RunID)
		return result, fmt.Errorf("fetch snapshot: %w", err)
	}

	flat, err := r.reducer.Reduce(capture.Snapshot)
	if err != nil {
		r.tel.ReportBroken(report_runner_reduce, err, result.RunID)
		return result, err
	}
	result.Date = flat.Date
	result.Keys = len(flat.Keys)
	span.SetAttributes(attribute.String("date", flat.Date.String()))

	d, err := dataset.Load(r.dir)
	if err != nil {
		r.tel.ReportBroken(report_runner_run, err, result.RunID)
		return result, fmt.Errorf("load dataset: %w", err)
	}

	written, err := r.writeRaw(capture)
	if err != nil {
		r.tel.ReportBroken(report_runner_raw, err, result.RunID)
		return result, errors.Join(err, written.rollback())
	}

	result.Replaced = d.Upsert(flat)
	err = dataset.Save(r.dir, d)
	if err != nil {
		r.tel.ReportBroken(report_runner_save, err, result.RunID)
		return result, errors.Join(fmt.Errorf("save dataset: %w", err), written.rollback())
	}
	result.Raw = written.names
	result.Columns = len(d.Columns())
	result.Rows = d.Len()

	r.tel.ReportCount(report_runner_run, int64(result.Keys))
	return result, nil
}

// rawWrites tracks the raw artifacts a run wrote so a failed run can take
// them back.
type rawWrites struct {
	names []string
	undo  []func() error
}

func (w *rawWrites) add(name string, undo func() error) {
	w.names = append(w.names, name)
	w.undo = append(w.undo, undo)
}

func (w rawWrites) rollback() error {
	var errs []error
	for i := len(w.undo) - 1; i >= 0; i-- {
		err := w.undo[i]()
		if err != nil {
			errs = append(errs, fmt.Errorf("remove raw %s: %w", w.names[i], err))
		}
	}
	return errors.Join(errs...)
}

func (r Runner) writeRaw(capture Capture) (rawWrites, error) {
	date := capture.Snapshot.PublicationDate
	var written rawWrites
	record := func(name string, ok bool, err error, undo func() error) error {
		if err != nil {
			return fmt.Errorf("write raw %s: %w", name, err)
		}
		if ok {
			written.add(name, undo)
		} else {
			r.tel.ReportDebug("raw artifact already stored", name)
		}
		return nil
	}

	if len(capture.Document) > 0 {
		ok, err := r.store.WriteDocument(date, capture.Document)
		err = record(fmt.Sprintf("%s document", date), ok, err, func() error {
			return r.store.RemoveDocument(date)
		})
		if err != nil {
			return written, err
		}
	}
	if len(capture.Markup) > 0 {
		ok, err := r.store.WriteMarkup(date, capture.Markup)
		err = record(fmt.Sprintf("%s markup", date), ok, err, func() error {
			return r.store.RemoveMarkup(date)
		})
		if err != nil {
			return written, err
		}
	}
	for _, table := range capture.Snapshot.Tables {
		// a table missing upstream must not take the place of a later capture
		if len(table.Rows) == 0 {
			continue
		}
		ok, err := r.store.WriteTable(date, table)
		err = record(fmt.Sprintf("%s %s", date, table.Name), ok, err, func() error {
			return r.store.RemoveTable(date, table.Name)
		})
		if err != nil {
			return written, err
		}
	}
	return written, nil
}
