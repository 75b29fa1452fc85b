package pipeline

import (
	"context"
	"covid19au/internal/dataset"
	"covid19au/internal/extract"
	"covid19au/internal/snapshot"
	"fmt"
	"slices"
)

const (
	report_runner_backfill = "runner.backfill"
	report_runner_split    = "runner.split"
)

// Source selects the raw artifacts a backfill replays.
type Source string

const (
	SourceTables    Source = "tables"
	SourceMarkup    Source = "markup"
	SourceDocuments Source = "documents"
)

func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceTables, SourceMarkup, SourceDocuments:
		return Source(s), nil
	}
	return "", fmt.Errorf("unknown backfill source %q", s)
}

type BackfillResult struct {
	Snapshots int
	Columns   int
	Rows      int
}

// Backfill replays every stored snapshot of a kind into the dataset, in
// ascending date order. With rebuild the dataset is built from nothing,
// otherwise the replayed dates replace their rows in the stored dataset.
func (r Runner) Backfill(ctx context.Context, source Source, rebuild bool) (BackfillResult, error) {
	ctx, span := tracer.Start(ctx, "Backfill")
	defer span.End()

	snapshots, err := r.Snapshots(ctx, source)
	if err != nil {
		r.tel.ReportBroken(report_runner_backfill, err, source)
		return BackfillResult{}, err
	}

	d := dataset.New()
	if !rebuild {
		d, err = dataset.Load(r.dir)
		if err != nil {
			return BackfillResult{}, fmt.Errorf("load dataset: %w", err)
		}
	}

	for _, snap := range snapshots {
		flat, err := r.reducer.Reduce(snap)
		if err != nil {
			r.tel.ReportWarning(report_runner_backfill, err)
			continue
		}
		d.Upsert(flat)
	}

	err = dataset.Save(r.dir, d)
	if err != nil {
		r.tel.ReportBroken(report_runner_save, err)
		return BackfillResult{}, fmt.Errorf("save dataset: %w", err)
	}
	r.tel.ReportCount(report_runner_backfill, int64(len(snapshots)))
	return BackfillResult{
		Snapshots: len(snapshots),
		Columns:   len(d.Columns()),
		Rows:      d.Len(),
	}, nil
}

// Snapshots rebuilds the stored snapshots of a kind, in ascending date
// order.
func (r Runner) Snapshots(ctx context.Context, source Source) ([]snapshot.RawSnapshot, error) {
	switch source {
	case SourceTables:
		return r.tableSnapshots()
	case SourceMarkup:
		return r.markupSnapshots(ctx)
	case SourceDocuments:
		return r.documentSnapshots(ctx)
	}
	return nil, fmt.Errorf("unknown backfill source %q", source)
}

func tableOrder(name snapshot.TableName) int {
	i := slices.Index(snapshot.Tables, name)
	if i < 0 {
		return len(snapshot.Tables)
	}
	return i
}

// tableSnapshots groups the stored tables by the date written inside them,
// files without one are skipped.
func (r Runner) tableSnapshots() ([]snapshot.RawSnapshot, error) {
	names, err := r.store.TableFiles()
	if err != nil {
		return nil, err
	}

	byDate := map[snapshot.Date]*snapshot.RawSnapshot{}
	for _, name := range names {
		f, err := r.store.ReadTableFile(name)
		if err != nil {
			r.tel.ReportWarning(report_runner_backfill, err)
			continue
		}
		if f.AsAtDate == "" {
			r.tel.ReportWarning(report_runner_backfill, fmt.Errorf("%s: no as at date", name))
			continue
		}
		date, err := snapshot.ParseDate(f.AsAtDate)
		if err != nil {
			r.tel.ReportWarning(report_runner_backfill, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if _, err := snapshot.ParseTableName(string(f.Type)); err != nil {
			r.tel.ReportWarning(report_runner_backfill, fmt.Errorf("%s: %w", name, err))
			continue
		}

		snap, ok := byDate[date]
		if !ok {
			snap = &snapshot.RawSnapshot{PublicationDate: date}
			byDate[date] = snap
		}
		snap.Tables = append(snap.Tables, f.Table())
	}

	out := make([]snapshot.RawSnapshot, 0, len(byDate))
	for _, snap := range byDate {
		slices.SortStableFunc(snap.Tables, func(a, b snapshot.RawTable) int {
			return tableOrder(a.Name) - tableOrder(b.Name)
		})
		out = append(out, *snap)
	}
	slices.SortFunc(out, func(a, b snapshot.RawSnapshot) int {
		return a.PublicationDate.Compare(b.PublicationDate)
	})
	return out, nil
}

func (r Runner) markupSnapshots(ctx context.Context) ([]snapshot.RawSnapshot, error) {
	dates, err := r.store.Markups()
	if err != nil {
		return nil, err
	}
	extractor := extract.NewExtractor(r.tel)

	var out []snapshot.RawSnapshot
	for _, date := range dates {
		markup, err := r.store.ReadMarkup(date)
		if err != nil {
			return nil, err
		}
		tables, _, err := extractor.MarkupBytes(ctx, markup)
		if err != nil {
			r.tel.ReportWarning(report_runner_backfill, fmt.Errorf("%s: %w", date, err))
			continue
		}
		out = append(out, snapshot.RawSnapshot{PublicationDate: date, Tables: tables})
	}
	return out, nil
}

func (r Runner) documentSnapshots(ctx context.Context) ([]snapshot.RawSnapshot, error) {
	dates, err := r.store.Documents()
	if err != nil {
		return nil, err
	}
	extractor := extract.NewExtractor(r.tel)

	var out []snapshot.RawSnapshot
	for _, date := range dates {
		contents, err := r.store.ReadDocument(date)
		if err != nil {
			return nil, err
		}
		doc, err := extract.ParseDocument(contents)
		if err != nil {
			r.tel.ReportWarning(report_runner_backfill, fmt.Errorf("%s: %w", date, err))
			continue
		}
		out = append(out, snapshot.RawSnapshot{
			PublicationDate: date,
			Tables:          extractor.Document(ctx, doc),
		})
	}
	return out, nil
}

// Split stores every table of every stored engine document as its own
// table file. Tables already stored are kept, the number of files written
// is returned.
func (r Runner) Split(ctx context.Context) (int, error) {
	snapshots, err := r.documentSnapshots(ctx)
	if err != nil {
		r.tel.ReportBroken(report_runner_split, err)
		return 0, err
	}

	written := 0
	for _, snap := range snapshots {
		for _, table := range snap.Tables {
			if len(table.Rows) == 0 {
				continue
			}
			ok, err := r.store.WriteTable(snap.PublicationDate, table)
			if err != nil {
				r.tel.ReportBroken(report_runner_split, err)
				return written, err
			}
			if ok {
				written++
			}
		}
	}
	r.tel.ReportCount(report_runner_split, int64(written))
	return written, nil
}
