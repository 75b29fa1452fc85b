package pipeline

import (
	"context"
	"covid19au/internal/components/telemetry"
	"covid19au/internal/dataset"
	"covid19au/internal/extract"
	"covid19au/internal/keymap"
	"covid19au/internal/reduce"
	"covid19au/internal/scrapers/qlik"
	"covid19au/internal/snapshot"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakePage struct {
	markup string
	err    error
}

func (p fakePage) PageURL() string {
	return "https://example.test/case-numbers"
}

func (p fakePage) Page(context.Context) ([]byte, error) {
	return []byte(p.markup), p.err
}

type fakeEngine struct {
	doc       qlik.DocEntry
	layouts   map[string]json.RawMessage
	requested []string
}

func (e *fakeEngine) Document(context.Context) (qlik.DocEntry, error) {
	return e.doc, nil
}

func (e *fakeEngine) Layouts(_ context.Context, docID string, ids []string) (map[string]json.RawMessage, error) {
	if docID != e.doc.DocID {
		return nil, fmt.Errorf("unknown document %s", docID)
	}
	e.requested = ids
	out := map[string]json.RawMessage{}
	for _, id := range ids {
		if layout, ok := e.layouts[id]; ok {
			out[id] = layout
		}
	}
	return out, nil
}

func sydney(t testing.TB) *time.Location {
	loc, err := time.LoadLocation("Australia/Sydney")
	if err != nil {
		t.Fatal(err)
	}
	return loc
}

func markupPage(date string, tables ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	if date != "" {
		fmt.Fprintf(&b, `<span class="date-display-single" content="%sT09:00:00+10:00">%s</span>`, date, date)
	}
	for _, table := range tables {
		b.WriteString(table)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func casesTable(active string) string {
	return `<table data-tablenumber="42357">
<thead><tr><th>Jurisdiction</th><th>Active cases</th></tr></thead>
<tbody>
<tr><td>NSW</td><td>` + active + `</td></tr>
<tr><td>Foobar</td><td>99</td></tr>
</tbody></table>`
}

func sourceTable(total string) string {
	return `<table data-tablenumber="42361">
<thead><tr><th>Jurisdiction</th><th>Total cases</th></tr></thead>
<tbody><tr><td>NSW</td><td>` + total + `</td></tr></tbody></table>`
}

type fixture struct {
	dir    string
	runner Runner
	tel    *telemetry.Recorder
	loc    *time.Location
}

func newFixture(t testing.TB) fixture {
	registry, err := keymap.Default()
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	tel := &telemetry.Recorder{}
	return fixture{
		dir:    dir,
		runner: NewRunner(dir, registry, tel),
		tel:    tel,
		loc:    sydney(t),
	}
}

func (f fixture) run(t testing.TB, markup string) Result {
	fetcher := NewPageFetcher(fakePage{markup: markup}, nil, f.loc, f.tel)
	result, err := f.runner.Run(context.Background(), fetcher)
	if err != nil {
		t.Fatal(err)
	}
	return result
}

func (f fixture) read(t testing.TB, name string) string {
	contents, err := os.ReadFile(filepath.Join(f.dir, name))
	if err != nil {
		t.Fatal(err)
	}
	return string(contents)
}

func TestRunSingleDay(t *testing.T) {
	f := newFixture(t)

	result := f.run(t, markupPage("2021-08-10", casesTable("1,234")))
	require.Equal(t, snapshot.Date{Year: 2021, Month: time.August, Day: 10}, result.Date)
	require.False(t, result.Replaced)
	require.NotEmpty(t, result.RunID)
	require.Equal(t, []string{"2021-08-10 markup", "2021-08-10 cases"}, result.Raw)

	require.Equal(t, "DATE,NSW_CASES_ACTIVE\n2021-08-10,1234\n", f.read(t, dataset.CSVName))
	require.Equal(t, "[\n{\"DATE\":\"2021-08-10\",\"NSW_CASES_ACTIVE\":1234}\n]\n", f.read(t, dataset.JSONName))

	// rerunning the same snapshot changes nothing
	again := f.run(t, markupPage("2021-08-10", casesTable("1,234")))
	require.True(t, again.Replaced)
	require.Empty(t, again.Raw)
	require.NotEqual(t, result.RunID, again.RunID)
	require.Equal(t, "DATE,NSW_CASES_ACTIVE\n2021-08-10,1234\n", f.read(t, dataset.CSVName))
}

func TestRunReplacesRowOfSameDate(t *testing.T) {
	f := newFixture(t)

	f.run(t, markupPage("2021-08-09", casesTable("10")))
	f.run(t, markupPage("2021-08-10", casesTable("1,234")))
	result := f.run(t, markupPage("2021-08-10", sourceTable("50")))
	require.True(t, result.Replaced)
	require.Equal(t, 2, result.Rows)

	require.Equal(t,
		"DATE,NSW_CASES_ACTIVE,NSW_CASES_TOTAL\n"+
			"2021-08-09,10,\n"+
			"2021-08-10,,50\n",
		f.read(t, dataset.CSVName),
	)
	require.Equal(t,
		"[\n"+
			"{\"DATE\":\"2021-08-09\",\"NSW_CASES_ACTIVE\":10,\"NSW_CASES_TOTAL\":null},\n"+
			"{\"DATE\":\"2021-08-10\",\"NSW_CASES_ACTIVE\":null,\"NSW_CASES_TOTAL\":50}\n"+
			"]\n",
		f.read(t, dataset.JSONName),
	)
}

func TestRunWritesNothingOnFailure(t *testing.T) {
	cases := []struct {
		name     string
		page     fakePage
		sentinel error
	}{
		{
			name:     "no publication date",
			page:     fakePage{markup: markupPage("", casesTable("1"))},
			sentinel: reduce.ErrDateResolution,
		},
		{
			name: "fetch failure",
			page: fakePage{err: errors.New("connection reset")},
		},
	}

	for _, test := range cases {
		t.Run(test.name, func(t *testing.T) {
			f := newFixture(t)
			fetcher := NewPageFetcher(test.page, nil, f.loc, f.tel)
			_, err := f.runner.Run(context.Background(), fetcher)
			require.Error(t, err)
			if test.sentinel != nil {
				require.ErrorIs(t, err, test.sentinel)
			}
			require.True(t, f.tel.Has(telemetry.LevelBroken, ""))

			entries, err := os.ReadDir(f.dir)
			if err != nil {
				t.Fatal(err)
			}
			require.Empty(t, entries)
		})
	}
}

func (f fixture) files(t testing.TB) map[string]string {
	files := map[string]string{}
	err := filepath.WalkDir(f.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		contents, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(f.dir, path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = string(contents)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return files
}

func TestRunSaveFailureKeepsEarlierState(t *testing.T) {
	f := newFixture(t)
	f.run(t, markupPage("2021-08-09", casesTable("10")))

	// a directory in place of all.csv makes the save fail
	csvPath := filepath.Join(f.dir, dataset.CSVName)
	err := os.Remove(csvPath)
	if err != nil {
		t.Fatal(err)
	}
	err = os.MkdirAll(filepath.Join(csvPath, "keep"), 0755)
	if err != nil {
		t.Fatal(err)
	}
	err = os.WriteFile(filepath.Join(csvPath, "keep", "x"), []byte("x"), 0644)
	if err != nil {
		t.Fatal(err)
	}
	before := f.files(t)

	fetcher := NewPageFetcher(fakePage{markup: markupPage("2021-08-10", casesTable("1,234"))}, nil, f.loc, f.tel)
	result, err := f.runner.Run(context.Background(), fetcher)
	require.Error(t, err)
	require.Empty(t, result.Raw)
	require.True(t, f.tel.Has(telemetry.LevelBroken, report_runner_save))

	require.Equal(t, before, f.files(t))
	require.Contains(t, before, "rawhtml-new/2021-08-09.html")
}

const casesLayout = `{
  "qInfo": {"qId": "KdmpZ"},
  "qHyperCube": {
    "qDimensionInfo": [{"qFallbackTitle": "Jurisdiction"}],
    "qMeasureInfo": [{"qFallbackTitle": "Active cases^"}],
    "qDataPages": [{"qMatrix": [
      [{"qText": "NSW", "qNum": "NaN"}, {"qText": "1,234", "qNum": 1234}],
      [{"qText": "Victoria", "qNum": "NaN"}, {"qText": "7", "qNum": 7}]
    ]}]
  }
}`

func newEngine() *fakeEngine {
	return &fakeEngine{
		doc: qlik.DocEntry{
			DocID: "doc-1",
			Meta:  qlik.DocMeta{ModifiedDate: "2021-08-09T23:30:00.000Z"},
		},
		layouts: map[string]json.RawMessage{"KdmpZ": json.RawMessage(casesLayout)},
	}
}

func TestEngineFetcher(t *testing.T) {
	f := newFixture(t)
	engine := newEngine()
	page := fakePage{markup: `<script>{"qlik_components":[{"component_id":"KdmpZ"},{"component_id":"xYz"}]}</script>`}

	capture, err := NewEngineFetcher(engine, page, f.loc, f.tel).FetchSnapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, []string{"KdmpZ", "xYz"}, engine.requested)
	// 23:30 UTC is the next day in Sydney
	require.Equal(t, snapshot.Date{Year: 2021, Month: time.August, Day: 10}, capture.Snapshot.PublicationDate)
	require.Equal(t, page.markup, string(capture.Markup))

	doc, err := extract.ParseDocument(capture.Document)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, "2021-08-09T23:30:00.000Z", doc.LastModified)
	require.Contains(t, doc.Data, "KdmpZ")

	cases, ok := capture.Snapshot.Table(snapshot.Cases)
	require.True(t, ok)
	require.Len(t, cases.Rows, 2)

	result, err := f.runner.Run(context.Background(), NewEngineFetcher(newEngine(), page, f.loc, f.tel))
	if err != nil {
		t.Fatal(err)
	}
	require.Contains(t, result.Raw, "2021-08-10 document")
	require.Equal(t, "DATE,NSW_CASES_ACTIVE,VIC_CASES_ACTIVE\n2021-08-10,1234,7\n", f.read(t, dataset.CSVName))
}

func TestEngineFetcherFallsBackToCatalog(t *testing.T) {
	f := newFixture(t)
	engine := newEngine()

	_, err := NewEngineFetcher(engine, fakePage{markup: "<html></html>"}, f.loc, f.tel).FetchSnapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	require.Len(t, engine.requested, len(extract.Catalog))
	require.Equal(t, "KdmpZ", engine.requested[0])
	require.True(t, f.tel.Has(telemetry.LevelWarning, report_engine_fetcher))
}

func TestDocumentDate(t *testing.T) {
	loc := sydney(t)
	date, err := DocumentDate(extract.Document{LastModified: "2020-11-03T05:29:12.345Z"}, loc)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, snapshot.Date{Year: 2020, Month: time.November, Day: 3}, date)

	_, err = DocumentDate(extract.Document{}, loc)
	require.ErrorIs(t, err, reduce.ErrDateResolution)
}

func TestBackfillFromTables(t *testing.T) {
	f := newFixture(t)
	f.run(t, markupPage("2021-08-09", casesTable("10")))
	f.run(t, markupPage("2021-08-10", casesTable("1,234"), sourceTable("50")))
	expect := f.read(t, dataset.CSVName)

	// legacy table files may have no date, they are skipped
	err := os.WriteFile(filepath.Join(f.dir, "raw", "undated.cases.json"), []byte(`{"type":"cases","entries":[]}`), 0644)
	if err != nil {
		t.Fatal(err)
	}

	result, err := f.runner.Backfill(context.Background(), SourceTables, true)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, 2, result.Snapshots)
	require.Equal(t, 2, result.Rows)
	require.Equal(t, expect, f.read(t, dataset.CSVName))
	require.True(t, f.tel.Has(telemetry.LevelWarning, report_runner_backfill))

	markups, err := f.runner.Backfill(context.Background(), SourceMarkup, true)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, 2, markups.Snapshots)
	require.Equal(t, expect, f.read(t, dataset.CSVName))
}

func TestSplitAndBackfillDocuments(t *testing.T) {
	f := newFixture(t)
	date := snapshot.Date{Year: 2021, Month: time.August, Day: 10}
	doc, err := json.Marshal(extract.Document{
		LastModified: "2021-08-09T23:30:00.000Z",
		Data:         map[string]json.RawMessage{"KdmpZ": json.RawMessage(casesLayout)},
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = f.runner.Store().WriteDocument(date, doc)
	if err != nil {
		t.Fatal(err)
	}

	written, err := f.runner.Split(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, 1, written)

	written, err = f.runner.Split(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, 0, written)

	table, err := f.runner.Store().ReadTable(date, snapshot.Cases)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, []string{"Jurisdiction", "Active cases^"}, table.Labels())

	result, err := f.runner.Backfill(context.Background(), SourceDocuments, false)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, 1, result.Snapshots)
	require.Equal(t, "DATE,NSW_CASES_ACTIVE,VIC_CASES_ACTIVE\n2021-08-10,1234,7\n", f.read(t, dataset.CSVName))
}

func TestParseSource(t *testing.T) {
	source, err := ParseSource("markup")
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, SourceMarkup, source)

	_, err = ParseSource("csv")
	require.Error(t, err)
}
