package reduce

import (
	"covid19au/internal/components/telemetry"
	"covid19au/internal/keymap"
	"covid19au/internal/normalize"
	"covid19au/internal/snapshot"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testDate = snapshot.Date{Year: 2021, Month: time.August, Day: 10}

func newTestReducer(t testing.TB) (Reducer, *telemetry.Recorder) {
	registry, err := keymap.Default()
	if err != nil {
		t.Fatal(err)
	}
	tel := &telemetry.Recorder{}
	return NewReducer(registry, tel), tel
}

func row(pairs ...string) snapshot.Row {
	var out snapshot.Row
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, snapshot.Field{Label: pairs[i], Cell: snapshot.TextCell(pairs[i+1])})
	}
	return out
}

func TestReduceSingleCell(t *testing.T) {
	reducer, _ := newTestReducer(t)

	flat, err := reducer.Reduce(snapshot.RawSnapshot{
		PublicationDate: testDate,
		Tables: []snapshot.RawTable{{
			Name: snapshot.Cases,
			Rows: []snapshot.Row{row("Jurisdiction", "NSW", "Active cases^", "1,234")},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}

	require.Equal(t, testDate, flat.Date)
	require.Equal(t, []string{"NSW_CASES_ACTIVE"}, flat.Keys)
	v, ok := flat.Get("NSW_CASES_ACTIVE")
	require.True(t, ok)
	require.Equal(t, normalize.NumberValue(1234), v)
}

func TestReduceSkipsRows(t *testing.T) {
	reducer, _ := newTestReducer(t)

	flat, err := reducer.Reduce(snapshot.RawSnapshot{
		PublicationDate: testDate,
		Tables: []snapshot.RawTable{
			{
				Name: snapshot.Cases,
				Rows: []snapshot.Row{
					row("Jurisdiction", "Foobar", "Active cases", "1"),
					row("Active cases", "2"),
					row("Jurisdiction", "", "Active cases", "3"),
					row("Jurisdiction", "Australia", "Active cases", "4", "Vaccinations", "99"),
				},
			},
			{
				Name: snapshot.CasesAge,
				Rows: []snapshot.Row{
					row("Age Group", "0-9", "Male", "10", "Female", "11"),
					row("Age Group", "Total", "Male", "100", "Female", "110"),
				},
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	require.Equal(t, []string{
		"AUS_CASES_ACTIVE",
		"AUS_CASES_AGE_0_9_SEX_M",
		"AUS_CASES_AGE_0_9_SEX_F",
	}, flat.Keys)
}

func TestReduceLastWriteWinsWithinTable(t *testing.T) {
	reducer, tel := newTestReducer(t)

	flat := reducer.Table(snapshot.RawTable{
		Name: snapshot.Cases,
		Rows: []snapshot.Row{
			row("Jurisdiction", "VIC", "Active cases^", "1", "Active cases", "2"),
		},
	})
	require.Equal(t, []string{"VIC_CASES_ACTIVE"}, flat.Keys)
	require.Equal(t, normalize.NumberValue(2), flat.Values["VIC_CASES_ACTIVE"])
	require.Empty(t, tel.Reports(telemetry.LevelWarning))
}

func TestReduceRepeatedTable(t *testing.T) {
	reducer, tel := newTestReducer(t)

	// a table captured twice is not a collision, the later capture wins
	flat, err := reducer.Reduce(snapshot.RawSnapshot{
		PublicationDate: testDate,
		Tables: []snapshot.RawTable{
			{Name: snapshot.Source, Rows: []snapshot.Row{row("Jurisdiction", "SA", "Total cases", "10")}},
			{Name: snapshot.Source, Rows: []snapshot.Row{row("Jurisdiction", "SA", "Total cases", "")}},
			{Name: snapshot.Cases, Rows: []snapshot.Row{row("Jurisdiction", "SA", "Active cases", "1")}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, normalize.AbsentValue(), flat.Values["SA_CASES_TOTAL"])
	require.Equal(t, normalize.NumberValue(1), flat.Values["SA_CASES_ACTIVE"])
	require.Empty(t, tel.Reports(telemetry.LevelWarning))
}

func TestReduceCrossTableCollision(t *testing.T) {
	registry, err := keymap.Default()
	if err != nil {
		t.Fatal(err)
	}
	extension, err := keymap.Parse([]byte(`{
		tables: { tests: { suffixes: { "Active cases": "CASES_ACTIVE" } } },
	}`))
	if err != nil {
		t.Fatal(err)
	}
	err = registry.Extend(extension)
	if err != nil {
		t.Fatal(err)
	}

	tel := &telemetry.Recorder{}
	reducer := NewReducer(registry, tel)
	flat, err := reducer.Reduce(snapshot.RawSnapshot{
		PublicationDate: testDate,
		Tables: []snapshot.RawTable{
			{Name: snapshot.Cases, Rows: []snapshot.Row{row("Jurisdiction", "WA", "Active cases", "5")}},
			{Name: snapshot.Tests, Rows: []snapshot.Row{row("Jurisdiction", "WA", "Active cases", "7")}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, normalize.NumberValue(7), flat.Values["WA_CASES_ACTIVE"])
	require.True(t, tel.Has(telemetry.LevelWarning, report_reducer_collision))
}

func TestReduceRetiredColumns(t *testing.T) {
	reducer, _ := newTestReducer(t)

	flat := reducer.Table(snapshot.RawTable{
		Name: snapshot.AgedCareInHome,
		Rows: []snapshot.Row{
			row("Jurisdiction", "NSW", "Active and recovered cases", "40", "Deaths", "2"),
		},
	})
	require.Equal(t, []string{
		"NSW_AGED_CARE_IN_HOME_ACTIVE_AND_RECOVERED",
		"NSW_AGED_CARE_IN_HOME_DEATHS",
		"NSW_AGED_CARE_IN_HOME_ACTIVE",
		"NSW_AGED_CARE_IN_HOME_RECOVERED",
	}, flat.Keys)
	require.True(t, flat.Values["NSW_AGED_CARE_IN_HOME_ACTIVE"].IsAbsent())
	require.Equal(t, normalize.NumberValue(40), flat.Values["NSW_AGED_CARE_IN_HOME_ACTIVE_AND_RECOVERED"])

	// a retired column that shows up again keeps its value
	flat = reducer.Table(snapshot.RawTable{
		Name: snapshot.AgedCareInHome,
		Rows: []snapshot.Row{
			row("Jurisdiction", "NSW", "Active cases", "3"),
		},
	})
	require.Equal(t, normalize.NumberValue(3), flat.Values["NSW_AGED_CARE_IN_HOME_ACTIVE"])
}

func TestReduceWithoutDate(t *testing.T) {
	reducer, tel := newTestReducer(t)

	_, err := reducer.Reduce(snapshot.RawSnapshot{
		Tables: []snapshot.RawTable{{
			Name: snapshot.Cases,
			Rows: []snapshot.Row{row("Jurisdiction", "NSW", "Active cases", "1")},
		}},
	})
	require.ErrorIs(t, err, ErrDateResolution)
	require.True(t, tel.Has(telemetry.LevelBroken, report_reducer_reduce))
}

func TestReduceUnknownTable(t *testing.T) {
	reducer, tel := newTestReducer(t)

	flat, err := reducer.Reduce(snapshot.RawSnapshot{
		PublicationDate: testDate,
		Tables: []snapshot.RawTable{{
			Name: snapshot.TableName("vaccinations"),
			Rows: []snapshot.Row{row("Jurisdiction", "NSW", "Doses", "1")},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	require.Empty(t, flat.Keys)
	require.True(t, tel.Has(telemetry.LevelWarning, report_reducer_table))
}

func TestReduceNumericCells(t *testing.T) {
	reducer, _ := newTestReducer(t)

	flat := reducer.Table(snapshot.RawTable{
		Name: snapshot.Tests,
		Rows: []snapshot.Row{{
			{Label: "Jurisdiction", Cell: snapshot.TextCell("VIC")},
			{Label: "Total tests", Cell: snapshot.NumberCell(3400123)},
			{Label: "Total positive tests (%)", Cell: snapshot.MissingCell()},
		}},
	})
	require.Equal(t, normalize.NumberValue(3400123), flat.Values["VIC_TESTS_TOTAL"])
	require.True(t, flat.Values["VIC_TESTS_POSITIVE_PCT"].IsAbsent())
}
