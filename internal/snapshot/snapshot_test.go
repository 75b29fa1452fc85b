package snapshot

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	testCases := []struct {
		in       string
		expected Date
		err      bool
	}{
		{in: "2021-08-10", expected: Date{2021, time.August, 10}},
		{in: "2021-08-1", expected: Date{2021, time.August, 1}},
		{in: "2021-8-01", expected: Date{2021, time.August, 1}},
		{in: " 2020-12-31 ", expected: Date{2020, time.December, 31}},
		{in: "2021-02-31", err: true},
		{in: "21-08-10", err: true},
		{in: "2021/08/10", err: true},
		{in: "", err: true},
	}

	for _, test := range testCases {
		d, err := ParseDate(test.in)
		if test.err {
			require.ErrorIs(t, err, ErrInvalidDate, "input %q", test.in)
			continue
		}
		require.NoError(t, err, "input %q", test.in)
		require.Equal(t, test.expected, d)
	}
}

func TestDateOf(t *testing.T) {
	sydney, err := time.LoadLocation("Australia/Sydney")
	if err != nil {
		t.Fatal(err)
	}
	// 15:30 UTC on the 9th is already the 10th in Sydney
	instant := time.Date(2021, 8, 9, 15, 30, 0, 0, time.UTC)
	require.Equal(t, "2021-08-10", DateOf(instant, sydney).String())
	require.Equal(t, "2021-08-09", DateOf(instant, time.UTC).String())
}

func TestDateCompare(t *testing.T) {
	a := Date{2021, time.August, 9}
	b := Date{2021, time.August, 10}
	c := Date{2022, time.January, 1}
	require.Equal(t, -1, a.Compare(b))
	require.Equal(t, 1, c.Compare(b))
	require.Equal(t, 0, b.Compare(b))
}

func TestRowJSONKeepsColumnOrder(t *testing.T) {
	row := Row{
		{Label: "Jurisdiction", Cell: TextCell("NSW")},
		{Label: "Active cases^", Cell: NumberCell(1234)},
		{Label: "Total positive tests (%)", Cell: TextCell("0.5%")},
		{Label: "Recovered", Cell: MissingCell()},
	}

	encoded, err := json.Marshal(row)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(
		t,
		`{"Jurisdiction":"NSW","Active cases^":1234,"Total positive tests (%)":"0.5%","Recovered":null}`,
		string(encoded),
	)

	var decoded Row
	err = json.Unmarshal(encoded, &decoded)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(row, decoded); diff != "" {
		t.Fatal(diff)
	}
}

func TestCellRejectsObjects(t *testing.T) {
	var row Row
	err := json.Unmarshal([]byte(`{"Jurisdiction": {"qText": "NSW"}}`), &row)
	require.Error(t, err)
}

func TestTableLabels(t *testing.T) {
	table := RawTable{
		Name: Cases,
		Rows: []Row{
			{{Label: "Jurisdiction", Cell: TextCell("NSW")}, {Label: "Active cases", Cell: TextCell("1")}},
			{{Label: "Jurisdiction", Cell: TextCell("VIC")}, {Label: "Deaths", Cell: TextCell("2")}},
		},
	}
	require.Equal(t, []string{"Jurisdiction", "Active cases", "Deaths"}, table.Labels())
}

func TestParseTableName(t *testing.T) {
	name, err := ParseTableName("agedcareinhome")
	require.NoError(t, err)
	require.Equal(t, AgedCareInHome, name)

	_, err = ParseTableName("vaccinations")
	require.Error(t, err)
}
