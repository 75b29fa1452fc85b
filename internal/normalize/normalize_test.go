package normalize

import (
	"covid19au/internal/snapshot"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	testCases := []struct {
		raw      string
		expected Value
	}{
		{raw: "1,234", expected: NumberValue(1234)},
		{raw: "12.5%", expected: NumberValue(12.5)},
		{raw: "0", expected: NumberValue(0)},
		{raw: "0.125", expected: NumberValue(0.125)},
		{raw: "N/A†", expected: TextValue("N/A†")},
		{raw: "-5", expected: TextValue("-5")},
		{raw: "1.2.3", expected: TextValue("1.2.3")},
		{raw: ".", expected: TextValue(".")},
		{raw: "1 234", expected: TextValue("1 234")},
		{raw: " 12 ", expected: NumberValue(12)},
		{raw: "\t1,234%\n", expected: NumberValue(1234)},
		{raw: " n/a ", expected: TextValue(" n/a ")},
		{raw: "", expected: AbsentValue()},
		{raw: "   ", expected: AbsentValue()},
		{raw: "-", expected: AbsentValue()},
		{raw: "–", expected: AbsentValue()},
	}

	for _, test := range testCases {
		require.Equal(t, test.expected, String(test.raw), "input %q", test.raw)
	}
}

func TestCell(t *testing.T) {
	require.Equal(t, AbsentValue(), Cell(snapshot.MissingCell()))
	require.Equal(t, NumberValue(1234), Cell(snapshot.NumberCell(1234)))
	require.Equal(t, NumberValue(0.125), Cell(snapshot.NumberCell(0.125)))
	require.Equal(t, TextValue("NSW"), Cell(snapshot.TextCell("NSW")))
}

func TestAbsentIsDistinct(t *testing.T) {
	absent := String("")
	zero := String("0")

	require.True(t, absent.IsAbsent())
	require.False(t, zero.IsAbsent())
	require.NotEqual(t, absent, zero)

	encoded, err := json.Marshal([]Value{absent, zero, TextValue("")})
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, `[null,0,""]`, string(encoded))
	require.Equal(t, "", absent.CSV())
	require.Equal(t, "0", zero.CSV())
}

// a value written out and read back in either representation must be the
// value that was written.
func TestRepresentationsAgree(t *testing.T) {
	for _, raw := range []string{"1,234", "12.5%", "N/A†", "", "Under investigation", "1e5"} {
		v := String(raw)

		encoded, err := json.Marshal(v)
		if err != nil {
			t.Fatal(err)
		}
		var fromJSON Value
		err = json.Unmarshal(encoded, &fromJSON)
		if err != nil {
			t.Fatal(err)
		}
		require.Equal(t, v, fromJSON, "json of %q", raw)
		require.Equal(t, v, CSVField(v.CSV()), "csv of %q", raw)
	}
}

func TestLargeNumbersStayDecimal(t *testing.T) {
	v := String("34,567,890")
	require.Equal(t, "34567890", v.CSV())

	encoded, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, "34567890", string(encoded))
}
