package keymap

import (
	"covid19au/internal/snapshot"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func defaultRegistryT(t testing.TB) *Registry {
	r, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestJurisdictionCode(t *testing.T) {
	testCases := []struct {
		label    string
		expected string
	}{
		{label: "Australia", expected: "AUS"},
		{label: "australia", expected: "AUS"},
		{label: "NSW", expected: "NSW"},
		{label: " nt ", expected: "NT"},
		{label: "Victoria", expected: "VIC"},
		// positional truncation, not a lookup
		{label: "Queensland", expected: "QUE"},
		{label: "Foobar", expected: "FOO"},
	}

	for _, test := range testCases {
		require.Equal(t, test.expected, JurisdictionCode(test.label, "Australia"), "label %q", test.label)
	}
}

func TestMapKey(t *testing.T) {
	r := defaultRegistryT(t)

	testCases := []struct {
		table        snapshot.TableName
		label        string
		category     string
		jurisdiction string
		expected     string
		ok           bool
	}{
		{table: snapshot.Cases, label: "Active cases^", jurisdiction: "NSW", expected: "NSW_CASES_ACTIVE", ok: true},
		{table: snapshot.Cases, label: "Active cases", jurisdiction: "NSW", expected: "NSW_CASES_ACTIVE", ok: true},
		{table: snapshot.Cases, label: "Active cases", jurisdiction: "Australia", expected: "AUS_CASES_ACTIVE", ok: true},
		{table: snapshot.Tests, label: "Total positive tests (%)", jurisdiction: "VIC", expected: "VIC_TESTS_POSITIVE_PCT", ok: true},
		{table: snapshot.Source, label: "Total deaths", jurisdiction: "WA", expected: "WA_DEATHS_TOTAL", ok: true},
		{table: snapshot.CasesAge, label: "Male", category: "0-9", expected: "AUS_CASES_AGE_0_9_SEX_M", ok: true},
		{table: snapshot.DeathsAge, label: "Female", category: "90+", expected: "AUS_DEATHS_AGE_90+_SEX_F", ok: true},
		{table: snapshot.CasesAge, label: "Female", category: "10 – 19", expected: "AUS_CASES_AGE_10_19_SEX_F", ok: true},
		{table: snapshot.AgedCareInHome, label: "Deaths", jurisdiction: "QLD", expected: "QLD_AGED_CARE_IN_HOME_DEATHS", ok: true},
		{table: snapshot.AgedCareResidential, label: "Total cases", jurisdiction: "TAS", expected: "TAS_AGED_CARE_RESIDENTIAL_ACTIVE_AND_RECOVERED", ok: true},
		{table: snapshot.CasesHospital, label: "ICU", jurisdiction: "ACT", expected: "ACT_CASES_HOSPITAL_ICU", ok: true},
		// not registered
		{table: snapshot.Cases, label: "Vaccinations", jurisdiction: "NSW"},
		// outside the allow-lists
		{table: snapshot.Cases, label: "Active cases", jurisdiction: "Foobar"},
		{table: snapshot.Cases, label: "Active cases", jurisdiction: "Queensland"},
		{table: snapshot.CasesAge, label: "Male", category: "Total"},
		{table: snapshot.TableName("vaccinations"), label: "Active cases", jurisdiction: "NSW"},
	}

	for _, test := range testCases {
		key, ok := r.MapKey(test.table, test.label, test.category, test.jurisdiction)
		require.Equal(t, test.ok, ok, "%s %q", test.table, test.label)
		require.Equal(t, test.expected, key, "%s %q", test.table, test.label)
	}
}

// every label variant of the same column must produce the same key for any
// row context, otherwise history would split across columns.
func TestKeysStableUnderLabelDrift(t *testing.T) {
	r := defaultRegistryT(t)

	drifts := map[snapshot.TableName][][]string{
		snapshot.Cases: {
			{"Active cases^", "Active cases", "active cases", "Active cases *", "ACTIVE CASES†"},
			{"Locally acquired last 24 hours", "Locally acquired  last 24 hours"},
		},
		snapshot.Source: {
			{"Locally acquired - unknown contact", "Locally acquired – unknown contact", "Locally acquired - no known contact"},
		},
	}

	for table, groups := range drifts {
		for _, jurisdiction := range []string{"Australia", "NSW", "VIC", "NT"} {
			for _, variants := range groups {
				first, ok := r.MapKey(table, variants[0], "", jurisdiction)
				require.True(t, ok, "%s %q", table, variants[0])
				for _, v := range variants[1:] {
					key, ok := r.MapKey(table, v, "", jurisdiction)
					require.True(t, ok, "%s %q", table, v)
					require.Equal(t, first, key, "%s %q", table, v)
				}
			}
		}
	}
}

func TestResolveContext(t *testing.T) {
	r := defaultRegistryT(t)

	ctx, err := r.ResolveContext(snapshot.Cases, snapshot.Row{
		{Label: "Active cases", Cell: snapshot.TextCell("10")},
		{Label: "Jurisdiction", Cell: snapshot.TextCell("NSW")},
	})
	require.NoError(t, err)
	require.Equal(t, RowContext{Scope: ScopeJurisdiction, Code: "NSW"}, ctx)

	ctx, err = r.ResolveContext(snapshot.CasesAge, snapshot.Row{
		{Label: "Age Group", Cell: snapshot.TextCell("30-39")},
		{Label: "Male", Cell: snapshot.TextCell("10")},
	})
	require.NoError(t, err)
	require.Equal(t, RowContext{Scope: ScopeAgeGroup, Code: "30_39"}, ctx)

	_, err = r.ResolveContext(snapshot.Cases, snapshot.Row{
		{Label: "Active cases", Cell: snapshot.TextCell("10")},
	})
	require.ErrorIs(t, err, ErrMissingContext)

	_, err = r.ResolveContext(snapshot.Cases, snapshot.Row{
		{Label: "Jurisdiction", Cell: snapshot.MissingCell()},
	})
	require.ErrorIs(t, err, ErrMissingContext)

	_, err = r.ResolveContext(snapshot.Cases, snapshot.Row{
		{Label: "Jurisdiction", Cell: snapshot.TextCell("Foobar")},
	})
	require.ErrorIs(t, err, ErrOutsideAllowList)

	_, err = r.ResolveContext(snapshot.TableName("vaccinations"), nil)
	require.ErrorIs(t, err, ErrUnknownTable)
}

func TestRetiredKeys(t *testing.T) {
	r := defaultRegistryT(t)
	keys := r.RetiredKeys(snapshot.AgedCareInHome, RowContext{Scope: ScopeJurisdiction, Code: "NSW"})
	require.Equal(t, []string{"NSW_AGED_CARE_IN_HOME_ACTIVE", "NSW_AGED_CARE_IN_HOME_RECOVERED"}, keys)

	require.Empty(t, r.RetiredKeys(snapshot.Cases, RowContext{Scope: ScopeJurisdiction, Code: "NSW"}))
}

func writeRegistry(t testing.TB, contents string) string {
	path := filepath.Join(t.TempDir(), "registry.local.json5")
	err := os.WriteFile(path, []byte(contents), 0644)
	if err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppendsVariants(t *testing.T) {
	path := writeRegistry(t, `{
		version: 5,
		tables: {
			cases: {
				suffixes: { "Active cases (total)": "CASES_ACTIVE" },
			},
		},
	}`)

	r, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, 5, r.Version)

	key, ok := r.MapKey(snapshot.Cases, "Active cases (total)", "", "NSW")
	require.True(t, ok)
	require.Equal(t, "NSW_CASES_ACTIVE", key)

	// existing variants are untouched
	key, ok = r.MapKey(snapshot.Cases, "Active cases^", "", "NSW")
	require.True(t, ok)
	require.Equal(t, "NSW_CASES_ACTIVE", key)
}

func TestLoadRejectsRemapping(t *testing.T) {
	path := writeRegistry(t, `{
		tables: {
			cases: {
				suffixes: { "active cases": "CASES_CURRENT" },
			},
		},
	}`)

	_, err := Load(path)
	require.ErrorIs(t, err, ErrConflictingVariant)
}

func TestExtendFailureLeavesRegistryUnchanged(t *testing.T) {
	r := defaultRegistryT(t)
	extension, err := Parse([]byte(`{
		jurisdictions: ["OTH"],
		tables: { tests: { suffixes: { "Total tests": "TESTS_ALL" } } },
	}`))
	if err != nil {
		t.Fatal(err)
	}

	err = r.Extend(extension)
	require.ErrorIs(t, err, ErrConflictingVariant)
	require.NotContains(t, r.Jurisdictions, "OTH")

	key, ok := r.MapKey(snapshot.Tests, "Total tests", "", "SA")
	require.True(t, ok)
	require.Equal(t, "SA_TESTS_TOTAL", key)
}

func TestParseRejectsAmbiguousVariants(t *testing.T) {
	_, err := Parse([]byte(`{
		tables: {
			cases: {
				scope: "jurisdiction",
				suffixes: { "Active cases^": "CASES_ACTIVE", "Active cases": "CASES_CURRENT" },
			},
		},
	}`))
	require.ErrorIs(t, err, ErrConflictingVariant)
}

func TestSuggest(t *testing.T) {
	r := defaultRegistryT(t)

	suggestion, ok := r.Suggest(snapshot.Cases, "Locally acquired in last 24 hrs")
	require.True(t, ok)
	require.Equal(t, "CASES_LOCAL_LAST_24H", suggestion.Suffix)
	require.Greater(t, suggestion.Score, 0.8)

	_, ok = r.Suggest(snapshot.TableName("vaccinations"), "Doses")
	require.False(t, ok)
}
