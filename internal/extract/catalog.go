package extract

import "covid19au/internal/snapshot"

// Source says where a logical table is published upstream.
type Source struct {
	Table snapshot.TableName
	// GraphID is the id of the dashboard object holding the table.
	GraphID string
	// TableNumber is the data-tablenumber attribute of the rendered table.
	TableNumber int
	// HeaderMarkers identify the table by its header row when it has no
	// table number, as in full page renders of the dashboard. Every marker
	// must be contained in some header cell.
	HeaderMarkers []string
}

// Catalog lists where every logical table can be found, in reduction order.
var Catalog = []Source{
	{
		Table:         snapshot.Cases,
		GraphID:       "KdmpZ",
		TableNumber:   42357,
		HeaderMarkers: []string{"Active cases", "Locally acquired last 24 hours"},
	},
	{
		Table:         snapshot.Tests,
		GraphID:       "zfDpnUy",
		TableNumber:   42375,
		HeaderMarkers: []string{"Total tests"},
	},
	{
		Table:         snapshot.Source,
		GraphID:       "gjjZnj",
		TableNumber:   42361,
		HeaderMarkers: []string{"Overseas", "Total cases", "Total deaths"},
	},
	{
		Table:       snapshot.CasesAge,
		GraphID:     "PSWhPA",
		TableNumber: 42404,
	},
	{
		Table:       snapshot.DeathsAge,
		GraphID:     "uJauhW",
		TableNumber: 42406,
	},
	{
		Table:       snapshot.CasesHospital,
		GraphID:     "GJSFMHS",
		TableNumber: 42380,
	},
	{
		Table:       snapshot.AgedCareResidential,
		GraphID:     "SfYPx",
		TableNumber: 42408,
	},
	{
		Table:       snapshot.AgedCareInHome,
		GraphID:     "aVJJAHx",
		TableNumber: 42410,
	},
}

func SourceOf(table snapshot.TableName) (Source, bool) {
	for _, s := range Catalog {
		if s.Table == table {
			return s, true
		}
	}
	return Source{}, false
}

func SourceOfGraph(graphID string) (Source, bool) {
	for _, s := range Catalog {
		if s.GraphID == graphID {
			return s, true
		}
	}
	return Source{}, false
}
