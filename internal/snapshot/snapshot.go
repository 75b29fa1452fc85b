// Package snapshot holds the raw, not yet normalized, shape of one day of
// published figures: a set of logical tables made of ordered rows.
package snapshot

import (
	"fmt"
)

// TableName is the logical name of a published table, it is stable across
// upstream revisions even when the upstream identifiers change.
type TableName string

const (
	Cases               TableName = "cases"
	Tests               TableName = "tests"
	Source              TableName = "source"
	CasesAge            TableName = "casesage"
	DeathsAge           TableName = "deathsage"
	CasesHospital       TableName = "caseshospital"
	AgedCareResidential TableName = "agedcareresidential"
	AgedCareInHome      TableName = "agedcareinhome"
)

// Tables lists every logical table in the order they are reduced in.
var Tables = []TableName{
	Cases,
	Tests,
	Source,
	CasesAge,
	DeathsAge,
	CasesHospital,
	AgedCareResidential,
	AgedCareInHome,
}

func ParseTableName(name string) (TableName, error) {
	for _, t := range Tables {
		if string(t) == name {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown table %q", name)
}

// RawTable is one logical table as extracted from a snapshot, a table that
// could not be found upstream has no rows.
type RawTable struct {
	Name TableName
	Rows []Row
}

// Labels returns every distinct column label in the table in first-seen order.
func (t RawTable) Labels() []string {
	seen := map[string]bool{}
	var labels []string
	for _, row := range t.Rows {
		for _, f := range row {
			if seen[f.Label] {
				continue
			}
			seen[f.Label] = true
			labels = append(labels, f.Label)
		}
	}
	return labels
}

// RawSnapshot is everything captured for one publication date, it is not
// modified after capture.
type RawSnapshot struct {
	PublicationDate Date
	Tables          []RawTable
}

func (s RawSnapshot) Table(name TableName) (RawTable, bool) {
	for _, t := range s.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return RawTable{}, false
}
