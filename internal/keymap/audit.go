package keymap

import (
	"covid19au/internal/snapshot"
	"slices"
	"strings"
)

// Unmapped is a column label found in stored tables that maps to no key.
type Unmapped struct {
	Table     snapshot.TableName
	Label     string
	Count     int
	FirstSeen snapshot.Date
	LastSeen  snapshot.Date
	// Suggestion is the closest registered variant, if the table has any.
	Suggestion    Suggestion
	HasSuggestion bool
}

// Audit lists every label of the snapshots that is neither a row context
// nor a registered variant, ordered by table then label.
func (r *Registry) Audit(snapshots []snapshot.RawSnapshot) []Unmapped {
	type key struct {
		table snapshot.TableName
		label string
	}
	found := map[key]*Unmapped{}

	for _, snap := range snapshots {
		for _, table := range snap.Tables {
			if _, ok := r.Schema(table.Name); !ok {
				continue
			}
			for _, label := range table.Labels() {
				if r.IsContextLabel(table.Name, label) {
					continue
				}
				if _, ok := r.Suffix(table.Name, label); ok {
					continue
				}

				k := key{table: table.Name, label: label}
				u, ok := found[k]
				if !ok {
					u = &Unmapped{
						Table:     table.Name,
						Label:     label,
						FirstSeen: snap.PublicationDate,
						LastSeen:  snap.PublicationDate,
					}
					u.Suggestion, u.HasSuggestion = r.Suggest(table.Name, label)
					found[k] = u
				}
				u.Count++
				if snap.PublicationDate.Compare(u.FirstSeen) < 0 {
					u.FirstSeen = snap.PublicationDate
				}
				if snap.PublicationDate.Compare(u.LastSeen) > 0 {
					u.LastSeen = snap.PublicationDate
				}
			}
		}
	}

	out := make([]Unmapped, 0, len(found))
	for _, u := range found {
		out = append(out, *u)
	}
	slices.SortFunc(out, func(a, b Unmapped) int {
		ai := slices.Index(snapshot.Tables, a.Table)
		bi := slices.Index(snapshot.Tables, b.Table)
		if ai != bi {
			return ai - bi
		}
		return strings.Compare(a.Label, b.Label)
	})
	return out
}
