package keymap

import (
	"covid19au/internal/snapshot"
	"covid19au/lib/textutil"

	"github.com/antzucaro/matchr"
)

// Suggestion is the registered variant closest to a label that could not be
// mapped, Score is the Jaro-Winkler similarity of their normalized forms.
type Suggestion struct {
	Variant string
	Suffix  string
	Score   float64
}

// Suggest finds the registered variant of a table closest to label, it is
// used to help extend the registry when upstream relabels a column.
func (r *Registry) Suggest(table snapshot.TableName, label string) (Suggestion, bool) {
	schema, ok := r.Tables[table]
	if !ok {
		return Suggestion{}, false
	}

	normalized := textutil.NormalizeLabel(label)
	var best Suggestion
	found := false
	for _, variant := range r.Variants(table) {
		score := matchr.JaroWinkler(normalized, textutil.NormalizeLabel(variant), true)
		if !found || score > best.Score {
			best = Suggestion{
				Variant: variant,
				Suffix:  schema.Suffixes[variant],
				Score:   score,
			}
			found = true
		}
	}
	return best, found
}
