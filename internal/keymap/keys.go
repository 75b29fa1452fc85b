package keymap

import (
	"covid19au/internal/snapshot"
	"errors"
	"fmt"
	"slices"
	"strings"
)

const nationalCode = "AUS"

var (
	ErrMissingContext   = errors.New("row has no context cell")
	ErrOutsideAllowList = errors.New("row context is not an accepted jurisdiction or age group")
	ErrUnknownTable     = errors.New("table has no registered schema")
)

// JurisdictionCode derives the code of a jurisdiction label. The national
// label becomes AUS, anything else is upper-cased and cut to its first three
// characters. The cut is positional, so "Victoria" becomes VIC while
// "Queensland" becomes QUE. Historical datasets were keyed this way and the
// behavior is kept for compatibility.
func JurisdictionCode(label, national string) string {
	label = strings.TrimSpace(label)
	if strings.EqualFold(label, national) {
		return nationalCode
	}
	upper := []rune(strings.ToUpper(label))
	if len(upper) > 3 {
		upper = upper[:3]
	}
	return string(upper)
}

// RowContext is the resolved identity of a row: the jurisdiction code for
// jurisdiction tables, the age group code for age group tables.
type RowContext struct {
	Scope Scope
	Code  string
}

// ResolveContext finds the context cell of a row and checks it against the
// allow-lists. Rows failing either are not meant to be reduced.
func (r *Registry) ResolveContext(table snapshot.TableName, row snapshot.Row) (RowContext, error) {
	schema, ok := r.Tables[table]
	if !ok {
		return RowContext{}, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}

	var label string
	found := false
	for _, f := range row {
		if !r.IsContextLabel(table, f.Label) {
			continue
		}
		if f.Cell.Missing || strings.TrimSpace(f.Cell.Text) == "" {
			continue
		}
		label = f.Cell.Text
		found = true
		break
	}
	if !found {
		return RowContext{}, ErrMissingContext
	}
	return r.contextOf(schema.Scope, label)
}

func (r *Registry) contextOf(scope Scope, label string) (RowContext, error) {
	switch scope {
	case ScopeJurisdiction:
		code := JurisdictionCode(label, r.National)
		if !slices.Contains(r.Jurisdictions, code) {
			return RowContext{}, fmt.Errorf("%w: %q", ErrOutsideAllowList, label)
		}
		return RowContext{Scope: scope, Code: code}, nil
	case ScopeAgeGroup:
		code, ok := r.normalizedAgeGroups[ageGroupKey(label)]
		if !ok {
			return RowContext{}, fmt.Errorf("%w: %q", ErrOutsideAllowList, label)
		}
		return RowContext{Scope: scope, Code: code}, nil
	}
	return RowContext{}, fmt.Errorf("unknown scope %q", scope)
}

func (r *Registry) compose(schema *TableSchema, ctx RowContext, suffix string) string {
	var parts []string
	switch ctx.Scope {
	case ScopeAgeGroup:
		parts = []string{nationalCode, schema.Infix, ctx.Code, suffix}
	default:
		parts = []string{ctx.Code, schema.Infix, suffix}
	}
	parts = slices.DeleteFunc(parts, func(p string) bool { return p == "" })
	return strings.Join(parts, "_")
}

// Key derives the canonical key of a column label within a row, false is
// returned when the label is not registered for the table.
func (r *Registry) Key(table snapshot.TableName, label string, ctx RowContext) (string, bool) {
	schema, ok := r.Tables[table]
	if !ok {
		return "", false
	}
	suffix, ok := r.Suffix(table, label)
	if !ok {
		return "", false
	}
	return r.compose(schema, ctx, suffix), true
}

// RetiredKeys returns the keys of the retired suffixes of a table for a row.
func (r *Registry) RetiredKeys(table snapshot.TableName, ctx RowContext) []string {
	schema, ok := r.Tables[table]
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(schema.Retired))
	for _, suffix := range schema.Retired {
		keys = append(keys, r.compose(schema, ctx, suffix))
	}
	return keys
}

// MapKey derives a key straight from raw labels: the column label, the age
// group label (age group tables) and the jurisdiction label (jurisdiction
// tables). Rows outside the allow-lists map to nothing.
func (r *Registry) MapKey(table snapshot.TableName, label, category, jurisdiction string) (string, bool) {
	schema, ok := r.Tables[table]
	if !ok {
		return "", false
	}
	contextLabel := jurisdiction
	if schema.Scope == ScopeAgeGroup {
		contextLabel = category
	}
	ctx, err := r.contextOf(schema.Scope, contextLabel)
	if err != nil {
		return "", false
	}
	return r.Key(table, label, ctx)
}
