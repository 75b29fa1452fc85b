// Package keymap derives stable canonical column keys from the labels
// upstream publishes, which drift over time.
package keymap

import (
	"covid19au/internal/snapshot"
	"covid19au/lib/textutil"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/titanous/json5"
)

//go:embed registry.json5
var defaultRegistry []byte

var ErrConflictingVariant = errors.New("label variant already maps to a different suffix")

type Scope string

const (
	// ScopeJurisdiction tables have one row per jurisdiction.
	ScopeJurisdiction Scope = "jurisdiction"
	// ScopeAgeGroup tables have one row per age bracket, for the whole country.
	ScopeAgeGroup Scope = "age_group"
)

type TableSchema struct {
	Scope Scope `json:"scope"`
	// Infix is placed between the row context and the suffix of every key.
	Infix string `json:"infix"`
	// Context lists the labels of the column holding the row context.
	Context []string `json:"context"`
	// Suffixes maps label variants to key suffixes.
	Suffixes map[string]string `json:"suffixes"`
	// Retired suffixes are no longer published but are recorded as absent
	// for every row so their columns keep existing.
	Retired []string `json:"retired"`

	normalizedSuffixes map[string]string
	normalizedContext  map[string]bool
}

// Registry is the append-only mapping from published labels to key parts.
type Registry struct {
	Version       int                                 `json:"version"`
	National      string                              `json:"national"`
	Jurisdictions []string                            `json:"jurisdictions"`
	AgeGroups     map[string]string                   `json:"age_groups"`
	Tables        map[snapshot.TableName]*TableSchema `json:"tables"`

	normalizedAgeGroups map[string]string
}

// Default returns the registry embedded in the binary.
func Default() (*Registry, error) {
	return Parse(defaultRegistry)
}

func Parse(data []byte) (*Registry, error) {
	var r Registry
	err := json5.Unmarshal(data, &r)
	if err != nil {
		return nil, fmt.Errorf("parse key registry: %w", err)
	}
	err = r.index()
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Load returns the default registry extended by every registry file given.
func Load(paths ...string) (*Registry, error) {
	r, err := Default()
	if err != nil {
		return nil, err
	}
	for _, path := range paths {
		contents, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read key registry: %w", err)
		}
		extension, err := Parse(contents)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		err = r.Extend(extension)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return r, nil
}

func ageGroupKey(label string) string {
	return textutil.NormalizeName(textutil.NormalizeLabel(label))
}

// index validates the registry and builds the normalized lookups.
func (r *Registry) index() error {
	r.normalizedAgeGroups = map[string]string{}
	for label, code := range r.AgeGroups {
		key := ageGroupKey(label)
		existing, ok := r.normalizedAgeGroups[key]
		if ok && existing != code {
			return fmt.Errorf("age group %q: %w", label, ErrConflictingVariant)
		}
		r.normalizedAgeGroups[key] = code
	}

	for name, schema := range r.Tables {
		if schema == nil {
			return fmt.Errorf("table %s: empty schema", name)
		}
		switch schema.Scope {
		// extensions may leave the scope out of tables they extend
		case ScopeJurisdiction, ScopeAgeGroup, "":
		default:
			return fmt.Errorf("table %s: unknown scope %q", name, schema.Scope)
		}

		schema.normalizedContext = map[string]bool{}
		for _, label := range schema.Context {
			schema.normalizedContext[textutil.NormalizeLabel(label)] = true
		}

		schema.normalizedSuffixes = map[string]string{}
		for label, suffix := range schema.Suffixes {
			key := textutil.NormalizeLabel(label)
			existing, ok := schema.normalizedSuffixes[key]
			if ok && existing != suffix {
				return fmt.Errorf(
					"table %s: %q normalizes to the same label as a variant of %s: %w",
					name, label, existing, ErrConflictingVariant,
				)
			}
			schema.normalizedSuffixes[key] = suffix
		}
	}
	return nil
}

// Extend adds everything in other to r. Existing mappings can never change,
// attempting to remap a variant fails with ErrConflictingVariant and leaves r
// unchanged.
func (r *Registry) Extend(other *Registry) error {
	merged := r.clone()

	if other.National != "" && other.National != merged.National {
		return fmt.Errorf("national label %q: %w", other.National, ErrConflictingVariant)
	}
	merged.Version = max(merged.Version, other.Version)

	for _, code := range other.Jurisdictions {
		if !slices.Contains(merged.Jurisdictions, code) {
			merged.Jurisdictions = append(merged.Jurisdictions, code)
		}
	}

	for label, code := range other.AgeGroups {
		existing, ok := merged.normalizedAgeGroups[ageGroupKey(label)]
		if ok && existing != code {
			return fmt.Errorf("age group %q: %w", label, ErrConflictingVariant)
		}
		merged.AgeGroups[label] = code
	}

	for name, schema := range other.Tables {
		current, ok := merged.Tables[name]
		if !ok {
			if schema.Scope == "" {
				return fmt.Errorf("table %s: new tables need a scope", name)
			}
			merged.Tables[name] = schema
			continue
		}
		if schema.Scope != "" && schema.Scope != current.Scope {
			return fmt.Errorf("table %s: scope %q: %w", name, schema.Scope, ErrConflictingVariant)
		}
		if schema.Infix != "" && schema.Infix != current.Infix {
			return fmt.Errorf("table %s: infix %q: %w", name, schema.Infix, ErrConflictingVariant)
		}
		for label, suffix := range schema.Suffixes {
			existing, ok := current.normalizedSuffixes[textutil.NormalizeLabel(label)]
			if ok && existing != suffix {
				return fmt.Errorf("table %s: %q: %w", name, label, ErrConflictingVariant)
			}
			current.Suffixes[label] = suffix
		}
		for _, label := range schema.Context {
			if !slices.Contains(current.Context, label) {
				current.Context = append(current.Context, label)
			}
		}
		for _, suffix := range schema.Retired {
			if !slices.Contains(current.Retired, suffix) {
				current.Retired = append(current.Retired, suffix)
			}
		}
	}

	err := merged.index()
	if err != nil {
		return err
	}
	*r = *merged
	return nil
}

func (r *Registry) clone() *Registry {
	out := &Registry{
		Version:       r.Version,
		National:      r.National,
		Jurisdictions: slices.Clone(r.Jurisdictions),
		AgeGroups:     map[string]string{},
		Tables:        map[snapshot.TableName]*TableSchema{},
	}
	for k, v := range r.AgeGroups {
		out.AgeGroups[k] = v
	}
	for name, schema := range r.Tables {
		copied := &TableSchema{
			Scope:    schema.Scope,
			Infix:    schema.Infix,
			Context:  slices.Clone(schema.Context),
			Suffixes: map[string]string{},
			Retired:  slices.Clone(schema.Retired),
		}
		for k, v := range schema.Suffixes {
			copied.Suffixes[k] = v
		}
		out.Tables[name] = copied
	}
	// r was indexed successfully, so its copy cannot fail to index
	_ = out.index()
	return out
}

func (r *Registry) Schema(table snapshot.TableName) (*TableSchema, bool) {
	schema, ok := r.Tables[table]
	return schema, ok
}

// Suffix resolves a column label of a table, first exactly then in its
// normalized form.
func (r *Registry) Suffix(table snapshot.TableName, label string) (string, bool) {
	schema, ok := r.Tables[table]
	if !ok {
		return "", false
	}
	suffix, ok := schema.Suffixes[label]
	if ok {
		return suffix, true
	}
	suffix, ok = schema.normalizedSuffixes[textutil.NormalizeLabel(label)]
	return suffix, ok
}

// IsContextLabel reports whether label names the row context column of a table.
func (r *Registry) IsContextLabel(table snapshot.TableName, label string) bool {
	schema, ok := r.Tables[table]
	if !ok {
		return false
	}
	return schema.normalizedContext[textutil.NormalizeLabel(label)]
}

// Variants returns every registered label variant of a table, sorted.
func (r *Registry) Variants(table snapshot.TableName) []string {
	schema, ok := r.Tables[table]
	if !ok {
		return nil
	}
	variants := make([]string, 0, len(schema.Suffixes))
	for label := range schema.Suffixes {
		variants = append(variants, label)
	}
	slices.SortFunc(variants, func(a, b string) int {
		return strings.Compare(a, b)
	})
	return variants
}
