// Package schema models an index's field definitions and analyzer set: the
// ordered sequence of field definitions and the tokenizer/filter chains
// named in spec.md §3. The field option vocabulary (stored, indexed, fast)
// mirrors the external query/schema DSL referenced but not reproduced by
// spec.md §6; there is no cardinality option.
package schema

import "fmt"

// FieldType is the set of value types a document field may carry.
type FieldType string

const (
	FieldText  FieldType = "text"
	FieldU64   FieldType = "u64"
	FieldI64   FieldType = "i64"
	FieldF64   FieldType = "f64"
	FieldBool  FieldType = "bool"
	FieldDate  FieldType = "date"
	FieldBytes FieldType = "bytes"
)

// Field is one entry in an index's ordered schema.
type Field struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Stored   bool      `json:"stored"`
	Indexed  bool      `json:"indexed"`   // position-indexed for text fields
	Fast     bool      `json:"fast"`      // column/doc-value storage for sort & range
	Analyzer string    `json:"analyzer,omitempty"` // analyzer name, text fields only
}

// Schema is the ordered field list of an index.
type Schema struct {
	Fields []Field `json:"fields"`
}

// Field looks up a field definition by name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Analyzer is a tokenizer plus an ordered filter chain, e.g. "simple" +
// "lower_case", or a CJK morphological analyzer. The out-of-scope analyzer
// internals (spec.md §1) live in the embedded index library; this is just
// the declared name and the fields it is bound to, for validation.
type Analyzer struct {
	Tokenizer       string   `json:"tokenizer"`
	Filters         []string `json:"filters,omitempty"`
	AppliesToFields []string `json:"-"` // derived at load time from Schema, not persisted
}

// AnalyzerSet maps analyzer name to its definition.
type AnalyzerSet map[string]Analyzer

// BuiltinTokenizers are the tokenizer names spec.md §1 calls out as
// out-of-scope externals the embedded library supplies.
var BuiltinTokenizers = map[string]bool{
	"raw":        true,
	"simple":     true,
	"ngram":      true,
	"whitespace": true,
	"cjk":        true,
}

// ResolveFieldBindings fills in Analyzer.AppliesToFields from the schema, so
// IndexMeta.Validate can check the closure invariant of spec.md §3.
func ResolveFieldBindings(s Schema, analyzers AnalyzerSet) AnalyzerSet {
	resolved := make(AnalyzerSet, len(analyzers))
	byAnalyzer := map[string][]string{}
	for _, f := range s.Fields {
		if f.Analyzer != "" {
			byAnalyzer[f.Analyzer] = append(byAnalyzer[f.Analyzer], f.Name)
		}
	}
	for name, az := range analyzers {
		az.AppliesToFields = byAnalyzer[name]
		resolved[name] = az
	}
	return resolved
}

// Compatible reports whether `next` is a schema-compatible edit of `prev`:
// existing fields may not change type, and fields may only be added, never
// removed, matching spec.md §3 ("modified by schema-compatible edits only").
func Compatible(prev, next Schema) error {
	prevFields := make(map[string]Field, len(prev.Fields))
	for _, f := range prev.Fields {
		prevFields[f.Name] = f
	}
	for _, f := range next.Fields {
		if old, ok := prevFields[f.Name]; ok {
			if old.Type != f.Type {
				return fmt.Errorf("field %q changed type from %s to %s", f.Name, old.Type, f.Type)
			}
			delete(prevFields, f.Name)
		}
	}
	if len(prevFields) > 0 {
		for name := range prevFields {
			return fmt.Errorf("field %q was removed", name)
		}
	}
	return nil
}
