package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompatibleAllowsAddedFields(t *testing.T) {
	prev := Schema{Fields: []Field{{Name: "title", Type: FieldText}}}
	next := Schema{Fields: []Field{{Name: "title", Type: FieldText}, {Name: "views", Type: FieldU64}}}
	require.NoError(t, Compatible(prev, next))
}

func TestCompatibleRejectsRemovedField(t *testing.T) {
	prev := Schema{Fields: []Field{{Name: "title", Type: FieldText}, {Name: "views", Type: FieldU64}}}
	next := Schema{Fields: []Field{{Name: "title", Type: FieldText}}}
	require.Error(t, Compatible(prev, next))
}

func TestCompatibleRejectsRetypedField(t *testing.T) {
	prev := Schema{Fields: []Field{{Name: "views", Type: FieldU64}}}
	next := Schema{Fields: []Field{{Name: "views", Type: FieldText}}}
	require.Error(t, Compatible(prev, next))
}

func TestResolveFieldBindings(t *testing.T) {
	s := Schema{Fields: []Field{
		{Name: "title", Type: FieldText, Analyzer: "simple"},
		{Name: "body", Type: FieldText, Analyzer: "simple"},
		{Name: "id", Type: FieldText, Analyzer: "raw"},
	}}
	analyzers := AnalyzerSet{
		"simple": Analyzer{Tokenizer: "simple"},
		"raw":    Analyzer{Tokenizer: "raw"},
	}
	resolved := ResolveFieldBindings(s, analyzers)
	require.ElementsMatch(t, []string{"title", "body"}, resolved["simple"].AppliesToFields)
	require.Equal(t, []string{"id"}, resolved["raw"].AppliesToFields)
}
