package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bayardsearch/bayard/internal/schema"
)

func exampleSchema() schema.Schema {
	return schema.Schema{Fields: []schema.Field{
		{Name: "description", Type: schema.FieldText, Indexed: true, Analyzer: "simple_lower"},
		{Name: "popularity", Type: schema.FieldU64, Fast: true},
	}}
}

func TestParseDocumentOK(t *testing.T) {
	doc, err := ParseDocument([]byte(`{"id":"1","fields":{"description":"Rust search","popularity":10}}`), exampleSchema())
	require.NoError(t, err)
	require.Equal(t, "1", doc.ID)
	require.Equal(t, "Rust search", doc.Fields["description"])
	require.Equal(t, int64(10), doc.Fields["popularity"])
}

func TestParseDocumentSchemaViolationWrongType(t *testing.T) {
	_, err := ParseDocument([]byte(`{"id":"3","fields":{"popularity":"not-a-number"}}`), exampleSchema())
	require.Error(t, err)
}

func TestParseDocumentSchemaViolationUnknownField(t *testing.T) {
	_, err := ParseDocument([]byte(`{"id":"4","fields":{"bogus":"x"}}`), exampleSchema())
	require.Error(t, err)
}

func TestParseDocumentMissingID(t *testing.T) {
	_, err := ParseDocument([]byte(`{"fields":{}}`), exampleSchema())
	require.Error(t, err)
}
