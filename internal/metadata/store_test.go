package metadata

import (
	"testing"

	"github.com/bayardsearch/bayard/internal/schema"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testMeta() IndexMeta {
	return IndexMeta{
		Schema: schema.Schema{Fields: []schema.Field{
			{Name: "description", Type: schema.FieldText, Indexed: true, Analyzer: "simple_lower"},
			{Name: "popularity", Type: schema.FieldU64, Fast: true},
		}},
		Analyzers: schema.AnalyzerSet{
			"simple_lower": {Tokenizer: "simple", Filters: []string{"lower_case"}},
		},
		WriterThreads: 1,
		WriterMemory:  32 * 1024 * 1024,
		ReplicaCount:  1,
		Shards:        []string{"aaaaaaaa"},
	}
}

func TestCreateGetRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, s.CreateIndex("example", testMeta()))

	got, err := s.GetIndex("example")
	require.NoError(t, err)
	require.Equal(t, "example", got.Name)
	require.Equal(t, []string{"aaaaaaaa"}, got.Shards)
}

func TestCreateAlreadyExists(t *testing.T) {
	s, err := Open(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.CreateIndex("example", testMeta()))
	err = s.CreateIndex("example", testMeta())
	require.Error(t, err)
}

func TestDeleteNotFound(t *testing.T) {
	s, err := Open(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	err = s.DeleteIndex("missing")
	require.Error(t, err)
}

func TestModifyIncompatibleSchemaRejected(t *testing.T) {
	s, err := Open(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.CreateIndex("example", testMeta()))

	next := testMeta()
	next.Schema.Fields = next.Schema.Fields[:1] // drops popularity
	err = s.ModifyIndex("example", next)
	require.Error(t, err)
}

func TestIncrementDecrementShards(t *testing.T) {
	s, err := Open(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.CreateIndex("example", testMeta()))

	require.NoError(t, s.IncrementShards("example", []string{"bbbbbbbb"}))
	got, err := s.GetIndex("example")
	require.NoError(t, err)
	require.Len(t, got.Shards, 2)

	require.NoError(t, s.DecrementShards("example", []string{"aaaaaaaa"}))
	got, err = s.GetIndex("example")
	require.NoError(t, err)
	require.Equal(t, []string{"bbbbbbbb"}, got.Shards)
}

func TestInvalidMetaRejectedBeforeWrite(t *testing.T) {
	s, err := Open(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	bad := testMeta()
	bad.ReplicaCount = 0
	err = s.CreateIndex("bad", bad)
	require.Error(t, err)

	_, err = s.GetIndex("bad")
	require.Error(t, err)
}
