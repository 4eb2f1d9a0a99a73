package router

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bayardsearch/bayard/internal/engine"
	"github.com/bayardsearch/bayard/internal/query"
)

func TestSortMergedByScoreDescending(t *testing.T) {
	docs := []engine.Document{
		{ID: "a", Score: 0.5},
		{ID: "b", Score: 0.9},
		{ID: "c", Score: 0.1},
	}
	sortMerged(docs, nil)
	require.Equal(t, []string{"b", "a", "c"}, ids(docs))
}

func TestSortMergedByFieldAscending(t *testing.T) {
	docs := []engine.Document{
		{ID: "a", SortValue: 3},
		{ID: "b", SortValue: 1},
		{ID: "c", SortValue: 2},
	}
	sortMerged(docs, &query.Sort{Field: "price", Order: query.SortAsc})
	require.Equal(t, []string{"b", "c", "a"}, ids(docs))
}

func TestSortMergedStableTieBreakByID(t *testing.T) {
	docs := []engine.Document{
		{ID: "z", Score: 1},
		{ID: "a", Score: 1},
	}
	sortMerged(docs, nil)
	require.Equal(t, []string{"a", "z"}, ids(docs))
}

func ids(docs []engine.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}
