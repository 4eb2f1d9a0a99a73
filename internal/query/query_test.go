package query

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseQueryString(t *testing.T) {
	env := Envelope{Kind: KindQueryStr, Options: json.RawMessage(`{"query":"search"}`)}
	q, err := Parse(env)
	require.NoError(t, err)
	require.Equal(t, "search", q.QueryStr.Query)
}

func TestParseUnknownKind(t *testing.T) {
	_, err := Parse(Envelope{Kind: "NOT_A_KIND"})
	require.Error(t, err)
}

func TestParseBooleanNestedValidation(t *testing.T) {
	opts, _ := json.Marshal(BooleanQuery{
		Clauses: []BooleanClause{{Occur: OccurMust, Query: Envelope{Kind: "BOGUS"}}},
	})
	env := Envelope{Kind: KindBoolean, Options: opts}
	_, err := Parse(env)
	require.Error(t, err)
}
