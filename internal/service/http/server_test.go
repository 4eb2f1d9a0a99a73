package http

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/bayardsearch/bayard/internal/engine"
	"github.com/bayardsearch/bayard/internal/membership"
	"github.com/bayardsearch/bayard/internal/metadata"
	"github.com/bayardsearch/bayard/internal/router"
	"github.com/bayardsearch/bayard/internal/schema"
)

// newSingleNodeServer wires one full node (membership, metadata store,
// router, engine) the way cmd/bayard does, for exercising the REST surface
// end to end against scenario 1 of spec.md §8 ("create and query single
// node").
func newSingleNodeServer(t *testing.T) *Server {
	t.Helper()
	log := zerolog.Nop()

	members, err := membership.New(membership.Config{
		NodeID:      "node-http-test",
		BindAddress: "127.0.0.1:0",
		GRPCAddress: "127.0.0.1:0",
		HTTPAddress: "127.0.0.1:0",
	}, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = members.Shutdown() })
	require.NoError(t, members.Join(""))

	store, err := metadata.Open(t.TempDir(), log)
	require.NoError(t, err)

	rt := router.New("node-http-test", members, store, nil, log)
	eng, err := engine.New(t.TempDir(), store, rt.IsLocalReplica, log)
	require.NoError(t, err)
	rt.SetEngine(eng)
	t.Cleanup(func() { _ = eng.Close() })

	stop := make(chan struct{})
	go eng.Run(stop)
	t.Cleanup(func() { close(stop) })

	return New(rt, members, store, log)
}

func exampleIndexBody() map[string]any {
	return map[string]any{
		"shard_count": 1,
		"schema": schema.Schema{Fields: []schema.Field{
			{Name: "description", Type: schema.FieldText, Indexed: true, Analyzer: "simple_lower"},
			{Name: "popularity", Type: schema.FieldU64, Fast: true},
		}},
		"analyzers": schema.AnalyzerSet{
			"simple_lower": {Tokenizer: "simple", Filters: []string{"lower_case"}},
		},
		"writer_threads": 1,
		"writer_memory":  32 * 1024 * 1024,
		"replica_count":  1,
	}
}

func TestCreatePutCommitSearchSingleNode(t *testing.T) {
	srv := newSingleNodeServer(t)

	body, err := json.Marshal(exampleIndexBody())
	require.NoError(t, err)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest("POST", "/indices/example", bytes.NewReader(body)))
	require.Equal(t, 201, w.Code, w.Body.String())

	docs := `{"id":"1","fields":{"description":"Rust search","popularity":10}}
{"id":"2","fields":{"description":"Java search","popularity":20}}
`
	require.Eventually(t, func() bool {
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, httptest.NewRequest("PUT", "/indices/example/documents", bytes.NewBufferString(docs)))
		return w.Code == 200
	}, 5*time.Second, 20*time.Millisecond, "waiting for the local shard replica to come up")

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest("POST", "/indices/example/documents/_commit", nil))
	require.Equal(t, 200, w.Code, w.Body.String())

	searchBody, err := json.Marshal(map[string]any{
		"query":           map[string]any{"kind": "QUERY_STRING", "options": map[string]string{"query": "search"}},
		"collection_kind": "count_and_top_docs",
		"sort":            map[string]string{"field": "popularity", "order": "DESC"},
		"fields":          []string{"id", "popularity"},
		"hits":            10,
	})
	require.NoError(t, err)
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest("POST", "/indices/example/search", bytes.NewReader(searchBody)))
	require.Equal(t, 200, w.Code, w.Body.String())

	var resp struct {
		TotalHits int64 `json:"total_hits"`
		Documents []struct {
			ID string `json:"id"`
		} `json:"documents"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.EqualValues(t, 2, resp.TotalHits)
	require.Len(t, resp.Documents, 2)
	require.Equal(t, "2", resp.Documents[0].ID) // higher popularity sorts first, DESC
	require.Equal(t, "1", resp.Documents[1].ID)
}

func TestSchemaViolationRejectsDocumentWithoutAffectingIndex(t *testing.T) {
	srv := newSingleNodeServer(t)

	body, _ := json.Marshal(exampleIndexBody())
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest("POST", "/indices/bad-doc", bytes.NewReader(body)))
	require.Equal(t, 201, w.Code, w.Body.String())

	require.Eventually(t, func() bool {
		w := httptest.NewRecorder()
		bad := `{"id":"3","fields":{"popularity":"not-a-number"}}` + "\n"
		srv.Handler().ServeHTTP(w, httptest.NewRequest("PUT", "/indices/bad-doc/documents", bytes.NewBufferString(bad)))
		return w.Code == 422 // SchemaViolation maps to Unprocessable Entity
	}, 5*time.Second, 20*time.Millisecond, "waiting for the local shard replica to come up")
}

func TestHealthEndpoints(t *testing.T) {
	srv := newSingleNodeServer(t)

	require.Eventually(t, func() bool {
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/healthcheck/readyz", nil))
		return w.Code == 200
	}, 5*time.Second, 20*time.Millisecond, "waiting for membership and metadata scan readiness")

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/healthcheck/livez", nil))
	require.Equal(t, 200, w.Code)
}
