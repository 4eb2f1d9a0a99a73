package rpc

import "github.com/bayardsearch/bayard/internal/query"

// Document is the wire shape of spec.md §6: id/score/timestamp/sort_value
// plus opaque fields bytes.
type Document struct {
	ID        string  `json:"id"`
	Score     float64 `json:"score,omitempty"`
	Timestamp int64   `json:"timestamp,omitempty"`
	SortValue float64 `json:"sort_value,omitempty"`
	Fields    []byte  `json:"fields,omitempty"`
}

// --- Admin ops -------------------------------------------------------------

type CreateIndexRequest struct {
	Name string `json:"name"`
	Meta []byte `json:"meta"` // JSON index definition
}

type CreateIndexResponse struct{}

type DeleteIndexRequest struct {
	Name string `json:"name"`
}

type DeleteIndexResponse struct{}

type GetIndexRequest struct {
	Name string `json:"name"`
}

type GetIndexResponse struct {
	Meta []byte `json:"meta"`
}

type ModifyIndexRequest struct {
	Name string `json:"name"`
	Meta []byte `json:"meta"`
}

type ModifyIndexResponse struct{}

// IncrementShardsRequest carries the already-decided new shard ids so every
// peer's metadata store converges on the same shard list, rather than each
// peer minting its own ids for the same logical add.
type IncrementShardsRequest struct {
	Name     string   `json:"name"`
	ShardIDs []string `json:"shard_ids"`
}

type IncrementShardsResponse struct{}

type DecrementShardsRequest struct {
	Name     string   `json:"name"`
	ShardIDs []string `json:"shard_ids"`
}

type DecrementShardsResponse struct{}

// --- Write path --------------------------------------------------------------

type PutDocumentsRequest struct {
	Index     string   `json:"index"`
	Shard     string   `json:"shard"`
	Documents [][]byte `json:"documents"` // newline-delimited-JSON-equivalent, one per element
}

type PutDocumentsResponse struct{}

type DeleteDocumentsRequest struct {
	Index string   `json:"index"`
	Shard string   `json:"shard"`
	IDs   []string `json:"ids"`
}

type DeleteDocumentsResponse struct{}

type CommitRequest struct {
	Index string `json:"index"`
	Shard string `json:"shard"`
}

type CommitResponse struct{}

type RollbackRequest struct {
	Index string `json:"index"`
	Shard string `json:"shard"`
}

type RollbackResponse struct{}

// --- Read path --------------------------------------------------------------

// SearchRequest carries the tagged-union query envelope plus the
// collection/sort/projection parameters of spec.md §4.3.
type SearchRequest struct {
	Index      string          `json:"index"`
	Shard      string          `json:"shard,omitempty"` // the receiving node's local replica to search
	Query      query.Envelope  `json:"query"`
	Collection query.CollectionKind `json:"collection_kind"`
	Sort       *query.Sort     `json:"sort,omitempty"`
	Fields     []string        `json:"fields,omitempty"`
	Offset     int             `json:"offset"`
	Hits       int             `json:"hits"`
}

type SearchResponse struct {
	TotalHits int64      `json:"total_hits"`
	Documents []Document `json:"documents"`
}

// --- Health -------------------------------------------------------------

type LivenessRequest struct{}

type LivenessResponse struct {
	Alive bool `json:"alive"`
}

type ReadinessRequest struct{}

type ReadinessResponse struct {
	Ready bool `json:"ready"`
}
