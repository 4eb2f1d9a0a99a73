// Package engine implements the per-(index,shard) index engine of
// spec.md §4.3: a long-lived bleve writer, a lock serializing batches, the
// two-phase uncommitted/committed write discipline, and search over the
// current committed state.
package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/numeric"

	"github.com/bayardsearch/bayard/internal/apierr"
	"github.com/bayardsearch/bayard/internal/query"
	"github.com/bayardsearch/bayard/internal/schema"
)

// State is the per-shard state machine of spec.md §4.3.
type State int

const (
	StateInitializing State = iota
	StateReady
	StateWriting
	StateCommitting
	StateClosing
)

// ShardReplica is the per-(index,shard) writer handle, analyzer registry,
// and reader snapshot described in spec.md §4.3.
type ShardReplica struct {
	IndexName string
	ShardID   string

	mu      sync.Mutex // the single coarse lock on the write path: serializes batches for this shard
	state   State
	index   bleve.Index
	pending *bleve.Batch
	schema  schema.Schema
}

// Open creates or re-opens the bleve index backing this replica at path,
// applying the index's declared schema and analyzer set, and the writer
// thread/memory configuration of spec.md §3.
func Open(indexName, shardID, path string, meta IndexConfig) (*ShardReplica, error) {
	im, err := buildMapping(meta.Schema, meta.Analyzers)
	if err != nil {
		return nil, err
	}

	kvConfig := map[string]interface{}{
		"writer_threads":     meta.WriterThreads,
		"writer_memory_mb":   meta.WriterMemory / meta.WriterThreads / (1024 * 1024),
	}

	idx, err := bleve.NewUsing(path, im, bleve.Config.DefaultIndexType, bleve.Config.DefaultKVStore, kvConfig)
	if err != nil {
		if err == bleve.ErrorIndexPathExists {
			idx, err = bleve.OpenUsing(path, kvConfig)
		}
		if err != nil {
			return nil, fmt.Errorf("engine: open index for %s/%s: %w", indexName, shardID, err)
		}
	}

	return &ShardReplica{
		IndexName: indexName,
		ShardID:   shardID,
		state:     StateReady,
		index:     idx,
		pending:   idx.NewBatch(),
		schema:    meta.Schema,
	}, nil
}

// IndexConfig is the subset of metadata.IndexMeta a shard replica needs to
// open its writer; kept separate to avoid an import cycle with metadata.
type IndexConfig struct {
	Schema        schema.Schema
	Analyzers     schema.AnalyzerSet
	WriterThreads int
	WriterMemory  int64
}

// PutDocuments parses each document against the schema and stages it in the
// writer's pending batch. Stamps each document's timestamp to now. A
// schema violation in any document fails the whole batch atomically: no
// partial staging.
func (r *ShardReplica) PutDocuments(raws [][]byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateClosing {
		return apierr.New(apierr.Unavailable, "shard %s/%s is closing", r.IndexName, r.ShardID)
	}
	r.state = StateWriting
	defer func() { r.state = StateReady }()

	docs := make([]Document, 0, len(raws))
	for _, raw := range raws {
		doc, err := ParseDocument(raw, r.schema)
		if err != nil {
			return err // all-or-nothing: nothing has been staged yet
		}
		docs = append(docs, doc)
	}

	now := time.Now().Unix()
	for _, doc := range docs {
		doc.Timestamp = now
		if err := r.pending.Index(doc.ID, toBleveDoc(doc)); err != nil {
			return apierr.Wrap(apierr.Internal, err, "stage document %q", doc.ID)
		}
	}
	return nil
}

// DeleteDocuments stages deletions by id.
func (r *ShardReplica) DeleteDocuments(ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateClosing {
		return apierr.New(apierr.Unavailable, "shard %s/%s is closing", r.IndexName, r.ShardID)
	}
	r.state = StateWriting
	defer func() { r.state = StateReady }()

	for _, id := range ids {
		r.pending.Delete(id)
	}
	return nil
}

// Commit atomically promotes all staged changes by applying the pending
// batch to the bleve index. A commit with no staged changes is a no-op
// that returns OK, per spec.md §8. On failure the shard stays Ready with
// staged changes intact so a retried commit can try again; rollback is
// always safe.
func (r *ShardReplica) Commit() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending.Size() == 0 {
		return nil
	}
	r.state = StateCommitting
	defer func() { r.state = StateReady }()

	if err := r.index.Batch(r.pending); err != nil {
		return apierr.Wrap(apierr.Internal, err, "commit shard %s/%s", r.IndexName, r.ShardID)
	}
	r.pending = r.index.NewBatch()
	return nil
}

// Rollback discards all staged changes since the last commit.
func (r *ShardReplica) Rollback() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = r.index.NewBatch()
	return nil
}

// SearchRequest is the parameters to Search, per spec.md §4.3.
type SearchRequest struct {
	Query      query.Query
	Collection query.CollectionKind
	Sort       *query.Sort
	Fields     []string
	Offset     int
	Hits       int
}

// SearchResult is total_hits plus the materialized page of documents.
type SearchResult struct {
	TotalHits int64
	Documents []Document
}

// Search runs the parsed query against the current committed state and
// materializes up to Hits documents from Offset, projecting only the
// requested fields. Because bleve opens a fresh reader per Search call,
// every call is automatically snapshot-consistent with whatever has been
// committed so far: no partial writes, no future writes.
func (r *ShardReplica) Search(req SearchRequest) (SearchResult, error) {
	bq, err := toBleveQuery(req.Query)
	if err != nil {
		return SearchResult{}, err
	}

	size := req.Hits
	if req.Collection == query.CollectCount {
		size = 0
	}
	sreq := bleve.NewSearchRequestOptions(bq, size, req.Offset, false)
	sreq.Fields = req.Fields

	if req.Sort != nil && req.Sort.Field != "" {
		dir := "-"
		if req.Sort.Order == query.SortAsc {
			dir = ""
		}
		sreq.SortBy([]string{dir + req.Sort.Field})
	} else if req.Sort != nil && req.Sort.Order == query.SortAsc {
		sreq.SortBy([]string{"_score"})
	}

	res, err := r.index.Search(sreq)
	if err != nil {
		return SearchResult{}, apierr.Wrap(apierr.Internal, err, "search shard %s/%s", r.IndexName, r.ShardID)
	}

	docs := make([]Document, 0, len(res.Hits))
	for _, hit := range res.Hits {
		d := Document{ID: hit.ID, Score: hit.Score, Fields: hit.Fields}
		if req.Sort != nil && req.Sort.Field != "" {
			if v, ok := hit.Fields[req.Sort.Field]; ok {
				if f, ok := v.(float64); ok {
					d.SortValue = f
				}
			} else if len(hit.Sort) > 0 {
				// The sort field is not stored: decode its numeric sort key.
				if i64, err := numeric.PrefixCoded(hit.Sort[0]).Int64(); err == nil {
					d.SortValue = numeric.Int64ToFloat64(i64)
				}
			}
		}
		docs = append(docs, d)
	}

	return SearchResult{TotalHits: int64(res.Total), Documents: docs}, nil
}

// Close drains by acquiring the writer lock (blocking until any in-flight
// batch finishes) then closes the underlying bleve index. Entry into
// StateClosing prevents new batches from starting.
func (r *ShardReplica) Close() error {
	r.mu.Lock()
	r.state = StateClosing
	r.mu.Unlock()
	return r.index.Close()
}

func toBleveDoc(d Document) map[string]interface{} {
	out := make(map[string]interface{}, len(d.Fields)+1)
	for k, v := range d.Fields {
		out[k] = v
	}
	out["timestamp"] = d.Timestamp
	return out
}
