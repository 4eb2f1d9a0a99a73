package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/bayardsearch/bayard/internal/apierr"
	"github.com/bayardsearch/bayard/internal/metadata"
)

// key identifies a locally-owned (index, shard) replica.
type key struct {
	index string
	shard string
}

// Engine owns every shard replica this node currently hosts, and reacts to
// the metadata store's change notifications to create and tear down
// replicas. A modified index definition opens replicas for shards not yet
// hosted; replicas already open keep the mapping they were opened with.
type Engine struct {
	log      zerolog.Logger
	dataDir  string
	store    *metadata.Store
	isLocal  func(indexName, shardID string) bool

	mu       sync.RWMutex
	replicas map[key]*ShardReplica
}

// New wires the engine to the metadata store and an ownership predicate
// supplied by the cluster router (derived from rendezvous hashing over the
// current membership snapshot): the engine only opens a writer for shards
// this node actually owns a replica of.
func New(dataDir string, store *metadata.Store, isLocal func(indexName, shardID string) bool, log zerolog.Logger) (*Engine, error) {
	e := &Engine{
		log:      log,
		dataDir:  dataDir,
		store:    store,
		isLocal:  isLocal,
		replicas: make(map[key]*ShardReplica),
	}
	return e, nil
}

// Bootstrap opens replicas for every index/shard already in the metadata
// store that this node owns, for the case where the store already holds
// state at process start (a restart, or a node that joined an existing
// cluster after CreateIndex already ran elsewhere and replicated here).
func (e *Engine) Bootstrap() error {
	indices, err := e.store.ListIndices()
	if err != nil {
		return err
	}
	for _, meta := range indices {
		for _, shardID := range meta.Shards {
			if err := e.ensureReplica(meta, shardID); err != nil {
				e.log.Warn().Err(err).Str("index", meta.Name).Str("shard", shardID).Msg("failed to open shard replica at bootstrap")
			}
		}
	}
	return nil
}

// Run consumes metadata change events until the channel closes or stop is
// closed. Intended to run as the engine's long-lived background task.
func (e *Engine) Run(stop <-chan struct{}) {
	events := e.store.Watch()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			e.handleEvent(ev)
		case <-stop:
			return
		}
	}
}

func (e *Engine) handleEvent(ev metadata.Event) {
	switch ev.Kind {
	case metadata.IndexCreated, metadata.IndexModified:
		meta, err := e.store.GetIndex(ev.Key)
		if err != nil {
			e.log.Warn().Err(err).Str("index", ev.Key).Msg("failed to load index metadata after change notification")
			return
		}
		for _, shardID := range meta.Shards {
			if err := e.ensureReplica(meta, shardID); err != nil {
				e.log.Warn().Err(err).Str("index", meta.Name).Str("shard", shardID).Msg("failed to open shard replica")
			}
		}
	case metadata.ShardAdded:
		idx, shard := splitKey(ev.Key)
		meta, err := e.store.GetIndex(idx)
		if err != nil {
			e.log.Warn().Err(err).Str("index", idx).Msg("failed to load index metadata after shard addition")
			return
		}
		if err := e.ensureReplica(meta, shard); err != nil {
			e.log.Warn().Err(err).Str("index", idx).Str("shard", shard).Msg("failed to open shard replica")
		}
	case metadata.IndexDeleted:
		e.closeIndex(ev.Key)
	case metadata.ShardRemoved:
		idx, shard := splitKey(ev.Key)
		e.retireReplica(idx, shard)
	}
}

func splitKey(k string) (string, string) {
	for i := len(k) - 1; i >= 0; i-- {
		if k[i] == '/' {
			return k[:i], k[i+1:]
		}
	}
	return k, ""
}

func (e *Engine) shardPath(indexName, shardID string) string {
	return filepath.Join(e.dataDir, "indices", indexName, "shards", shardID, "segments")
}

// ensureReplica opens a replica for (index, shard) if this node does not
// already host one.
func (e *Engine) ensureReplica(meta metadata.IndexMeta, shardID string) error {
	if e.isLocal != nil && !e.isLocal(meta.Name, shardID) {
		return nil
	}

	k := key{index: meta.Name, shard: shardID}

	e.mu.RLock()
	_, exists := e.replicas[k]
	e.mu.RUnlock()
	if exists {
		return nil
	}

	if err := os.MkdirAll(e.shardPath(meta.Name, shardID), 0o755); err != nil {
		return err
	}
	cfg := IndexConfig{
		Schema:        meta.Schema,
		Analyzers:     meta.Analyzers,
		WriterThreads: meta.WriterThreads,
		WriterMemory:  meta.WriterMemory,
	}
	replica, err := Open(meta.Name, shardID, e.shardPath(meta.Name, shardID), cfg)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.replicas[k] = replica
	e.mu.Unlock()
	return nil
}

// retireReplica drains and unlinks local segment files for a shard this
// node no longer owns, per spec.md §3 shard retirement.
func (e *Engine) retireReplica(indexName, shardID string) {
	k := key{index: indexName, shard: shardID}
	e.mu.Lock()
	r, ok := e.replicas[k]
	delete(e.replicas, k)
	e.mu.Unlock()
	if !ok {
		return
	}
	if err := r.Close(); err != nil {
		e.log.Warn().Err(err).Str("index", indexName).Str("shard", shardID).Msg("error closing retiring shard")
	}
	_ = os.RemoveAll(e.shardPath(indexName, shardID))
}

func (e *Engine) closeIndex(indexName string) {
	e.mu.Lock()
	var toClose []*ShardReplica
	for k, r := range e.replicas {
		if k.index == indexName {
			toClose = append(toClose, r)
			delete(e.replicas, k)
		}
	}
	e.mu.Unlock()
	for _, r := range toClose {
		_ = r.Close()
	}
}

func (e *Engine) replica(indexName, shardID string) (*ShardReplica, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.replicas[key{index: indexName, shard: shardID}]
	if !ok {
		return nil, apierr.New(apierr.NotFound, "no local replica for %s/%s", indexName, shardID)
	}
	return r, nil
}

// PutDocuments is the engine-level entry point the gRPC/HTTP handlers (via
// the cluster router) call for a local replica.
func (e *Engine) PutDocuments(indexName, shardID string, docs [][]byte) error {
	r, err := e.replica(indexName, shardID)
	if err != nil {
		return err
	}
	return r.PutDocuments(docs)
}

func (e *Engine) DeleteDocuments(indexName, shardID string, ids []string) error {
	r, err := e.replica(indexName, shardID)
	if err != nil {
		return err
	}
	return r.DeleteDocuments(ids)
}

func (e *Engine) Commit(indexName, shardID string) error {
	r, err := e.replica(indexName, shardID)
	if err != nil {
		return err
	}
	return r.Commit()
}

func (e *Engine) Rollback(indexName, shardID string) error {
	r, err := e.replica(indexName, shardID)
	if err != nil {
		return err
	}
	return r.Rollback()
}

func (e *Engine) Search(indexName, shardID string, req SearchRequest) (SearchResult, error) {
	r, err := e.replica(indexName, shardID)
	if err != nil {
		return SearchResult{}, err
	}
	return r.Search(req)
}

// Close drains and closes every locally-owned replica, used on shutdown.
func (e *Engine) Close() error {
	e.mu.Lock()
	replicas := make([]*ShardReplica, 0, len(e.replicas))
	for _, r := range e.replicas {
		replicas = append(replicas, r)
	}
	e.replicas = map[key]*ShardReplica{}
	e.mu.Unlock()

	var firstErr error
	for _, r := range replicas {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("engine: close replica %s/%s: %w", r.IndexName, r.ShardID, err)
		}
	}
	return firstErr
}
