// Package router implements the Cluster Router of spec.md §4.4: it turns
// "do X on index Y" into per-shard RPCs, using rendezvous hashing for
// deterministic replica assignment, fans writes out to every replica and
// reads to one, and merges responses.
package router

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/bayardsearch/bayard/internal/apierr"
	"github.com/bayardsearch/bayard/internal/engine"
	"github.com/bayardsearch/bayard/internal/membership"
	"github.com/bayardsearch/bayard/internal/metadata"
	"github.com/bayardsearch/bayard/internal/query"
	"github.com/bayardsearch/bayard/internal/rpc"
)

const (
	maxRetryAttempts = 3
	retryBaseDelay   = 50 * time.Millisecond
)

// Router ties Membership, the Metadata Store, and the local Index Engine
// together, and dials peers on demand to complete fan-outs.
type Router struct {
	selfID   string
	members  *membership.Membership
	store    *metadata.Store
	local    *engine.Engine
	log      zerolog.Logger

	mu      sync.Mutex
	clients map[string]*rpc.Client // node gRPC addr -> client
}

// New constructs a Router. local may be nil at construction time and filled
// in later via SetEngine: the engine's own constructor takes
// Router.IsLocalReplica as its ownership predicate, so main.go wires the
// router before the engine exists yet.
func New(selfID string, members *membership.Membership, store *metadata.Store, local *engine.Engine, log zerolog.Logger) *Router {
	return &Router{
		selfID:  selfID,
		members: members,
		store:   store,
		local:   local,
		log:     log,
		clients: make(map[string]*rpc.Client),
	}
}

// SetEngine wires the local index engine once it has been constructed.
func (r *Router) SetEngine(e *engine.Engine) {
	r.local = e
}

// IsLocalReplica reports whether this node currently owns a replica of
// (indexName, shardID), per the rendezvous assignment over the live
// membership snapshot. Passed into engine.New as the ownership predicate.
func (r *Router) IsLocalReplica(indexName, shardID string) bool {
	meta, err := r.store.GetIndex(indexName)
	if err != nil {
		return false
	}
	owners := r.replicaOwners(shardID, meta.ReplicaCount)
	for _, id := range owners {
		if id == r.selfID {
			return true
		}
	}
	return false
}

func (r *Router) replicaOwners(shardID string, replicaCount int) []string {
	snap := r.members.Snapshot()
	ids := make([]string, 0, len(snap)+1)
	seen := map[string]bool{r.selfID: true}
	ids = append(ids, r.selfID)
	for _, n := range snap {
		if !seen[n.ID] {
			ids = append(ids, n.ID)
			seen[n.ID] = true
		}
	}
	return AssignReplicas(shardID, ids, replicaCount)
}

func (r *Router) nodeEndpoints() map[string]membership.Node {
	out := make(map[string]membership.Node)
	for _, n := range r.members.Snapshot() {
		out[n.ID] = n
	}
	return out
}

func (r *Router) clientFor(grpcAddr string) (*rpc.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[grpcAddr]; ok {
		return c, nil
	}
	c, err := rpc.Dial(context.Background(), grpcAddr)
	if err != nil {
		return nil, apierr.Wrap(apierr.Unavailable, err, "dial %s", grpcAddr)
	}
	r.clients[grpcAddr] = c
	return c, nil
}

// withRetry retries a per-shard RPC on errors that look transient
// (Unavailable, DeadlineExceeded), bounded by maxRetryAttempts and by ctx's
// deadline. Permanent errors are returned immediately.
func withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < maxRetryAttempts; attempt++ {
		err = fn()
		if err == nil || !apierr.Retryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(retryBaseDelay * time.Duration(1<<attempt)):
		}
	}
	return err
}

// ---------------------------------------------------------------------------
// Write fan-out
// ---------------------------------------------------------------------------

// groupByShard partitions raw documents (decoded just far enough to read
// "id") across an index's shard list by uniform modulo over the id.
func groupByShard(docs [][]byte, shards []string) (map[string][][]byte, error) {
	out := make(map[string][][]byte)
	for _, raw := range docs {
		var wire struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(raw, &wire); err != nil || wire.ID == "" {
			return nil, apierr.New(apierr.InvalidArgument, "document missing id")
		}
		shard := ShardForDocument(wire.ID, shards)
		out[shard] = append(out[shard], raw)
	}
	return out, nil
}

// PutDocuments routes each document to its shard by hashing its id, then
// issues the RPC to every replica of that shard in parallel. The write is
// acknowledged only when every replica acks within the deadline.
func (r *Router) PutDocuments(ctx context.Context, indexName string, docs [][]byte) error {
	meta, err := r.store.GetIndex(indexName)
	if err != nil {
		return err
	}
	byShard, err := groupByShard(docs, meta.Shards)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for shardID, shardDocs := range byShard {
		shardID, shardDocs := shardID, shardDocs
		g.Go(func() error {
			return r.writeToAllReplicas(gctx, indexName, shardID, meta.ReplicaCount, func(ctx context.Context, nodeID, grpcAddr string) error {
				return r.putDocumentsOn(ctx, nodeID, grpcAddr, indexName, shardID, shardDocs)
			})
		})
	}
	return g.Wait()
}

// DeleteDocuments routes each id to its shard the same way as PutDocuments.
func (r *Router) DeleteDocuments(ctx context.Context, indexName string, ids []string) error {
	meta, err := r.store.GetIndex(indexName)
	if err != nil {
		return err
	}
	byShard := make(map[string][]string)
	for _, id := range ids {
		shard := ShardForDocument(id, meta.Shards)
		byShard[shard] = append(byShard[shard], id)
	}

	g, gctx := errgroup.WithContext(ctx)
	for shardID, shardIDs := range byShard {
		shardID, shardIDs := shardID, shardIDs
		g.Go(func() error {
			return r.writeToAllReplicas(gctx, indexName, shardID, meta.ReplicaCount, func(ctx context.Context, nodeID, grpcAddr string) error {
				return r.deleteDocumentsOn(ctx, nodeID, grpcAddr, indexName, shardID, shardIDs)
			})
		})
	}
	return g.Wait()
}

// Commit fans a commit out to every replica of shardID (or, if shardID is
// empty, every shard of the index).
func (r *Router) Commit(ctx context.Context, indexName, shardID string) error {
	return r.fanOutWriteOp(ctx, indexName, shardID, func(ctx context.Context, nodeID, grpcAddr, shard string) error {
		return r.commitOn(ctx, nodeID, grpcAddr, indexName, shard)
	})
}

// Rollback fans a rollback out the same way as Commit.
func (r *Router) Rollback(ctx context.Context, indexName, shardID string) error {
	return r.fanOutWriteOp(ctx, indexName, shardID, func(ctx context.Context, nodeID, grpcAddr, shard string) error {
		return r.rollbackOn(ctx, nodeID, grpcAddr, indexName, shard)
	})
}

func (r *Router) fanOutWriteOp(ctx context.Context, indexName, shardID string, op func(ctx context.Context, nodeID, grpcAddr, shard string) error) error {
	meta, err := r.store.GetIndex(indexName)
	if err != nil {
		return err
	}
	shards := meta.Shards
	if shardID != "" {
		shards = []string{shardID}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, shard := range shards {
		shard := shard
		g.Go(func() error {
			return r.writeToAllReplicas(gctx, indexName, shard, meta.ReplicaCount, func(ctx context.Context, nodeID, grpcAddr string) error {
				return op(ctx, nodeID, grpcAddr, shard)
			})
		})
	}
	return g.Wait()
}

// writeToAllReplicas issues call to every replica owning shardID in
// parallel, applies the retry policy per call, and fails with the most
// severe error across replicas if any fails, per spec.md §4.4.
func (r *Router) writeToAllReplicas(ctx context.Context, indexName, shardID string, replicaCount int, call func(ctx context.Context, nodeID, grpcAddr string) error) error {
	owners := r.replicaOwners(shardID, replicaCount)
	if len(owners) == 0 {
		return apierr.New(apierr.Unavailable, "no live replica for shard %s", shardID)
	}
	endpoints := r.nodeEndpoints()

	var mu sync.Mutex
	var combined error

	g, gctx := errgroup.WithContext(ctx)
	for _, nodeID := range owners {
		nodeID := nodeID
		g.Go(func() error {
			grpcAddr := ""
			if nodeID != r.selfID {
				ep, ok := endpoints[nodeID]
				if !ok {
					err := apierr.New(apierr.Unavailable, "replica node %s is not currently reachable", nodeID).WithOrigin(shardID, nodeID)
					mu.Lock()
					combined = apierr.MostSevere(combined, err)
					mu.Unlock()
					return err
				}
				grpcAddr = ep.GRPCAddr
			}
			err := withRetry(gctx, func() error { return call(gctx, nodeID, grpcAddr) })
			if err == nil {
				return nil
			}
			var typed *apierr.Error
			if ae, ok := err.(*apierr.Error); ok {
				typed = ae.WithOrigin(shardID, nodeID)
			} else {
				typed = apierr.Wrap(apierr.ReplicationFailed, err, "replica %s failed", nodeID).WithOrigin(shardID, nodeID)
			}
			mu.Lock()
			combined = apierr.MostSevere(combined, typed)
			mu.Unlock()
			return typed
		})
	}
	_ = g.Wait()
	return combined
}

func (r *Router) putDocumentsOn(ctx context.Context, nodeID, grpcAddr, indexName, shardID string, docs [][]byte) error {
	if nodeID == r.selfID {
		return r.local.PutDocuments(indexName, shardID, docs)
	}
	c, err := r.clientFor(grpcAddr)
	if err != nil {
		return err
	}
	_, err = c.PutDocuments(ctx, &rpc.PutDocumentsRequest{Index: indexName, Shard: shardID, Documents: docs})
	return err
}

func (r *Router) deleteDocumentsOn(ctx context.Context, nodeID, grpcAddr, indexName, shardID string, ids []string) error {
	if nodeID == r.selfID {
		return r.local.DeleteDocuments(indexName, shardID, ids)
	}
	c, err := r.clientFor(grpcAddr)
	if err != nil {
		return err
	}
	_, err = c.DeleteDocuments(ctx, &rpc.DeleteDocumentsRequest{Index: indexName, Shard: shardID, IDs: ids})
	return err
}

func (r *Router) commitOn(ctx context.Context, nodeID, grpcAddr, indexName, shardID string) error {
	if nodeID == r.selfID {
		return r.local.Commit(indexName, shardID)
	}
	c, err := r.clientFor(grpcAddr)
	if err != nil {
		return err
	}
	_, err = c.Commit(ctx, &rpc.CommitRequest{Index: indexName, Shard: shardID})
	return err
}

func (r *Router) rollbackOn(ctx context.Context, nodeID, grpcAddr, indexName, shardID string) error {
	if nodeID == r.selfID {
		return r.local.Rollback(indexName, shardID)
	}
	c, err := r.clientFor(grpcAddr)
	if err != nil {
		return err
	}
	_, err = c.Rollback(ctx, &rpc.RollbackRequest{Index: indexName, Shard: shardID})
	return err
}

// ---------------------------------------------------------------------------
// Search fan-out
// ---------------------------------------------------------------------------

// Search routes to a single shard's primary replica if shardID is set;
// otherwise it fans out to every shard's primary replica and merges.
func (r *Router) Search(ctx context.Context, indexName, shardID string, req engine.SearchRequest) (engine.SearchResult, error) {
	meta, err := r.store.GetIndex(indexName)
	if err != nil {
		return engine.SearchResult{}, err
	}

	shards := meta.Shards
	if shardID != "" {
		shards = []string{shardID}
	}

	type partial struct {
		total int64
		docs  []engine.Document
	}
	results := make([]partial, len(shards))

	// Each shard returns its own top offset+hits from the start; the merged
	// list is trimmed to [offset, offset+hits) below.
	shardReq := req
	shardReq.Offset = 0
	if req.Hits > 0 {
		shardReq.Hits = req.Offset + req.Hits
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, shard := range shards {
		i, shard := i, shard
		g.Go(func() error {
			owners := r.replicaOwners(shard, meta.ReplicaCount)
			if len(owners) == 0 {
				return apierr.New(apierr.Unavailable, "no live replica for shard %s", shard).WithOrigin(shard, "")
			}
			primary := owners[0]
			var res engine.SearchResult
			err := withRetry(gctx, func() error {
				var err error
				res, err = r.searchOn(gctx, primary, indexName, shard, shardReq)
				return err
			})
			if err != nil {
				return err
			}
			results[i] = partial{total: res.TotalHits, docs: res.Documents}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return engine.SearchResult{}, err
	}

	merged := engine.SearchResult{}
	for _, p := range results {
		merged.TotalHits += p.total
		merged.Documents = append(merged.Documents, p.docs...)
	}
	sortMerged(merged.Documents, req.Sort)

	offset := req.Offset
	hits := req.Hits
	if offset > len(merged.Documents) {
		merged.Documents = nil
	} else {
		end := offset + hits
		if end > len(merged.Documents) || hits <= 0 {
			end = len(merged.Documents)
		}
		merged.Documents = merged.Documents[offset:end]
	}
	return merged, nil
}

func sortMerged(docs []engine.Document, sortSpec *query.Sort) {
	desc := true
	byField := false
	if sortSpec != nil {
		desc = sortSpec.Order != query.SortAsc
		byField = sortSpec.Field != ""
	}
	sort.SliceStable(docs, func(i, j int) bool {
		var less bool
		if byField {
			if docs[i].SortValue == docs[j].SortValue {
				return docs[i].ID < docs[j].ID
			}
			less = docs[i].SortValue < docs[j].SortValue
		} else {
			if docs[i].Score == docs[j].Score {
				return docs[i].ID < docs[j].ID
			}
			less = docs[i].Score < docs[j].Score
		}
		if desc {
			return !less
		}
		return less
	})
}

func (r *Router) searchOn(ctx context.Context, nodeID, indexName, shardID string, req engine.SearchRequest) (engine.SearchResult, error) {
	if nodeID == r.selfID {
		return r.local.Search(indexName, shardID, req)
	}
	endpoints := r.nodeEndpoints()
	ep, ok := endpoints[nodeID]
	if !ok {
		return engine.SearchResult{}, apierr.New(apierr.Unavailable, "replica node %s is not currently reachable", nodeID)
	}
	c, err := r.clientFor(ep.GRPCAddr)
	if err != nil {
		return engine.SearchResult{}, err
	}
	envelope, err := envelopeFromQuery(req.Query)
	if err != nil {
		return engine.SearchResult{}, err
	}
	resp, err := c.Search(ctx, &rpc.SearchRequest{
		Index: indexName, Shard: shardID, Query: envelope,
		Collection: req.Collection, Sort: req.Sort, Fields: req.Fields,
		Offset: req.Offset, Hits: req.Hits,
	})
	if err != nil {
		return engine.SearchResult{}, err
	}
	out := engine.SearchResult{TotalHits: resp.TotalHits}
	for _, d := range resp.Documents {
		var fields map[string]any
		_ = json.Unmarshal(d.Fields, &fields)
		out.Documents = append(out.Documents, engine.Document{
			ID: d.ID, Score: d.Score, SortValue: d.SortValue, Timestamp: d.Timestamp, Fields: fields,
		})
	}
	return out, nil
}

func envelopeFromQuery(q query.Query) (query.Envelope, error) {
	var v any
	switch q.Kind {
	case query.KindAll:
		v = q.All
	case query.KindBoolean:
		v = q.Boolean
	case query.KindBoost:
		v = q.Boost
	case query.KindFuzzyTerm:
		v = q.FuzzyTerm
	case query.KindPhrase:
		v = q.Phrase
	case query.KindQueryStr:
		v = q.QueryStr
	case query.KindRange:
		v = q.Range
	case query.KindRegex:
		v = q.Regex
	case query.KindTerm:
		v = q.Term
	default:
		return query.Envelope{}, apierr.New(apierr.InvalidArgument, "unknown query kind %q", q.Kind)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return query.Envelope{}, err
	}
	return query.Envelope{Kind: q.Kind, Options: raw}, nil
}

// ---------------------------------------------------------------------------
// Admin ops
// ---------------------------------------------------------------------------

// CreateIndex validates and writes the index locally, generates its shard
// ids, then broadcasts the creation to every other live peer so each
// reacts through its own metadata watcher, per spec.md §4.4.
func (r *Router) CreateIndex(ctx context.Context, name string, meta metadata.IndexMeta, numShards int) error {
	if len(meta.Shards) == 0 {
		meta.Shards = make([]string, numShards)
		for i := range meta.Shards {
			meta.Shards[i] = newShardID()
		}
	}
	if err := r.store.CreateIndex(name, meta); err != nil {
		return err
	}
	return r.broadcastAdmin(ctx, func(ctx context.Context, c *rpc.Client) error {
		raw, _ := json.Marshal(meta)
		_, err := c.CreateIndex(ctx, &rpc.CreateIndexRequest{Name: name, Meta: raw})
		return err
	})
}

func (r *Router) DeleteIndex(ctx context.Context, name string) error {
	if err := r.store.DeleteIndex(name); err != nil {
		return err
	}
	return r.broadcastAdmin(ctx, func(ctx context.Context, c *rpc.Client) error {
		_, err := c.DeleteIndex(ctx, &rpc.DeleteIndexRequest{Name: name})
		return err
	})
}

// GetIndex reads from the local store; admin reads do not need to fan out
// since every peer's store converges to the same definition.
func (r *Router) GetIndex(name string) (metadata.IndexMeta, error) {
	return r.store.GetIndex(name)
}

func (r *Router) ModifyIndex(ctx context.Context, name string, next metadata.IndexMeta) error {
	if err := r.store.ModifyIndex(name, next); err != nil {
		return err
	}
	return r.broadcastAdmin(ctx, func(ctx context.Context, c *rpc.Client) error {
		raw, _ := json.Marshal(next)
		_, err := c.ModifyIndex(ctx, &rpc.ModifyIndexRequest{Name: name, Meta: raw})
		return err
	})
}

func (r *Router) IncrementShards(ctx context.Context, name string, n int) ([]string, error) {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = newShardID()
	}
	if err := r.store.IncrementShards(name, ids); err != nil {
		return nil, err
	}
	err := r.broadcastAdmin(ctx, func(ctx context.Context, c *rpc.Client) error {
		_, err := c.IncrementShards(ctx, &rpc.IncrementShardsRequest{Name: name, ShardIDs: ids})
		return err
	})
	return ids, err
}

func (r *Router) DecrementShards(ctx context.Context, name string, shardIDs []string) error {
	if err := r.store.DecrementShards(name, shardIDs); err != nil {
		return err
	}
	return r.broadcastAdmin(ctx, func(ctx context.Context, c *rpc.Client) error {
		_, err := c.DecrementShards(ctx, &rpc.DecrementShardsRequest{Name: name, ShardIDs: shardIDs})
		return err
	})
}

func (r *Router) broadcastAdmin(ctx context.Context, call func(ctx context.Context, c *rpc.Client) error) error {
	var firstErr error
	for id, ep := range r.nodeEndpoints() {
		if id == r.selfID {
			continue
		}
		c, err := r.clientFor(ep.GRPCAddr)
		if err != nil {
			r.log.Warn().Err(err).Str("node", id).Msg("admin broadcast: peer unreachable")
			continue
		}
		if err := call(ctx, c); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func newShardID() string {
	return uuid.NewString()[:8]
}
