// Package grpc implements the inter-node half of the Service Surface: the
// IndexService and HealthCheckService that one node's cluster router calls
// on another to apply writes, run searches, and propagate admin changes to
// a locally-owned replica or a locally-held metadata store. A node's own
// clients never talk to this surface directly; they go through the HTTP
// surface in internal/service/http, which drives the cluster router.
package grpc

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/status"

	"github.com/bayardsearch/bayard/internal/apierr"
	"github.com/bayardsearch/bayard/internal/engine"
	"github.com/bayardsearch/bayard/internal/membership"
	"github.com/bayardsearch/bayard/internal/metadata"
	"github.com/bayardsearch/bayard/internal/query"
	"github.com/bayardsearch/bayard/internal/rpc"
)

// Server implements rpc.IndexServer and rpc.HealthServer. Admin methods
// apply directly to the local metadata store (the sender already broadcast
// to every peer; a receiving node never re-broadcasts). Write and search
// methods apply directly to the local index engine, since the sender's
// cluster router has already resolved which node owns the replica.
type Server struct {
	store   *metadata.Store
	engine  *engine.Engine
	members *membership.Membership
	log     zerolog.Logger
}

func New(store *metadata.Store, eng *engine.Engine, members *membership.Membership, log zerolog.Logger) *Server {
	return &Server{store: store, engine: eng, members: members, log: log}
}

func toStatus(err error) error {
	if err == nil {
		return nil
	}
	kind := apierr.KindOf(err)
	return status.Error(apierr.GRPCCode(kind), err.Error())
}

func (s *Server) CreateIndex(ctx context.Context, req *rpc.CreateIndexRequest) (*rpc.CreateIndexResponse, error) {
	var meta metadata.IndexMeta
	if err := json.Unmarshal(req.Meta, &meta); err != nil {
		return nil, toStatus(apierr.Wrap(apierr.InvalidArgument, err, "malformed index definition"))
	}
	if err := s.store.CreateIndex(req.Name, meta); err != nil {
		return nil, toStatus(err)
	}
	return &rpc.CreateIndexResponse{}, nil
}

func (s *Server) DeleteIndex(ctx context.Context, req *rpc.DeleteIndexRequest) (*rpc.DeleteIndexResponse, error) {
	if err := s.store.DeleteIndex(req.Name); err != nil {
		return nil, toStatus(err)
	}
	return &rpc.DeleteIndexResponse{}, nil
}

func (s *Server) GetIndex(ctx context.Context, req *rpc.GetIndexRequest) (*rpc.GetIndexResponse, error) {
	meta, err := s.store.GetIndex(req.Name)
	if err != nil {
		return nil, toStatus(err)
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, toStatus(apierr.Wrap(apierr.Internal, err, "marshal index metadata"))
	}
	return &rpc.GetIndexResponse{Meta: raw}, nil
}

func (s *Server) ModifyIndex(ctx context.Context, req *rpc.ModifyIndexRequest) (*rpc.ModifyIndexResponse, error) {
	var meta metadata.IndexMeta
	if err := json.Unmarshal(req.Meta, &meta); err != nil {
		return nil, toStatus(apierr.Wrap(apierr.InvalidArgument, err, "malformed index definition"))
	}
	if err := s.store.ModifyIndex(req.Name, meta); err != nil {
		return nil, toStatus(err)
	}
	return &rpc.ModifyIndexResponse{}, nil
}

func (s *Server) IncrementShards(ctx context.Context, req *rpc.IncrementShardsRequest) (*rpc.IncrementShardsResponse, error) {
	if err := s.store.IncrementShards(req.Name, req.ShardIDs); err != nil {
		return nil, toStatus(err)
	}
	return &rpc.IncrementShardsResponse{}, nil
}

func (s *Server) DecrementShards(ctx context.Context, req *rpc.DecrementShardsRequest) (*rpc.DecrementShardsResponse, error) {
	if err := s.store.DecrementShards(req.Name, req.ShardIDs); err != nil {
		return nil, toStatus(err)
	}
	return &rpc.DecrementShardsResponse{}, nil
}

func (s *Server) PutDocuments(ctx context.Context, req *rpc.PutDocumentsRequest) (*rpc.PutDocumentsResponse, error) {
	if err := s.engine.PutDocuments(req.Index, req.Shard, req.Documents); err != nil {
		return nil, toStatus(err)
	}
	return &rpc.PutDocumentsResponse{}, nil
}

func (s *Server) DeleteDocuments(ctx context.Context, req *rpc.DeleteDocumentsRequest) (*rpc.DeleteDocumentsResponse, error) {
	if err := s.engine.DeleteDocuments(req.Index, req.Shard, req.IDs); err != nil {
		return nil, toStatus(err)
	}
	return &rpc.DeleteDocumentsResponse{}, nil
}

func (s *Server) Commit(ctx context.Context, req *rpc.CommitRequest) (*rpc.CommitResponse, error) {
	if err := s.engine.Commit(req.Index, req.Shard); err != nil {
		return nil, toStatus(err)
	}
	return &rpc.CommitResponse{}, nil
}

func (s *Server) Rollback(ctx context.Context, req *rpc.RollbackRequest) (*rpc.RollbackResponse, error) {
	if err := s.engine.Rollback(req.Index, req.Shard); err != nil {
		return nil, toStatus(err)
	}
	return &rpc.RollbackResponse{}, nil
}

func (s *Server) Search(ctx context.Context, req *rpc.SearchRequest) (*rpc.SearchResponse, error) {
	q, err := query.Parse(req.Query)
	if err != nil {
		return nil, toStatus(err)
	}
	res, err := s.engine.Search(req.Index, req.Shard, engine.SearchRequest{
		Query:      q,
		Collection: req.Collection,
		Sort:       req.Sort,
		Fields:     req.Fields,
		Offset:     req.Offset,
		Hits:       req.Hits,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	out := &rpc.SearchResponse{TotalHits: res.TotalHits}
	for _, d := range res.Documents {
		fieldsRaw, err := json.Marshal(d.Fields)
		if err != nil {
			return nil, toStatus(apierr.Wrap(apierr.Internal, err, "marshal document fields"))
		}
		out.Documents = append(out.Documents, rpc.Document{
			ID: d.ID, Score: d.Score, SortValue: d.SortValue, Timestamp: d.Timestamp, Fields: fieldsRaw,
		})
	}
	return out, nil
}

func (s *Server) Liveness(ctx context.Context, req *rpc.LivenessRequest) (*rpc.LivenessResponse, error) {
	return &rpc.LivenessResponse{Alive: true}, nil
}

// Readiness reports ready once this node has observed at least one
// membership event (including its own join) and the local metadata store
// has finished its initial scan, matching the readiness probe semantics of
// spec.md §4.1/§4.5/§6.
func (s *Server) Readiness(ctx context.Context, req *rpc.ReadinessRequest) (*rpc.ReadinessResponse, error) {
	select {
	case <-s.members.Ready():
		return &rpc.ReadinessResponse{Ready: s.store.ScanComplete()}, nil
	default:
		return &rpc.ReadinessResponse{Ready: false}, nil
	}
}
