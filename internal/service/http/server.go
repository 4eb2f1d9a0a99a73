// Package http implements the client-facing half of the Service Surface:
// the REST/JSON API of spec.md §4.5/§6, routed with gorilla/mux and backed
// by the cluster router for every operation that must reach more than the
// local node.
package http

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/bayardsearch/bayard/internal/apierr"
	"github.com/bayardsearch/bayard/internal/engine"
	"github.com/bayardsearch/bayard/internal/membership"
	"github.com/bayardsearch/bayard/internal/metadata"
	"github.com/bayardsearch/bayard/internal/query"
	"github.com/bayardsearch/bayard/internal/router"
)

// Server wires the REST API onto a cluster router and returns an
// *http.Server-ready handler via Handler().
type Server struct {
	router  *router.Router
	members *membership.Membership
	store   *metadata.Store
	log     zerolog.Logger
	mux     *mux.Router
}

func New(r *router.Router, members *membership.Membership, store *metadata.Store, log zerolog.Logger) *Server {
	s := &Server{router: r, members: members, store: store, log: log, mux: mux.NewRouter()}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) routes() {
	s.mux.HandleFunc("/indices/{name}", s.createIndex).Methods(http.MethodPost)
	s.mux.HandleFunc("/indices/{name}", s.getIndex).Methods(http.MethodGet)
	s.mux.HandleFunc("/indices/{name}", s.modifyIndex).Methods(http.MethodPut)
	s.mux.HandleFunc("/indices/{name}", s.deleteIndex).Methods(http.MethodDelete)

	s.mux.HandleFunc("/indices/{name}/shards", s.incrementShards).Methods(http.MethodPost)
	s.mux.HandleFunc("/indices/{name}/shards", s.decrementShards).Methods(http.MethodDelete)

	s.mux.HandleFunc("/indices/{name}/documents", s.putDocuments).Methods(http.MethodPut)
	s.mux.HandleFunc("/indices/{name}/documents", s.deleteDocuments).Methods(http.MethodDelete)
	s.mux.HandleFunc("/indices/{name}/documents/_commit", s.commit).Methods(http.MethodPost)
	s.mux.HandleFunc("/indices/{name}/documents/_rollback", s.rollback).Methods(http.MethodPost)

	s.mux.HandleFunc("/indices/{name}/search", s.search).Methods(http.MethodPost)

	s.mux.HandleFunc("/cluster/nodes", s.clusterNodes).Methods(http.MethodGet)

	s.mux.HandleFunc("/healthcheck/livez", s.livez).Methods(http.MethodGet)
	s.mux.HandleFunc("/healthcheck/readyz", s.readyz).Methods(http.MethodGet)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := apierr.KindOf(err)
	writeJSON(w, apierr.HTTPStatus(kind), map[string]string{
		"kind":    kind.String(),
		"message": err.Error(),
	})
}

// createIndex accepts a full index definition body, matching spec.md §3's
// IndexMeta shape (schema, analyzers, settings, writer_threads/memory,
// replica_count; shards are minted server-side from `shard_count`).
func (s *Server) createIndex(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	var body struct {
		metadata.IndexMeta
		ShardCount int `json:"shard_count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apierr.Wrap(apierr.InvalidArgument, err, "malformed request body"))
		return
	}
	shardCount := body.ShardCount
	if shardCount < 1 {
		shardCount = 1
	}
	if err := s.router.CreateIndex(r.Context(), name, body.IndexMeta, shardCount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, nil)
}

func (s *Server) getIndex(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	meta, err := s.router.GetIndex(name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) modifyIndex(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	var meta metadata.IndexMeta
	if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
		writeError(w, apierr.Wrap(apierr.InvalidArgument, err, "malformed request body"))
		return
	}
	if err := s.router.ModifyIndex(r.Context(), name, meta); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) deleteIndex(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := s.router.DeleteIndex(r.Context(), name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) incrementShards(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	n, err := strconv.Atoi(r.URL.Query().Get("n"))
	if err != nil || n < 1 {
		writeError(w, apierr.New(apierr.InvalidArgument, "query parameter n must be a positive integer"))
		return
	}
	ids, err := s.router.IncrementShards(r.Context(), name, n)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"shard_ids": ids})
}

func (s *Server) decrementShards(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	ids := r.URL.Query()["shard_id"]
	if len(ids) == 0 {
		writeError(w, apierr.New(apierr.InvalidArgument, "at least one shard_id query parameter is required"))
		return
	}
	if err := s.router.DecrementShards(r.Context(), name, ids); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// putDocuments accepts a newline-delimited JSON body, one document per
// line, matching spec.md §6's bulk write framing.
func (s *Server) putDocuments(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	docs, err := readNDJSON(r.Body)
	if err != nil {
		writeError(w, apierr.Wrap(apierr.InvalidArgument, err, "malformed newline-delimited JSON body"))
		return
	}
	if err := s.router.PutDocuments(r.Context(), name, docs); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) deleteDocuments(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	var body struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apierr.Wrap(apierr.InvalidArgument, err, "malformed request body"))
		return
	}
	if err := s.router.DeleteDocuments(r.Context(), name, body.IDs); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) commit(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	shard := r.URL.Query().Get("shard_id")
	if err := s.router.Commit(r.Context(), name, shard); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) rollback(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	shard := r.URL.Query().Get("shard_id")
	if err := s.router.Rollback(r.Context(), name, shard); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// searchRequestBody is the REST body shape for /indices/{name}/search,
// mirroring the query envelope/collection/sort/fields/offset/hits knobs of
// spec.md §4.3.
type searchRequestBody struct {
	Query      query.Envelope       `json:"query"`
	Collection query.CollectionKind `json:"collection_kind"`
	Sort       *query.Sort          `json:"sort,omitempty"`
	Fields     []string             `json:"fields,omitempty"`
	Offset     int                  `json:"offset"`
	Hits       int                  `json:"hits"`
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	shard := r.URL.Query().Get("shard_id")

	var body searchRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apierr.Wrap(apierr.InvalidArgument, err, "malformed request body"))
		return
	}
	q, err := query.Parse(body.Query)
	if err != nil {
		writeError(w, err)
		return
	}
	hits := body.Hits
	if hits <= 0 {
		hits = 10
	}
	res, err := s.router.Search(r.Context(), name, shard, engine.SearchRequest{
		Query:      q,
		Collection: body.Collection,
		Sort:       body.Sort,
		Fields:     body.Fields,
		Offset:     body.Offset,
		Hits:       hits,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_hits": res.TotalHits,
		"documents":  res.Documents,
	})
}

func (s *Server) clusterNodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"nodes": s.members.Snapshot()})
}

func (s *Server) livez(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"alive": true})
}

// readyz reports ready only once membership has at least one observation
// and the local metadata store has finished its initial scan, per
// spec.md §4.5.
func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ready := false
	select {
	case <-s.members.Ready():
		ready = s.store.ScanComplete()
	default:
	}
	status := http.StatusServiceUnavailable
	if ready {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]bool{"ready": ready})
}

func readNDJSON(body io.Reader) ([][]byte, error) {
	var out [][]byte
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		out = append(out, cp)
	}
	return out, scanner.Err()
}
