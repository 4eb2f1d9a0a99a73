// Package metadata implements the process-local, filesystem-watched
// metadata store of spec.md §4.2: a directory tree of JSON files that is
// the single source of truth for index definitions and shard lists, with
// rename-based atomic publish and filesystem-notification fan-out to the
// index engine.
package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bayardsearch/bayard/internal/apierr"
	"github.com/bayardsearch/bayard/internal/schema"
	"github.com/rs/zerolog"
)

// Store is the single-writer, multi-reader metadata tree rooted at a data
// directory. The local node is the only writer; any number of readers
// (typically the cluster router servicing admin RPCs) may read concurrently.
type Store struct {
	root string
	log  zerolog.Logger

	mu   sync.RWMutex
	gen  atomic.Uint64 // change-generation counter guarding readers from torn reads

	watcher  *watcher
	scanDone bool // true once the initial *.tmp recovery scan has completed
}

// ScanComplete reports whether the store has finished its initial scan for
// partial writes, backing the readiness probe of spec.md §4.5.
func (s *Store) ScanComplete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanDone
}

// Open roots a Store at dir, creating the indices directory if absent, and
// recovering from any partial write by discarding stray *.tmp files left
// over from a crash mid-publish.
func Open(dir string, log zerolog.Logger) (*Store, error) {
	s := &Store{root: dir, log: log, watcher: &watcher{}}
	indicesDir := s.indicesDir()
	if err := os.MkdirAll(indicesDir, 0o755); err != nil {
		return nil, fmt.Errorf("metadata: create indices dir: %w", err)
	}
	if err := s.recoverPartialWrites(); err != nil {
		return nil, err
	}
	s.scanDone = true
	return s, nil
}

func (s *Store) indicesDir() string { return filepath.Join(s.root, "indices") }

func (s *Store) indexDir(name string) string { return filepath.Join(s.indicesDir(), name) }

func (s *Store) indexMetaPath(name string) string { return filepath.Join(s.indexDir(name), "meta.json") }

func (s *Store) shardsDir(name string) string { return filepath.Join(s.indexDir(name), "shards") }

func (s *Store) shardDir(name, shardID string) string {
	return filepath.Join(s.shardsDir(name), shardID)
}

func (s *Store) shardMetaPath(name, shardID string) string {
	return filepath.Join(s.shardDir(name, shardID), "meta.json")
}

// recoverPartialWrites scans for *.tmp files left by a crash between the
// write and the rename that publishes it, and discards them.
func (s *Store) recoverPartialWrites() error {
	return filepath.Walk(s.indicesDir(), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".tmp" {
			s.log.Warn().Str("path", path).Msg("discarding partial metadata write from a previous crash")
			return os.Remove(path)
		}
		return nil
	})
}

// writeJSONAtomic marshals v and publishes it atomically at path via a
// sibling *.tmp file plus rename, matching spec.md §4.2.
func writeJSONAtomic(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	buf = append(buf, '\n')
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readJSON(path string, v any) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return apierr.New(apierr.NotFound, "no metadata at %s", path)
		}
		return err
	}
	return json.Unmarshal(buf, v)
}

// CreateIndex validates meta, then atomically writes the index's meta.json
// and each shard's meta.json. Validation happens before any file is written.
func (s *Store) CreateIndex(name string, meta IndexMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta.Name = name
	meta.Analyzers = schema.ResolveFieldBindings(meta.Schema, meta.Analyzers)
	if err := meta.Validate(); err != nil {
		return err
	}
	if _, err := os.Stat(s.indexMetaPath(name)); err == nil {
		return apierr.New(apierr.AlreadyExists, "index %q already exists", name)
	}

	now := time.Now().Unix()
	for _, shardID := range meta.Shards {
		if err := writeJSONAtomic(s.shardMetaPath(name, shardID), ShardMeta{ID: shardID, Version: now}); err != nil {
			return fmt.Errorf("metadata: write shard %s/%s: %w", name, shardID, err)
		}
	}
	if err := writeJSONAtomic(s.indexMetaPath(name), meta); err != nil {
		return fmt.Errorf("metadata: write index %s: %w", name, err)
	}
	s.gen.Add(1)
	s.notify(IndexCreated, name)
	for _, shardID := range meta.Shards {
		s.notify(ShardAdded, name+"/"+shardID)
	}
	return nil
}

// GetIndex reads the index's current meta.json, rereading (at most twice
// more) if the change-generation counter advanced mid-read (torn-read guard).
func (s *Store) GetIndex(name string) (IndexMeta, error) {
	for attempt := 0; attempt < 2; attempt++ {
		before := s.gen.Load()
		s.mu.RLock()
		var meta IndexMeta
		err := readJSON(s.indexMetaPath(name), &meta)
		s.mu.RUnlock()
		if err != nil {
			return IndexMeta{}, err
		}
		if s.gen.Load() == before {
			return meta, nil
		}
	}
	var meta IndexMeta
	s.mu.RLock()
	err := readJSON(s.indexMetaPath(name), &meta)
	s.mu.RUnlock()
	return meta, err
}

// ModifyIndex applies a schema-compatible edit: fields may be added but
// never removed or retyped. Incompatible edits are rejected with
// SchemaIncompatible before any file is written.
func (s *Store) ModifyIndex(name string, next IndexMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prev IndexMeta
	if err := readJSON(s.indexMetaPath(name), &prev); err != nil {
		return err
	}
	if err := schema.Compatible(prev.Schema, next.Schema); err != nil {
		return errIncompatible("%s", err.Error())
	}
	next.Name = name
	next.Shards = prev.Shards
	next.Analyzers = schema.ResolveFieldBindings(next.Schema, next.Analyzers)
	if err := next.Validate(); err != nil {
		return err
	}
	if err := writeJSONAtomic(s.indexMetaPath(name), next); err != nil {
		return err
	}
	s.gen.Add(1)
	s.notify(IndexModified, name)
	return nil
}

// DeleteIndex removes all shard state for the index, failing with NotFound
// if it does not exist.
func (s *Store) DeleteIndex(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.indexMetaPath(name)); err != nil {
		return apierr.New(apierr.NotFound, "index %q does not exist", name)
	}
	if err := os.RemoveAll(s.indexDir(name)); err != nil {
		return err
	}
	s.gen.Add(1)
	s.notify(IndexDeleted, name)
	return nil
}

// ListIndices returns every index's current metadata, sorted by name.
func (s *Store) ListIndices() ([]IndexMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.indicesDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]IndexMeta, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		var meta IndexMeta
		if err := readJSON(s.indexMetaPath(e.Name()), &meta); err != nil {
			continue // index directory without a published meta.json yet
		}
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// IncrementShards adds n new shards to the index, stamping their version to
// the current time, as spec.md §3's shard lifecycle describes.
func (s *Store) IncrementShards(name string, newShardIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var meta IndexMeta
	if err := readJSON(s.indexMetaPath(name), &meta); err != nil {
		return err
	}
	now := time.Now().Unix()
	for _, id := range newShardIDs {
		if err := writeJSONAtomic(s.shardMetaPath(name, id), ShardMeta{ID: id, Version: now}); err != nil {
			return err
		}
	}
	meta.Shards = append(meta.Shards, newShardIDs...)
	if err := writeJSONAtomic(s.indexMetaPath(name), meta); err != nil {
		return err
	}
	s.gen.Add(1)
	for _, id := range newShardIDs {
		s.notify(ShardAdded, name+"/"+id)
	}
	return nil
}

// DecrementShards removes the named shards from the index's shard list.
// The caller (index engine) purges local segment files only after all
// in-flight operations against the retiring shard drain.
func (s *Store) DecrementShards(name string, removeShardIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var meta IndexMeta
	if err := readJSON(s.indexMetaPath(name), &meta); err != nil {
		return err
	}
	remove := make(map[string]bool, len(removeShardIDs))
	for _, id := range removeShardIDs {
		remove[id] = true
	}
	kept := meta.Shards[:0:0]
	for _, id := range meta.Shards {
		if !remove[id] {
			kept = append(kept, id)
		}
	}
	meta.Shards = kept
	if err := writeJSONAtomic(s.indexMetaPath(name), meta); err != nil {
		return err
	}
	s.gen.Add(1)
	for _, id := range removeShardIDs {
		s.notify(ShardRemoved, name+"/"+id)
	}
	return nil
}
