package metadata

import "github.com/bayardsearch/bayard/internal/schema"

// IndexMeta is the persisted definition of an index: meta.json at
// <root>/indices/<name>/meta.json.
type IndexMeta struct {
	Name            string              `json:"name"`
	Schema          schema.Schema       `json:"schema"`
	Analyzers       schema.AnalyzerSet  `json:"analyzers"`
	Settings        IndexSettings       `json:"settings"`
	WriterThreads   int                 `json:"writer_threads"`
	WriterMemory    int64               `json:"writer_memory"`
	ReplicaCount    int                 `json:"replica_count"`
	Shards          []string            `json:"shards"`
}

// IndexSettings holds the index-wide knobs of spec.md §3.
type IndexSettings struct {
	SortByField        string `json:"sort_by_field,omitempty"`
	DocstoreCompression string `json:"docstore_compression,omitempty"`
	DocstoreBlockSize  int    `json:"docstore_block_size,omitempty"`
}

// ShardMeta is the persisted state of one shard: meta.json at
// <root>/indices/<name>/shards/<shard_id>/meta.json.
type ShardMeta struct {
	ID      string `json:"id"`
	Version int64  `json:"version"` // seconds since epoch at (re)assignment
}

// MinWriterMemoryPerThread is the minimum memory budget the engine requires
// per writer thread (spec.md §3 invariant).
const MinWriterMemoryPerThread = 16 * 1024 * 1024 // 16 MiB

// Validate enforces the invariants of spec.md §3 before any file is written.
func (m IndexMeta) Validate() error {
	if m.Name == "" {
		return errInvalid("index name must not be empty")
	}
	if m.ReplicaCount < 1 {
		return errInvalid("replica_count must be >= 1")
	}
	if len(m.Shards) == 0 {
		return errInvalid("shard list must not be empty")
	}
	if m.WriterThreads < 1 {
		return errInvalid("writer_threads must be >= 1")
	}
	if m.WriterMemory/int64(m.WriterThreads) < MinWriterMemoryPerThread {
		return errInvalid("writer_memory split across writer_threads is below the engine minimum per thread")
	}
	fields := make(map[string]bool, len(m.Schema.Fields))
	for _, f := range m.Schema.Fields {
		fields[f.Name] = true
	}
	for name, az := range m.Analyzers {
		_ = name
		for _, fieldName := range az.AppliesToFields {
			if !fields[fieldName] {
				return errInvalid("analyzer %q references unknown field %q", name, fieldName)
			}
		}
	}
	if m.Settings.SortByField != "" && !fields[m.Settings.SortByField] {
		return errInvalid("sort_by_field %q is not in schema", m.Settings.SortByField)
	}
	return nil
}
