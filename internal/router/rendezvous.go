package router

import (
	"hash/fnv"
	"sort"
)

// rendezvousScore is the HRW (highest random weight) score of a
// (shard_id, node_id) pair: deterministic, and stable under small
// membership changes because only the scores of added/removed nodes move,
// not the relative order of the rest. Kept on the standard library rather
// than a pulled-in dependency: this is the one piece of core domain logic
// the spec names explicitly (spec.md §4.4, §8 "deterministic assignment"),
// not an ambient concern a third-party library would plausibly own.
func rendezvousScore(shardID, nodeID string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(shardID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(nodeID))
	return h.Sum64()
}

// AssignReplicas ranks nodeIDs by descending rendezvous score for shardID
// and returns the top replicaCount, the ordered owning node list for that
// shard. The first entry is the primary replica used for reads that don't
// pin a shard.
func AssignReplicas(shardID string, nodeIDs []string, replicaCount int) []string {
	type scored struct {
		node  string
		score uint64
	}
	ranked := make([]scored, len(nodeIDs))
	for i, n := range nodeIDs {
		ranked[i] = scored{node: n, score: rendezvousScore(shardID, n)}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].node < ranked[j].node // stable tie-break
	})
	if replicaCount > len(ranked) {
		replicaCount = len(ranked)
	}
	out := make([]string, replicaCount)
	for i := 0; i < replicaCount; i++ {
		out[i] = ranked[i].node
	}
	return out
}

// ShardForDocument hashes a document id onto one of the index's shards by
// uniform modulo, per spec.md §4.4's write fan-out rule.
func ShardForDocument(docID string, shards []string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(docID))
	idx := h.Sum64() % uint64(len(shards))
	return shards[idx]
}
