package router

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssignReplicasDeterministic(t *testing.T) {
	nodes := []string{"a", "b", "c", "d"}
	r1 := AssignReplicas("shard-1", nodes, 2)
	r2 := AssignReplicas("shard-1", nodes, 2)
	require.Equal(t, r1, r2)
	require.Len(t, r1, 2)
}

func TestAssignReplicasStableUnderMembershipChange(t *testing.T) {
	nodes := []string{"a", "b", "c", "d"}
	before := AssignReplicas("shard-1", nodes, 1)

	withExtra := append(append([]string{}, nodes...), "e")
	after := AssignReplicas("shard-1", withExtra, 1)

	// Adding one node should not always reshuffle who owns a shard; when it
	// doesn't win the top rank, ownership is unchanged.
	if after[0] != "e" {
		require.Equal(t, before[0], after[0])
	}
}

func TestShardForDocumentDeterministic(t *testing.T) {
	shards := []string{"aaaaaaaa", "bbbbbbbb", "cccccccc"}
	s1 := ShardForDocument("doc-1", shards)
	s2 := ShardForDocument("doc-1", shards)
	require.Equal(t, s1, s2)
}
