package membership

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSingleNodeSnapshotContainsSelf(t *testing.T) {
	m, err := New(Config{
		NodeID:      "node-a",
		BindAddress: "127.0.0.1:0",
		GRPCAddress: "127.0.0.1:5000",
		HTTPAddress: "127.0.0.1:8000",
	}, zerolog.Nop())
	require.NoError(t, err)
	defer m.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, WaitReady(ctx, m))

	snap := m.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, "node-a", snap[0].ID)
	require.Equal(t, "127.0.0.1:5000", snap[0].GRPCAddr)
}

func TestSubscribeReceivesSelfJoin(t *testing.T) {
	m, err := New(Config{
		NodeID:      "node-b",
		BindAddress: "127.0.0.1:0",
		GRPCAddress: "127.0.0.1:5001",
		HTTPAddress: "127.0.0.1:8001",
	}, zerolog.Nop())
	require.NoError(t, err)
	defer m.Shutdown()

	events := m.Subscribe()
	select {
	case ev := <-events:
		require.Equal(t, Joined, ev.Kind)
		require.Equal(t, "node-b", ev.Node.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for self-join event")
	}
}
