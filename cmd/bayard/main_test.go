package main

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunReturnsConfigErrorOnEmptyDataDirectory(t *testing.T) {
	code := run([]string{"--data-directory", ""})
	require.Equal(t, exitConfigError, code)
}

func TestRunReturnsBindErrorOnPortCollision(t *testing.T) {
	// Occupy the gossip port so membership.New fails to bind it.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	code := run([]string{
		"--bind-address", ln.Addr().String(),
		"--data-directory", t.TempDir(),
	})
	require.Equal(t, exitBindError, code)
}
