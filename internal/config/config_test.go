package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse("bayard", nil)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestParseOverridesFlags(t *testing.T) {
	cfg, err := Parse("bayard", []string{
		"--bind-address", "10.0.0.1:2000",
		"--grpc-address", "10.0.0.1:5000",
		"--seed-address", "10.0.0.2:2000",
	})
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1:2000", cfg.BindAddress)
	require.Equal(t, "10.0.0.1:5000", cfg.GRPCAddress)
	require.Equal(t, "10.0.0.2:2000", cfg.SeedAddress)
}

func TestValidateRejectsEmptyDataDirectory(t *testing.T) {
	cfg := Default()
	cfg.DataDirectory = ""
	require.Error(t, cfg.Validate())
}
