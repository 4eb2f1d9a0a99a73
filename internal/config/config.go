// Package config holds the flat configuration surface parsed from the CLI
// flags of spec.md §6. There is no layered config file: flags (with
// defaults) are the entire surface.
package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// Config is the fully resolved node configuration.
type Config struct {
	BindAddress   string // gossip listener
	GRPCAddress   string
	HTTPAddress   string
	DataDirectory string
	SeedAddress   string // optional; triggers join
	LogLevel      string
}

// Default returns the flag defaults from spec.md §6.
func Default() Config {
	return Config{
		BindAddress:   "0.0.0.0:2000",
		GRPCAddress:   "0.0.0.0:5000",
		HTTPAddress:   "0.0.0.0:8000",
		DataDirectory: "/tmp/bayard",
		LogLevel:      "info",
	}
}

// Parse builds a FlagSet, parses args against it, and returns the resolved
// Config. It never calls os.Exit; the caller maps errors to the process
// exit codes of spec.md §6.
func Parse(progname string, args []string) (Config, error) {
	cfg := Default()

	fs := pflag.NewFlagSet(progname, pflag.ContinueOnError)
	fs.StringVar(&cfg.BindAddress, "bind-address", cfg.BindAddress, "gossip listener bind address")
	fs.StringVar(&cfg.GRPCAddress, "grpc-address", cfg.GRPCAddress, "gRPC listener bind address")
	fs.StringVar(&cfg.HTTPAddress, "http-address", cfg.HTTPAddress, "HTTP/JSON listener bind address")
	fs.StringVar(&cfg.DataDirectory, "data-directory", cfg.DataDirectory, "root directory for metadata and shard segment files")
	fs.StringVar(&cfg.SeedAddress, "seed-address", cfg.SeedAddress, "gossip seed address to join an existing cluster")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Validate reports a configuration error (exit code 1) for an unusable
// config, before any socket is bound or file is touched.
func (c Config) Validate() error {
	if c.BindAddress == "" {
		return fmt.Errorf("bind-address must not be empty")
	}
	if c.GRPCAddress == "" {
		return fmt.Errorf("grpc-address must not be empty")
	}
	if c.HTTPAddress == "" {
		return fmt.Errorf("http-address must not be empty")
	}
	if c.DataDirectory == "" {
		return fmt.Errorf("data-directory must not be empty")
	}
	return nil
}
