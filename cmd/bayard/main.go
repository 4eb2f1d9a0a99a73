// Command bayard runs one node of a Bayard cluster: a gossiped membership
// agent, a filesystem metadata store, an embedded search engine over the
// shards this node owns, and the gRPC/HTTP service surface in front of it.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/bayardsearch/bayard/internal/config"
	"github.com/bayardsearch/bayard/internal/engine"
	"github.com/bayardsearch/bayard/internal/logging"
	"github.com/bayardsearch/bayard/internal/membership"
	"github.com/bayardsearch/bayard/internal/metadata"
	"github.com/bayardsearch/bayard/internal/router"
	"github.com/bayardsearch/bayard/internal/rpc"
	grpcsvc "github.com/bayardsearch/bayard/internal/service/grpc"
	httpsvc "github.com/bayardsearch/bayard/internal/service/http"
)

// Exit codes per spec.md §6: 0 clean shutdown, 1 configuration error, 2
// bind/listen failure, 3 data directory failure.
const (
	exitOK             = 0
	exitConfigError    = 1
	exitBindError      = 2
	exitDataDirFailure = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Parse("bayard", args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bayard: configuration error:", err)
		return exitConfigError
	}

	log := logging.Init(cfg.LogLevel, os.Stderr)

	nodeID := cfg.BindAddress
	members, err := membership.New(membership.Config{
		NodeID:      nodeID,
		BindAddress: cfg.BindAddress,
		GRPCAddress: cfg.GRPCAddress,
		HTTPAddress: cfg.HTTPAddress,
	}, logging.Component(log, "membership"))
	if err != nil {
		log.Error().Err(err).Msg("failed to start membership agent")
		return exitBindError
	}
	if err := members.Join(cfg.SeedAddress); err != nil {
		log.Warn().Err(err).Msg("failed to join seed; continuing as a standalone node")
	}

	store, err := metadata.Open(cfg.DataDirectory, logging.Component(log, "metadata"))
	if err != nil {
		log.Error().Err(err).Msg("failed to open metadata store")
		return exitDataDirFailure
	}

	rt := router.New(nodeID, members, store, nil, logging.Component(log, "router"))

	eng, err := engine.New(cfg.DataDirectory, store, rt.IsLocalReplica, logging.Component(log, "engine"))
	if err != nil {
		log.Error().Err(err).Msg("failed to construct index engine")
		return exitDataDirFailure
	}
	rt.SetEngine(eng)

	if err := eng.Bootstrap(); err != nil {
		log.Error().Err(err).Msg("failed to bootstrap local shard replicas")
		return exitDataDirFailure
	}

	stopEngine := make(chan struct{})
	go eng.Run(stopEngine)

	extWatch, err := store.WatchExternal()
	if err != nil {
		log.Warn().Err(err).Msg("failed to arm external metadata filesystem watch; continuing with in-process notifications only")
	}

	grpcServer := grpc.NewServer()
	indexSvc := grpcsvc.New(store, eng, members, logging.Component(log, "grpc"))
	rpc.RegisterIndexServer(grpcServer, indexSvc)
	rpc.RegisterHealthServer(grpcServer, indexSvc)

	grpcListener, err := net.Listen("tcp", cfg.GRPCAddress)
	if err != nil {
		log.Error().Err(err).Str("address", cfg.GRPCAddress).Msg("failed to bind gRPC listener")
		return exitBindError
	}

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddress,
		Handler: httpsvc.New(rt, members, store, logging.Component(log, "http")).Handler(),
	}
	httpListener, err := net.Listen("tcp", cfg.HTTPAddress)
	if err != nil {
		log.Error().Err(err).Str("address", cfg.HTTPAddress).Msg("failed to bind HTTP listener")
		return exitBindError
	}

	go func() {
		log.Info().Str("address", cfg.GRPCAddress).Msg("gRPC service surface listening")
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Error().Err(err).Msg("gRPC server stopped")
		}
	}()
	go func() {
		log.Info().Str("address", cfg.HTTPAddress).Msg("HTTP service surface listening")
		if err := httpServer.Serve(httpListener); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server stopped")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("shutting down")

	close(stopEngine)
	if extWatch != nil {
		_ = extWatch.Close()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	grpcServer.GracefulStop()

	if err := members.Leave(); err != nil {
		log.Warn().Err(err).Msg("error leaving membership gracefully")
	}
	_ = members.Shutdown()

	if err := eng.Close(); err != nil {
		log.Warn().Err(err).Msg("error closing local shard replicas")
	}

	return exitOK
}
