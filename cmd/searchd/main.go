// Command searchd runs the long-lived search engine process: it opens
// a storage backend, constructs the engine, and blocks until it
// receives a shutdown signal. It has no network listener of its own
// (SPEC_FULL.md explicitly leaves the wire protocol/HTTP surface out of
// scope); it exists so the engine's background scheduler (cache
// flusher, document-count verifier) keeps running for as long as an
// embedding process or a future transport layer needs it alive.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/mnohosten/laura-search/pkg/config"
	"github.com/mnohosten/laura-search/pkg/engine"
	"github.com/mnohosten/laura-search/pkg/kv"
	"github.com/mnohosten/laura-search/pkg/kv/badgerstore"
	"github.com/mnohosten/laura-search/pkg/kv/lsmstore"
	"github.com/mnohosten/laura-search/pkg/kv/memstore"
	"github.com/mnohosten/laura-search/pkg/logging"
	"github.com/mnohosten/laura-search/pkg/scheduler"
	"github.com/mnohosten/laura-search/pkg/termdict"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Failed to load configuration: %v", err)
	}
	cfg.BindFlags(flag.CommandLine)
	flag.Parse()

	logger := logging.New(os.Stderr, cfg.LogLevel)

	store, closeStore, err := openStore(cfg, logger)
	if err != nil {
		logging.Fatal("Failed to open storage backend %q: %v", cfg.KVBackend, err)
	}
	defer closeStore()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := engine.New(ctx, engine.Options{
		Store:              store,
		Logger:             logger,
		DefaultAnalyzer:    cfg.DefaultAnalyzer,
		MaxDocumentBytes:   cfg.MaxRecordBytes,
		VerifierInterval:   cfg.VerifierInterval,
		TypoToleranceFloor: cfg.TypoToleranceFloor,
		TermDict: termdict.Config{
			MaxCacheSize:        cfg.CacheSize,
			MemoryCheckInterval: cfg.MemoryCheckInterval,
			MaxPostingListSize:  cfg.MaxPostingSize,
		},
		Pool: scheduler.Config{
			NumWorkers: cfg.WorkerPoolSize,
			QueueSize:  cfg.WorkerQueueSize,
		},
	})
	if err != nil {
		logging.Fatal("Failed to create engine: %v", err)
	}
	defer eng.Close()

	logger.Info().
		Str("data_dir", cfg.DataDir).
		Str("kv_backend", cfg.KVBackend).
		Msg("searchd ready")

	<-ctx.Done()
	logger.Info().Msg("shutting down")
}

// openStore opens the configured kv.Store backend and returns a close
// function the caller must defer. Matches cmd/server/main.go's flag
// resolution: cfg.KVBackend picks the concrete implementation the way
// -graphql/-tls picked optional subsystems there.
func openStore(cfg *config.Config, logger *zerolog.Logger) (kv.Store, func(), error) {
	switch cfg.KVBackend {
	case "memory":
		return memstore.New(), func() {}, nil
	case "lsm":
		tree, err := lsmstore.Open(lsmstore.Config{
			Dir:            filepath.Join(cfg.DataDir, "lsm"),
			CompressValues: cfg.LSMCompressValues,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return tree, func() { _ = tree.Close() }, nil
	case "badger", "":
		store, err := badgerstore.Open(filepath.Join(cfg.DataDir, "badger"), logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown kv backend %q", cfg.KVBackend)
	}
}
