// Package config loads searchd's runtime configuration: environment
// defaults via struct tags, then command-line flag overrides, mirroring
// a common two-layer Config/DefaultConfig precedence generalized from
// an HTTP-server's flag set down to the fields this engine's Options
// actually need. caarlos0/env/v8 supplies the outer (lowest-precedence)
// environment layer; flags stay the inner override, matching the
// common Go CLI convention of "flags win over environment."
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v8"
)

// Config holds searchd's runtime configuration.
type Config struct {
	DataDir               string        `env:"SEARCHD_DATA_DIR" envDefault:"./data"`
	KVBackend             string        `env:"SEARCHD_KV_BACKEND" envDefault:"badger"` // "badger", "lsm", or "memory"
	CacheSize             int           `env:"SEARCHD_CACHE_SIZE" envDefault:"1000"`
	MaxPostingSize        int           `env:"SEARCHD_MAX_POSTING_SIZE" envDefault:"0"` // 0 uses posting.DefaultMaxSize
	MaxRecordBytes        int           `env:"SEARCHD_MAX_RECORD_SIZE" envDefault:"0"`  // 0 uses codec.MaxDocumentBytes
	MemoryCheckInterval   int           `env:"SEARCHD_MEMORY_CHECK_INTERVAL" envDefault:"100"`
	VerifierInterval      time.Duration `env:"SEARCHD_REFRESH_INTERVAL" envDefault:"1h"`
	LogLevel              string        `env:"SEARCHD_LOG_LEVEL" envDefault:"info"`
	DefaultAnalyzer       string        `env:"SEARCHD_DEFAULT_ANALYZER" envDefault:"standard"`
	TypoToleranceFloor    int           `env:"SEARCHD_TYPO_FLOOR" envDefault:"1"`
	WorkerPoolSize        int           `env:"SEARCHD_WORKER_POOL_SIZE" envDefault:"4"`
	WorkerQueueSize       int           `env:"SEARCHD_WORKER_QUEUE_SIZE" envDefault:"100"`
	LSMCompressValues     bool          `env:"SEARCHD_LSM_COMPRESS" envDefault:"true"`
}

// Load reads environment defaults into a Config. Call Config's
// BindFlags before flag.Parse to let command-line flags override
// individual fields, the same precedence cmd/server/main.go applies to
// its own flag.String/flag.Int calls over DefaultConfig's hard-coded
// values.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	return cfg, nil
}

// BindFlags registers a flag for every field that should be
// overridable from the command line, defaulting each flag to the
// value already loaded from the environment (or the struct default if
// Load was never called). Call flag.Parse after this and before using
// cfg.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.DataDir, "data-dir", c.DataDir, "Data directory for index storage")
	fs.StringVar(&c.KVBackend, "kv-backend", c.KVBackend, "Storage backend: badger, lsm, or memory")
	fs.IntVar(&c.CacheSize, "cache-size", c.CacheSize, "Term dictionary LRU cache size")
	fs.IntVar(&c.MaxPostingSize, "max-posting-size", c.MaxPostingSize, "Maximum entries per posting list (0 = default)")
	fs.IntVar(&c.MaxRecordBytes, "max-record-bytes", c.MaxRecordBytes, "Maximum encoded document size in bytes (0 = default)")
	fs.IntVar(&c.MemoryCheckInterval, "memory-check-interval", c.MemoryCheckInterval, "Cache puts between heap-pressure checks")
	fs.DurationVar(&c.VerifierInterval, "refresh-interval", c.VerifierInterval, "Document-count verifier run interval")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&c.DefaultAnalyzer, "default-analyzer", c.DefaultAnalyzer, "Analyzer applied to unmapped fields")
	fs.IntVar(&c.TypoToleranceFloor, "typo-floor", c.TypoToleranceFloor, "Minimum document frequency for a typo candidate")
	fs.IntVar(&c.WorkerPoolSize, "worker-pool-size", c.WorkerPoolSize, "Background worker pool size")
	fs.IntVar(&c.WorkerQueueSize, "worker-queue-size", c.WorkerQueueSize, "Background worker task queue capacity")
	fs.BoolVar(&c.LSMCompressValues, "lsm-compress", c.LSMCompressValues, "zstd-compress values in the LSM backend (ignored by badger/memory)")
}
