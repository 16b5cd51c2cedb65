package config

import (
	"flag"
	"os"
	"testing"
	"time"
)

func TestLoadAppliesEnvDefaults(t *testing.T) {
	t.Setenv("SEARCHD_DATA_DIR", "/var/lib/searchd")
	t.Setenv("SEARCHD_KV_BACKEND", "lsm")
	t.Setenv("SEARCHD_CACHE_SIZE", "2500")
	t.Setenv("SEARCHD_REFRESH_INTERVAL", "30m")
	t.Setenv("SEARCHD_LSM_COMPRESS", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DataDir != "/var/lib/searchd" {
		t.Errorf("DataDir = %q, want /var/lib/searchd", cfg.DataDir)
	}
	if cfg.KVBackend != "lsm" {
		t.Errorf("KVBackend = %q, want lsm", cfg.KVBackend)
	}
	if cfg.CacheSize != 2500 {
		t.Errorf("CacheSize = %d, want 2500", cfg.CacheSize)
	}
	if cfg.VerifierInterval != 30*time.Minute {
		t.Errorf("VerifierInterval = %v, want 30m", cfg.VerifierInterval)
	}
	if cfg.LSMCompressValues {
		t.Error("LSMCompressValues = true, want false")
	}
}

func TestLoadFallsBackToStructDefaultsWhenUnset(t *testing.T) {
	for _, key := range []string{
		"SEARCHD_DATA_DIR", "SEARCHD_KV_BACKEND", "SEARCHD_CACHE_SIZE",
		"SEARCHD_LOG_LEVEL", "SEARCHD_LSM_COMPRESS",
	} {
		os.Unsetenv(key)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DataDir != "./data" {
		t.Errorf("DataDir = %q, want ./data", cfg.DataDir)
	}
	if cfg.KVBackend != "badger" {
		t.Errorf("KVBackend = %q, want badger", cfg.KVBackend)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if !cfg.LSMCompressValues {
		t.Error("LSMCompressValues = false, want true")
	}
}

func TestBindFlagsOverridesEnvValue(t *testing.T) {
	t.Setenv("SEARCHD_KV_BACKEND", "badger")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg.BindFlags(fs)
	if err := fs.Parse([]string{"-kv-backend=memory", "-cache-size=42"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.KVBackend != "memory" {
		t.Errorf("KVBackend = %q, want memory (flag should win over env)", cfg.KVBackend)
	}
	if cfg.CacheSize != 42 {
		t.Errorf("CacheSize = %d, want 42", cfg.CacheSize)
	}
}
