// Package config loads the engine's environment-driven configuration:
// JSON-tagged structs populated by a Load function that reads
// os.Getenv with strconv conversions.
package config

import (
	"os"
	"strconv"
	"strings"

	"storage-engine/internal/wal"
)

// StorageConfig selects and configures the object-store backend a
// collection's segments and manifest are persisted to.
type StorageConfig struct {
	// URL is AKIDB_STORAGE_URL: memory://, file:///path, or
	// s3://bucket/prefix.
	URL string `json:"url"`
}

// Scheme returns the URL's scheme ("memory", "file", or "s3").
func (c StorageConfig) Scheme() string {
	if i := strings.Index(c.URL, "://"); i >= 0 {
		return c.URL[:i]
	}
	return "memory"
}

// Path returns the URL's path component (filesystem directory, or
// bucket/prefix for s3://).
func (c StorageConfig) Path() string {
	if i := strings.Index(c.URL, "://"); i >= 0 {
		return c.URL[i+3:]
	}
	return ""
}

// EngineConfig is the complete set of environment-driven knobs the
// CLI and collection service read at startup.
type EngineConfig struct {
	Storage  StorageConfig `json:"storage"`
	WALSync  string        `json:"wal_sync"`
	LogLevel string        `json:"log_level"`

	// FlushThreshold is how many live documents a collection's
	// in-memory index accumulates before the collection service
	// seals a new segment. Read from AKIDB_FLUSH_THRESHOLD; the
	// default of 10000 applies when it is unset or not an integer.
	FlushThreshold int `json:"flush_threshold"`
}

// Load reads AKIDB_STORAGE_URL, AKIDB_WAL_SYNC, AKIDB_LOG_LEVEL, and
// AKIDB_FLUSH_THRESHOLD, applying defaults for any variable left unset.
func Load() (*EngineConfig, error) {
	cfg := &EngineConfig{
		Storage:        StorageConfig{URL: getEnvString("AKIDB_STORAGE_URL", "memory://")},
		WALSync:        getEnvString("AKIDB_WAL_SYNC", "group"),
		LogLevel:       getEnvString("AKIDB_LOG_LEVEL", "info"),
		FlushThreshold: getEnvInt("AKIDB_FLUSH_THRESHOLD", 10000),
	}
	if _, err := wal.ParseSyncPolicy(cfg.WALSync); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WALConfig builds a wal.Config for the given collection's stream
// directory, applying this engine config's sync policy.
func (c *EngineConfig) WALConfig(dir string) wal.Config {
	policy, _ := wal.ParseSyncPolicy(c.WALSync)
	walCfg := wal.DefaultConfig(dir)
	walCfg.SyncPolicy = policy
	return walCfg
}

// WALRoot is the local filesystem directory collection WAL streams
// are rooted under. The WAL is always a local append-only log
// regardless of where segments and manifests are persisted: under a
// file:// storage URL it nests inside that
// directory, otherwise it defaults to ./data/wal.
func (c *EngineConfig) WALRoot() string {
	if c.Storage.Scheme() == "file" {
		return c.Storage.Path() + "/wal"
	}
	return "./data/wal"
}

func getEnvString(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

