package main

import (
	"strings"

	"storage-engine/internal/config"
	"storage-engine/internal/storage/block"
)

// openBackend builds the block.Backend a CLI invocation talks to,
// selecting among memory, local filesystem, and S3 per
// AKIDB_STORAGE_URL's scheme.
func openBackend(cfg *config.EngineConfig) (block.Backend, error) {
	factory := block.NewFactory()

	var storeCfg block.Config
	switch cfg.Storage.Scheme() {
	case "file":
		storeCfg = block.Config{Type: "local", BaseDir: cfg.Storage.Path()}
	case "s3":
		bucket, prefix := splitBucketPrefix(cfg.Storage.Path())
		storeCfg = block.Config{Type: "s3", Options: map[string]string{"bucket": bucket, "prefix": prefix}}
	default:
		storeCfg = block.Config{Type: "memory"}
	}

	store, err := factory.Create(storeCfg)
	if err != nil {
		return nil, err
	}
	return block.NewBackend(store), nil
}

func splitBucketPrefix(path string) (bucket, prefix string) {
	path = strings.TrimPrefix(path, "/")
	i := strings.Index(path, "/")
	if i < 0 {
		return path, ""
	}
	return path[:i], path[i+1:]
}
