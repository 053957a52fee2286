// Command akidb is the vector database engine's core CLI surface:
// collection lifecycle, ingestion, ANN query, and snapshot
// management, talking directly to the storage backend named by
// AKIDB_STORAGE_URL.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"storage-engine/internal/collectionservice"
	"storage-engine/internal/config"
	"storage-engine/internal/storage/block"
)

var rootCmd = &cobra.Command{
	Use:           "akidb",
	Short:         "Vector database engine administration CLI",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(newCollectionCmd())
	rootCmd.AddCommand(newIngestCmd())
	rootCmd.AddCommand(newQueryCmd())
	rootCmd.AddCommand(newSnapshotCmd())
	rootCmd.AddCommand(newStatusCmd())
}

// openService loads the engine configuration and opens a Service
// bound to the configured storage backend; every subcommand shares
// this one entry point so AKIDB_STORAGE_URL/AKIDB_WAL_SYNC/
// AKIDB_LOG_LEVEL are honored consistently.
func openService() (*collectionservice.Service, *config.EngineConfig, block.Backend, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	if cfg.LogLevel == "debug" {
		log.SetFlags(log.Ltime | log.Lshortfile)
	}
	backend, err := openBackend(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return collectionservice.New(cfg, backend), cfg, backend, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitInternal)
	}
}
