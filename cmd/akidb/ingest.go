package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"storage-engine/internal/collection"
	"storage-engine/internal/common"
)

// newIngestCmd implements `akidb ingest <file>`: each line of file is
// one JSON-encoded VectorDocument, the same wire shape the WAL
// persists for an OpInsert record. Parsing richer source formats
// (CSV/JSONL-with-schema-inference/Parquet) belongs to an external
// ingestion layer; the CLI accepts the engine's own document shape
// directly.
func newIngestCmd() *cobra.Command {
	var collectionName string
	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Ingest vector documents from a newline-delimited JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				fail(common.Storage("opening ingest file %q: %v", args[0], err))
			}
			defer f.Close()

			svc, _, _, err := openService()
			if err != nil {
				fail(err)
			}
			ctx := context.Background()
			if err := svc.Replay(ctx, collectionName); err != nil {
				fail(err)
			}

			scanner := bufio.NewScanner(f)
			scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
			var count int
			for scanner.Scan() {
				line := scanner.Bytes()
				if len(line) == 0 {
					continue
				}
				var doc collection.VectorDocument
				if err := json.Unmarshal(line, &doc); err != nil {
					fail(common.Validation("decoding document at line %d: %v", count+1, err))
				}
				if doc.ID == (common.ID{}) {
					doc.ID = common.NewID()
				}
				if err := svc.Ingest(ctx, collectionName, &doc); err != nil {
					fail(err)
				}
				count++
			}
			if err := scanner.Err(); err != nil {
				fail(common.Storage("reading ingest file %q: %v", args[0], err))
			}
			fmt.Printf("ingested %d documents into %q\n", count, collectionName)
			return nil
		},
	}
	cmd.Flags().StringVar(&collectionName, "collection", "", "target collection")
	cmd.MarkFlagRequired("collection")
	return cmd
}
