package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check storage backend health and report object counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, backend, err := openService()
			if err != nil {
				fail(err)
			}
			ctx := context.Background()
			if err := backend.Health(ctx); err != nil {
				fail(err)
			}
			stats, err := backend.Stats(ctx)
			if err != nil {
				fail(err)
			}
			fmt.Printf("storage:       %s (%s)\n", cfg.Storage.URL, cfg.Storage.Scheme())
			fmt.Printf("health:        ok\n")
			fmt.Printf("objects:       %d\n", stats.TotalObjects)
			fmt.Printf("total_bytes:   %d\n", stats.TotalSize)
			return nil
		},
	}
	return cmd
}
