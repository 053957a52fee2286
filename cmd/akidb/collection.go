package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"storage-engine/internal/collection"
	"storage-engine/internal/common"
)

func newCollectionCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "collection", Short: "Manage collections"}
	cmd.AddCommand(newCollectionCreateCmd())
	cmd.AddCommand(newCollectionDropCmd())
	cmd.AddCommand(newCollectionDescribeCmd())
	return cmd
}

func newCollectionCreateCmd() *cobra.Command {
	var (
		name              string
		dimension         uint32
		distance          string
		replicationFactor uint8
		shardCount        uint16
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			metric, err := collection.ParseDistanceMetric(distance)
			if err != nil {
				fail(err)
			}
			desc := &collection.Descriptor{
				Name:              name,
				Dimension:         dimension,
				Distance:          metric,
				ReplicationFactor: replicationFactor,
				ShardCount:        shardCount,
				WALStreamID:       common.NewID(),
			}
			svc, _, _, err := openService()
			if err != nil {
				fail(err)
			}
			if err := svc.CreateCollection(context.Background(), desc); err != nil {
				fail(err)
			}
			fmt.Printf("created collection %q (dimension=%d, metric=%s)\n", name, dimension, metric)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "collection name")
	cmd.Flags().Uint32Var(&dimension, "dimension", 0, "vector dimension")
	cmd.Flags().StringVar(&distance, "distance", "Cosine", "distance metric: L2|Cosine|Dot")
	cmd.Flags().Uint8Var(&replicationFactor, "replication-factor", 1, "replication factor")
	cmd.Flags().Uint16Var(&shardCount, "shard-count", 1, "shard count")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("dimension")
	return cmd
}

func newCollectionDropCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Drop a collection (idempotent)",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, _, err := openService()
			if err != nil {
				fail(err)
			}
			if err := svc.DropCollection(context.Background(), name); err != nil {
				fail(err)
			}
			fmt.Printf("dropped collection %q\n", name)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "collection name")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newCollectionDescribeCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "describe",
		Short: "Describe a collection's descriptor and manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, backend, err := openService()
			if err != nil {
				fail(err)
			}
			ctx := context.Background()
			desc, err := backend.LoadCollection(ctx, name)
			if err != nil {
				fail(err)
			}
			m, err := backend.LoadManifest(ctx, name)
			if err != nil {
				fail(err)
			}
			fmt.Printf("name:              %s\n", desc.Name)
			fmt.Printf("dimension:         %d\n", desc.Dimension)
			fmt.Printf("distance:          %s\n", desc.Distance)
			fmt.Printf("replication:       %d\n", desc.ReplicationFactor)
			fmt.Printf("shards:            %d\n", desc.ShardCount)
			fmt.Printf("epoch:             %d\n", m.Epoch)
			fmt.Printf("total_vectors:     %d\n", m.TotalVectors)
			fmt.Printf("segments:          %d\n", len(m.Segments))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "collection name")
	cmd.MarkFlagRequired("name")
	return cmd
}
