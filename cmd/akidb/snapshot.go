package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"storage-engine/internal/common"
	"storage-engine/internal/manifest"
	"storage-engine/internal/snapshot"
)

func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "snapshot", Short: "Manage collection snapshots"}
	cmd.AddCommand(newSnapshotCreateCmd())
	cmd.AddCommand(newSnapshotListCmd())
	cmd.AddCommand(newSnapshotRestoreCmd())
	return cmd
}

func newSnapshotCreateCmd() *cobra.Command {
	var collectionName string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a point-in-time snapshot of a collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, backend, err := openService()
			if err != nil {
				fail(err)
			}
			ctx := context.Background()
			m, err := backend.LoadManifest(ctx, collectionName)
			if err != nil {
				fail(err)
			}

			coord := snapshot.NewCoordinator(backend)
			d, err := coord.BeginSnapshot(ctx, collectionName, m.Epoch)
			if err != nil {
				fail(err)
			}
			if err := coord.Materialize(ctx, d, m); err != nil {
				fail(err)
			}
			if err := coord.Finalize(ctx, d); err != nil {
				fail(err)
			}
			fmt.Printf("snapshot %s created for %q (epoch=%d, bytes=%d)\n", d.SnapshotID, collectionName, d.ManifestVersion, d.TotalBytes)
			return nil
		},
	}
	cmd.Flags().StringVar(&collectionName, "collection", "", "collection name")
	cmd.MarkFlagRequired("collection")
	return cmd
}

func newSnapshotListCmd() *cobra.Command {
	var collectionName string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a collection's snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, backend, err := openService()
			if err != nil {
				fail(err)
			}
			coord := snapshot.NewCoordinator(backend)
			descriptors, err := coord.ListSnapshots(context.Background(), collectionName)
			if err != nil {
				fail(err)
			}
			for _, d := range descriptors {
				fmt.Printf("%s\tepoch=%d\tfinalized=%t\tbytes=%d\tcreated=%s\n",
					d.SnapshotID, d.ManifestVersion, d.Finalized, d.TotalBytes, d.CreatedAt.Format("2006-01-02T15:04:05Z"))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&collectionName, "collection", "", "collection name")
	cmd.MarkFlagRequired("collection")
	return cmd
}

func newSnapshotRestoreCmd() *cobra.Command {
	var collectionName, snapshotID string
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore a collection's manifest to a prior snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := common.ParseID(snapshotID)
			if err != nil {
				fail(err)
			}
			_, _, backend, err := openService()
			if err != nil {
				fail(err)
			}
			ctx := context.Background()

			coord := snapshot.NewCoordinator(backend)
			descriptors, err := coord.ListSnapshots(ctx, collectionName)
			if err != nil {
				fail(err)
			}
			var target *manifest.SnapshotDescriptor
			for _, d := range descriptors {
				if d.SnapshotID == id {
					target = d
					break
				}
			}
			if target == nil || !target.Finalized {
				fail(common.NotFound("no finalized snapshot %s for collection %q", snapshotID, collectionName))
			}

			restored, err := coord.LoadSnapshot(ctx, target)
			if err != nil {
				fail(err)
			}

			current, err := backend.LoadManifest(ctx, collectionName)
			if err != nil {
				fail(err)
			}
			restored.Epoch = current.Epoch
			restored.LatestVersion = current.LatestVersion
			if err := backend.PersistManifest(ctx, restored, current.Epoch); err != nil {
				fail(err)
			}
			fmt.Printf("restored collection %q to snapshot %s (new epoch=%d)\n", collectionName, snapshotID, restored.Epoch)
			return nil
		},
	}
	cmd.Flags().StringVar(&collectionName, "collection", "", "collection name")
	cmd.Flags().StringVar(&snapshotID, "snapshot-id", "", "snapshot id to restore")
	cmd.MarkFlagRequired("collection")
	cmd.MarkFlagRequired("snapshot-id")
	return cmd
}
