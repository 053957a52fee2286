package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"storage-engine/internal/common"
	"storage-engine/internal/query"
)

// newQueryCmd implements `akidb query --collection --top-k --filter`:
// plans and executes an ANN search against a replayed collection's
// current shards.
func newQueryCmd() *cobra.Command {
	var (
		collectionName string
		vectorCSV      string
		topK           int
		filterJSON     string
		timeoutMs      int64
	)
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run a top-k ANN query against a collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			vector, err := parseVectorCSV(vectorCSV)
			if err != nil {
				fail(err)
			}

			svc, _, _, err := openService()
			if err != nil {
				fail(err)
			}
			ctx := context.Background()
			if err := svc.Replay(ctx, collectionName); err != nil {
				fail(err)
			}
			if svc.Degraded(collectionName) {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: collection %q is degraded; one or more segments were excluded\n", collectionName)
			}

			req := query.Request{
				Collection: collectionName,
				Vector:     vector,
				TopK:       topK,
				TimeoutMs:  timeoutMs,
			}
			if filterJSON != "" {
				req.Filter = json.RawMessage(filterJSON)
			}

			planner := query.NewPlanner(svc)
			plan, err := planner.Plan(req)
			if err != nil {
				fail(err)
			}
			resp, err := query.NewEngine().Execute(ctx, req, plan)
			if err != nil {
				fail(err)
			}

			out, err := json.MarshalIndent(resp, "", "  ")
			if err != nil {
				fail(common.Internal("encoding query response: %v", err))
			}
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&collectionName, "collection", "", "collection to query")
	cmd.Flags().StringVar(&vectorCSV, "vector", "", "comma-separated query vector")
	cmd.Flags().IntVar(&topK, "top-k", 10, "number of results to return")
	cmd.Flags().StringVar(&filterJSON, "filter", "", `JSON predicate, e.g. {"field":"tag","in":["alpha","beta"]}`)
	cmd.Flags().Int64Var(&timeoutMs, "timeout-ms", 0, "request deadline in milliseconds (0 = no deadline)")
	cmd.MarkFlagRequired("collection")
	cmd.MarkFlagRequired("vector")
	return cmd
}

func parseVectorCSV(s string) ([]float32, error) {
	parts := strings.Split(s, ",")
	out := make([]float32, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, common.Validation("vector component %d (%q) is not a float: %v", i, p, err)
		}
		out[i] = float32(v)
	}
	return out, nil
}
