// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package inverted finds OpenAlex entities that several Meta records
// resolved to, which points at duplicates on the Meta side.
package inverted

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/pdiddy/alignoa/internal/shard"
	"github.com/pdiddy/alignoa/pkg/types"
)

// Group is one OAID and the OMIDs that resolved to it.
type Group struct {
	Key   string   `json:"openalex_id" yaml:"openalex_id"`
	OMIDs []string `json:"omids" yaml:"omids"`
}

// Find inverts the mapping relations in dirs and returns every OAID matched
// by two or more OMIDs, in OAID order with OMIDs sorted.
func Find(ctx context.Context, logger *slog.Logger, dirs ...string) ([]Group, error) {
	inv := make(map[string][]string)
	err := shard.Walk(ctx, logger, func(row shard.Row) error {
		omid := row.Get("omid")
		if omid == "" {
			return nil
		}
		for _, key := range strings.Fields(row.Get("openalex_id")) {
			inv[key] = append(inv[key], omid)
		}
		return nil
	}, dirs...)
	if err != nil {
		return nil, err
	}

	var groups []Group
	for key, omids := range inv {
		omids = types.SortedDistinct(omids)
		if len(omids) < 2 {
			continue
		}
		groups = append(groups, Group{Key: key, OMIDs: omids})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })
	return groups, nil
}

// Write emits one (omid, openalex_id) row per group member under outDir
// and returns the number of rows written.
func Write(groups []Group, outDir string, rowsPerFile int) (int, error) {
	w, err := shard.NewWriter(outDir, shard.Options{
		Columns:     []string{"omid", "openalex_id"},
		RowsPerFile: rowsPerFile,
	})
	if err != nil {
		return 0, err
	}
	defer w.Close()

	for _, g := range groups {
		for _, omid := range g.OMIDs {
			if err := w.Write(omid, g.Key); err != nil {
				return w.Written(), err
			}
		}
	}
	return w.Written(), w.Close()
}
