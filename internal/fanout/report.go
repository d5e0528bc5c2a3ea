// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/alignoa/internal/shard"
	"github.com/pdiddy/alignoa/pkg/types"
)

// Report counts fan-out categories per entity kind and Meta resource type.
type Report struct {
	// Categories is keyed by kind ("works", "sources"), then resource type.
	Categories map[string]map[string]map[types.FanOutCategory]int `json:"categories" yaml:"categories"`

	// SamePrefixPairs counts, per resource type, the unclassified Works
	// records made of two same-prefix DOIs.
	SamePrefixPairs map[string]int `json:"same_prefix_pairs" yaml:"same_prefix_pairs"`

	Rows    int `json:"rows" yaml:"rows"`
	Skipped int `json:"skipped" yaml:"skipped"`
	// MixedKinds counts the skipped records whose keys span entity kinds.
	MixedKinds int `json:"mixed_kinds" yaml:"mixed_kinds"`
}

func newReport() *Report {
	return &Report{
		Categories:      make(map[string]map[string]map[types.FanOutCategory]int),
		SamePrefixPairs: make(map[string]int),
	}
}

func (r *Report) add(kind types.EntityKind, resourceType string, v Verdict) {
	byType, ok := r.Categories[kind.Plural()]
	if !ok {
		byType = make(map[string]map[types.FanOutCategory]int)
		r.Categories[kind.Plural()] = byType
	}
	counts, ok := byType[resourceType]
	if !ok {
		counts = make(map[types.FanOutCategory]int)
		byType[resourceType] = counts
	}
	counts[v.Category]++
	if v.SamePrefixPair {
		r.SamePrefixPairs[resourceType]++
	}
}

// Total returns the number of classified records of kind.
func (r *Report) Total(kind types.EntityKind) int {
	n := 0
	for _, counts := range r.Categories[kind.Plural()] {
		for _, c := range counts {
			n += c
		}
	}
	return n
}

// Run classifies every row of the multi-mapped relation in dirs.
func Run(ctx context.Context, logger *slog.Logger, c *Classifier, dirs ...string) (*Report, error) {
	report := newReport()
	err := shard.Walk(ctx, logger, func(row shard.Row) error {
		report.Rows++
		keys := strings.Fields(row.Get("openalex_id"))
		if _, mixed := keysKind(keys); mixed {
			report.Skipped++
			report.MixedKinds++
			if logger != nil {
				logger.Warn("record maps to mixed entity kinds", "omid", row.Get("omid"), "keys", row.Get("openalex_id"))
			}
			return nil
		}
		kind, v, ok, err := c.Classify(ctx, keys)
		if err != nil {
			return fmt.Errorf("classifying %s: %w", row.Get("omid"), err)
		}
		if !ok {
			report.Skipped++
			return nil
		}
		report.add(kind, row.Get("type"), v)
		return nil
	}, dirs...)
	if err != nil {
		return nil, err
	}
	return report, nil
}

// Write serializes the report to path. The format follows the extension:
// ".json" writes JSON, anything else YAML.
func (r *Report) Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(r, "", "  ")
	} else {
		data, err = yaml.Marshal(r)
	}
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// CollectKeys reads the multi-mapped relation and returns the Work and
// Source OAIDs it mentions. They bound the metadata Load keeps.
func CollectKeys(ctx context.Context, logger *slog.Logger, dirs ...string) (works, sources map[string]bool, err error) {
	works, sources = make(map[string]bool), make(map[string]bool)
	err = shard.Walk(ctx, logger, func(row shard.Row) error {
		for _, key := range strings.Fields(row.Get("openalex_id")) {
			switch kind, _ := types.KindOfKey(key); kind {
			case types.KindWork:
				works[key] = true
			case types.KindSource:
				sources[key] = true
			}
		}
		return nil
	}, dirs...)
	return works, sources, err
}
