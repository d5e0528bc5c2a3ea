// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package analytics

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sort"

	"github.com/pdiddy/alignoa/internal/shard"
)

// Relation names one sharded relation read by Coverage.
type Relation struct {
	Name string
	Dir  string
}

// TypeCoverage is the row count of every relation for one resource type.
type TypeCoverage struct {
	Type   string         `json:"type" yaml:"type"`
	Counts map[string]int `json:"counts" yaml:"counts"`
	Total  int            `json:"total" yaml:"total"`
}

// CoverageReport counts rows per relation and resource type.
type CoverageReport struct {
	Relations []string       `json:"relations" yaml:"relations"`
	Types     []TypeCoverage `json:"types" yaml:"types"`
	Totals    map[string]int `json:"totals" yaml:"totals"`
}

// Coverage counts the rows of each relation, grouped by the "type" column.
// Relations whose directory does not exist count as empty. Types are
// ordered by total, largest first.
func Coverage(ctx context.Context, logger *slog.Logger, relations ...Relation) (*CoverageReport, error) {
	report := &CoverageReport{Totals: make(map[string]int)}
	byType := make(map[string]*TypeCoverage)

	for _, rel := range relations {
		report.Relations = append(report.Relations, rel.Name)
		report.Totals[rel.Name] = 0
	}
	for _, rel := range relations {
		if _, err := os.Stat(rel.Dir); errors.Is(err, fs.ErrNotExist) {
			if logger != nil {
				logger.Warn("relation directory missing", "relation", rel.Name, "dir", rel.Dir)
			}
			continue
		}
		err := shard.Walk(ctx, logger, func(row shard.Row) error {
			t := row.Get("type")
			tc, ok := byType[t]
			if !ok {
				tc = &TypeCoverage{Type: t, Counts: make(map[string]int)}
				byType[t] = tc
			}
			tc.Counts[rel.Name]++
			tc.Total++
			report.Totals[rel.Name]++
			return nil
		}, rel.Dir)
		if err != nil {
			return nil, err
		}
	}

	for _, tc := range byType {
		report.Types = append(report.Types, *tc)
	}
	sort.Slice(report.Types, func(i, j int) bool {
		a, b := report.Types[i], report.Types[j]
		if a.Total != b.Total {
			return a.Total > b.Total
		}
		return a.Type < b.Type
	})
	return report, nil
}

// Total returns the number of rows across all relations.
func (r *CoverageReport) Total() int {
	n := 0
	for _, c := range r.Totals {
		n += c
	}
	return n
}

// Render draws the report as a table with one row per resource type.
func (r *CoverageReport) Render() string {
	headers := append([]string{"type"}, r.Relations...)
	headers = append(headers, "total")
	numeric := make([]int, 0, len(r.Relations)+1)
	for i := 1; i < len(headers); i++ {
		numeric = append(numeric, i)
	}

	rows := make([][]string, 0, len(r.Types))
	for _, tc := range r.Types {
		row := []string{typeLabel(tc.Type)}
		for _, rel := range r.Relations {
			row = append(row, count(tc.Counts[rel]))
		}
		rows = append(rows, append(row, count(tc.Total)))
	}
	footer := []string{"total"}
	for _, rel := range r.Relations {
		footer = append(footer, count(r.Totals[rel]))
	}
	footer = append(footer, count(r.Total()))
	return renderTable(headers, rows, footer, numeric...)
}

// Write serializes the report to path (.json or YAML).
func (r *CoverageReport) Write(path string) error {
	return writeReport(path, r)
}
