// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package analytics

import (
	"sort"

	"github.com/pdiddy/alignoa/internal/fanout"
	"github.com/pdiddy/alignoa/pkg/types"
)

// RenderFanOut draws one table row per (kind, resource type, category)
// with a non-zero count, ordered by kind and then count.
func RenderFanOut(r *fanout.Report) string {
	type line struct {
		kind, typ string
		category  types.FanOutCategory
		n         int
	}
	var lines []line
	for kind, byType := range r.Categories {
		for typ, counts := range byType {
			for cat, n := range counts {
				if n > 0 {
					lines = append(lines, line{kind, typ, cat, n})
				}
			}
		}
	}
	sort.Slice(lines, func(i, j int) bool {
		a, b := lines[i], lines[j]
		if a.kind != b.kind {
			return a.kind > b.kind
		}
		if a.n != b.n {
			return a.n > b.n
		}
		if a.typ != b.typ {
			return a.typ < b.typ
		}
		return a.category < b.category
	})

	rows := make([][]string, 0, len(lines))
	total := 0
	for _, l := range lines {
		rows = append(rows, []string{l.kind, typeLabel(l.typ), string(l.category), count(l.n)})
		total += l.n
	}
	return renderTable(
		[]string{"kind", "type", "category", "records"},
		rows,
		[]string{"total", "", "", count(total)},
		3,
	)
}
