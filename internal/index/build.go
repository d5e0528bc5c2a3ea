// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package index

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// BuildAll builds every Catalog table from the candidate directories under
// root, one per entity kind ("root/works", "root/sources", ...). Kinds
// whose directory is missing are skipped. Progress is written to w.
func (s *Store) BuildAll(ctx context.Context, root string, replace bool, w io.Writer) ([]BuildSummary, error) {
	var (
		summaries []BuildSummary
		built     int
		skipped   int
	)
	for _, spec := range Catalog {
		dir := filepath.Join(root, spec.Kind.Plural())
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			fmt.Fprintf(w, "skipped %s: no candidates at %s\n", spec.Name(), dir)
			skipped++
			continue
		}
		sum, err := s.Build(ctx, spec.Kind, spec.Scheme, DirSource(s.logger, dir), replace)
		if err != nil {
			return summaries, err
		}
		fmt.Fprintf(w, "built   %s (%d rows)\n", sum.Table, sum.Rows)
		summaries = append(summaries, sum)
		built++
	}
	fmt.Fprintf(w, "\nbuilt: %d, skipped: %d\n", built, skipped)
	return summaries, nil
}
