// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package shard

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Row is one record of a CSV relation, addressed by column name.
type Row struct {
	File   string
	Line   int
	fields map[string]string
}

// NewRow builds a row from column/value pairs; used by tests and by
// in-memory sources.
func NewRow(kv ...string) Row {
	r := Row{fields: make(map[string]string, len(kv)/2)}
	for i := 0; i+1 < len(kv); i += 2 {
		r.fields[kv[i]] = kv[i+1]
	}
	return r
}

// Get returns the value of column, or "" when the column is absent.
func (r Row) Get(column string) string {
	return r.fields[column]
}

// Has reports whether the row carries column.
func (r Row) Has(column string) bool {
	_, ok := r.fields[column]
	return ok
}

// Files lists the CSV shards of dir in name order. A missing directory is
// an error.
func Files(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading table directory %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// Walk reads every CSV shard in dirs and calls fn for each row. Rows that
// fail to parse are logged and skipped. An error from fn stops the walk and
// is returned unchanged.
func Walk(ctx context.Context, logger *slog.Logger, fn func(Row) error, dirs ...string) error {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	for _, dir := range dirs {
		files, err := Files(dir)
		if err != nil {
			return err
		}
		for _, path := range files {
			if err := walkFile(ctx, logger, path, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

func walkFile(ctx context.Context, logger *slog.Logger, path string, fn func(Row) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading header of %s: %w", path, err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				logger.Warn("skipping malformed row", "file", path, "line", pe.Line, "error", err)
				continue
			}
			return fmt.Errorf("reading %s: %w", path, err)
		}

		line, _ := r.FieldPos(0)
		row := Row{File: path, Line: line, fields: make(map[string]string, len(header))}
		for i, col := range header {
			if i < len(rec) {
				row.fields[col] = rec[i]
			}
		}
		if err := fn(row); err != nil {
			return err
		}
	}
}
