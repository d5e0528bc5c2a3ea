// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package shard writes and reads relations split across fixed-size files.
// Every CSV shard starts with a header row and is parseable on its own.
package shard

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdiddy/alignoa/pkg/types"
)

// Format selects the shard file encoding.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSONL Format = "jsonl"
)

// Options configures a Writer.
type Options struct {
	// Columns names the fields of every row, in order.
	Columns []string

	// RowsPerFile rotates to a new file after this many rows
	// (default types.DefaultRowsPerFile).
	RowsPerFile int

	// Format is csv (default) or jsonl.
	Format Format

	// Prefix is prepended to the shard number in file names, so that
	// concurrent writers can share a directory ("part-3_0.csv").
	Prefix string
}

// Writer appends rows to a directory of shard files, rotating every
// RowsPerFile rows. Files are opened lazily: a writer that never receives a
// row creates no file.
type Writer struct {
	dir  string
	opts Options

	file    *os.File
	buf     *bufio.Writer
	csv     *csv.Writer
	next    int
	inFile  int
	written int
}

// NewWriter creates dir if needed and returns a writer for it.
func NewWriter(dir string, opts Options) (*Writer, error) {
	if len(opts.Columns) == 0 {
		return nil, errors.New("shard writer needs at least one column")
	}
	if opts.RowsPerFile <= 0 {
		opts.RowsPerFile = types.DefaultRowsPerFile
	}
	switch opts.Format {
	case "":
		opts.Format = FormatCSV
	case FormatCSV, FormatJSONL:
	default:
		return nil, fmt.Errorf("unsupported shard format %q", opts.Format)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory %s: %w", dir, err)
	}
	return &Writer{dir: dir, opts: opts}, nil
}

// Dir returns the directory the writer writes to.
func (w *Writer) Dir() string { return w.dir }

// Written returns the number of rows written so far.
func (w *Writer) Written() int { return w.written }

// Write appends one row. values must match Columns in length.
func (w *Writer) Write(values ...string) error {
	if len(values) != len(w.opts.Columns) {
		return fmt.Errorf("row has %d values, want %d (%v)", len(values), len(w.opts.Columns), w.opts.Columns)
	}
	if w.file == nil || w.inFile >= w.opts.RowsPerFile {
		if err := w.rotate(); err != nil {
			return err
		}
	}

	switch w.opts.Format {
	case FormatJSONL:
		obj := make(map[string]string, len(values))
		for i, c := range w.opts.Columns {
			obj[c] = values[i]
		}
		data, err := json.Marshal(obj)
		if err != nil {
			return fmt.Errorf("encoding row: %w", err)
		}
		data = append(data, '\n')
		if _, err := w.buf.Write(data); err != nil {
			return fmt.Errorf("writing %s: %w", w.file.Name(), err)
		}
	default:
		if err := w.csv.Write(values); err != nil {
			return fmt.Errorf("writing %s: %w", w.file.Name(), err)
		}
	}

	w.inFile++
	w.written++
	return nil
}

func (w *Writer) rotate() error {
	if err := w.closeFile(); err != nil {
		return err
	}

	name := fmt.Sprintf("%s%d.%s", w.opts.Prefix, w.next, w.opts.Format)
	f, err := os.Create(filepath.Join(w.dir, name))
	if err != nil {
		return fmt.Errorf("creating shard: %w", err)
	}
	w.next++
	w.inFile = 0
	w.file = f
	w.buf = bufio.NewWriter(f)

	if w.opts.Format == FormatCSV {
		w.csv = csv.NewWriter(w.buf)
		if err := w.csv.Write(w.opts.Columns); err != nil {
			return fmt.Errorf("writing header to %s: %w", name, err)
		}
	}
	return nil
}

func (w *Writer) closeFile() error {
	if w.file == nil {
		return nil
	}
	f := w.file
	var err error
	if w.csv != nil {
		w.csv.Flush()
		err = w.csv.Error()
	}
	if err == nil {
		err = w.buf.Flush()
	}
	w.file, w.buf, w.csv = nil, nil, nil
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("closing %s: %w", f.Name(), err)
	}
	return nil
}

// Close flushes and closes the current shard. It is safe to call more
// than once.
func (w *Writer) Close() error {
	return w.closeFile()
}
