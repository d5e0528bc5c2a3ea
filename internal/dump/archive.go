// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package dump

import (
	"archive/zip"
	"bufio"
	"compress/gzip"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdiddy/alignoa/pkg/types"
)

// WalkMetaArchive reads every CSV member of the Meta dump archive in name
// order and calls fn for each row. Rows that fail to parse, sit on a line
// longer than maxFieldBytes, or carry a field longer than it are logged and
// skipped.
func WalkMetaArchive(ctx context.Context, logger *slog.Logger, zipPath string, maxFieldBytes int, fn func(member string, row MetaRow) error) error {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("opening Meta archive %s: %w", zipPath, err)
	}
	defer zr.Close()

	members := make([]*zip.File, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(f.Name, ".csv") {
			continue
		}
		members = append(members, f)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Name < members[j].Name })

	if maxFieldBytes <= 0 {
		maxFieldBytes = types.DefaultMaxRecordBytes
	}
	for _, m := range members {
		if err := walkMetaMember(ctx, logger, m, maxFieldBytes, fn); err != nil {
			return err
		}
	}
	return nil
}

func walkMetaMember(ctx context.Context, logger *slog.Logger, m *zip.File, maxFieldBytes int, fn func(string, MetaRow) error) error {
	rc, err := m.Open()
	if err != nil {
		return fmt.Errorf("opening archive member %s: %w", m.Name, err)
	}
	defer rc.Close()

	lines := &lineLimitReader{br: bufio.NewReaderSize(rc, 64*1024), limit: maxFieldBytes}
	lines.skip = func(line int) {
		logger.Warn("skipping oversized line", "member", m.Name, "line", line, "limit", maxFieldBytes)
	}
	r := csv.NewReader(lines)
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	head, err := r.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading header of %s: %w", m.Name, err)
	}
	header := make(map[string]int, len(head))
	for i, col := range head {
		header[strings.TrimSpace(col)] = i
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
				logger.Warn("skipping malformed row", "member", m.Name, "line", pe.Line, "error", err)
				continue
			}
			return fmt.Errorf("reading %s: %w", m.Name, err)
		}
		if oversized(rec, maxFieldBytes) {
			line, _ := r.FieldPos(0)
			logger.Warn("skipping oversized row", "member", m.Name, "line", line, "limit", maxFieldBytes)
			continue
		}
		if err := fn(m.Name, metaRowFromFields(header, rec)); err != nil {
			return err
		}
	}
}

// lineLimitReader passes through the lines of br, dropping any physical
// line longer than limit before it is buffered. A quoted field that spans
// lines is only bounded per line; oversized checks the parsed record.
type lineLimitReader struct {
	br    *bufio.Reader
	limit int
	skip  func(line int)

	pending []byte
	line    int
	err     error
}

func (l *lineLimitReader) Read(p []byte) (int, error) {
	for len(l.pending) == 0 {
		if l.err != nil {
			return 0, l.err
		}
		line, tooLong, err := readLine(l.br, l.limit)
		l.line++
		if err != nil {
			l.err = err
		}
		if tooLong {
			if l.skip != nil {
				l.skip(l.line)
			}
			continue
		}
		if err == io.EOF && len(line) == 0 {
			continue
		}
		l.pending = append(line, '\n')
	}
	n := copy(p, l.pending)
	l.pending = l.pending[n:]
	return n, nil
}

func oversized(rec []string, limit int) bool {
	for _, f := range rec {
		if len(f) > limit {
			return true
		}
	}
	return false
}

// DumpFiles lists the entity files under an OpenAlex dump directory in
// path order. Both gzip-compressed (".gz") and plain (".jsonl") files are
// accepted.
func DumpFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".gz") || strings.HasSuffix(path, ".jsonl") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing dump directory %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

// WalkOpenAlexFile calls fn with each JSON line of one dump file. Lines
// longer than maxLineBytes are logged and skipped without being buffered.
// Blank lines are ignored.
func WalkOpenAlexFile(ctx context.Context, logger *slog.Logger, path string, maxLineBytes int, fn func(line int, raw []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening dump file %s: %w", path, err)
	}
	defer f.Close()

	var src io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("opening gzip stream %s: %w", path, err)
		}
		defer gz.Close()
		src = gz
	}

	if maxLineBytes <= 0 {
		maxLineBytes = types.DefaultMaxRecordBytes
	}
	br := bufio.NewReaderSize(src, 64*1024)
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, tooLong, err := readLine(br, maxLineBytes)
		if err != nil && err != io.EOF {
			return fmt.Errorf("reading %s line %d: %w", path, n, err)
		}
		switch {
		case tooLong:
			logger.Warn("skipping oversized record", "file", path, "line", n, "limit", maxLineBytes)
		case len(strings.TrimSpace(string(line))) > 0:
			if ferr := fn(n, line); ferr != nil {
				return ferr
			}
		}
		if err == io.EOF {
			return nil
		}
	}
}

// WalkOpenAlex walks every file returned by DumpFiles in order.
func WalkOpenAlex(ctx context.Context, logger *slog.Logger, dir string, maxLineBytes int, fn func(file string, line int, raw []byte) error) error {
	files, err := DumpFiles(dir)
	if err != nil {
		return err
	}
	for _, path := range files {
		err := WalkOpenAlexFile(ctx, logger, path, maxLineBytes, func(line int, raw []byte) error {
			return fn(path, line, raw)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// readLine reads up to the next newline. When the line exceeds limit the
// remainder is discarded and tooLong is set. The trailing newline is
// stripped. io.EOF is returned together with the final line.
func readLine(br *bufio.Reader, limit int) (line []byte, tooLong bool, err error) {
	for {
		chunk, rerr := br.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > limit+1 {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		switch rerr {
		case nil:
			return trimNewline(line), tooLong, nil
		case bufio.ErrBufferFull:
			continue
		default:
			return trimNewline(line), tooLong, rerr
		}
	}
}

func trimNewline(b []byte) []byte {
	b = []byte(strings.TrimRight(string(b), "\r\n"))
	return b
}
