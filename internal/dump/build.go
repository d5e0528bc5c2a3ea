// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package dump

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/alignoa/internal/shard"
	"github.com/pdiddy/alignoa/pkg/types"
)

// Table directory names written under the Meta tables directory.
const (
	PrimaryTable     = "primary_ents"
	VenueTable       = "venues"
	AgentTable       = "resp_ags"
	NonMappableTable = "non_mappable"
)

// CandidateColumns are the columns of every candidate shard.
var CandidateColumns = []string{"supported_id", "openalex_id"}

// Options controls how the builders read and write.
type Options struct {
	RowsPerFile    int
	MaxRecordBytes int
	// Workers bounds concurrent dump files in BuildCandidates.
	Workers int
	// AllRows keeps Meta rows already linked to OpenAlex.
	AllRows bool
	Logger  *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.Logger
}

// Summary reports what a build read and wrote.
type Summary struct {
	Files   int            `json:"files" yaml:"files"`
	Records int            `json:"records" yaml:"records"`
	Rows    map[string]int `json:"rows" yaml:"rows"`
	Skipped int            `json:"skipped" yaml:"skipped"`
	// NonMappable counts Meta entities without a supported identifier.
	NonMappable int `json:"non_mappable" yaml:"non_mappable"`
}

func (s *Summary) addRows(table string, n int) {
	if s.Rows == nil {
		s.Rows = make(map[string]int)
	}
	s.Rows[table] += n
}

// Print writes a one-line summary in the style of the other stages.
func (s Summary) Print(w io.Writer) {
	tables := make([]string, 0, len(s.Rows))
	for t := range s.Rows {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	parts := make([]string, 0, len(tables))
	for _, t := range tables {
		parts = append(parts, fmt.Sprintf("%s=%d", t, s.Rows[t]))
	}
	fmt.Fprintf(w, "files: %d, records: %d, skipped: %d, non-mappable: %d, rows: %s\n",
		s.Files, s.Records, s.Skipped, s.NonMappable, strings.Join(parts, " "))
}

// shardPrefix derives a file-name prefix from a dump file's path below
// root, so that shards written by concurrent workers never collide.
func shardPrefix(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	rel = strings.TrimSuffix(rel, ".gz")
	rel = strings.TrimSuffix(rel, ".jsonl")
	rel = strings.NewReplacer(string(filepath.Separator), "_", ".", "_").Replace(rel)
	return rel + "_"
}

// BuildCandidates writes the candidate relation for kind: one row per
// (qualifying identifier, OAID) pair found in the dump files under
// dumpDir. Dump files are processed concurrently; each worker writes its
// own shards into outDir.
func BuildCandidates(ctx context.Context, opts Options, kind types.EntityKind, dumpDir, outDir string) (Summary, error) {
	extract, err := OpenAlexExtractor(kind)
	if err != nil {
		return Summary{}, err
	}
	files, err := DumpFiles(dumpDir)
	if err != nil {
		return Summary{}, err
	}
	logger := opts.logger().With("stage", "candidates", "kind", string(kind))
	if len(files) == 0 {
		logger.Warn("no dump files found", "dir", dumpDir)
	}

	var (
		mu      sync.Mutex
		summary = Summary{Files: len(files)}
	)

	g, gctx := errgroup.WithContext(ctx)
	workers := opts.Workers
	if workers <= 0 {
		workers = types.DefaultWorkers
	}
	g.SetLimit(workers)

	for _, path := range files {
		path := path
		g.Go(func() error {
			fs, err := buildCandidateFile(gctx, logger, opts, extract, dumpDir, path, outDir)
			mu.Lock()
			summary.Records += fs.Records
			summary.Skipped += fs.Skipped
			summary.addRows(kind.Plural(), fs.rows)
			mu.Unlock()
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}
	logger.Info("candidates built", "files", summary.Files, "records", summary.Records, "rows", summary.Rows[kind.Plural()])
	return summary, nil
}

type fileStats struct {
	Records int
	Skipped int
	rows    int
}

func buildCandidateFile(ctx context.Context, logger *slog.Logger, opts Options, extract Extractor, root, path, outDir string) (fileStats, error) {
	var st fileStats
	w, err := shard.NewWriter(outDir, shard.Options{
		Columns:     CandidateColumns,
		RowsPerFile: opts.RowsPerFile,
		Prefix:      shardPrefix(root, path),
	})
	if err != nil {
		return st, err
	}
	defer w.Close()

	err = WalkOpenAlexFile(ctx, logger, path, opts.MaxRecordBytes, func(line int, raw []byte) error {
		rec, ok, err := extract(raw)
		if err != nil {
			logger.Warn("skipping undecodable record", "file", path, "line", line, "error", err)
			st.Skipped++
			return nil
		}
		if !ok {
			st.Skipped++
			return nil
		}
		st.Records++
		for _, id := range rec.IDs {
			if err := w.Write(id.String(), rec.Key); err != nil {
				return err
			}
		}
		return nil
	})
	st.rows = w.Written()
	if err != nil {
		return st, err
	}
	return st, w.Close()
}

// metaWriters groups the four Meta table writers.
type metaWriters struct {
	primary, venues, agents, nonMappable *shard.Writer
}

func openMetaWriters(outDir string, rowsPerFile int) (*metaWriters, error) {
	mw := &metaWriters{}
	var err error
	if mw.primary, err = shard.NewWriter(filepath.Join(outDir, PrimaryTable), shard.Options{Columns: []string{"omid", "ids", "type"}, RowsPerFile: rowsPerFile}); err != nil {
		return nil, err
	}
	if mw.venues, err = shard.NewWriter(filepath.Join(outDir, VenueTable), shard.Options{Columns: []string{"omid", "ids"}, RowsPerFile: rowsPerFile}); err != nil {
		return nil, err
	}
	if mw.agents, err = shard.NewWriter(filepath.Join(outDir, AgentTable), shard.Options{Columns: []string{"omid", "ids", "ra_role"}, RowsPerFile: rowsPerFile}); err != nil {
		return nil, err
	}
	if mw.nonMappable, err = shard.NewWriter(filepath.Join(outDir, NonMappableTable), shard.Options{Columns: []string{"omid", "type", "omid_only"}, RowsPerFile: rowsPerFile}); err != nil {
		return nil, err
	}
	return mw, nil
}

func (mw *metaWriters) Close() error {
	var first error
	for _, w := range []*shard.Writer{mw.primary, mw.venues, mw.agents, mw.nonMappable} {
		if w == nil {
			continue
		}
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// memberSets collects venue and agent rows of one archive member. Venues
// and agents repeat across rows, so they are deduplicated per member
// before being written.
type memberSets struct {
	venues map[string]types.InternalRecord
	agents map[string]types.InternalRecord
}

func newMemberSets() *memberSets {
	return &memberSets{
		venues: make(map[string]types.InternalRecord),
		agents: make(map[string]types.InternalRecord),
	}
}

func (ms *memberSets) flush(mw *metaWriters, s *Summary) error {
	for _, k := range sortedKeys(ms.venues) {
		rec := ms.venues[k]
		if err := mw.venues.Write(rec.Key, rec.Tokens()); err != nil {
			return err
		}
		s.addRows(VenueTable, 1)
	}
	for _, k := range sortedKeys(ms.agents) {
		rec := ms.agents[k]
		if err := mw.agents.Write(rec.Key, rec.Tokens(), string(rec.Role)); err != nil {
			return err
		}
		s.addRows(AgentTable, 1)
	}
	ms.venues = make(map[string]types.InternalRecord)
	ms.agents = make(map[string]types.InternalRecord)
	return nil
}

func sortedKeys(m map[string]types.InternalRecord) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// BuildMetaTables reads the Meta dump archive and writes the primary,
// venue, agent and non-mappable tables under outDir.
func BuildMetaTables(ctx context.Context, opts Options, zipPath, outDir string) (Summary, error) {
	logger := opts.logger().With("stage", "meta")
	mw, err := openMetaWriters(outDir, opts.RowsPerFile)
	if err != nil {
		return Summary{}, err
	}
	defer mw.Close()

	var (
		summary Summary
		current string
		sets    = newMemberSets()
	)

	err = WalkMetaArchive(ctx, logger, zipPath, opts.MaxRecordBytes, func(member string, row MetaRow) error {
		if member != current {
			if err := sets.flush(mw, &summary); err != nil {
				return err
			}
			current = member
			summary.Files++
		}
		summary.Records++
		return extractMetaRow(logger, opts, mw, sets, &summary, member, row)
	})
	if err != nil {
		return summary, err
	}
	if err := sets.flush(mw, &summary); err != nil {
		return summary, err
	}
	if err := mw.Close(); err != nil {
		return summary, err
	}
	logger.Info("meta tables built", "files", summary.Files, "records", summary.Records,
		"primary", summary.Rows[PrimaryTable], "non_mappable", summary.NonMappable)
	return summary, nil
}

func extractMetaRow(logger *slog.Logger, opts Options, mw *metaWriters, sets *memberSets, s *Summary, member string, row MetaRow) error {
	rec, ex := ExtractPrimary(row)
	if rec.HasOpenAlexID() && !opts.AllRows {
		s.Skipped++
		return nil
	}
	switch ex {
	case Extracted:
		if err := mw.primary.Write(rec.Key, rec.Tokens(), rec.ResourceType); err != nil {
			return err
		}
		s.addRows(PrimaryTable, 1)
	case NoSupportedID, OMIDOnly:
		omidOnly := "false"
		if ex == OMIDOnly {
			omidOnly = "true"
		}
		if err := mw.nonMappable.Write(rec.Key, rec.ResourceType, omidOnly); err != nil {
			return err
		}
		s.NonMappable++
		s.addRows(NonMappableTable, 1)
	default:
		logger.Warn("skipping row without omid", "member", member)
		s.Skipped++
	}

	venue, vex, err := ExtractVenue(row)
	if err != nil {
		logger.Warn("skipping venue", "member", member, "omid", rec.Key, "error", err)
	} else if vex == Extracted && (!venue.HasOpenAlexID() || opts.AllRows) {
		sets.venues[venue.Key] = venue
	}

	for _, role := range types.AgentRoles {
		agents, errs := ExtractAgents(row, role)
		for _, e := range errs {
			logger.Warn("skipping agent", "member", member, "omid", rec.Key, "error", e)
		}
		for _, a := range agents {
			if a.HasOpenAlexID() && !opts.AllRows {
				continue
			}
			sets.agents[a.Key+"\x00"+string(a.Role)] = a
		}
	}
	return nil
}
