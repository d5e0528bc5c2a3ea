// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fanout explains why a Meta record resolved to several OpenAlex
// entities. It keeps the metadata of the entities involved in SQLite and
// runs an ordered list of rules over each multi-mapped record.
package fanout

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/alignoa/internal/dump"
	"github.com/pdiddy/alignoa/pkg/types"
)

// WorkMeta is the subset of a Work's metadata the rules read. Identifier
// values are normalized.
type WorkMeta struct {
	Key            string
	Type           string
	DOI            string
	PMID           string
	PMCID          string
	PrimaryVersion string
}

// pids returns the non-empty persistent identifiers of the work.
func (m WorkMeta) pids() []string {
	var out []string
	for _, id := range []types.Identifier{
		{Scheme: types.SchemeDOI, Value: m.DOI},
		{Scheme: types.SchemePMID, Value: m.PMID},
		{Scheme: types.SchemePMCID, Value: m.PMCID},
	} {
		if !id.IsZero() {
			out = append(out, id.String())
		}
	}
	return out
}

// SourceMeta is the subset of a Source's metadata the rules read.
type SourceMeta struct {
	Key      string
	ISSNs    []string
	ISSNL    string
	Wikidata string
}

// MetadataStore keeps Work and Source metadata for classification.
type MetadataStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenMetadataStore opens or creates the metadata database at path.
func OpenMetadataStore(path string, logger *slog.Logger) (*MetadataStore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: fanout.metadata_db", types.ErrMissingPath)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating metadata directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &MetadataStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *MetadataStore) Close() error {
	return s.db.Close()
}

func (s *MetadataStore) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS works (
			id TEXT PRIMARY KEY,
			type TEXT,
			doi TEXT,
			pmid TEXT,
			pmcid TEXT,
			primloc_version TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS sources (
			id TEXT PRIMARY KEY,
			issns TEXT,
			issn_l TEXT,
			wikidata TEXT
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// LoadSummary counts what Load stored.
type LoadSummary struct {
	Read   int
	Stored int
}

// Load reads the dump of kind under dumpDir and stores the metadata of
// every entity whose OAID is in keep. A nil keep stores everything. Only
// works and sources are supported.
func (s *MetadataStore) Load(ctx context.Context, kind types.EntityKind, dumpDir string, keep map[string]bool, maxLineBytes int) (LoadSummary, error) {
	var insert string
	switch kind {
	case types.KindWork:
		insert = `INSERT OR REPLACE INTO works (id, type, doi, pmid, pmcid, primloc_version) VALUES (?, ?, ?, ?, ?, ?)`
	case types.KindSource:
		insert = `INSERT OR REPLACE INTO sources (id, issns, issn_l, wikidata) VALUES (?, ?, ?, ?)`
	default:
		return LoadSummary{}, fmt.Errorf("%w: %q has no fan-out metadata", types.ErrUnknownEntityKind, kind)
	}
	extract, err := dump.OpenAlexExtractor(kind)
	if err != nil {
		return LoadSummary{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return LoadSummary{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return LoadSummary{}, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	var summary LoadSummary
	logger := s.logger.With("stage", "fanout-load", "kind", string(kind))
	err = dump.WalkOpenAlex(ctx, logger, dumpDir, maxLineBytes, func(file string, line int, raw []byte) error {
		rec, ok, err := extract(raw)
		if err != nil {
			logger.Warn("skipping undecodable record", "file", file, "line", line, "error", err)
			return nil
		}
		summary.Read++
		if !ok || (keep != nil && !keep[rec.Key]) {
			return nil
		}
		if _, err := stmt.ExecContext(ctx, insertArgs(rec)...); err != nil {
			return fmt.Errorf("storing %s: %w", rec.Key, err)
		}
		summary.Stored++
		return nil
	})
	if err != nil {
		return summary, err
	}
	if err := tx.Commit(); err != nil {
		return summary, fmt.Errorf("committing %s metadata: %w", kind, err)
	}
	logger.Info("fan-out metadata loaded", "read", summary.Read, "stored", summary.Stored)
	return summary, nil
}

func firstOf(ids []types.Identifier, scheme types.Scheme) string {
	for _, id := range ids {
		if id.Scheme == scheme {
			return id.Value
		}
	}
	return ""
}

func insertArgs(rec types.ExternalRecord) []any {
	if rec.Kind == types.KindSource {
		issns, _ := json.Marshal(rec.ISSNs)
		return []any{rec.Key, string(issns), rec.ISSNL, firstOf(rec.IDs, types.SchemeWikidata)}
	}
	return []any{
		rec.Key, rec.Type,
		firstOf(rec.IDs, types.SchemeDOI),
		firstOf(rec.IDs, types.SchemePMID),
		firstOf(rec.IDs, types.SchemePMCID),
		rec.PrimaryLocationVersion,
	}
}

// PutWork stores one work directly; used when metadata comes from
// somewhere other than a dump.
func (s *MetadataStore) PutWork(ctx context.Context, m WorkMeta) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO works (id, type, doi, pmid, pmcid, primloc_version) VALUES (?, ?, ?, ?, ?, ?)`,
		m.Key, m.Type, m.DOI, m.PMID, m.PMCID, m.PrimaryVersion)
	if err != nil {
		return fmt.Errorf("storing work %s: %w", m.Key, err)
	}
	return nil
}

// PutSource stores one source directly.
func (s *MetadataStore) PutSource(ctx context.Context, m SourceMeta) error {
	issns, _ := json.Marshal(m.ISSNs)
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sources (id, issns, issn_l, wikidata) VALUES (?, ?, ?, ?)`,
		m.Key, string(issns), m.ISSNL, m.Wikidata)
	if err != nil {
		return fmt.Errorf("storing source %s: %w", m.Key, err)
	}
	return nil
}

// Work returns the stored metadata of key. found is false when the work is
// unknown; that is not an error.
func (s *MetadataStore) Work(ctx context.Context, key string) (WorkMeta, bool, error) {
	m := WorkMeta{Key: key}
	var typ, doi, pmid, pmcid, version sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT type, doi, pmid, pmcid, primloc_version FROM works WHERE id = ?`, key,
	).Scan(&typ, &doi, &pmid, &pmcid, &version)
	if err == sql.ErrNoRows {
		return m, false, nil
	}
	if err != nil {
		return m, false, fmt.Errorf("querying work %s: %w", key, err)
	}
	m.Type, m.DOI, m.PMID, m.PMCID, m.PrimaryVersion = typ.String, doi.String, pmid.String, pmcid.String, version.String
	return m, true, nil
}

// Source returns the stored metadata of key. found is false when the
// source is unknown.
func (s *MetadataStore) Source(ctx context.Context, key string) (SourceMeta, bool, error) {
	m := SourceMeta{Key: key}
	var issns, issnl, wikidata sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT issns, issn_l, wikidata FROM sources WHERE id = ?`, key,
	).Scan(&issns, &issnl, &wikidata)
	if err == sql.ErrNoRows {
		return m, false, nil
	}
	if err != nil {
		return m, false, fmt.Errorf("querying source %s: %w", key, err)
	}
	if issns.Valid && issns.String != "" {
		if err := json.Unmarshal([]byte(issns.String), &m.ISSNs); err != nil {
			return m, false, fmt.Errorf("decoding issns of %s: %w", key, err)
		}
	}
	m.ISSNL, m.Wikidata = issnl.String, wikidata.String
	return m, true, nil
}
