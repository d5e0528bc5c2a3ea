// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package index persists the candidate relations in SQLite, one table per
// (entity kind, identifier scheme) pair, and answers exact-match lookups
// from identifier to OAIDs.
package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/flock"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/alignoa/internal/shard"
	"github.com/pdiddy/alignoa/pkg/types"
)

var (
	// ErrTableExists is returned by Build when the table is already present
	// and replacement was not requested.
	ErrTableExists = errors.New("index table already exists")

	// ErrLocked is returned when another process is building the index.
	ErrLocked = errors.New("index is locked by another build")
)

// TableSpec names one index table.
type TableSpec struct {
	Kind   types.EntityKind
	Scheme types.Scheme
}

// Name returns the SQL table name, e.g. "works_doi".
func (t TableSpec) Name() string { return TableName(t.Kind, t.Scheme) }

// Catalog lists every table the resolver policies can consult, in build
// order.
var Catalog = []TableSpec{
	{types.KindWork, types.SchemeDOI},
	{types.KindWork, types.SchemePMID},
	{types.KindWork, types.SchemePMCID},
	{types.KindSource, types.SchemeISSN},
	{types.KindSource, types.SchemeWikidata},
	{types.KindAuthor, types.SchemeORCID},
	{types.KindPublisher, types.SchemeROR},
	{types.KindPublisher, types.SchemeWikidata},
	{types.KindInstitution, types.SchemeROR},
	{types.KindInstitution, types.SchemeWikidata},
	{types.KindFunder, types.SchemeROR},
	{types.KindFunder, types.SchemeWikidata},
}

// TableName returns the table name for kind and scheme. Both come from
// closed sets, so the result is safe to interpolate into SQL.
func TableName(kind types.EntityKind, scheme types.Scheme) string {
	return kind.Plural() + "_" + string(scheme)
}

// RowSource streams candidate rows into fn.
type RowSource func(ctx context.Context, fn func(types.CandidateRow) error) error

// DirSource reads candidate shards from dir. Rows whose supported_id is
// not a valid token are logged and dropped.
func DirSource(logger *slog.Logger, dir string) RowSource {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return func(ctx context.Context, fn func(types.CandidateRow) error) error {
		return shard.Walk(ctx, logger, func(r shard.Row) error {
			id, err := types.ParseToken(r.Get("supported_id"))
			key := r.Get("openalex_id")
			if err != nil || key == "" {
				logger.Warn("skipping candidate row", "file", r.File, "line", r.Line)
				return nil
			}
			return fn(types.CandidateRow{Identifier: id, Key: key})
		}, dir)
	}
}

// Store manages the identifier index database.
type Store struct {
	db        *sql.DB
	path      string
	batchSize int
	lock      *flock.Flock
	logger    *slog.Logger

	mu     sync.Mutex
	exists map[string]bool
}

// Open opens or creates the index database at cfg.DBPath.
func Open(cfg types.IndexConfig, logger *slog.Logger) (*Store, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("%w: index.db_path", types.ErrMissingPath)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening database: %w", err)
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = types.DefaultBatchSize
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{
		db:        db,
		path:      cfg.DBPath,
		batchSize: batch,
		lock:      flock.New(cfg.DBPath + ".lock"),
		logger:    logger,
		exists:    make(map[string]bool),
	}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// TableExists reports whether table is present.
func (s *Store) TableExists(ctx context.Context, table string) (bool, error) {
	s.mu.Lock()
	known, cached := s.exists[table]
	s.mu.Unlock()
	if cached {
		return known, nil
	}

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?`, table,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking table %s: %w", table, err)
	}
	s.mu.Lock()
	s.exists[table] = n > 0
	s.mu.Unlock()
	return n > 0, nil
}

func (s *Store) forget(table string) {
	s.mu.Lock()
	delete(s.exists, table)
	s.mu.Unlock()
}

// BuildSummary reports the outcome of one table build.
type BuildSummary struct {
	Table    string `json:"table" yaml:"table"`
	Rows     int    `json:"rows" yaml:"rows"`
	Ignored  int    `json:"ignored" yaml:"ignored"`
	Replaced bool   `json:"replaced" yaml:"replaced"`
}

// Build loads the rows of src whose identifier has the given scheme into
// the table for (kind, scheme). Rows are loaded into a staging table that
// replaces the target in a single transaction, so a failed build never
// leaves a partial table behind. Without replace, an existing table is an
// ErrTableExists error.
func (s *Store) Build(ctx context.Context, kind types.EntityKind, scheme types.Scheme, src RowSource, replace bool) (BuildSummary, error) {
	table := TableName(kind, scheme)
	summary := BuildSummary{Table: table}

	ok, err := s.lock.TryLock()
	if err != nil {
		return summary, fmt.Errorf("acquiring index lock: %w", err)
	}
	if !ok {
		return summary, ErrLocked
	}
	defer s.lock.Unlock()

	s.forget(table)
	exists, err := s.TableExists(ctx, table)
	if err != nil {
		return summary, err
	}
	if exists && !replace {
		return summary, fmt.Errorf("%w: %s", ErrTableExists, table)
	}
	summary.Replaced = exists

	staging := table + "_staging"
	for _, stmt := range []string{
		`DROP TABLE IF EXISTS ` + staging,
		`CREATE TABLE ` + staging + ` (supported_id TEXT NOT NULL, openalex_id TEXT NOT NULL)`,
	} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return summary, fmt.Errorf("preparing staging table %s: %w", staging, err)
		}
	}
	// The staging table is dropped on any failure below.
	committed := false
	defer func() {
		if !committed {
			s.db.Exec(`DROP TABLE IF EXISTS ` + staging)
		}
	}()

	ins := &batchInserter{db: s.db, query: `INSERT INTO ` + staging + ` (supported_id, openalex_id) VALUES (?, ?)`, size: s.batchSize}
	err = src(ctx, func(row types.CandidateRow) error {
		if row.Identifier.Scheme != scheme {
			summary.Ignored++
			return nil
		}
		summary.Rows++
		return ins.add(ctx, row.Identifier.String(), row.Key)
	})
	if err == nil {
		err = ins.flush(ctx)
	}
	ins.abort()
	if err != nil {
		return summary, fmt.Errorf("loading %s: %w", table, err)
	}

	if err := s.swap(ctx, staging, table); err != nil {
		return summary, err
	}
	committed = true
	s.forget(table)

	s.logger.Info("index table built", "table", table, "rows", summary.Rows, "replaced", summary.Replaced)
	return summary, nil
}

// swap atomically replaces table with staging and indexes it.
func (s *Store) swap(ctx context.Context, staging, table string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DROP TABLE IF EXISTS ` + table,
		`ALTER TABLE ` + staging + ` RENAME TO ` + table,
		`CREATE INDEX idx_` + table + `_supported_id ON ` + table + `(supported_id)`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("publishing table %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// batchInserter commits inserts every size rows.
type batchInserter struct {
	db    *sql.DB
	query string
	size  int

	tx      *sql.Tx
	stmt    *sql.Stmt
	pending int
}

func (b *batchInserter) add(ctx context.Context, args ...any) error {
	if b.tx == nil {
		tx, err := b.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning transaction: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, b.query)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("preparing insert: %w", err)
		}
		b.tx, b.stmt = tx, stmt
	}
	if _, err := b.stmt.ExecContext(ctx, args...); err != nil {
		return fmt.Errorf("inserting row: %w", err)
	}
	b.pending++
	if b.pending >= b.size {
		return b.flush(ctx)
	}
	return nil
}

func (b *batchInserter) flush(ctx context.Context) error {
	if b.tx == nil {
		return nil
	}
	b.stmt.Close()
	err := b.tx.Commit()
	b.tx, b.stmt, b.pending = nil, nil, 0
	if err != nil {
		return fmt.Errorf("committing batch: %w", err)
	}
	return nil
}

func (b *batchInserter) abort() {
	if b.tx == nil {
		return
	}
	b.stmt.Close()
	b.tx.Rollback()
	b.tx, b.stmt, b.pending = nil, nil, 0
}

// Lookup returns the distinct OAIDs that own id in the table for kind, in
// ascending order. A missing table or an absent value yields no matches.
func (s *Store) Lookup(ctx context.Context, kind types.EntityKind, id types.Identifier) ([]string, error) {
	table := TableName(kind, id.Scheme)
	exists, err := s.TableExists(ctx, table)
	if err != nil || !exists {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT openalex_id FROM `+table+` WHERE supported_id = ? ORDER BY openalex_id`, id.String())
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", table, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", table, err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// TableInfo describes one index table for reporting.
type TableInfo struct {
	Name string `json:"name" yaml:"name"`
	Rows int64  `json:"rows" yaml:"rows"`
}

// Tables lists the index tables with their row counts.
func (s *Store) Tables(ctx context.Context) ([]TableInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE '%_staging' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("listing tables: %w", err)
		}
		names = append(names, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	sort.Strings(names)

	infos := make([]TableInfo, 0, len(names))
	for _, n := range names {
		var count int64
		if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM `+n).Scan(&count); err != nil {
			return nil, fmt.Errorf("counting %s: %w", n, err)
		}
		infos = append(infos, TableInfo{Name: n, Rows: count})
	}
	return infos, nil
}
