// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package analytics

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/alignoa/internal/shard"
	"github.com/pdiddy/alignoa/pkg/types"
)

// MetaBaseURI is the namespace OMIDs expand into in the RDF dump.
const MetaBaseURI = "https://w3id.org/oc/meta/"

// BRURI expands an OMID such as "omid:br/061" into its resource URI.
func BRURI(omid string) string {
	return MetaBaseURI + strings.TrimPrefix(omid, "omid:")
}

type jsonLDRef struct {
	ID string `json:"@id"`
}

type provSnapshot struct {
	PrimarySource    []jsonLDRef `json:"http://www.w3.org/ns/prov#hadPrimarySource"`
	SpecializationOf []jsonLDRef `json:"http://www.w3.org/ns/prov#specializationOf"`
}

type provGraph struct {
	Graph []provSnapshot `json:"@graph"`
}

// entityProvenance reduces the snapshots of one entity to the resource
// they describe and the union of their primary sources. ok is false when
// the graph names no source or no resource.
func entityProvenance(g provGraph) (br string, sources []string, ok bool) {
	seen := make(map[string]bool)
	for _, snap := range g.Graph {
		for _, s := range snap.PrimarySource {
			if s.ID != "" && !seen[s.ID] {
				seen[s.ID] = true
				sources = append(sources, s.ID)
			}
		}
	}
	if len(sources) == 0 {
		return "", nil, false
	}
	for _, snap := range g.Graph {
		if len(snap.SpecializationOf) > 0 && snap.SpecializationOf[0].ID != "" {
			sort.Strings(sources)
			return snap.SpecializationOf[0].ID, sources, true
		}
	}
	return "", nil, false
}

// ProvenanceStore maps bibliographic resource URIs to their primary
// sources.
type ProvenanceStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenProvenanceStore opens or creates the provenance database at path.
func OpenProvenanceStore(path string, logger *slog.Logger) (*ProvenanceStore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: provenance.db_path", types.ErrMissingPath)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating provenance directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS provenance (
		br_uri TEXT PRIMARY KEY,
		sources TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ProvenanceStore{db: db, logger: logger}, nil
}

// Close releases the database connection.
func (s *ProvenanceStore) Close() error {
	return s.db.Close()
}

// ProvenanceLoadSummary counts what Load read and stored.
type ProvenanceLoadSummary struct {
	Archives int
	Graphs   int
	Stored   int
	NoSource int
}

// Load reads every prov/se.zip member of the RDF archive at path and
// stores one row per described resource.
func (s *ProvenanceStore) Load(ctx context.Context, path string) (ProvenanceLoadSummary, error) {
	var summary ProvenanceLoadSummary
	outer, err := zip.OpenReader(path)
	if err != nil {
		return summary, fmt.Errorf("opening %s: %w", path, err)
	}
	defer outer.Close()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return summary, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO provenance (br_uri, sources) VALUES (?, ?)`)
	if err != nil {
		return summary, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, member := range outer.File {
		if !strings.HasSuffix(member.Name, "prov/se.zip") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Archives++
		graphs, err := readProvArchive(member)
		if err != nil {
			return summary, err
		}
		for _, g := range graphs {
			summary.Graphs++
			br, sources, ok := entityProvenance(g)
			if !ok {
				summary.NoSource++
				s.logger.Debug("no primary source", "member", member.Name)
				continue
			}
			encoded, _ := json.Marshal(sources)
			if _, err := stmt.ExecContext(ctx, br, string(encoded)); err != nil {
				return summary, fmt.Errorf("storing %s: %w", br, err)
			}
			summary.Stored++
		}
	}
	if err := tx.Commit(); err != nil {
		return summary, fmt.Errorf("committing provenance: %w", err)
	}
	s.logger.Info("provenance loaded", "archives", summary.Archives, "graphs", summary.Graphs, "stored", summary.Stored)
	return summary, nil
}

// readProvArchive decodes the se.json files of one nested archive. zip
// needs random access, so the member is read into memory first.
func readProvArchive(member *zip.File) ([]provGraph, error) {
	rc, err := member.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", member.Name, err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", member.Name, err)
	}
	inner, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening nested archive %s: %w", member.Name, err)
	}

	var graphs []provGraph
	for _, f := range inner.File {
		if !strings.HasSuffix(f.Name, "se.json") {
			continue
		}
		r, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s/%s: %w", member.Name, f.Name, err)
		}
		var batch []provGraph
		err = json.NewDecoder(r).Decode(&batch)
		r.Close()
		if err != nil {
			return nil, fmt.Errorf("decoding %s/%s: %w", member.Name, f.Name, err)
		}
		graphs = append(graphs, batch...)
	}
	return graphs, nil
}

// Put stores the sources of one resource directly.
func (s *ProvenanceStore) Put(ctx context.Context, brURI string, sources []string) error {
	encoded, _ := json.Marshal(types.SortedDistinct(sources))
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO provenance (br_uri, sources) VALUES (?, ?)`, brURI, string(encoded)); err != nil {
		return fmt.Errorf("storing %s: %w", brURI, err)
	}
	return nil
}

// Sources returns the primary sources recorded for brURI.
func (s *ProvenanceStore) Sources(ctx context.Context, brURI string) ([]string, bool, error) {
	var encoded string
	err := s.db.QueryRowContext(ctx, `SELECT sources FROM provenance WHERE br_uri = ?`, brURI).Scan(&encoded)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querying %s: %w", brURI, err)
	}
	var sources []string
	if err := json.Unmarshal([]byte(encoded), &sources); err != nil {
		return nil, false, fmt.Errorf("decoding sources of %s: %w", brURI, err)
	}
	return sources, true, nil
}

// SourceCount splits the records of one source by whether they carry any
// identifier besides the OMID.
type SourceCount struct {
	Source    string `json:"source" yaml:"source"`
	OMIDOnly  int    `json:"omid_only" yaml:"omid_only"`
	OtherPIDs int    `json:"other_pids" yaml:"other_pids"`
}

func (c SourceCount) total() int { return c.OMIDOnly + c.OtherPIDs }

// TypeProvenance holds the source counts of one resource type.
type TypeProvenance struct {
	Type    string        `json:"type" yaml:"type"`
	Total   int           `json:"total" yaml:"total"`
	Sources []SourceCount `json:"sources" yaml:"sources"`
}

// ProvenanceReport cross-tabulates unmapped records by resource type and
// primary source. Types and sources are ordered by count, largest first.
type ProvenanceReport struct {
	Types   []TypeProvenance `json:"types" yaml:"types"`
	Rows    int              `json:"rows" yaml:"rows"`
	Missing int              `json:"missing" yaml:"missing"`
}

// Analyse looks up the provenance of every row in dirs. Rows are expected
// to carry omid and type columns; an omid_only column set to "true" marks
// records with no other identifier.
func (s *ProvenanceStore) Analyse(ctx context.Context, dirs ...string) (*ProvenanceReport, error) {
	counts := make(map[string]map[string]*SourceCount)
	report := &ProvenanceReport{}

	err := shard.Walk(ctx, s.logger, func(row shard.Row) error {
		omid := row.Get("omid")
		if omid == "" {
			return nil
		}
		report.Rows++
		sources, found, err := s.Sources(ctx, BRURI(omid))
		if err != nil {
			return err
		}
		if !found {
			report.Missing++
			s.logger.Warn("no provenance found", "omid", omid)
			return nil
		}
		source := strings.Join(types.SortedDistinct(sources), " ")
		typ := row.Get("type")
		bySource, ok := counts[typ]
		if !ok {
			bySource = make(map[string]*SourceCount)
			counts[typ] = bySource
		}
		c, ok := bySource[source]
		if !ok {
			c = &SourceCount{Source: source}
			bySource[source] = c
		}
		if strings.EqualFold(row.Get("omid_only"), "true") {
			c.OMIDOnly++
		} else {
			c.OtherPIDs++
		}
		return nil
	}, dirs...)
	if err != nil {
		return nil, err
	}

	for typ, bySource := range counts {
		tp := TypeProvenance{Type: typ}
		for _, c := range bySource {
			tp.Sources = append(tp.Sources, *c)
			tp.Total += c.total()
		}
		sort.Slice(tp.Sources, func(i, j int) bool {
			a, b := tp.Sources[i], tp.Sources[j]
			if a.total() != b.total() {
				return a.total() > b.total()
			}
			return a.Source < b.Source
		})
		report.Types = append(report.Types, tp)
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

// Render draws one table row per (type, source) pair.
func (r *ProvenanceReport) Render() string {
	var rows [][]string
	omidOnly, other := 0, 0
	for _, tp := range r.Types {
		for _, c := range tp.Sources {
			rows = append(rows, []string{typeLabel(tp.Type), c.Source, count(c.OMIDOnly), count(c.OtherPIDs)})
			omidOnly += c.OMIDOnly
			other += c.OtherPIDs
		}
	}
	return renderTable(
		[]string{"type", "source", "omid_only", "other_pids"},
		rows,
		[]string{"total", "", count(omidOnly), count(other)},
		2, 3,
	)
}

// Write serializes the report to path (.json or YAML).
func (r *ProvenanceReport) Write(path string) error {
	return writeReport(path, r)
}
