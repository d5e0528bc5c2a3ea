// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resolve

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/alignoa/internal/index"
	"github.com/pdiddy/alignoa/internal/shard"
	"github.com/pdiddy/alignoa/pkg/types"
)

// fakeStore answers lookups from a map keyed by "kind|token" and records
// every query.
type fakeStore struct {
	data    map[string][]string
	queries []string
	err     error
}

func (f *fakeStore) Lookup(_ context.Context, kind types.EntityKind, id types.Identifier) ([]string, error) {
	q := string(kind) + "|" + id.String()
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	return f.data[q], nil
}

func rec(key, tokens, typ string) types.InternalRecord {
	r := types.InternalRecord{Key: key, ResourceType: typ}
	for _, id := range types.ParseTokens(tokens) {
		if id.Scheme == types.SchemeOpenAlex {
			r.OpenAlexIDs = append(r.OpenAlexIDs, id)
			continue
		}
		r.IDs = append(r.IDs, id)
	}
	return r
}

func TestResolve_Precedence(t *testing.T) {
	store := &fakeStore{data: map[string][]string{
		"source|issn:1234-5678":  {"S1"},
		"work|doi:10.1/a":        {"W1"},
		"work|pmid:7":            {"W7"},
		"work|pmcid:PMC7":        {"W8", "W7"},
		"source|wikidata:Q1":     {"S9"},
		"author|orcid:0000-0001": {"A1"},
	}}
	r := New(store, BibliographicPolicy(), nil)
	ctx := context.Background()

	tests := []struct {
		name        string
		tokens      string
		wantMatches []string
		wantQueries []string
	}{
		{"issn wins over doi", "doi:10.1/a issn:1234-5678", []string{"S1"}, []string{"source|issn:1234-5678"}},
		{"doi wins over pmid", "pmid:7 doi:10.1/a", []string{"W1"}, []string{"work|doi:10.1/a"}},
		{"remaining schemes are unioned", "pmid:7 pmcid:PMC7 wikidata:Q1", []string{"S9", "W7", "W8"},
			[]string{"work|pmid:7", "work|pmcid:PMC7", "source|wikidata:Q1"}},
		{"unsupported only", "isbn:978", nil, nil},
		{"empty bag", "", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store.queries = nil
			out, err := r.Resolve(ctx, rec("omid:br/1", tt.tokens, "journal article"))
			require.NoError(t, err)
			assert.Equal(t, tt.wantMatches, out.Matches)
			assert.Equal(t, tt.wantQueries, store.queries)
		})
	}
}

func TestResolve_IsDeterministic(t *testing.T) {
	store := &fakeStore{data: map[string][]string{
		"work|pmid:1":  {"W3", "W1"},
		"work|pmcid:2": {"W2", "W1"},
	}}
	r := New(store, BibliographicPolicy(), nil)
	a, err := r.Resolve(context.Background(), rec("omid:br/1", "pmid:1 pmcid:2", ""))
	require.NoError(t, err)
	b, err := r.Resolve(context.Background(), rec("omid:br/1", "pmcid:2 pmid:1", ""))
	require.NoError(t, err)
	assert.Equal(t, []string{"W1", "W2", "W3"}, a.Matches)
	assert.Equal(t, a.Matches, b.Matches)
}

func TestResolve_AgentPolicy(t *testing.T) {
	store := &fakeStore{data: map[string][]string{
		"institution|ror:05x":   {"I1"},
		"funder|ror:05x":        {"F1"},
		"publisher|wikidata:Q2": {"P1"},
	}}
	r := New(store, AgentPolicy(), nil)

	out, err := r.Resolve(context.Background(), rec("omid:ra/1", "ror:05x wikidata:Q2", ""))
	require.NoError(t, err)
	assert.Equal(t, []string{"F1", "I1"}, out.Matches)
	assert.Equal(t, types.MultiMapped, out.Class())
}

func sliceSource(recs ...types.InternalRecord) Source {
	return func(ctx context.Context, fn func(types.InternalRecord) error) error {
		for _, r := range recs {
			if err := fn(r); err != nil {
				return err
			}
		}
		return nil
	}
}

func readRows(t *testing.T, dir string) []string {
	t.Helper()
	var rows []string
	require.NoError(t, shard.Walk(context.Background(), nil, func(r shard.Row) error {
		rows = append(rows, r.Get("omid")+"|"+r.Get("openalex_id")+"|"+r.Get("type"))
		return nil
	}, dir))
	sort.Strings(rows)
	return rows
}

func TestRun_PartitionIsComplete(t *testing.T) {
	store := &fakeStore{data: map[string][]string{
		"work|doi:10.1/a": {"W1"},
		"work|doi:10.1/b": {"W2", "W3"},
	}}
	input := []types.InternalRecord{
		rec("omid:br/1", "doi:10.1/a", "journal article"),
		rec("omid:br/2", "doi:10.1/b", "journal article"),
		rec("omid:br/3", "doi:10.1/c", "book"),
		rec("omid:br/4", "doi:10.1/a openalex:W1", "journal article"),
	}

	out := t.TempDir()
	sum, err := New(store, BibliographicPolicy(), nil).Run(context.Background(), sliceSource(input...), out,
		RunOptions{TypeField: true, AllRows: false})
	require.NoError(t, err)

	assert.Equal(t, Summary{Read: 4, Skipped: 1, Mapped: 1, MultiMapped: 1, NonMapped: 1}, sum)
	assert.Equal(t, sum.Read-sum.Skipped, sum.Mapped+sum.MultiMapped+sum.NonMapped)

	assert.Equal(t, []string{"omid:br/1|W1|journal article"}, readRows(t, filepath.Join(out, MappedDir)))
	assert.Equal(t, []string{"omid:br/2|W2 W3|journal article"}, readRows(t, filepath.Join(out, MultiMappedDir)))
	assert.Equal(t, []string{"omid:br/3||book"}, readRows(t, filepath.Join(out, NonMappedDir)))
}

func TestRun_VenuesWithoutTypeColumn(t *testing.T) {
	store := &fakeStore{data: map[string][]string{"source|issn:1111-1111": {"S1"}}}
	out := t.TempDir()
	_, err := New(store, BibliographicPolicy(), nil).Run(context.Background(),
		sliceSource(rec("omid:br/9", "issn:1111-1111", "")), out, RunOptions{AllRows: true})
	require.NoError(t, err)

	files, err := shard.Files(filepath.Join(out, MappedDir))
	require.NoError(t, err)
	require.Len(t, files, 1)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Equal(t, "omid,openalex_id\nomid:br/9,S1\n", string(data))
}

func TestRun_LookupErrorFlushesWriters(t *testing.T) {
	boom := errors.New("disk gone")
	store := &fakeStore{data: map[string][]string{"work|doi:10.1/a": {"W1"}}}
	src := func(ctx context.Context, fn func(types.InternalRecord) error) error {
		if err := fn(rec("omid:br/1", "doi:10.1/a", "")); err != nil {
			return err
		}
		store.err = boom
		return fn(rec("omid:br/2", "doi:10.1/b", ""))
	}

	out := t.TempDir()
	_, err := New(store, BibliographicPolicy(), nil).Run(context.Background(), src, out, RunOptions{AllRows: true})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"omid:br/1|W1|"}, readRows(t, filepath.Join(out, MappedDir)))
}

// TestEndToEnd runs Meta table rows through a real index.
func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	store, err := index.Open(types.IndexConfig{DBPath: filepath.Join(root, "index.db")}, nil)
	require.NoError(t, err)
	defer store.Close()

	candidates := func(ctx context.Context, fn func(types.CandidateRow) error) error {
		for _, c := range []struct{ tok, key string }{
			{"doi:10.1/x", "W1"},
			{"doi:10.1/y", "W2"},
			{"doi:10.1/y", "W3"},
		} {
			id, err := types.ParseToken(c.tok)
			if err != nil {
				return err
			}
			if err := fn(types.CandidateRow{Identifier: id, Key: c.key}); err != nil {
				return err
			}
		}
		return nil
	}
	_, err = store.Build(ctx, types.KindWork, types.SchemeDOI, candidates, false)
	require.NoError(t, err)

	metaDir := filepath.Join(root, "primary_ents")
	w, err := shard.NewWriter(metaDir, shard.Options{Columns: []string{"omid", "ids", "type"}})
	require.NoError(t, err)
	require.NoError(t, w.Write("omid:br/1", "doi:10.1/x", "journal article"))
	require.NoError(t, w.Write("omid:br/2", "doi:10.1/Y", "journal article"))
	require.NoError(t, w.Close())

	out := filepath.Join(root, "out")
	sum, err := New(store, BibliographicPolicy(), nil).Run(ctx, TableSource(nil, metaDir), out,
		RunOptions{TypeField: true, AllRows: true})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Mapped)
	assert.Equal(t, 1, sum.MultiMapped)

	assert.Equal(t, []string{"omid:br/1|W1|journal article"}, readRows(t, filepath.Join(out, MappedDir)))
	multi := readRows(t, filepath.Join(out, MultiMappedDir))
	require.Len(t, multi, 1)
	assert.True(t, strings.HasPrefix(multi[0], "omid:br/2|W2 W3|"))
}

func TestPolicyTables(t *testing.T) {
	assert.Equal(t, []string{"sources_issn", "works_doi", "works_pmid", "works_pmcid", "sources_wikidata"},
		BibliographicPolicy().Tables())
	assert.Equal(t, []string{
		"authors_orcid",
		"institutions_ror", "publishers_ror", "funders_ror",
		"institutions_wikidata", "publishers_wikidata", "funders_wikidata",
	}, AgentPolicy().Tables())
}

// An index without the policy's tables must fail the run rather than
// report every record as non-mapped.
func TestCheckTables_EmptyIndex(t *testing.T) {
	ctx := context.Background()
	store, err := index.Open(types.IndexConfig{DBPath: filepath.Join(t.TempDir(), "index.db")}, nil)
	require.NoError(t, err)
	defer store.Close()

	err = CheckTables(ctx, store, BibliographicPolicy())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingTable)
	assert.Contains(t, err.Error(), "sources_issn")
	assert.Contains(t, err.Error(), "works_doi")

	none := func(context.Context, func(types.CandidateRow) error) error { return nil }
	for _, spec := range []struct {
		kind   types.EntityKind
		scheme types.Scheme
	}{
		{types.KindSource, types.SchemeISSN},
		{types.KindWork, types.SchemeDOI},
		{types.KindWork, types.SchemePMID},
		{types.KindWork, types.SchemePMCID},
	} {
		_, err := store.Build(ctx, spec.kind, spec.scheme, none, false)
		require.NoError(t, err)
	}
	err = CheckTables(ctx, store, BibliographicPolicy())
	require.ErrorIs(t, err, ErrMissingTable)
	assert.Contains(t, err.Error(), "sources_wikidata")
	assert.NotContains(t, err.Error(), "works_doi")

	_, err = store.Build(ctx, types.KindSource, types.SchemeWikidata, none, false)
	require.NoError(t, err)
	assert.NoError(t, CheckTables(ctx, store, BibliographicPolicy()))
}

type failingChecker struct{}

func (failingChecker) TableExists(context.Context, string) (bool, error) {
	return false, errors.New("disk gone")
}

func TestCheckTables_PropagatesErrors(t *testing.T) {
	err := CheckTables(context.Background(), failingChecker{}, AgentPolicy())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMissingTable)
	assert.Contains(t, err.Error(), "authors_orcid")
}
