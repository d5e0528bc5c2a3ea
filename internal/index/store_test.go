// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package index

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/alignoa/internal/shard"
	"github.com/pdiddy/alignoa/pkg/types"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(types.IndexConfig{DBPath: filepath.Join(t.TempDir(), "index.db"), BatchSize: 2}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sliceSource(rows ...types.CandidateRow) RowSource {
	return func(ctx context.Context, fn func(types.CandidateRow) error) error {
		for _, r := range rows {
			if err := fn(r); err != nil {
				return err
			}
		}
		return nil
	}
}

func row(scheme types.Scheme, value, key string) types.CandidateRow {
	return types.CandidateRow{Identifier: types.NewIdentifier(scheme, value), Key: key}
}

func TestBuildAndLookup(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	sum, err := s.Build(ctx, types.KindWork, types.SchemeDOI, sliceSource(
		row(types.SchemeDOI, "10.1/a", "W1"),
		row(types.SchemeDOI, "10.1/a", "W2"),
		row(types.SchemeDOI, "10.1/a", "W1"),
		row(types.SchemeDOI, "10.1/b", "W3"),
		row(types.SchemePMID, "9", "W4"),
	), false)
	require.NoError(t, err)
	assert.Equal(t, "works_doi", sum.Table)
	assert.Equal(t, 4, sum.Rows)
	assert.Equal(t, 1, sum.Ignored)

	got, err := s.Lookup(ctx, types.KindWork, types.NewIdentifier(types.SchemeDOI, "10.1/A"))
	require.NoError(t, err)
	assert.Equal(t, []string{"W1", "W2"}, got)

	got, err = s.Lookup(ctx, types.KindWork, types.NewIdentifier(types.SchemeDOI, "10.1/zzz"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLookup_MissingTableIsEmpty(t *testing.T) {
	s := testStore(t)
	got, err := s.Lookup(context.Background(), types.KindSource, types.NewIdentifier(types.SchemeISSN, "1234-5678"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBuild_ExistingTable(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	_, err := s.Build(ctx, types.KindSource, types.SchemeISSN, sliceSource(row(types.SchemeISSN, "1111-1111", "S1")), false)
	require.NoError(t, err)

	_, err = s.Build(ctx, types.KindSource, types.SchemeISSN, sliceSource(row(types.SchemeISSN, "1111-1111", "S2")), false)
	assert.ErrorIs(t, err, ErrTableExists)

	sum, err := s.Build(ctx, types.KindSource, types.SchemeISSN, sliceSource(row(types.SchemeISSN, "1111-1111", "S2")), true)
	require.NoError(t, err)
	assert.True(t, sum.Replaced)

	got, err := s.Lookup(ctx, types.KindSource, types.NewIdentifier(types.SchemeISSN, "1111-1111"))
	require.NoError(t, err)
	assert.Equal(t, []string{"S2"}, got)
}

func TestBuild_FailureLeavesNoPartialTable(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	src := func(ctx context.Context, fn func(types.CandidateRow) error) error {
		for i, v := range []string{"1", "2", "3"} {
			if err := fn(row(types.SchemePMID, v, "W"+v)); err != nil {
				return err
			}
			if i == 2 {
				return boom
			}
		}
		return nil
	}
	_, err := s.Build(ctx, types.KindWork, types.SchemePMID, src, false)
	assert.ErrorIs(t, err, boom)

	exists, err := s.TableExists(ctx, "works_pmid")
	require.NoError(t, err)
	assert.False(t, exists)

	tables, err := s.Tables(ctx)
	require.NoError(t, err)
	assert.Empty(t, tables)
}

func TestBuild_Locked(t *testing.T) {
	s := testStore(t)
	ok, err := s.lock.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer s.lock.Unlock()

	other, err := Open(types.IndexConfig{DBPath: s.path}, nil)
	require.NoError(t, err)
	defer other.Close()

	_, err = other.Build(context.Background(), types.KindWork, types.SchemeDOI, sliceSource(), false)
	assert.ErrorIs(t, err, ErrLocked)
}

func TestBuildAll_FromCandidateShards(t *testing.T) {
	s := testStore(t)
	root := t.TempDir()

	w, err := shard.NewWriter(filepath.Join(root, "works"), shard.Options{Columns: []string{"supported_id", "openalex_id"}})
	require.NoError(t, err)
	require.NoError(t, w.Write("doi:10.1/a", "W1"))
	require.NoError(t, w.Write("pmid:5", "W1"))
	require.NoError(t, w.Write("garbage", "W9"))
	require.NoError(t, w.Close())

	var out bytes.Buffer
	sums, err := s.BuildAll(context.Background(), root, false, &out)
	require.NoError(t, err)
	require.Len(t, sums, 3)
	assert.Contains(t, out.String(), "built: 3, skipped: 9")

	tables, err := s.Tables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []TableInfo{
		{Name: "works_doi", Rows: 1},
		{Name: "works_pmcid", Rows: 0},
		{Name: "works_pmid", Rows: 1},
	}, tables)
}
