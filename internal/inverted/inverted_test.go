// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package inverted

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/alignoa/internal/shard"
)

func writeMapping(t *testing.T, dir string, rows ...[2]string) {
	t.Helper()
	w, err := shard.NewWriter(dir, shard.Options{Columns: []string{"omid", "openalex_id", "type"}})
	require.NoError(t, err)
	for _, r := range rows {
		require.NoError(t, w.Write(r[0], r[1], "journal article"))
	}
	require.NoError(t, w.Close())
}

func TestFind(t *testing.T) {
	root := t.TempDir()
	mapped := filepath.Join(root, "mapped")
	multi := filepath.Join(root, "multi_mapped")
	writeMapping(t, mapped,
		[2]string{"omid:br/1", "W1"},
		[2]string{"omid:br/2", "W1"},
		[2]string{"omid:br/3", "W9"},
	)
	writeMapping(t, multi,
		[2]string{"omid:br/4", "W1 W2"},
		[2]string{"omid:br/5", "W2 W3"},
	)

	groups, err := Find(context.Background(), nil, mapped, multi)
	require.NoError(t, err)
	assert.Equal(t, []Group{
		{Key: "W1", OMIDs: []string{"omid:br/1", "omid:br/2", "omid:br/4"}},
		{Key: "W2", OMIDs: []string{"omid:br/4", "omid:br/5"}},
	}, groups)

	// Every reported pair is present in the input mapping.
	forward := map[string]map[string]bool{
		"omid:br/1": {"W1": true}, "omid:br/2": {"W1": true},
		"omid:br/4": {"W1": true, "W2": true}, "omid:br/5": {"W2": true, "W3": true},
	}
	for _, g := range groups {
		for _, omid := range g.OMIDs {
			assert.True(t, forward[omid][g.Key], "%s -> %s", omid, g.Key)
		}
	}

	out := filepath.Join(root, "inverted")
	n, err := Write(groups, out, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	files, err := shard.Files(out)
	require.NoError(t, err)
	require.Len(t, files, 1)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Equal(t, "omid,openalex_id\n"+
		"omid:br/1,W1\nomid:br/2,W1\nomid:br/4,W1\n"+
		"omid:br/4,W2\nomid:br/5,W2\n", string(data))
}

func TestFind_NoDuplicates(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "mapped")
	writeMapping(t, dir, [2]string{"omid:br/1", "W1"})
	groups, err := Find(context.Background(), nil, dir)
	require.NoError(t, err)
	assert.Empty(t, groups)
}
