// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package dump

import (
	"archive/zip"
	"bufio"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/alignoa/internal/shard"
	"github.com/pdiddy/alignoa/pkg/types"
)

const metaHeader = "id,title,author,issue,volume,venue,page,pub_date,type,publisher,editor\n"

func writeMetaZip(t *testing.T, members map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meta.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	names := make([]string, 0, len(members))
	for n := range members {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		w, err := zw.Create(n)
		require.NoError(t, err)
		_, err = w.Write([]byte(members[n]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func writeGzipLines(t *testing.T, path string, lines ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
}

// readTable returns every row of a shard directory as "col=val|col=val".
func readTable(t *testing.T, dir string, cols ...string) []string {
	t.Helper()
	var rows []string
	err := shard.Walk(context.Background(), nil, func(r shard.Row) error {
		parts := make([]string, len(cols))
		for i, c := range cols {
			parts[i] = r.Get(c)
		}
		rows = append(rows, strings.Join(parts, "|"))
		return nil
	}, dir)
	require.NoError(t, err)
	sort.Strings(rows)
	return rows
}

func TestBuildMetaTables(t *testing.T) {
	venue := `"Journal [omid:br/90 issn:1234-5678]"`
	author := `"Doe, Jane [omid:ra/1 orcid:0000-0001-0000-0001]"`
	zipPath := writeMetaZip(t, map[string]string{
		"csv/0.csv": metaHeader +
			"omid:br/1 doi:10.1/A,T1," + author + ",,," + venue + ",,2020,journal article,,\n" +
			"omid:br/2 isbn:978,T2,,,,,,2020,book,,\n" +
			"omid:br/3,T3,,,,,,2020,book,,\n" +
			"omid:br/4 doi:10.1/b," + "T4," + author + ",,," + venue + ",,2021,journal article,,\n",
		"csv/1.csv": metaHeader +
			"omid:br/5 pmid:5 openalex:W5,T5,,,,,,2022,journal article,,\n",
	})

	out := t.TempDir()
	sum, err := BuildMetaTables(context.Background(), Options{AllRows: false}, zipPath, out)
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Files)
	assert.Equal(t, 5, sum.Records)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 2, sum.NonMappable)

	assert.Equal(t, []string{
		"omid:br/1|doi:10.1/a|journal article",
		"omid:br/4|doi:10.1/b|journal article",
	}, readTable(t, filepath.Join(out, PrimaryTable), "omid", "ids", "type"))

	assert.Equal(t, []string{
		"omid:br/2|book|false",
		"omid:br/3|book|true",
	}, readTable(t, filepath.Join(out, NonMappableTable), "omid", "type", "omid_only"))

	// Venue and author repeat in one member and are written once.
	assert.Equal(t, []string{"omid:br/90|issn:1234-5678"}, readTable(t, filepath.Join(out, VenueTable), "omid", "ids"))
	assert.Equal(t, []string{"omid:ra/1|orcid:0000-0001-0000-0001|author"},
		readTable(t, filepath.Join(out, AgentTable), "omid", "ids", "ra_role"))
}

func TestBuildMetaTables_AllRowsKeepsLinkedRecords(t *testing.T) {
	zipPath := writeMetaZip(t, map[string]string{
		"0.csv": metaHeader + "omid:br/5 pmid:5 openalex:W5,T5,,,,,,2022,journal article,,\n",
	})
	out := t.TempDir()
	_, err := BuildMetaTables(context.Background(), Options{AllRows: true}, zipPath, out)
	require.NoError(t, err)
	assert.Equal(t, []string{"omid:br/5|pmid:5 openalex:W5"}, readTable(t, filepath.Join(out, PrimaryTable), "omid", "ids"))
}

func TestBuildCandidates(t *testing.T) {
	dump := t.TempDir()
	writeGzipLines(t, filepath.Join(dump, "updated_date=2024-01-01", "part_000.gz"),
		`{"id":"https://openalex.org/W1","ids":{"doi":"https://doi.org/10.1/A","pmid":"https://pubmed.ncbi.nlm.nih.gov/1"}}`,
		`not json`,
		``,
		`{"id":"https://openalex.org/W2","ids":{"doi":"https://doi.org/10.1/b"}}`,
	)
	writeGzipLines(t, filepath.Join(dump, "updated_date=2024-02-01", "part_000.gz"),
		`{"id":"https://openalex.org/W3","ids":{"pmcid":"https://www.ncbi.nlm.nih.gov/pmc/articles/PMC3"}}`,
		`{"ids":{"doi":"10.1/orphan"}}`,
	)

	out := t.TempDir()
	sum, err := BuildCandidates(context.Background(), Options{Workers: 2, RowsPerFile: 2}, types.KindWork, dump, out)
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Files)
	assert.Equal(t, 3, sum.Records)
	assert.Equal(t, 2, sum.Skipped)
	assert.Equal(t, 4, sum.Rows["works"])

	assert.Equal(t, []string{
		"doi:10.1/a|W1",
		"doi:10.1/b|W2",
		"pmcid:PMC3|W3",
		"pmid:1|W1",
	}, readTable(t, out, CandidateColumns...))

	files, err := shard.Files(out)
	require.NoError(t, err)
	assert.Len(t, files, 3, "first dump file rotates once, second writes one shard")
}

func TestWalkOpenAlexFile_SkipsOversizedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "part.gz")
	long := `{"id":"https://openalex.org/W9","pad":"` + strings.Repeat("x", 200) + `"}`
	writeGzipLines(t, path, `{"id":"W1"}`, long, `{"id":"W2"}`)

	var lines []int
	err := WalkOpenAlexFile(context.Background(), Options{}.logger(), path, 64, func(line int, raw []byte) error {
		lines = append(lines, line)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, lines)
}

func TestWalkMetaArchive_SkipsOversizedLines(t *testing.T) {
	long := "omid:br/2 doi:10.1/b," + strings.Repeat("t", 300) + ",,,,,,,journal article,,\n"
	zipPath := writeMetaZip(t, map[string]string{
		"part_1.csv": metaHeader +
			"omid:br/1 doi:10.1/a,A,,,,,,,journal article,,\n" +
			long +
			"omid:br/3 doi:10.1/c,C,,,,,,,journal article,,\n",
	})

	var ids []string
	err := WalkMetaArchive(context.Background(), Options{}.logger(), zipPath, 128, func(_ string, row MetaRow) error {
		ids = append(ids, row.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"omid:br/1 doi:10.1/a", "omid:br/3 doi:10.1/c"}, ids)
}

func TestLineLimitReader_DropsLongLinesUnbuffered(t *testing.T) {
	in := "short\n" + strings.Repeat("x", 10_000) + "\nlast"
	var skipped []int
	lr := &lineLimitReader{
		br:    bufio.NewReaderSize(strings.NewReader(in), 16),
		limit: 32,
		skip:  func(line int) { skipped = append(skipped, line) },
	}
	out, err := io.ReadAll(lr)
	require.NoError(t, err)
	assert.Equal(t, "short\nlast\n", string(out))
	assert.Equal(t, []int{2}, skipped)
}

func TestShardPrefix(t *testing.T) {
	root := filepath.Join("data", "works")
	got := shardPrefix(root, filepath.Join(root, "updated_date=2024-01-01", "part_000.gz"))
	assert.Equal(t, "updated_date=2024-01-01_part_000_", got)
}
