// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package dump

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/alignoa/pkg/types"
)

func extractOne(t *testing.T, kind types.EntityKind, raw string) (types.ExternalRecord, bool) {
	t.Helper()
	ex, err := OpenAlexExtractor(kind)
	require.NoError(t, err)
	rec, ok, err := ex([]byte(raw))
	require.NoError(t, err)
	return rec, ok
}

func TestOpenAlexExtractor_Work(t *testing.T) {
	rec, ok := extractOne(t, types.KindWork, `{
		"id": "https://openalex.org/W1",
		"type": "article",
		"ids": {"openalex": "https://openalex.org/W1", "doi": "https://doi.org/10.1/ABC",
		        "pmid": "https://pubmed.ncbi.nlm.nih.gov/42", "mag": 123},
		"primary_location": {"version": "submittedVersion"}
	}`)
	require.True(t, ok)
	assert.Equal(t, "W1", rec.Key)
	assert.Equal(t, "doi:10.1/abc pmid:42", types.JoinTokens(rec.IDs))
	assert.Equal(t, "article", rec.Type)
	assert.Equal(t, "submittedVersion", rec.PrimaryLocationVersion)
}

func TestOpenAlexExtractor_SourceISSNLFallback(t *testing.T) {
	rec, ok := extractOne(t, types.KindSource, `{
		"id": "https://openalex.org/S1",
		"ids": {"issn_l": "1111-1111", "issn": ["2222-2222", "3333-3333"], "wikidata": "https://www.wikidata.org/entity/Q1"}
	}`)
	require.True(t, ok)
	assert.Equal(t, "issn:2222-2222 issn:3333-3333 wikidata:Q1", types.JoinTokens(rec.IDs))
	assert.Equal(t, []string{"2222-2222", "3333-3333"}, rec.ISSNs)
	assert.Equal(t, "1111-1111", rec.ISSNL)

	rec, ok = extractOne(t, types.KindSource, `{"id": "https://openalex.org/S2", "ids": {"issn_l": "1111-1111"}}`)
	require.True(t, ok)
	assert.Equal(t, "issn:1111-1111", types.JoinTokens(rec.IDs))
	assert.Empty(t, rec.ISSNs)
}

func TestOpenAlexExtractor_Agents(t *testing.T) {
	rec, ok := extractOne(t, types.KindAuthor, `{"id": "https://openalex.org/A1", "ids": {"orcid": "https://orcid.org/0000-0001-0000-0001"}}`)
	require.True(t, ok)
	assert.Equal(t, "orcid:0000-0001-0000-0001", types.JoinTokens(rec.IDs))

	rec, ok = extractOne(t, types.KindInstitution, `{"id": "https://openalex.org/I1", "ids": {"ror": "https://ror.org/05x", "wikidata": "http://www.wikidata.org/entity/Q2", "grid": "grid.1"}}`)
	require.True(t, ok)
	assert.Equal(t, "ror:05x wikidata:Q2", types.JoinTokens(rec.IDs))
}

func TestOpenAlexExtractor_NoKeyAndBadJSON(t *testing.T) {
	_, ok := extractOne(t, types.KindWork, `{"ids": {"doi": "10.1/x"}}`)
	assert.False(t, ok)

	ex, err := OpenAlexExtractor(types.KindWork)
	require.NoError(t, err)
	_, _, err = ex([]byte(`{"id":`))
	assert.Error(t, err)

	_, err = OpenAlexExtractor("concept")
	assert.ErrorIs(t, err, types.ErrUnknownEntityKind)
}
