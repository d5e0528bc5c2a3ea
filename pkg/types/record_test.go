// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEntityKind(t *testing.T) {
	for _, in := range []string{"work", "works", " Sources ", "funder"} {
		_, err := ParseEntityKind(in)
		assert.NoError(t, err, in)
	}
	k, err := ParseEntityKind("institutions")
	require.NoError(t, err)
	assert.Equal(t, KindInstitution, k)
	assert.Equal(t, "institutions", k.Plural())

	_, err = ParseEntityKind("concept")
	assert.ErrorIs(t, err, ErrUnknownEntityKind)
}

func TestKindOfKey(t *testing.T) {
	tests := []struct {
		key  string
		want EntityKind
		ok   bool
	}{
		{"W2741809807", KindWork, true},
		{"https://openalex.org/S123", KindSource, true},
		{"A1", KindAuthor, true},
		{"X1", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := KindOfKey(tt.key)
		assert.Equal(t, tt.ok, ok, tt.key)
		assert.Equal(t, tt.want, got, tt.key)
	}
}

func TestMappingOutcomeClass(t *testing.T) {
	assert.Equal(t, NonMapped, MappingOutcome{}.Class())
	assert.Equal(t, Unambiguous, MappingOutcome{Matches: []string{"W1"}}.Class())
	o := MappingOutcome{Matches: []string{"W1", "W2"}}
	assert.Equal(t, MultiMapped, o.Class())
	assert.Equal(t, "multi_mapped", o.Class().String())
	assert.Equal(t, "W1 W2", o.JoinedMatches())
}

func TestSortedDistinct(t *testing.T) {
	assert.Equal(t, []string{"W1", "W2", "W3"}, SortedDistinct([]string{"W3", "W1", "W3", "", "W2"}))
	assert.Nil(t, SortedDistinct(nil))
}
