// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"regexp"
	"strings"
)

// Scheme names an identifier scheme. The token form of an identifier in
// both dumps and every intermediate table is "scheme:value".
type Scheme string

const (
	SchemeOMID     Scheme = "omid"
	SchemeDOI      Scheme = "doi"
	SchemePMID     Scheme = "pmid"
	SchemePMCID    Scheme = "pmcid"
	SchemeISSN     Scheme = "issn"
	SchemeWikidata Scheme = "wikidata"
	SchemeISBN     Scheme = "isbn"
	SchemeORCID    Scheme = "orcid"
	SchemeROR      Scheme = "ror"
	// SchemeOpenAlex marks a Meta record that already carries an OAID.
	SchemeOpenAlex Scheme = "openalex"
)

// knownSchemes is the closed set accepted by ParseScheme.
var knownSchemes = map[Scheme]bool{
	SchemeOMID:     true,
	SchemeDOI:      true,
	SchemePMID:     true,
	SchemePMCID:    true,
	SchemeISSN:     true,
	SchemeWikidata: true,
	SchemeISBN:     true,
	SchemeORCID:    true,
	SchemeROR:      true,
	SchemeOpenAlex: true,
}

// ParseScheme returns the scheme named s, or false if s is not one of the
// recognized schemes.
func ParseScheme(s string) (Scheme, bool) {
	sc := Scheme(strings.ToLower(strings.TrimSpace(s)))
	return sc, knownSchemes[sc]
}

// resolverPrefixes lists the URI forms stripped from values of each scheme.
// Longer prefixes come first so that "https://dx.doi.org/" wins over
// "dx.doi.org/".
var resolverPrefixes = map[Scheme][]string{
	SchemeDOI: {
		"https://doi.org/",
		"http://doi.org/",
		"https://dx.doi.org/",
		"http://dx.doi.org/",
		"doi.org/",
		"dx.doi.org/",
	},
	SchemePMID:  {"https://pubmed.ncbi.nlm.nih.gov/", "http://pubmed.ncbi.nlm.nih.gov/"},
	SchemePMCID: {"https://www.ncbi.nlm.nih.gov/pmc/articles/", "http://www.ncbi.nlm.nih.gov/pmc/articles/"},
	SchemeWikidata: {
		"https://www.wikidata.org/entity/",
		"http://www.wikidata.org/entity/",
	},
	SchemeORCID:    {"https://orcid.org/", "http://orcid.org/"},
	SchemeROR:      {"https://ror.org/", "http://ror.org/"},
	SchemeOpenAlex: {"https://openalex.org/", "http://openalex.org/"},
}

// Normalize canonicalizes value for the given scheme. DOIs are lower-cased;
// URI-resolver prefixes are stripped for every scheme that has one. ISSN
// and ISBN values are returned verbatim apart from surrounding whitespace.
// Normalize is idempotent.
func Normalize(scheme Scheme, value string) string {
	v := strings.TrimSpace(value)
	if scheme == SchemeDOI {
		v = strings.ToLower(v)
	}
	for _, p := range resolverPrefixes[scheme] {
		if strings.HasPrefix(v, p) {
			v = strings.TrimPrefix(v, p)
			break
		}
	}
	// PMC article URLs may end with a slash.
	if scheme == SchemePMCID {
		v = strings.TrimSuffix(v, "/")
	}
	return v
}

// Identifier is a normalized external identifier. Two identifiers are
// equal iff scheme and normalized value are equal, so the struct is usable
// as a map key.
type Identifier struct {
	Scheme Scheme `json:"scheme" yaml:"scheme"`
	Value  string `json:"value" yaml:"value"`
}

// NewIdentifier builds a normalized identifier.
func NewIdentifier(scheme Scheme, value string) Identifier {
	return Identifier{Scheme: scheme, Value: Normalize(scheme, value)}
}

// String renders the token form "scheme:value".
func (id Identifier) String() string {
	return string(id.Scheme) + ":" + id.Value
}

// IsZero reports whether id carries no value.
func (id Identifier) IsZero() bool {
	return id.Value == ""
}

// tokenPattern matches a "scheme:value" token. The scheme is alphabetic so
// that DOI values containing ':' are kept intact.
var tokenPattern = regexp.MustCompile(`^([A-Za-z]+):(\S+)$`)

// ParseToken parses one "scheme:value" token. It returns an error for
// tokens that are not in token form or carry an unrecognized scheme.
func ParseToken(token string) (Identifier, error) {
	m := tokenPattern.FindStringSubmatch(strings.TrimSpace(token))
	if m == nil {
		return Identifier{}, fmt.Errorf("malformed identifier token %q", token)
	}
	scheme, ok := ParseScheme(m[1])
	if !ok {
		return Identifier{}, fmt.Errorf("unrecognized identifier scheme %q", m[1])
	}
	id := NewIdentifier(scheme, m[2])
	if id.IsZero() {
		return Identifier{}, fmt.Errorf("empty identifier value in %q", token)
	}
	return id, nil
}

// ParseTokens parses a whitespace-separated token list, silently dropping
// tokens ParseToken rejects. Duplicates are removed; order of first
// occurrence is kept.
func ParseTokens(field string) []Identifier {
	var ids []Identifier
	seen := make(map[Identifier]bool)
	for _, tok := range strings.Fields(field) {
		id, err := ParseToken(tok)
		if err != nil || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// JoinTokens renders identifiers as a single-space-separated token list.
func JoinTokens(ids []Identifier) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, " ")
}

// DOIPrefix returns the registrant prefix of a normalized DOI ("10.1101"
// for "10.1101/2020.01.01.123"), or "" when the DOI has no slash.
func DOIPrefix(doi string) string {
	i := strings.Index(doi, "/")
	if i < 0 {
		return ""
	}
	return doi[:i]
}

// DOISuffix returns the part of a normalized DOI after its registrant
// prefix, including the leading slash.
func DOISuffix(doi string) string {
	i := strings.Index(doi, "/")
	if i < 0 {
		return ""
	}
	return doi[i:]
}
