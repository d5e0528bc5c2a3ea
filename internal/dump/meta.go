// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package dump extracts identifier records from the Meta CSV dump and the
// OpenAlex JSON-Lines dump, and writes the candidate relations the index
// and the resolver consume.
package dump

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pdiddy/alignoa/pkg/types"
)

// ErrMalformedBrackets is returned when a venue or agent entity does not
// follow the "<display text> [<tokens>]" layout.
var ErrMalformedBrackets = errors.New("malformed identifier brackets")

// MetaRow holds the fields of one Meta dump row that extraction reads.
type MetaRow struct {
	ID        string
	Type      string
	Venue     string
	Author    string
	Publisher string
	Editor    string
}

// Field returns the responsible-agent field for role.
func (r MetaRow) Field(role types.AgentRole) string {
	switch role {
	case types.RoleAuthor:
		return r.Author
	case types.RoleEditor:
		return r.Editor
	case types.RolePublisher:
		return r.Publisher
	}
	return ""
}

// Extraction reports what extraction found for one entity.
type Extraction int

const (
	// Extracted means at least one supported external identifier survived.
	Extracted Extraction = iota
	// NoSupportedID means the entity has external identifiers, none of
	// which the resolver can use (e.g. ISBN only).
	NoSupportedID
	// OMIDOnly means the entity carries no external identifier at all.
	OMIDOnly
	// NoKey means no omid token was found; the entity cannot be reported.
	NoKey
	// Empty means the field was blank.
	Empty
)

func (e Extraction) String() string {
	switch e {
	case Extracted:
		return "extracted"
	case NoSupportedID:
		return "no_supported_id"
	case OMIDOnly:
		return "omid_only"
	case NoKey:
		return "no_key"
	default:
		return "empty"
	}
}

// Mappable reports whether the entity can be handed to the resolver.
func (e Extraction) Mappable() bool { return e == Extracted }

// BibliographicSchemes are the schemes a bibliographic resource can be
// matched on.
var BibliographicSchemes = map[types.Scheme]bool{
	types.SchemeDOI:      true,
	types.SchemePMID:     true,
	types.SchemePMCID:    true,
	types.SchemeISSN:     true,
	types.SchemeWikidata: true,
}

// AgentSchemes are the schemes a responsible agent can be matched on.
var AgentSchemes = map[types.Scheme]bool{
	types.SchemeORCID:    true,
	types.SchemeROR:      true,
	types.SchemeWikidata: true,
}

// partition splits a token field into the record's own key and its
// supported external identifiers. Unrecognized tokens are dropped.
func partition(field string, supported map[types.Scheme]bool) (rec types.InternalRecord, other int) {
	for _, id := range types.ParseTokens(field) {
		switch {
		case id.Scheme == types.SchemeOMID:
			rec.Key = id.String()
		case id.Scheme == types.SchemeOpenAlex:
			rec.OpenAlexIDs = append(rec.OpenAlexIDs, id)
		case supported[id.Scheme]:
			rec.IDs = append(rec.IDs, id)
		default:
			other++
		}
	}
	return rec, other
}

func classify(rec types.InternalRecord, other int) Extraction {
	switch {
	case rec.Key == "":
		return NoKey
	case len(rec.IDs) > 0:
		return Extracted
	case other > 0:
		return NoSupportedID
	default:
		return OMIDOnly
	}
}

// ExtractPrimary extracts the entity described by the row's id field.
func ExtractPrimary(row MetaRow) (types.InternalRecord, Extraction) {
	if strings.TrimSpace(row.ID) == "" {
		return types.InternalRecord{}, Empty
	}
	rec, other := partition(row.ID, BibliographicSchemes)
	rec.ResourceType = strings.TrimSpace(row.Type)
	return rec, classify(rec, other)
}

// bracketed returns the token list inside the last "[...]" group of s.
func bracketed(s string) (string, error) {
	start := strings.LastIndex(s, "[")
	if start < 0 {
		return "", fmt.Errorf("%w: no '[' in %q", ErrMalformedBrackets, s)
	}
	end := strings.Index(s[start:], "]")
	if end < 0 {
		return "", fmt.Errorf("%w: no ']' in %q", ErrMalformedBrackets, s)
	}
	return s[start+1 : start+end], nil
}

// ExtractVenue extracts the entity described by the row's venue field.
func ExtractVenue(row MetaRow) (types.InternalRecord, Extraction, error) {
	v := strings.TrimSpace(row.Venue)
	if v == "" {
		return types.InternalRecord{}, Empty, nil
	}
	tokens, err := bracketed(v)
	if err != nil {
		return types.InternalRecord{}, Empty, err
	}
	rec, other := partition(tokens, BibliographicSchemes)
	return rec, classify(rec, other), nil
}

// ExtractAgents extracts every responsible agent in the field for role.
// Author and editor fields hold several entities separated by "; ";
// the publisher field holds one. Only agents with a supported identifier
// are returned; malformed entities are reported in errs and skipped.
func ExtractAgents(row MetaRow, role types.AgentRole) (recs []types.InternalRecord, errs []error) {
	field := strings.TrimSpace(row.Field(role))
	if field == "" {
		return nil, nil
	}

	entities := []string{field}
	if role != types.RolePublisher {
		entities = strings.Split(field, "; ")
	}

	for _, ent := range entities {
		ent = strings.TrimSpace(ent)
		if ent == "" {
			continue
		}
		tokens, err := bracketed(ent)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s entity: %w", role, err))
			continue
		}
		rec, other := partition(tokens, AgentSchemes)
		if classify(rec, other) != Extracted {
			continue
		}
		rec.Role = role
		recs = append(recs, rec)
	}
	return recs, errs
}

// metaRowFromFields builds a MetaRow from a header-indexed CSV record.
func metaRowFromFields(header map[string]int, rec []string) MetaRow {
	get := func(col string) string {
		i, ok := header[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}
	return MetaRow{
		ID:        get("id"),
		Type:      get("type"),
		Venue:     get("venue"),
		Author:    get("author"),
		Publisher: get("publisher"),
		Editor:    get("editor"),
	}
}
