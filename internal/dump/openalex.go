// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package dump

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pdiddy/alignoa/pkg/types"
)

// OpenAlex dump JSON structures. Only the fields extraction reads are
// declared; everything else in the entity is ignored by the decoder.
type openAlexEntity struct {
	ID              string                     `json:"id"`
	Type            string                     `json:"type"`
	IDs             map[string]json.RawMessage `json:"ids"`
	ISSN            []string                   `json:"issn"`
	ISSNL           string                     `json:"issn_l"`
	PrimaryLocation *openAlexLocation          `json:"primary_location"`
}

type openAlexLocation struct {
	Version string `json:"version"`
}

// idString returns ids[name] when it holds a JSON string.
func (e openAlexEntity) idString(name string) string {
	raw, ok := e.IDs[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// idList returns ids[name] when it holds a JSON list of strings.
func (e openAlexEntity) idList(name string) []string {
	raw, ok := e.IDs[name]
	if !ok {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil
	}
	return list
}

// idField binds an OpenAlex ids key to the scheme its value belongs to.
type idField struct {
	name   string
	scheme types.Scheme
}

// qualifyingFields lists, per entity kind, the ids keys that become
// candidate rows. Sources are handled separately because of ISSN lists.
var qualifyingFields = map[types.EntityKind][]idField{
	types.KindWork: {
		{"doi", types.SchemeDOI},
		{"pmid", types.SchemePMID},
		{"pmcid", types.SchemePMCID},
	},
	types.KindSource: {
		{"wikidata", types.SchemeWikidata},
	},
	types.KindAuthor: {
		{"orcid", types.SchemeORCID},
	},
	types.KindInstitution: {
		{"ror", types.SchemeROR},
		{"wikidata", types.SchemeWikidata},
	},
	types.KindPublisher: {
		{"ror", types.SchemeROR},
		{"wikidata", types.SchemeWikidata},
	},
	types.KindFunder: {
		{"ror", types.SchemeROR},
		{"wikidata", types.SchemeWikidata},
	},
}

// Extractor turns one decoded OpenAlex entity into an ExternalRecord. The
// boolean is false when the entity has no OAID.
type Extractor func(raw []byte) (types.ExternalRecord, bool, error)

// OpenAlexExtractor returns the extractor for kind.
func OpenAlexExtractor(kind types.EntityKind) (Extractor, error) {
	fields, ok := qualifyingFields[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownEntityKind, kind)
	}
	return func(raw []byte) (types.ExternalRecord, bool, error) {
		var ent openAlexEntity
		if err := json.Unmarshal(raw, &ent); err != nil {
			return types.ExternalRecord{}, false, fmt.Errorf("decoding %s entity: %w", kind, err)
		}
		rec, ok := extractEntity(kind, fields, ent)
		return rec, ok, nil
	}, nil
}

func extractEntity(kind types.EntityKind, fields []idField, ent openAlexEntity) (types.ExternalRecord, bool) {
	key := types.Normalize(types.SchemeOpenAlex, ent.ID)
	if key == "" {
		return types.ExternalRecord{}, false
	}
	rec := types.ExternalRecord{Key: key, Kind: kind}
	seen := make(map[types.Identifier]bool)
	add := func(scheme types.Scheme, value string) {
		id := types.NewIdentifier(scheme, value)
		if id.IsZero() || seen[id] {
			return
		}
		seen[id] = true
		rec.IDs = append(rec.IDs, id)
	}

	switch kind {
	case types.KindWork:
		rec.Type = ent.Type
		if ent.PrimaryLocation != nil {
			rec.PrimaryLocationVersion = ent.PrimaryLocation.Version
		}
	case types.KindSource:
		rec.ISSNs = ent.idList("issn")
		if len(rec.ISSNs) == 0 {
			rec.ISSNs = ent.ISSN
		}
		rec.ISSNL = ent.idString("issn_l")
		if rec.ISSNL == "" {
			rec.ISSNL = ent.ISSNL
		}
		for _, issn := range rec.ISSNs {
			add(types.SchemeISSN, issn)
		}
		// ISSN-L only stands in when the source lists no ISSN at all.
		if len(rec.ISSNs) == 0 && strings.TrimSpace(rec.ISSNL) != "" {
			add(types.SchemeISSN, rec.ISSNL)
		}
	}

	for _, f := range fields {
		add(f.scheme, ent.idString(f.name))
	}
	return rec, true
}
