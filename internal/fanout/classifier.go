// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fanout

import (
	"context"
	"strings"

	"github.com/pdiddy/alignoa/pkg/types"
)

// Metadata is the read side of MetadataStore.
type Metadata interface {
	Work(ctx context.Context, key string) (WorkMeta, bool, error)
	Source(ctx context.Context, key string) (SourceMeta, bool, error)
}

// Verdict is the classification of one multi-mapped record.
type Verdict struct {
	Category types.FanOutCategory
	// SamePrefixPair marks an unclassified record whose two keys carry
	// DOIs from the same registrant and no editorial type.
	SamePrefixPair bool
}

// workState accumulates what earlier keys of a record contributed.
type workState struct {
	pids     map[string]bool
	prefixes map[string]bool
	// doiTypes holds the OpenAlex types of the keys that carry a DOI.
	doiTypes []string
	keys     int
}

// keyRule inspects one key of a Works record. Key rules run for every key
// in order; the first match decides the record.
type keyRule struct {
	category types.FanOutCategory
	match    func(t *Tables, st *workState, m WorkMeta) bool
}

// finalRule runs once, at the last key, when that key carries a DOI.
type finalRule struct {
	name  string
	match func(t *Tables, st *workState) (Verdict, bool)
}

var workKeyRules = []keyRule{
	{types.SharedPidAcrossOutputs, func(_ *Tables, st *workState, m WorkMeta) bool {
		for _, p := range m.pids() {
			if st.pids[p] {
				return true
			}
		}
		return false
	}},
	{types.VersionedDoi, func(t *Tables, _ *workState, m WorkMeta) bool {
		return m.DOI != "" && t.IsVersioned(m.DOI)
	}},
	{types.RepositoryHostedPreprintPostprint, func(t *Tables, _ *workState, m WorkMeta) bool {
		return m.DOI != "" && t.IsPreprintPrefix(types.DOIPrefix(m.DOI)) && t.PreprintVersions[m.PrimaryVersion]
	}},
	{types.PreprintServerDoi, func(t *Tables, _ *workState, m WorkMeta) bool {
		return m.DOI != "" && t.HasPreprintClue(types.DOISuffix(m.DOI))
	}},
}

var workFinalRules = []finalRule{
	{"same publisher editorial variant", func(t *Tables, st *workState) (Verdict, bool) {
		if len(st.prefixes) != 1 {
			return Verdict{}, false
		}
		for _, typ := range st.doiTypes {
			if t.EditorialTypes[typ] {
				return Verdict{Category: types.SamePublisherEditorialVariant}, true
			}
		}
		return Verdict{}, false
	}},
	{"same prefix pair", func(_ *Tables, st *workState) (Verdict, bool) {
		if len(st.prefixes) == 1 && st.keys == 2 {
			return Verdict{Category: types.Unclassified, SamePrefixPair: true}, true
		}
		return Verdict{}, false
	}},
}

// Classifier assigns a fan-out category to multi-mapped records.
type Classifier struct {
	tables *Tables
	meta   Metadata
}

// NewClassifier creates a classifier over meta. A nil tables uses
// DefaultTables.
func NewClassifier(tables *Tables, meta Metadata) *Classifier {
	if tables == nil {
		tables = DefaultTables()
	}
	return &Classifier{tables: tables, meta: meta}
}

// keysKind returns the entity kind shared by every key. mixed reports keys
// of more than one kind; kind is empty when any key is unrecognised.
func keysKind(keys []string) (kind types.EntityKind, mixed bool) {
	for _, key := range keys {
		k, known := types.KindOfKey(key)
		if !known {
			return "", false
		}
		if kind != "" && k != kind {
			return "", true
		}
		kind = k
	}
	return kind, false
}

// Classify classifies the OAIDs one record resolved to. ok is false for
// kinds that are not classified and for records whose keys span kinds.
func (c *Classifier) Classify(ctx context.Context, keys []string) (kind types.EntityKind, v Verdict, ok bool, err error) {
	kind, mixed := keysKind(keys)
	if mixed || kind == "" {
		return "", Verdict{}, false, nil
	}
	switch kind {
	case types.KindWork:
		v, err = c.classifyWorks(ctx, keys)
	case types.KindSource:
		v, err = c.classifySources(ctx, keys)
	default:
		return kind, Verdict{}, false, nil
	}
	return kind, v, err == nil, err
}

func (c *Classifier) classifyWorks(ctx context.Context, keys []string) (Verdict, error) {
	st := &workState{pids: make(map[string]bool), prefixes: make(map[string]bool), keys: len(keys)}

	for i, key := range keys {
		m, _, err := c.meta.Work(ctx, key)
		if err != nil {
			return Verdict{}, err
		}
		for _, r := range workKeyRules {
			if r.match(c.tables, st, m) {
				return Verdict{Category: r.category}, nil
			}
		}

		for _, p := range m.pids() {
			st.pids[p] = true
		}
		if m.DOI != "" {
			st.prefixes[types.DOIPrefix(m.DOI)] = true
			st.doiTypes = append(st.doiTypes, m.Type)
		}

		if i < len(keys)-1 || m.DOI == "" {
			continue
		}
		for _, r := range workFinalRules {
			if v, ok := r.match(c.tables, st); ok {
				return v, nil
			}
		}
	}
	return Verdict{Category: types.Unclassified}, nil
}

func (c *Classifier) classifySources(ctx context.Context, keys []string) (Verdict, error) {
	seen := make(map[string]bool)
	for _, key := range keys {
		m, _, err := c.meta.Source(ctx, key)
		if err != nil {
			return Verdict{}, err
		}
		// ISSN-L and Wikidata do not count as shared identifiers here.
		for _, issn := range m.ISSNs {
			if issn = strings.TrimSpace(issn); issn != "" && seen[issn] {
				return Verdict{Category: types.SharedIssnAcrossSources}, nil
			}
		}
		for _, issn := range m.ISSNs {
			seen[strings.TrimSpace(issn)] = true
		}
	}
	return Verdict{Category: types.Unclassified}, nil
}
