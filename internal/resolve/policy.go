// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package resolve maps Meta records to OpenAlex entities by looking up
// their identifiers in the index under a precedence policy.
package resolve

import (
	"github.com/pdiddy/alignoa/internal/index"
	"github.com/pdiddy/alignoa/pkg/types"
)

// Route sends identifiers of one scheme to the index tables of one or more
// entity kinds.
type Route struct {
	Scheme types.Scheme
	Kinds  []types.EntityKind
}

// Tier is a set of routes consulted together.
type Tier []Route

func (t Tier) route(scheme types.Scheme) (Route, bool) {
	for _, r := range t {
		if r.Scheme == scheme {
			return r, true
		}
	}
	return Route{}, false
}

// Policy is an ordered list of tiers. Only the first tier that has at least
// one identifier on the record is consulted.
type Policy struct {
	Name  string
	Tiers []Tier
}

// BibliographicPolicy resolves bibliographic resources and venues. An ISSN
// is authoritative over everything else, a DOI over the remaining schemes.
func BibliographicPolicy() Policy {
	return Policy{
		Name: "bibliographic",
		Tiers: []Tier{
			{{Scheme: types.SchemeISSN, Kinds: []types.EntityKind{types.KindSource}}},
			{{Scheme: types.SchemeDOI, Kinds: []types.EntityKind{types.KindWork}}},
			{
				{Scheme: types.SchemePMID, Kinds: []types.EntityKind{types.KindWork}},
				{Scheme: types.SchemePMCID, Kinds: []types.EntityKind{types.KindWork}},
				{Scheme: types.SchemeWikidata, Kinds: []types.EntityKind{types.KindSource}},
			},
		},
	}
}

// AgentPolicy resolves responsible agents.
func AgentPolicy() Policy {
	orgs := []types.EntityKind{types.KindInstitution, types.KindPublisher, types.KindFunder}
	return Policy{
		Name: "agent",
		Tiers: []Tier{
			{{Scheme: types.SchemeORCID, Kinds: []types.EntityKind{types.KindAuthor}}},
			{{Scheme: types.SchemeROR, Kinds: orgs}},
			{{Scheme: types.SchemeWikidata, Kinds: orgs}},
		},
	}
}

// Tables returns the index tables the policy can consult, in tier order
// and without duplicates.
func (p Policy) Tables() []string {
	var out []string
	seen := make(map[string]bool)
	for _, tier := range p.Tiers {
		for _, r := range tier {
			for _, kind := range r.Kinds {
				name := index.TableName(kind, r.Scheme)
				if !seen[name] {
					seen[name] = true
					out = append(out, name)
				}
			}
		}
	}
	return out
}

// lookupPlan is the tier selected for a record and its identifiers in it.
type lookupPlan struct {
	tier int
	ids  []types.Identifier
}

// plan picks the first tier with an identifier present on ids. tier is -1
// when no tier applies.
func (p Policy) plan(ids []types.Identifier) lookupPlan {
	for i, tier := range p.Tiers {
		var hit []types.Identifier
		for _, id := range ids {
			if _, ok := tier.route(id.Scheme); ok {
				hit = append(hit, id)
			}
		}
		if len(hit) > 0 {
			return lookupPlan{tier: i, ids: hit}
		}
	}
	return lookupPlan{tier: -1}
}
