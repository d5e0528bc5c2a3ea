// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the records, identifiers and configuration shared by
// every alignoa stage.
package types

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownEntityKind is returned when an entity kind string is not one of
// the six OpenAlex entity kinds.
var ErrUnknownEntityKind = errors.New("unknown entity kind")

// EntityKind is an OpenAlex entity kind; each kind lives in its own dump
// partition and has its own identifier field map.
type EntityKind string

const (
	KindWork        EntityKind = "work"
	KindSource      EntityKind = "source"
	KindAuthor      EntityKind = "author"
	KindPublisher   EntityKind = "publisher"
	KindInstitution EntityKind = "institution"
	KindFunder      EntityKind = "funder"
)

// EntityKinds lists every kind in dump order.
var EntityKinds = []EntityKind{KindWork, KindSource, KindAuthor, KindPublisher, KindInstitution, KindFunder}

// ParseEntityKind parses a kind name, accepting the plural dump directory
// names ("works", "sources") as well.
func ParseEntityKind(s string) (EntityKind, error) {
	k := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "s")
	for _, kind := range EntityKinds {
		if string(kind) == k {
			return kind, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEntityKind, s)
}

// Plural returns the plural form used for table and directory names.
func (k EntityKind) Plural() string {
	return string(k) + "s"
}

// keyPrefixes maps the leading letter of an OAID to its entity kind.
var keyPrefixes = map[byte]EntityKind{
	'W': KindWork,
	'S': KindSource,
	'A': KindAuthor,
	'P': KindPublisher,
	'I': KindInstitution,
	'F': KindFunder,
}

// KindOfKey infers the entity kind from an OAID such as "W123".
func KindOfKey(key string) (EntityKind, bool) {
	key = Normalize(SchemeOpenAlex, key)
	if key == "" {
		return "", false
	}
	k, ok := keyPrefixes[key[0]]
	return k, ok
}

// AgentRole is the Meta field a responsible agent was found in.
type AgentRole string

const (
	RoleAuthor    AgentRole = "author"
	RoleEditor    AgentRole = "editor"
	RolePublisher AgentRole = "publisher"
)

// AgentRoles lists the responsible-agent fields in Meta row order.
var AgentRoles = []AgentRole{RoleAuthor, RolePublisher, RoleEditor}

// InternalRecord is one bibliographic resource or agent from the Meta
// dump. It is immutable once extracted.
type InternalRecord struct {
	// Key is the OMID, including its "omid:" prefix.
	Key string `json:"omid" yaml:"omid"`

	// IDs holds the external identifiers, deduplicated.
	IDs []Identifier `json:"ids" yaml:"ids"`

	// ResourceType is the Meta resource type; empty when unspecified
	// (venues and agents carry none).
	ResourceType string `json:"type,omitempty" yaml:"type,omitempty"`

	// Role is set for responsible agents only.
	Role AgentRole `json:"ra_role,omitempty" yaml:"ra_role,omitempty"`

	// OpenAlexIDs holds "openalex:" tokens of a Meta record that is
	// already linked to OpenAlex. They are carried through the tables but
	// never looked up.
	OpenAlexIDs []Identifier `json:"openalex_ids,omitempty" yaml:"openalex_ids,omitempty"`
}

// HasOpenAlexID reports whether the record is already linked to an OAID.
func (r InternalRecord) HasOpenAlexID() bool {
	return len(r.OpenAlexIDs) > 0
}

// Tokens renders the record's identifiers as they are stored in the Meta
// tables: external identifiers first, then any OpenAlex links.
func (r InternalRecord) Tokens() string {
	all := make([]Identifier, 0, len(r.IDs)+len(r.OpenAlexIDs))
	all = append(all, r.IDs...)
	all = append(all, r.OpenAlexIDs...)
	return JoinTokens(all)
}

// ExternalRecord is one entity from the OpenAlex dump.
type ExternalRecord struct {
	// Key is the bare OAID (e.g. "W2741809807").
	Key string `json:"openalex_id" yaml:"openalex_id"`

	Kind EntityKind `json:"kind" yaml:"kind"`

	// IDs holds the qualifying identifiers for Kind.
	IDs []Identifier `json:"ids" yaml:"ids"`

	// Type is the OpenAlex type (works: "article", "erratum", ...).
	Type string `json:"type,omitempty" yaml:"type,omitempty"`

	// PrimaryLocationVersion is the work's primary_location.version
	// ("submittedVersion", "acceptedVersion", "publishedVersion").
	PrimaryLocationVersion string `json:"primloc_version,omitempty" yaml:"primloc_version,omitempty"`

	// ISSNs is the source's ISSN list as published, without the ISSN-L
	// fallback.
	ISSNs []string `json:"issns,omitempty" yaml:"issns,omitempty"`

	ISSNL string `json:"issn_l,omitempty" yaml:"issn_l,omitempty"`
}

// CandidateRow is the flattened unit of the candidate relation: one
// external identifier owned by one OpenAlex entity.
type CandidateRow struct {
	Identifier Identifier
	Key        string
}

// OutcomeClass is the partition an outcome belongs to.
type OutcomeClass int

const (
	NonMapped OutcomeClass = iota
	Unambiguous
	MultiMapped
)

func (c OutcomeClass) String() string {
	switch c {
	case Unambiguous:
		return "mapped"
	case MultiMapped:
		return "multi_mapped"
	default:
		return "non_mapped"
	}
}

// MappingOutcome is the result of resolving one InternalRecord.
type MappingOutcome struct {
	Key          string
	ResourceType string
	// Matches holds distinct OAIDs in ascending order.
	Matches []string
}

// Class reports which of the three disjoint relations the outcome belongs to.
func (o MappingOutcome) Class() OutcomeClass {
	switch len(o.Matches) {
	case 0:
		return NonMapped
	case 1:
		return Unambiguous
	default:
		return MultiMapped
	}
}

// JoinedMatches renders Matches space-separated.
func (o MappingOutcome) JoinedMatches() string {
	return strings.Join(o.Matches, " ")
}

// SortedDistinct returns the distinct members of keys in ascending order.
func SortedDistinct(keys []string) []string {
	if len(keys) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// FanOutCategory explains why one OMID resolved to several OAIDs.
type FanOutCategory string

const (
	SharedPidAcrossOutputs            FanOutCategory = "shared_pid_across_outputs"
	VersionedDoi                      FanOutCategory = "versioned_doi"
	RepositoryHostedPreprintPostprint FanOutCategory = "repository_hosted_preprint_postprint"
	PreprintServerDoi                 FanOutCategory = "preprint_server_doi"
	SamePublisherEditorialVariant     FanOutCategory = "same_publisher_editorial_variant"
	SharedIssnAcrossSources           FanOutCategory = "shared_issn_across_sources"
	Unclassified                      FanOutCategory = "unclassified"
)
