// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resolve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/pdiddy/alignoa/internal/shard"
	"github.com/pdiddy/alignoa/pkg/types"
)

// Output directory names under the mapping output root.
const (
	MappedDir      = "mapped"
	MultiMappedDir = "multi_mapped"
	NonMappedDir   = "non_mapped"
)

// Lookuper answers exact-match identifier queries. *index.Store satisfies it.
type Lookuper interface {
	Lookup(ctx context.Context, kind types.EntityKind, id types.Identifier) ([]string, error)
}

// TableChecker reports whether an index table has been built. *index.Store
// satisfies it.
type TableChecker interface {
	TableExists(ctx context.Context, table string) (bool, error)
}

// ErrMissingTable is returned by CheckTables when the index lacks a table
// the policy consults.
var ErrMissingTable = errors.New("index table missing")

// CheckTables verifies that every table p can consult exists. Lookup treats
// a missing table as a miss, so running against an incomplete index would
// report records as non-mapped instead of failing.
func CheckTables(ctx context.Context, tc TableChecker, p Policy) error {
	var missing []string
	for _, table := range p.Tables() {
		ok, err := tc.TableExists(ctx, table)
		if err != nil {
			return fmt.Errorf("checking index table %s: %w", table, err)
		}
		if !ok {
			missing = append(missing, table)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w for %s policy: %s (run alignoa index first)", ErrMissingTable, p.Name, strings.Join(missing, ", "))
	}
	return nil
}

// Source streams Meta records into fn.
type Source func(ctx context.Context, fn func(types.InternalRecord) error) error

// TableSource reads records from Meta table shards (primary_ents, venues
// or resp_ags). Unparseable tokens are dropped, so a row whose tokens are
// all bad yields a record with no identifiers.
func TableSource(logger *slog.Logger, dirs ...string) Source {
	return func(ctx context.Context, fn func(types.InternalRecord) error) error {
		return shard.Walk(ctx, logger, func(r shard.Row) error {
			return fn(recordFromRow(r))
		}, dirs...)
	}
}

func recordFromRow(r shard.Row) types.InternalRecord {
	rec := types.InternalRecord{
		Key:          r.Get("omid"),
		ResourceType: r.Get("type"),
		Role:         types.AgentRole(r.Get("ra_role")),
	}
	for _, id := range types.ParseTokens(r.Get("ids")) {
		switch id.Scheme {
		case types.SchemeOpenAlex:
			rec.OpenAlexIDs = append(rec.OpenAlexIDs, id)
		case types.SchemeOMID:
		default:
			rec.IDs = append(rec.IDs, id)
		}
	}
	return rec
}

// Resolver looks records up in the index under a policy.
type Resolver struct {
	store  Lookuper
	policy Policy
	logger *slog.Logger
}

// New creates a resolver.
func New(store Lookuper, policy Policy, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resolver{store: store, policy: policy, logger: logger}
}

// Resolve returns the outcome for one record. Matches are the sorted,
// distinct OAIDs found for every identifier of the selected tier.
func (r *Resolver) Resolve(ctx context.Context, rec types.InternalRecord) (types.MappingOutcome, error) {
	out := types.MappingOutcome{Key: rec.Key, ResourceType: rec.ResourceType}
	plan := r.policy.plan(rec.IDs)
	if plan.tier < 0 {
		return out, nil
	}

	tier := r.policy.Tiers[plan.tier]
	var keys []string
	for _, id := range plan.ids {
		route, _ := tier.route(id.Scheme)
		for _, kind := range route.Kinds {
			found, err := r.store.Lookup(ctx, kind, id)
			if err != nil {
				return out, fmt.Errorf("looking up %s in %s: %w", id, kind.Plural(), err)
			}
			keys = append(keys, found...)
		}
	}
	out.Matches = types.SortedDistinct(keys)
	return out, nil
}

// RunOptions controls a resolution pass.
type RunOptions struct {
	// TypeField adds the resource type column to every output; venues
	// and agents are run without it.
	TypeField bool
	// AllRows keeps records already linked to OpenAlex.
	AllRows     bool
	RowsPerFile int
}

// Summary counts the outcomes of a pass.
type Summary struct {
	Read        int `json:"read" yaml:"read"`
	Skipped     int `json:"skipped" yaml:"skipped"`
	Mapped      int `json:"mapped" yaml:"mapped"`
	MultiMapped int `json:"multi_mapped" yaml:"multi_mapped"`
	NonMapped   int `json:"non_mapped" yaml:"non_mapped"`
}

// Print writes the pass totals.
func (s Summary) Print(w io.Writer) {
	fmt.Fprintf(w, "read: %d, mapped: %d, multi-mapped: %d, non-mapped: %d, skipped: %d\n",
		s.Read, s.Mapped, s.MultiMapped, s.NonMapped, s.Skipped)
}

type outputs struct {
	mapped, multi, non *shard.Writer
}

func openOutputs(outDir string, opts RunOptions) (*outputs, error) {
	matched := []string{"omid", "openalex_id"}
	unmatched := []string{"omid"}
	if opts.TypeField {
		matched = append(matched, "type")
		unmatched = append(unmatched, "type")
	}

	o := &outputs{}
	var err error
	if o.mapped, err = shard.NewWriter(filepath.Join(outDir, MappedDir), shard.Options{Columns: matched, RowsPerFile: opts.RowsPerFile}); err != nil {
		return nil, err
	}
	if o.multi, err = shard.NewWriter(filepath.Join(outDir, MultiMappedDir), shard.Options{Columns: matched, RowsPerFile: opts.RowsPerFile}); err != nil {
		return nil, err
	}
	if o.non, err = shard.NewWriter(filepath.Join(outDir, NonMappedDir), shard.Options{Columns: unmatched, RowsPerFile: opts.RowsPerFile}); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *outputs) close() error {
	return errors.Join(o.mapped.Close(), o.multi.Close(), o.non.Close())
}

// Run resolves every record of src and writes each outcome to exactly one
// of the mapped, multi-mapped and non-mapped relations under outDir. A
// lookup error aborts the pass; shards written so far are flushed.
func (r *Resolver) Run(ctx context.Context, src Source, outDir string, opts RunOptions) (summary Summary, err error) {
	out, err := openOutputs(outDir, opts)
	if err != nil {
		return summary, err
	}
	defer func() {
		if cerr := out.close(); err == nil {
			err = cerr
		}
	}()

	logger := r.logger.With("stage", "map", "policy", r.policy.Name)
	err = src(ctx, func(rec types.InternalRecord) error {
		summary.Read++
		if rec.Key == "" {
			logger.Warn("skipping row without omid")
			summary.Skipped++
			return nil
		}
		if rec.HasOpenAlexID() && !opts.AllRows {
			summary.Skipped++
			return nil
		}

		outcome, err := r.Resolve(ctx, rec)
		if err != nil {
			return err
		}
		return writeOutcome(out, outcome, opts.TypeField, &summary)
	})
	if err != nil {
		return summary, err
	}
	logger.Info("mapping complete", "read", summary.Read, "mapped", summary.Mapped,
		"multi_mapped", summary.MultiMapped, "non_mapped", summary.NonMapped)
	return summary, nil
}

func writeOutcome(out *outputs, o types.MappingOutcome, typeField bool, s *Summary) error {
	var (
		w      *shard.Writer
		values []string
	)
	switch o.Class() {
	case types.Unambiguous:
		w, values = out.mapped, []string{o.Key, o.JoinedMatches()}
		s.Mapped++
	case types.MultiMapped:
		w, values = out.multi, []string{o.Key, o.JoinedMatches()}
		s.MultiMapped++
	default:
		w, values = out.non, []string{o.Key}
		s.NonMapped++
	}
	if typeField {
		values = append(values, o.ResourceType)
	}
	return w.Write(values...)
}
