// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pdiddy/alignoa/internal/analytics"
	"github.com/pdiddy/alignoa/internal/dump"
	"github.com/pdiddy/alignoa/internal/fanout"
	"github.com/pdiddy/alignoa/internal/inverted"
	"github.com/pdiddy/alignoa/internal/resolve"
	"github.com/pdiddy/alignoa/pkg/types"
)

// mappingDir returns the directory of one outcome relation of a table.
func mappingDir(table, outcome string) string {
	return filepath.Join(cfg.Mapping.OutDir, table, outcome)
}

// --- fanout ---

var fanoutCmd = &cobra.Command{
	Use:   "fanout",
	Short: "Classify why records resolved to several OpenAlex entities",
	Long: `Fanout loads the metadata of every Work and Source named in the
multi_mapped relations into fanout.metadata_db, then assigns each
multi-mapped record a category and writes the counts to
fanout.report_path. Use --skip-load to reuse an existing metadata store.`,
	RunE: runFanOut,
}

func runFanOut(cmd *cobra.Command, args []string) error {
	if err := cfg.Require("mapping.out_dir", "fanout.metadata_db", "fanout.report_path"); err != nil {
		return err
	}
	ctx := cmd.Context()
	dirs := existingDirs(
		mappingDir(dump.PrimaryTable, resolve.MultiMappedDir),
		mappingDir(dump.VenueTable, resolve.MultiMappedDir),
	)
	if len(dirs) == 0 {
		return fmt.Errorf("no multi_mapped relation under %s", cfg.Mapping.OutDir)
	}

	store, err := fanout.OpenMetadataStore(cfg.FanOut.MetadataDB, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if skip, _ := cmd.Flags().GetBool("skip-load"); !skip {
		if err := cfg.Require("openalex.dump_dir"); err != nil {
			return err
		}
		works, sources, err := fanout.CollectKeys(ctx, logger, dirs...)
		if err != nil {
			return err
		}
		for kind, keep := range map[types.EntityKind]map[string]bool{types.KindWork: works, types.KindSource: sources} {
			if len(keep) == 0 {
				continue
			}
			sum, err := store.Load(ctx, kind, filepath.Join(cfg.OpenAlex.DumpDir, kind.Plural()), keep, cfg.Output.MaxRecordBytes)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "loaded %s: %d of %d records\n", kind.Plural(), sum.Stored, sum.Read)
		}
	}

	report, err := fanout.Run(ctx, logger, fanout.NewClassifier(nil, store), dirs...)
	if err != nil {
		return err
	}
	fmt.Println(analytics.RenderFanOut(report))
	fmt.Fprintf(os.Stdout, "rows: %d, classified works: %d, classified sources: %d, skipped: %d (mixed kinds: %d)\n",
		report.Rows, report.Total(types.KindWork), report.Total(types.KindSource), report.Skipped, report.MixedKinds)
	if err := report.Write(cfg.FanOut.ReportPath); err != nil {
		return err
	}
	fmt.Println("Report written to", cfg.FanOut.ReportPath)
	return nil
}

// --- inverted ---

var invertedCmd = &cobra.Command{
	Use:   "inverted",
	Short: "Find OpenAlex entities matched by several Meta records",
	Long: `Inverted reads the mapped and multi_mapped relations of the
bibliographic resources and writes every (omid, openalex_id) pair whose
OAID was matched by two or more OMIDs to inverted.out_dir.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Require("mapping.out_dir", "inverted.out_dir"); err != nil {
			return err
		}
		table, _ := cmd.Flags().GetString("table")
		dirs := existingDirs(
			mappingDir(table, resolve.MappedDir),
			mappingDir(table, resolve.MultiMappedDir),
		)
		groups, err := inverted.Find(cmd.Context(), logger, dirs...)
		if err != nil {
			return err
		}
		n, err := inverted.Write(groups, cfg.Inverted.OutDir, cfg.Output.RowsPerFile)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "groups: %d, rows: %d\n", len(groups), n)
		return nil
	},
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show mapping coverage per relation and resource type",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Require("mapping.out_dir"); err != nil {
			return err
		}
		table, _ := cmd.Flags().GetString("table")
		relations := []analytics.Relation{
			{Name: resolve.MappedDir, Dir: mappingDir(table, resolve.MappedDir)},
			{Name: resolve.MultiMappedDir, Dir: mappingDir(table, resolve.MultiMappedDir)},
			{Name: resolve.NonMappedDir, Dir: mappingDir(table, resolve.NonMappedDir)},
		}
		if table == dump.PrimaryTable && cfg.Meta.TablesDir != "" {
			relations = append(relations, analytics.Relation{
				Name: dump.NonMappableTable,
				Dir:  filepath.Join(cfg.Meta.TablesDir, dump.NonMappableTable),
			})
		}
		report, err := analytics.Coverage(cmd.Context(), logger, relations...)
		if err != nil {
			return err
		}
		fmt.Println(report.Render())
		if out, _ := cmd.Flags().GetString("output"); out != "" {
			if err := report.Write(out); err != nil {
				return err
			}
			fmt.Println("Report written to", out)
		}
		return nil
	},
}

// --- provenance ---

var provenanceCmd = &cobra.Command{
	Use:   "provenance",
	Short: "Cross-tabulate unmapped records by primary source",
	Long: `Provenance loads the primary sources of every bibliographic resource
from the Meta RDF archive into provenance.db_path, then counts the
non_mapped and non_mappable records by resource type and source. Use
--skip-load to reuse an existing provenance store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Require("provenance.db_path", "provenance.report_path", "mapping.out_dir"); err != nil {
			return err
		}
		ctx := cmd.Context()
		store, err := analytics.OpenProvenanceStore(cfg.Provenance.DBPath, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		if skip, _ := cmd.Flags().GetBool("skip-load"); !skip {
			if err := cfg.Require("provenance.rdf_archive"); err != nil {
				return err
			}
			sum, err := store.Load(ctx, cfg.Provenance.RDFArchive)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "loaded provenance: %d stored, %d without source\n", sum.Stored, sum.NoSource)
		}

		dirs := existingDirs(
			mappingDir(dump.PrimaryTable, resolve.NonMappedDir),
			filepath.Join(cfg.Meta.TablesDir, dump.NonMappableTable),
		)
		report, err := store.Analyse(ctx, dirs...)
		if err != nil {
			return err
		}
		fmt.Println(report.Render())
		fmt.Fprintf(os.Stdout, "rows: %d, without provenance: %d\n", report.Rows, report.Missing)
		if err := report.Write(cfg.Provenance.ReportPath); err != nil {
			return err
		}
		fmt.Println("Report written to", cfg.Provenance.ReportPath)
		return nil
	},
}

func init() {
	fanoutCmd.Flags().Bool("skip-load", false, "reuse the metadata already in fanout.metadata_db")
	invertedCmd.Flags().String("table", dump.PrimaryTable, "Meta table whose mapping is inverted")
	statsCmd.Flags().String("table", dump.PrimaryTable, "Meta table whose mapping is counted")
	statsCmd.Flags().StringP("output", "o", "", "also write the counts to this file (.yaml or .json)")
	provenanceCmd.Flags().Bool("skip-load", false, "reuse the provenance already in provenance.db_path")

	rootCmd.AddCommand(fanoutCmd)
	rootCmd.AddCommand(invertedCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(provenanceCmd)
}
