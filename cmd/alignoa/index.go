// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pdiddy/alignoa/internal/index"
	"github.com/pdiddy/alignoa/pkg/types"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build one identifier lookup table from candidate tables",
	Long: `Index loads the candidate rows of one entity kind and identifier scheme
into the SQLite index at index.db_path. An existing table is kept unless
--replace is set; a replaced table is swapped in only after the new one
is complete.`,
	RunE: runIndex,
}

func runIndex(cmd *cobra.Command, args []string) error {
	if err := cfg.Require("index.db_path", "openalex.tables_dir"); err != nil {
		return err
	}
	kindName, _ := cmd.Flags().GetString("kind")
	schemeName, _ := cmd.Flags().GetString("scheme")
	replace, _ := cmd.Flags().GetBool("replace")

	kind, err := types.ParseEntityKind(kindName)
	if err != nil {
		return err
	}
	scheme, ok := types.ParseScheme(schemeName)
	if !ok || !inCatalog(kind, scheme) {
		return fmt.Errorf("no lookup table for %s identifiers of %s", schemeName, kind.Plural())
	}

	store, err := index.Open(cfg.Index, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	dir := filepath.Join(cfg.OpenAlex.TablesDir, kind.Plural())
	summary, err := store.Build(cmd.Context(), kind, scheme, index.DirSource(logger, dir), replace)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "built %s: %d rows, %d ignored (replaced: %t)\n",
		summary.Table, summary.Rows, summary.Ignored, summary.Replaced)
	return nil
}

func inCatalog(kind types.EntityKind, scheme types.Scheme) bool {
	for _, spec := range index.Catalog {
		if spec.Kind == kind && spec.Scheme == scheme {
			return true
		}
	}
	return false
}

var indexAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Build every lookup table that has candidates",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Require("index.db_path", "openalex.tables_dir"); err != nil {
			return err
		}
		replace, _ := cmd.Flags().GetBool("replace")
		store, err := index.Open(cfg.Index, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		_, err = store.BuildAll(cmd.Context(), cfg.OpenAlex.TablesDir, replace, os.Stdout)
		return err
	},
}

var indexTablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List the lookup tables and their row counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Require("index.db_path"); err != nil {
			return err
		}
		store, err := index.Open(cfg.Index, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		tables, err := store.Tables(cmd.Context())
		if err != nil {
			return err
		}
		if len(tables) == 0 {
			fmt.Println("No tables built.")
			return nil
		}
		for _, t := range tables {
			fmt.Fprintf(os.Stdout, "%-28s  %d\n", t.Name, t.Rows)
		}
		return nil
	},
}

func init() {
	indexCmd.Flags().String("kind", "", "entity kind (work, source, author, publisher, institution, funder)")
	indexCmd.Flags().String("scheme", "", "identifier scheme (doi, pmid, pmcid, issn, wikidata, orcid, ror)")
	indexCmd.Flags().Bool("replace", false, "replace an existing table")
	indexCmd.MarkFlagRequired("kind")
	indexCmd.MarkFlagRequired("scheme")

	indexAllCmd.Flags().Bool("replace", false, "replace existing tables")

	indexCmd.AddCommand(indexAllCmd)
	indexCmd.AddCommand(indexTablesCmd)
	rootCmd.AddCommand(indexCmd)
}
