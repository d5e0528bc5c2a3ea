// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/alignoa/internal/dump"
	"github.com/pdiddy/alignoa/pkg/types"
)

var metaCmd = &cobra.Command{
	Use:   "meta",
	Short: "Extract identifier tables from the Meta CSV dump",
	Long: `Meta reads every CSV member of the Meta dump archive and writes the
primary_ents, venues, resp_ags and non_mappable tables under
meta.tables_dir. Rows already linked to OpenAlex are skipped unless
--all-rows is set.`,
	RunE: runMeta,
}

func runMeta(cmd *cobra.Command, args []string) error {
	if err := cfg.Require("meta.dump_zip", "meta.tables_dir"); err != nil {
		return err
	}
	opts := dump.Options{
		RowsPerFile:    cfg.Output.RowsPerFile,
		MaxRecordBytes: cfg.Output.MaxRecordBytes,
		AllRows:        cfg.Meta.AllRows,
		Logger:         logger,
	}
	summary, err := dump.BuildMetaTables(cmd.Context(), opts, cfg.Meta.DumpZip, cfg.Meta.TablesDir)
	summary.Print(os.Stdout)
	return err
}

var openalexCmd = &cobra.Command{
	Use:   "openalex",
	Short: "Extract candidate tables from the OpenAlex dump",
	Long: `OpenAlex reads the JSON-Lines dump of one entity kind (or all of them)
and writes one (supported_id, openalex_id) row per qualifying identifier
under openalex.tables_dir/<kind>/. Dump files are processed in parallel.`,
	RunE: runOpenAlex,
}

func runOpenAlex(cmd *cobra.Command, args []string) error {
	if err := cfg.Require("openalex.dump_dir", "openalex.tables_dir"); err != nil {
		return err
	}
	kinds, err := kindsFromFlag(cmd)
	if err != nil {
		return err
	}
	opts := dump.Options{
		RowsPerFile:    cfg.Output.RowsPerFile,
		MaxRecordBytes: cfg.Output.MaxRecordBytes,
		Workers:        cfg.OpenAlex.Workers,
		Logger:         logger,
	}
	for _, kind := range kinds {
		in := filepath.Join(cfg.OpenAlex.DumpDir, kind.Plural())
		if _, err := os.Stat(in); os.IsNotExist(err) {
			fmt.Fprintf(os.Stdout, "skipped %s: no dump at %s\n", kind.Plural(), in)
			continue
		}
		out := filepath.Join(cfg.OpenAlex.TablesDir, kind.Plural())
		summary, err := dump.BuildCandidates(cmd.Context(), opts, kind, in, out)
		summary.Print(os.Stdout)
		if err != nil {
			return err
		}
	}
	return nil
}

// kindsFromFlag returns the kinds named by --kind; "all" selects every
// kind.
func kindsFromFlag(cmd *cobra.Command) ([]types.EntityKind, error) {
	name, _ := cmd.Flags().GetString("kind")
	if name == "" || name == "all" {
		return types.EntityKinds, nil
	}
	kind, err := types.ParseEntityKind(name)
	if err != nil {
		return nil, err
	}
	return []types.EntityKind{kind}, nil
}

func init() {
	metaCmd.Flags().Bool("all-rows", false, "process rows already linked to OpenAlex (default from config)")
	viper.BindPFlag("meta.all_rows", metaCmd.Flags().Lookup("all-rows"))

	openalexCmd.Flags().String("kind", "all", "entity kind: work, source, author, publisher, institution, funder, or all")
	openalexCmd.Flags().Int("workers", 0, "dump files processed concurrently (default from config)")
	viper.BindPFlag("openalex.workers", openalexCmd.Flags().Lookup("workers"))

	rootCmd.AddCommand(metaCmd)
	rootCmd.AddCommand(openalexCmd)
}
