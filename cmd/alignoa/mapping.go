// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/alignoa/internal/dump"
	"github.com/pdiddy/alignoa/internal/index"
	"github.com/pdiddy/alignoa/internal/resolve"
)

var mapCmd = &cobra.Command{
	Use:   "map",
	Short: "Resolve Meta records against the identifier index",
	Long: `Map resolves every row of a Meta table against the index and writes
the outcome into mapped/, multi_mapped/ and non_mapped/ under
mapping.out_dir/<table>/. Bibliographic resources are mapped by default;
--venues and --agents select the other tables.`,
	RunE: runMap,
}

// mapTarget selects the Meta table, resolver policy and output shape of a
// map run.
type mapTarget struct {
	table     string
	policy    resolve.Policy
	typeField bool
}

func targetFromFlags(cmd *cobra.Command) mapTarget {
	venues, _ := cmd.Flags().GetBool("venues")
	agents, _ := cmd.Flags().GetBool("agents")
	switch {
	case venues:
		return mapTarget{table: dump.VenueTable, policy: resolve.BibliographicPolicy()}
	case agents:
		return mapTarget{table: dump.AgentTable, policy: resolve.AgentPolicy()}
	default:
		return mapTarget{table: dump.PrimaryTable, policy: resolve.BibliographicPolicy(), typeField: true}
	}
}

func runMap(cmd *cobra.Command, args []string) error {
	if err := cfg.Require("meta.tables_dir", "index.db_path", "mapping.out_dir"); err != nil {
		return err
	}
	target := targetFromFlags(cmd)

	store, err := index.Open(cfg.Index, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := resolve.CheckTables(cmd.Context(), store, target.policy); err != nil {
		return err
	}

	in := filepath.Join(cfg.Meta.TablesDir, target.table)
	out := filepath.Join(cfg.Mapping.OutDir, target.table)
	r := resolve.New(store, target.policy, logger.With("table", target.table))
	summary, err := r.Run(cmd.Context(), resolve.TableSource(logger, in), out, resolve.RunOptions{
		TypeField:   target.typeField,
		AllRows:     cfg.Mapping.AllRows,
		RowsPerFile: cfg.Output.RowsPerFile,
	})
	summary.Print(os.Stdout)
	return err
}

// existingDirs drops the directories that do not exist.
func existingDirs(dirs ...string) []string {
	var out []string
	for _, d := range dirs {
		if _, err := os.Stat(d); errors.Is(err, fs.ErrNotExist) {
			logger.Debug("directory missing", "dir", d)
			continue
		}
		out = append(out, d)
	}
	return out
}

func init() {
	mapCmd.Flags().Bool("venues", false, "map the venues table")
	mapCmd.Flags().Bool("agents", false, "map the responsible agents table")
	mapCmd.MarkFlagsMutuallyExclusive("venues", "agents")
	mapCmd.Flags().Bool("all-rows", false, "also resolve rows already linked to OpenAlex (default from config)")
	viper.BindPFlag("mapping.all_rows", mapCmd.Flags().Lookup("all-rows"))

	rootCmd.AddCommand(mapCmd)
}
