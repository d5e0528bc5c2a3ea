package types

import (
	"errors"
	"fmt"
	"strings"
)

// Defaults applied by PipelineConfig.ApplyDefaults.
const (
	DefaultRowsPerFile    = 10000
	DefaultBatchSize      = 50000
	DefaultMaxRecordBytes = 16 << 20
	DefaultWorkers        = 4
)

// ErrMissingPath is wrapped by Validate errors for required paths.
var ErrMissingPath = errors.New("missing required path")

// OutputConfig holds settings shared by every stage that writes sharded
// relations.
type OutputConfig struct {
	// RowsPerFile is the shard size of every output relation (default 10000).
	RowsPerFile int `json:"rows_per_file" yaml:"rows_per_file" mapstructure:"rows_per_file"`

	// MaxRecordBytes bounds a single dump line or CSV field; larger records
	// are skipped as malformed.
	MaxRecordBytes int `json:"max_record_bytes" yaml:"max_record_bytes" mapstructure:"max_record_bytes"`
}

// MetaConfig holds settings for extracting the Meta CSV dump.
type MetaConfig struct {
	// DumpZip is the zip archive holding the Meta CSV dump.
	DumpZip string `json:"dump_zip" yaml:"dump_zip" mapstructure:"dump_zip"`

	// TablesDir receives primary_ents/, venues/, resp_ags/, non_mappable/.
	TablesDir string `json:"tables_dir" yaml:"tables_dir" mapstructure:"tables_dir"`

	// AllRows processes rows already linked to OpenAlex when true.
	AllRows bool `json:"all_rows" yaml:"all_rows" mapstructure:"all_rows"`
}

// OpenAlexConfig holds settings for extracting the OpenAlex JSON-Lines dump.
type OpenAlexConfig struct {
	// DumpDir is the root of the OpenAlex snapshot (contains works/,
	// sources/, authors/, ...).
	DumpDir string `json:"dump_dir" yaml:"dump_dir" mapstructure:"dump_dir"`

	// TablesDir receives one candidate relation directory per entity kind.
	TablesDir string `json:"tables_dir" yaml:"tables_dir" mapstructure:"tables_dir"`

	// Workers bounds the number of dump files processed concurrently.
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers"`
}

// IndexConfig holds settings for the identifier index.
type IndexConfig struct {
	// DBPath is the SQLite database holding every lookup table.
	DBPath string `json:"db_path" yaml:"db_path" mapstructure:"db_path"`

	// BatchSize is the number of rows inserted per transaction.
	BatchSize int `json:"batch_size" yaml:"batch_size" mapstructure:"batch_size"`
}

// MappingConfig holds settings for the resolver.
type MappingConfig struct {
	// OutDir receives mapped/, multi_mapped/, non_mapped/ per input table.
	OutDir string `json:"out_dir" yaml:"out_dir" mapstructure:"out_dir"`

	// AllRows resolves rows already linked to OpenAlex when true.
	AllRows bool `json:"all_rows" yaml:"all_rows" mapstructure:"all_rows"`
}

// FanOutConfig holds settings for the fan-out classifier.
type FanOutConfig struct {
	// MetadataDB is the SQLite database holding per-OAID metadata.
	MetadataDB string `json:"metadata_db" yaml:"metadata_db" mapstructure:"metadata_db"`

	// ReportPath is where the category counts are written (.yaml or .json).
	ReportPath string `json:"report_path" yaml:"report_path" mapstructure:"report_path"`
}

// InvertedConfig holds settings for the inverted-duplicate finder.
type InvertedConfig struct {
	OutDir string `json:"out_dir" yaml:"out_dir" mapstructure:"out_dir"`
}

// ProvenanceConfig holds settings for provenance analysis.
type ProvenanceConfig struct {
	// RDFArchive is the Meta RDF dump archive holding prov/se.zip members.
	RDFArchive string `json:"rdf_archive" yaml:"rdf_archive" mapstructure:"rdf_archive"`

	// DBPath is the SQLite provenance store.
	DBPath string `json:"db_path" yaml:"db_path" mapstructure:"db_path"`

	// ReportPath is where the cross-tabulation is written (.yaml or .json).
	ReportPath string `json:"report_path" yaml:"report_path" mapstructure:"report_path"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Format is text or json; empty picks text on a terminal, json otherwise.
	Format string `json:"format" yaml:"format" mapstructure:"format"`
}

// PipelineConfig groups all stage configurations.
type PipelineConfig struct {
	Meta       MetaConfig       `json:"meta" yaml:"meta" mapstructure:"meta"`
	OpenAlex   OpenAlexConfig   `json:"openalex" yaml:"openalex" mapstructure:"openalex"`
	Index      IndexConfig      `json:"index" yaml:"index" mapstructure:"index"`
	Mapping    MappingConfig    `json:"mapping" yaml:"mapping" mapstructure:"mapping"`
	FanOut     FanOutConfig     `json:"fanout" yaml:"fanout" mapstructure:"fanout"`
	Inverted   InvertedConfig   `json:"inverted" yaml:"inverted" mapstructure:"inverted"`
	Provenance ProvenanceConfig `json:"provenance" yaml:"provenance" mapstructure:"provenance"`
	Output     OutputConfig     `json:"output" yaml:"output" mapstructure:"output"`
	Log        LogConfig        `json:"log" yaml:"log" mapstructure:"log"`
}

// DefaultPipelineConfig returns a configuration rooted at the working
// directory, as written by "alignoa config init".
func DefaultPipelineConfig() PipelineConfig {
	cfg := PipelineConfig{
		Meta: MetaConfig{
			DumpZip:   "dumps/meta/csv.zip",
			TablesDir: "work/meta_tables",
			AllRows:   true,
		},
		OpenAlex: OpenAlexConfig{
			DumpDir:   "dumps/openalex/data",
			TablesDir: "work/openalex_tables",
		},
		Index:    IndexConfig{DBPath: "work/index.db"},
		Mapping:  MappingConfig{OutDir: "out/mapping", AllRows: true},
		FanOut:   FanOutConfig{MetadataDB: "work/fanout.db", ReportPath: "out/fanout.yaml"},
		Inverted: InvertedConfig{OutDir: "out/inverted"},
		Provenance: ProvenanceConfig{
			RDFArchive: "dumps/meta/rdf.zip",
			DBPath:     "work/provenance.db",
			ReportPath: "out/provenance.yaml",
		},
		Log: LogConfig{Level: "info"},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero numeric settings.
func (c *PipelineConfig) ApplyDefaults() {
	if c.Output.RowsPerFile <= 0 {
		c.Output.RowsPerFile = DefaultRowsPerFile
	}
	if c.Output.MaxRecordBytes <= 0 {
		c.Output.MaxRecordBytes = DefaultMaxRecordBytes
	}
	if c.Index.BatchSize <= 0 {
		c.Index.BatchSize = DefaultBatchSize
	}
	if c.OpenAlex.Workers <= 0 {
		c.OpenAlex.Workers = DefaultWorkers
	}
}

// Require checks that every named path is set. Names are given as
// "section.key" and resolved against c.
func (c PipelineConfig) Require(names ...string) error {
	paths := map[string]string{
		"meta.dump_zip":          c.Meta.DumpZip,
		"meta.tables_dir":        c.Meta.TablesDir,
		"openalex.dump_dir":      c.OpenAlex.DumpDir,
		"openalex.tables_dir":    c.OpenAlex.TablesDir,
		"index.db_path":          c.Index.DBPath,
		"mapping.out_dir":        c.Mapping.OutDir,
		"fanout.metadata_db":     c.FanOut.MetadataDB,
		"fanout.report_path":     c.FanOut.ReportPath,
		"inverted.out_dir":       c.Inverted.OutDir,
		"provenance.rdf_archive": c.Provenance.RDFArchive,
		"provenance.db_path":     c.Provenance.DBPath,
		"provenance.report_path": c.Provenance.ReportPath,
	}
	var missing []string
	for _, n := range names {
		v, known := paths[n]
		if !known {
			return fmt.Errorf("unknown config key %q", n)
		}
		if strings.TrimSpace(v) == "" {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingPath, strings.Join(missing, ", "))
	}
	return nil
}
