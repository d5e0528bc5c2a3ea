// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultPipelineConfig(t *testing.T) {
	cfg := DefaultPipelineConfig()
	assert.Equal(t, DefaultRowsPerFile, cfg.Output.RowsPerFile)
	assert.Equal(t, DefaultBatchSize, cfg.Index.BatchSize)
	assert.NoError(t, cfg.Require("meta.dump_zip", "index.db_path", "mapping.out_dir"))
}

func TestRequire(t *testing.T) {
	var cfg PipelineConfig
	err := cfg.Require("index.db_path", "mapping.out_dir")
	assert.ErrorIs(t, err, ErrMissingPath)
	assert.Contains(t, err.Error(), "index.db_path, mapping.out_dir")

	assert.Error(t, cfg.Require("index.nope"))
}
