// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the alignoa CLI, which links
// OpenCitations Meta records to OpenAlex entities.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/alignoa/internal/logging"
	"github.com/pdiddy/alignoa/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	// cfg is the pipeline configuration resolved before every command.
	cfg types.PipelineConfig
	// logger is built from cfg.Log once the configuration is loaded.
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "alignoa",
	Short: "Map OpenCitations Meta records to OpenAlex entities",
	Long: `alignoa links OpenCitations Meta records (OMIDs) to OpenAlex entities
(OAIDs) by matching persistent identifiers found in both dumps.

The pipeline is a sequence of subcommands: meta and openalex extract the
dumps into CSV tables, index loads the OpenAlex candidates into SQLite,
map resolves Meta records against the index, and fanout, inverted, stats
and provenance analyse the result.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := loadConfig()
		if err != nil {
			return err
		}
		cfg = loaded
		logger, err = logging.NewFromConfig(cfg.Log)
		if err != nil {
			return err
		}
		logger = logger.With("command", cmd.Name())
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./alignoa.yaml or ~/.config/alignoa/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "log format: text or json (default: text on a terminal)")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() {
	// A missing .env is normal.
	_ = godotenv.Load()

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("alignoa")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "alignoa"))
		}
	}

	viper.SetEnvPrefix("ALIGNOA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults(types.DefaultPipelineConfig())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// setDefaults registers every key of def with viper so that environment
// variables reach Unmarshal even when the config file omits the key.
func setDefaults(def types.PipelineConfig) {
	data, err := yaml.Marshal(def)
	if err != nil {
		return
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return
	}
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if sub, ok := v.(map[string]any); ok {
				walk(key, sub)
				continue
			}
			viper.SetDefault(key, v)
		}
	}
	walk("", tree)
}

func loadConfig() (types.PipelineConfig, error) {
	c := types.DefaultPipelineConfig()
	if err := viper.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("reading configuration: %w", err)
	}
	c.ApplyDefaults()
	return c, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
