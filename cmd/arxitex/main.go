// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the arxitex CLI.
// Implements: prd008-workflow R2 (CLI surface), prd001-acquisition,
//             prd007-store, prd009-citations (command wiring).
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/arxitex/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// secretDefault returns the secret value for key if it exists, or fallback otherwise.
func secretDefault(key, fallback string) string {
	if fallback != "" {
		return fallback
	}
	if v, ok := loadedSecrets[key]; ok {
		return v
	}
	return ""
}

// rootCmd is the base command for the arxitex CLI.
var rootCmd = &cobra.Command{
	Use:   "arxitex",
	Short: "arXiv paper ingestion and document graph pipeline",
	Long: `arxitex turns arXiv e-prints into per-paper document graphs: theorem-like
artifacts, the reference edges between them, and, in the generative modes,
definition banks and inferred dependency edges.

Each workflow is a subcommand: discover fills the processing queue from an
arXiv query, run drains the queue through the pipeline, ingest processes
explicitly named papers, citations resolves citation counts and external
references against a scholarly index, and export and graph read stored
results back out.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./arxitex.yaml or ~/.config/arxitex/config.yaml)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("arxitex")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "arxitex"))
		}
	}

	viper.SetEnvPrefix("ARXITEX")
	viper.AutomaticEnv()

	configDefaults()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
