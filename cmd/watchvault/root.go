// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/watchvault/internal/cache"
	"github.com/tomtom215/watchvault/internal/config"
	"github.com/tomtom215/watchvault/internal/database"
	"github.com/tomtom215/watchvault/internal/logging"
	"github.com/tomtom215/watchvault/internal/pipeline"
	"github.com/tomtom215/watchvault/internal/scd"
)

// app carries what every subcommand shares once the configuration is loaded.
type app struct {
	configPath string
	cfg        *config.Config
	out        io.Writer
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "watchvault",
		Short:         "Incremental viewing-history warehouse",
		Long:          "Watchvault merges viewing-history exports into a versioned DuckDB table, enriching titles through a persistent cache.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML config file (default: $CONFIG_PATH, ./watchvault.yaml)")

	root.AddCommand(
		a.runCmd(),
		a.currentCmd(),
		a.historyCmd(),
		a.verifyCmd(),
		a.serveCmd(),
	)
	return root
}

func (a *app) load(cmd *cobra.Command) error {
	if a.configPath != "" {
		if _, err := os.Stat(a.configPath); err != nil {
			return fmt.Errorf("config file: %w", err)
		}
		if err := os.Setenv(config.ConfigPathEnvVar, a.configPath); err != nil {
			return err
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Format = cfg.Logging.Format
	logCfg.Caller = cfg.Logging.Caller
	logCfg.Output = cmd.ErrOrStderr()
	logging.Init(logCfg)

	a.cfg = cfg
	a.out = cmd.OutOrStdout()
	return nil
}

func (a *app) openDB() (*database.DB, error) {
	db, err := database.New(&a.cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func (a *app) openCache() (*cache.Store, error) {
	store, err := cache.Open(cache.Options{
		Path:       a.cfg.Cache.Path,
		SyncWrites: a.cfg.Cache.SyncWrites,
		InMemory:   a.cfg.Cache.InMemory,
	})
	if err != nil {
		return nil, fmt.Errorf("open enrichment cache: %w", err)
	}
	return store, nil
}

func (a *app) newRunner(db *database.DB, store *cache.Store) *pipeline.Runner {
	return pipeline.NewRunner(pipeline.Deps{
		Cache:        store,
		Enricher:     pipeline.NewEnricher(a.cfg),
		Merger:       scd.NewEngine(db),
		TextfilePath: a.cfg.Metrics.TextfilePath,
	})
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func closeLogged(name string, c io.Closer) {
	if err := c.Close(); err != nil {
		logging.Error().Err(err).Str("resource", name).Msg("Close failed")
	}
}
