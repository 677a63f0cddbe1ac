// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/watchvault/internal/api"
	"github.com/tomtom215/watchvault/internal/logging"
	"github.com/tomtom215/watchvault/internal/supervisor"
)

const shutdownTimeout = 10 * time.Second

func (a *app) serveCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the audit API, optionally running the pipeline on a schedule",
		Long: `Serve starts the read-only audit API. With --interval (or RUN_INTERVAL) it
also runs the configured exports through the pipeline on that schedule.
Both run under a supervisor that restarts them on failure; SIGINT or SIGTERM
shuts everything down.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("interval") {
				a.cfg.Input.Interval = interval
			}
			if a.cfg.Input.Interval > 0 && a.cfg.Input.EventsPath == "" {
				return errors.New("scheduled runs need input.events_path (EVENTS_PATH)")
			}
			return a.serve(cmd.Context())
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "run the configured exports every interval; 0 disables (default: input.interval)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	db, err := a.openDB()
	if err != nil {
		return err
	}
	defer closeLogged("database", db)

	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: shutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	router := api.NewRouter(api.NewHandler(db, version), &a.cfg.Server)
	server := api.NewServer(&a.cfg.Server, router)
	tree.AddAPIService(supervisor.NewHTTPServerService(server, shutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	if a.cfg.Input.Interval > 0 {
		store, err := a.openCache()
		if err != nil {
			return err
		}
		defer closeLogged("cache", store)

		runner := a.newRunner(db, store)
		input := a.cfg.Input
		tree.AddPipelineService(supervisor.NewScheduleService("scheduled-run", input.Interval, func(ctx context.Context) error {
			_, err := runner.RunFiles(ctx, input.EventsPath, input.RatingsPath)
			return err
		}))
		logging.Info().Dur("interval", input.Interval).Str("events", input.EventsPath).Msg("Scheduled runs enabled")
	}

	logging.Info().Str("version", version).Msg("Starting supervisor tree")
	err = tree.Serve(ctx)

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor: %w", err)
	}
	logging.Info().Msg("Stopped")
	return nil
}
