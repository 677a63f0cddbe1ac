// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package main

import (
	"github.com/spf13/cobra"
)

func (a *app) runCmd() *cobra.Command {
	var eventsPath, ratingsPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Aggregate, enrich and merge one export",
		Long: `Run loads the watch events (and optional ratings) export, enriches every
title and merges the result into title_history. The run report is printed as
JSON even when the run fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if eventsPath == "" {
				eventsPath = a.cfg.Input.EventsPath
			}
			if ratingsPath == "" {
				ratingsPath = a.cfg.Input.RatingsPath
			}

			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer closeLogged("database", db)

			store, err := a.openCache()
			if err != nil {
				return err
			}
			defer closeLogged("cache", store)

			report, runErr := a.newRunner(db, store).RunFiles(cmd.Context(), eventsPath, ratingsPath)
			if report != nil {
				if err := a.printJSON(report); err != nil {
					return err
				}
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&eventsPath, "events", "", "watch events export, JSON array or JSON lines (default: input.events_path)")
	cmd.Flags().StringVar(&ratingsPath, "ratings", "", "ratings export (default: input.ratings_path)")
	return cmd
}
