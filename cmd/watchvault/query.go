// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/watchvault/internal/models"
	"github.com/tomtom215/watchvault/internal/normalize"
	"github.com/tomtom215/watchvault/internal/validation"
)

// errIntegrityViolations makes verify exit with status 2.
var errIntegrityViolations = errors.New("integrity violations found")

func (a *app) currentCmd() *cobra.Command {
	var asOf string

	cmd := &cobra.Command{
		Use:   "current",
		Short: "Print the current version of every title",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer closeLogged("database", db)

			var rows []models.DimensionRow
			if asOf == "" {
				rows, err = db.CurrentRows(cmd.Context())
			} else {
				ts, perr := time.Parse(time.RFC3339Nano, asOf)
				if perr != nil {
					return fmt.Errorf("--as-of must be an RFC 3339 timestamp: %w", perr)
				}
				rows, err = db.AsOf(cmd.Context(), ts)
			}
			if err != nil {
				return err
			}
			if rows == nil {
				rows = []models.DimensionRow{}
			}
			return a.printJSON(rows)
		},
	}

	cmd.Flags().StringVar(&asOf, "as-of", "", "print the versions valid at this RFC 3339 instant instead")
	return cmd
}

type historyFlags struct {
	Key       string `validate:"omitempty,max=600"`
	Title     string `validate:"omitempty,max=512"`
	MediaType string `validate:"omitempty,mediatype"`
	Year      int    `validate:"omitempty,min=1800,max=2200"`
}

func (a *app) historyCmd() *cobra.Command {
	var f historyFlags

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print every version of one title",
		Example: `  watchvault history --key "frieren|tv|2023"
  watchvault history --title "Frieren" --type tv --year 2023`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if verr := validation.ValidateStruct(&f); verr != nil {
				return verr
			}
			key := f.Key
			if key == "" {
				key = normalize.NaturalKey(f.Title, f.MediaType, f.Year)
			}

			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer closeLogged("database", db)

			rows, err := db.History(cmd.Context(), key)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				return fmt.Errorf("no history for %q", key)
			}
			return a.printJSON(rows)
		},
	}

	cmd.Flags().StringVar(&f.Key, "key", "", "natural key (normalized title|type|year)")
	cmd.Flags().StringVar(&f.Title, "title", "", "title as it appears in the export")
	cmd.Flags().StringVar(&f.MediaType, "type", "", "media type ("+strings.Join(validation.MediaTypes, ", ")+")")
	cmd.Flags().IntVar(&f.Year, "year", 0, "release year")
	cmd.MarkFlagsMutuallyExclusive("key", "title")
	cmd.MarkFlagsOneRequired("key", "title")
	cmd.MarkFlagsRequiredTogether("title", "type", "year")
	return cmd
}

func (a *app) verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check the title_history invariants",
		Long: `Verify reports keys with other than one current version, current versions
with an end date, and gaps or overlaps between consecutive versions.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer closeLogged("database", db)

			checkedAt := time.Now().UTC()
			violations, err := db.CheckIntegrity(cmd.Context())
			if err != nil {
				return err
			}
			if violations == nil {
				violations = []models.IntegrityViolation{}
			}
			report := models.IntegrityReport{
				OK:         len(violations) == 0,
				CheckedAt:  checkedAt,
				Violations: violations,
			}
			if err := a.printJSON(report); err != nil {
				return err
			}
			if !report.OK {
				return fmt.Errorf("%w: %d", errIntegrityViolations, len(violations))
			}
			return nil
		},
	}
}
