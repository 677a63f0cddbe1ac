// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package supervisor

import (
	"context"
	"time"

	"github.com/tomtom215/watchvault/internal/logging"
)

// RunFunc performs one scheduled job.
type RunFunc func(ctx context.Context) error

// ScheduleService calls a RunFunc on a fixed interval, starting immediately.
//
// A failed run is logged and the schedule continues; the next tick retries.
// Runs never overlap: a run that outlasts the interval delays the next one.
type ScheduleService struct {
	name     string
	interval time.Duration
	run      RunFunc
}

// NewScheduleService creates a schedule. interval must be positive.
func NewScheduleService(name string, interval time.Duration, run RunFunc) *ScheduleService {
	return &ScheduleService{name: name, interval: interval, run: run}
}

// Serve implements suture.Service.
func (s *ScheduleService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.runOnce(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *ScheduleService) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := s.run(ctx); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("service", s.name).Msg("Scheduled run failed")
	}
}

func (s *ScheduleService) String() string {
	return s.name
}
