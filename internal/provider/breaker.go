// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/watchvault/internal/logging"
	"github.com/tomtom215/watchvault/internal/metrics"
	"github.com/tomtom215/watchvault/internal/models"
)

// BreakerSettings controls when a provider circuit opens.
type BreakerSettings struct {
	MaxRequests  uint32        // requests allowed through while half-open
	Interval     time.Duration // closed-state count reset period
	Timeout      time.Duration // open period before probing again
	MinRequests  uint32        // requests needed before the ratio is considered
	FailureRatio float64       // failure ratio that opens the circuit
}

// DefaultBreakerSettings opens after a 60% failure rate over at least 10
// requests and probes again after 2 minutes.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:  3,
		Interval:     time.Minute,
		Timeout:      2 * time.Minute,
		MinRequests:  10,
		FailureRatio: 0.6,
	}
}

// newCircuitBreaker builds a typed breaker that reports state to metrics.
// A not-found answer or caller cancellation is a healthy provider and does
// not count as a failure.
func newCircuitBreaker[T any](name string, s BreakerSettings) *gobreaker.CircuitBreaker[T] {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= s.FailureRatio
			if shouldTrip {
				logging.Warn().Str("breaker", name).Uint32("failures", counts.TotalFailures).Float64("failure_rate", failureRatio*100).Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)

			logging.Info().Str("breaker", name).Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
			if to == gobreaker.StateClosed {
				metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
			}
		},

		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled)
		},
	})
}

// execute runs fn through cb, recording breaker metrics. Rejections by an
// open or saturated half-open circuit are returned as ErrCircuitOpen.
func execute[T any](cb *gobreaker.CircuitBreaker[T], fn func() (T, error)) (T, error) {
	name := cb.Name()
	result, err := cb.Execute(fn)

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(name, "rejected").Inc()
			var zero T
			return zero, fmt.Errorf("%s: %w: %v", name, ErrCircuitOpen, err)
		}
		metrics.CircuitBreakerRequests.WithLabelValues(name, "failure").Inc()
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(float64(cb.Counts().ConsecutiveFailures))
		return result, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(name, "success").Inc()
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
	return result, nil
}

// stateToFloat converts circuit breaker state to numeric value for metrics
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// stateToString converts circuit breaker state to string for logging
func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// BreakerMetadataFetcher wraps a MetadataFetcher with a circuit breaker.
type BreakerMetadataFetcher struct {
	next MetadataFetcher
	cb   *gobreaker.CircuitBreaker[*models.TitleMetadata]
}

// NewBreakerMetadataFetcher wraps next with a circuit breaker named "metadata-api".
func NewBreakerMetadataFetcher(next MetadataFetcher, s BreakerSettings) *BreakerMetadataFetcher {
	return &BreakerMetadataFetcher{
		next: next,
		cb:   newCircuitBreaker[*models.TitleMetadata]("metadata-api", s),
	}
}

// FetchMetadata calls the wrapped fetcher with circuit breaker protection.
func (b *BreakerMetadataFetcher) FetchMetadata(ctx context.Context, normalizedTitle string, year int) (*models.TitleMetadata, error) {
	return execute(b.cb, func() (*models.TitleMetadata, error) {
		return b.next.FetchMetadata(ctx, normalizedTitle, year)
	})
}

// State returns the current breaker state.
func (b *BreakerMetadataFetcher) State() gobreaker.State {
	return b.cb.State()
}

// BreakerClassificationFetcher wraps a ClassificationFetcher with a circuit breaker.
type BreakerClassificationFetcher struct {
	next ClassificationFetcher
	cb   *gobreaker.CircuitBreaker[map[string][]string]
}

// NewBreakerClassificationFetcher wraps next with a circuit breaker named "classification-api".
func NewBreakerClassificationFetcher(next ClassificationFetcher, s BreakerSettings) *BreakerClassificationFetcher {
	return &BreakerClassificationFetcher{
		next: next,
		cb:   newCircuitBreaker[map[string][]string]("classification-api", s),
	}
}

// Classify calls the wrapped fetcher with circuit breaker protection.
func (b *BreakerClassificationFetcher) Classify(ctx context.Context, titles []string) (map[string][]string, error) {
	return execute(b.cb, func() (map[string][]string, error) {
		return b.next.Classify(ctx, titles)
	})
}

// State returns the current breaker state.
func (b *BreakerClassificationFetcher) State() gobreaker.State {
	return b.cb.State()
}
