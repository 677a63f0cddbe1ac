// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package provider

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound reports that the provider answered but has nothing for the title.
// It is permanent for the run and is never retried.
var ErrNotFound = errors.New("title not found")

// ErrCircuitOpen reports a call rejected by an open circuit breaker.
var ErrCircuitOpen = errors.New("provider circuit open")

// TransientError is a rate limit, timeout, network or 5xx-class failure.
// The orchestrator retries these with bounded backoff.
type TransientError struct {
	Provider   string
	StatusCode int           // 0 for network-level failures
	RetryAfter time.Duration // server-requested delay, 0 if none
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: transient HTTP %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: transient failure: %v", e.Provider, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// MalformedResponseError is a response that could not be parsed or failed
// validation. For classification it costs the whole batch for this run.
type MalformedResponseError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: malformed response: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: malformed response: %s", e.Provider, e.Reason)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// RetryAfter returns the server-requested delay carried by a transient error.
func RetryAfter(err error) time.Duration {
	var te *TransientError
	if errors.As(err, &te) {
		return te.RetryAfter
	}
	return 0
}

// IsMalformed reports whether err is a MalformedResponseError.
func IsMalformed(err error) bool {
	var me *MalformedResponseError
	return errors.As(err, &me)
}

// Outcome classifies err into a metric label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrCircuitOpen):
		return "rejected"
	case IsTransient(err):
		return "transient"
	case IsMalformed(err):
		return "malformed"
	default:
		return "error"
	}
}
