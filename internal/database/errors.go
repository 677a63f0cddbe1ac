// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package database

import (
	"errors"
	"io"

	"github.com/tomtom215/watchvault/internal/logging"
)

// ErrExpireConflict means a guarded expiration did not hit exactly one
// current row, so another writer or a stale plan touched the key.
var ErrExpireConflict = errors.New("expiration did not match exactly one current row")

// closeQuietly closes a resource and explicitly ignores any error.
// Use it in error paths where Close() errors are not actionable.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}

// closeWithLog closes a resource and logs any error.
func closeWithLog(closer io.Closer, resourceType string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.Warn().Str("type", resourceType).Err(err).Msg("Failed to close resource")
	}
}
