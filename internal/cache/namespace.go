// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package cache

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/tomtom215/watchvault/internal/logging"
	"github.com/tomtom215/watchvault/internal/metrics"
)

// FlushError reports a failed namespace flush. Nothing from the batch was
// persisted and the staged entries are still pending.
type FlushError struct {
	Namespace string
	Entries   int
	Err       error
}

func (e *FlushError) Error() string {
	return fmt.Sprintf("flush %s cache (%d entries): %v", e.Namespace, e.Entries, e.Err)
}

func (e *FlushError) Unwrap() error {
	return e.Err
}

// Namespace is one prefixed key space of the cache with a bulk-loaded
// in-memory snapshot and a set of staged writes.
type Namespace[V any] struct {
	db     *badger.DB
	name   string
	prefix []byte

	mu       sync.RWMutex
	snapshot map[string]V
	staged   map[string]V
}

func newNamespace[V any](db *badger.DB, name, prefix string) *Namespace[V] {
	return &Namespace[V]{
		db:       db,
		name:     name,
		prefix:   []byte(prefix),
		snapshot: make(map[string]V),
		staged:   make(map[string]V),
	}
}

// Name returns the namespace name.
func (n *Namespace[V]) Name() string {
	return n.name
}

// BulkLoad reads every persisted entry of the namespace into the in-memory
// snapshot, replacing any previous snapshot, and returns a copy of it.
// An empty namespace yields an empty map. Entries that fail to decode are
// skipped and treated as misses.
func (n *Namespace[V]) BulkLoad(ctx context.Context) (map[string]V, error) {
	loaded := make(map[string]V)
	skipped := 0

	err := n.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Prefix = n.prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(n.prefix); it.ValidForPrefix(n.prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			item := it.Item()
			key := string(item.Key()[len(n.prefix):])

			var value V
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &value)
			}); err != nil {
				logging.Warn().Err(err).Str("namespace", n.name).Str("key", key).Msg("Skipping undecodable cache entry")
				skipped++
				continue
			}
			loaded[key] = value
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bulk load %s cache: %w", n.name, err)
	}

	n.mu.Lock()
	n.snapshot = loaded
	n.mu.Unlock()

	metrics.CacheEntries.WithLabelValues(n.name).Set(float64(len(loaded)))
	logging.Debug().Str("namespace", n.name).Int("entries", len(loaded)).Int("skipped", skipped).Msg("Cache namespace loaded")

	return maps.Clone(loaded), nil
}

// Get looks key up in the bulk-loaded snapshot. Staged writes are not visible.
func (n *Namespace[V]) Get(key string) (V, bool) {
	n.mu.RLock()
	value, ok := n.snapshot[key]
	n.mu.RUnlock()

	metrics.RecordCacheLookup(n.name, ok)
	return value, ok
}

// Put stages value under key. It becomes durable only after Flush.
// A later Put for the same key replaces the staged value.
func (n *Namespace[V]) Put(key string, value V) {
	n.mu.Lock()
	n.staged[key] = value
	n.mu.Unlock()
}

// Pending returns the number of staged, unflushed entries.
func (n *Namespace[V]) Pending() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.staged)
}

// Len returns the number of entries in the snapshot.
func (n *Namespace[V]) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.snapshot)
}

// Flush persists every staged entry in a single badger read-write
// transaction. Either the whole batch commits or nothing is written; on
// failure the staged entries are kept and a *FlushError is returned. On
// success the entries are folded into the snapshot. Flushing with nothing
// staged is a no-op.
func (n *Namespace[V]) Flush(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(n.staged) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return &FlushError{Namespace: n.name, Entries: len(n.staged), Err: err}
	}

	// Encode everything before opening the transaction so an encoding
	// failure cannot leave a half-built batch behind.
	encoded := make(map[string][]byte, len(n.staged))
	for key, value := range n.staged {
		data, err := json.Marshal(value)
		if err != nil {
			flushErr := &FlushError{Namespace: n.name, Entries: len(n.staged), Err: fmt.Errorf("encode %q: %w", key, err)}
			metrics.RecordCacheFlush(n.name, len(n.staged), flushErr)
			return flushErr
		}
		encoded[key] = data
	}

	err := n.db.Update(func(txn *badger.Txn) error {
		for key, data := range encoded {
			fullKey := make([]byte, 0, len(n.prefix)+len(key))
			fullKey = append(fullKey, n.prefix...)
			fullKey = append(fullKey, key...)
			if err := txn.Set(fullKey, data); err != nil {
				if errors.Is(err, badger.ErrTxnTooBig) {
					return fmt.Errorf("%d staged entries exceed one transaction: %w", len(encoded), err)
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		flushErr := &FlushError{Namespace: n.name, Entries: len(n.staged), Err: err}
		metrics.RecordCacheFlush(n.name, len(n.staged), flushErr)
		logging.Error().Err(err).Str("namespace", n.name).Int("entries", len(n.staged)).Msg("Cache flush failed, staged entries kept")
		return flushErr
	}

	flushed := len(n.staged)
	for key, value := range n.staged {
		n.snapshot[key] = value
	}
	n.staged = make(map[string]V)

	metrics.RecordCacheFlush(n.name, flushed, nil)
	metrics.CacheEntries.WithLabelValues(n.name).Set(float64(len(n.snapshot)))
	logging.Info().Str("namespace", n.name).Int("entries", flushed).Msg("Cache flushed")

	return nil
}
