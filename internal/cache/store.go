// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

/*
Package cache provides the persistent two-namespace enrichment cache.

One BadgerDB database holds both namespaces under distinct key prefixes:

  - metadata: external metadata lookups keyed by normalized title and year
  - classification: genre sets keyed by normalized title alone

# Run Lifecycle

Each namespace is used load-once, flush-once per run:

	store, err := cache.Open(cache.Options{Path: "/data/enrichment-cache"})
	meta := store.Metadata()
	meta.BulkLoad(ctx)             // snapshot every persisted entry
	entry, ok := meta.Get(key)     // lookups only see the snapshot
	meta.Put(key, entry)           // staged, not yet durable
	err = meta.Flush(ctx)          // one badger transaction, all or nothing

Staged writes are invisible to Get until they are flushed. A failed Flush
writes nothing and keeps the staged set, so previously persisted entries are
never partially overwritten.
*/
package cache

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/tomtom215/watchvault/internal/logging"
	"github.com/tomtom215/watchvault/internal/models"
)

// Namespace names, also used as metric labels.
const (
	NamespaceMetadata       = "metadata"
	NamespaceClassification = "classification"
)

// Key prefixes for the two namespaces
const (
	prefixMetadata       = "meta:"
	prefixClassification = "class:"
)

// ErrStoreClosed is returned when operating on a closed store.
var ErrStoreClosed = errors.New("enrichment cache is closed")

// Options configures the underlying BadgerDB database.
type Options struct {
	// Path is the badger directory. Ignored when InMemory is set.
	Path string

	// SyncWrites fsyncs every committed flush.
	SyncWrites bool

	// InMemory keeps the cache in memory only (tests and dry runs).
	InMemory bool
}

// Store owns the badger database behind both cache namespaces.
type Store struct {
	db             *badger.DB
	metadata       *Namespace[models.MetadataCacheEntry]
	classification *Namespace[models.ClassificationCacheEntry]

	mu     sync.Mutex
	closed bool
}

// Open opens (or creates) the enrichment cache.
func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Path == "" {
		return nil, fmt.Errorf("cache path is required for an on-disk cache")
	}

	var badgerOpts badger.Options
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		badgerOpts = badger.DefaultOptions(opts.Path)
	}
	badgerOpts.SyncWrites = opts.SyncWrites

	badgerOpts.Logger = logging.NewBadgerLogger()

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	s := &Store{db: db}
	s.metadata = newNamespace[models.MetadataCacheEntry](db, NamespaceMetadata, prefixMetadata)
	s.classification = newNamespace[models.ClassificationCacheEntry](db, NamespaceClassification, prefixClassification)

	logging.Info().
		Str("path", opts.Path).
		Bool("in_memory", opts.InMemory).
		Bool("sync_writes", opts.SyncWrites).
		Msg("Enrichment cache opened")

	return s, nil
}

// Metadata returns the metadata namespace, keyed by MetadataKey.
func (s *Store) Metadata() *Namespace[models.MetadataCacheEntry] {
	return s.metadata
}

// Classification returns the classification namespace, keyed by ClassificationKey.
func (s *Store) Classification() *Namespace[models.ClassificationCacheEntry] {
	return s.classification
}

// RunGC reclaims value-log space left behind by overwritten entries.
// It is a no-op for in-memory stores and when nothing can be rewritten.
func (s *Store) RunGC() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	for {
		err := s.db.RunValueLogGC(0.5)
		switch {
		case err == nil:
			continue
		case errors.Is(err, badger.ErrNoRewrite), errors.Is(err, badger.ErrGCInMemoryMode):
			return nil
		default:
			return fmt.Errorf("cache value log GC: %w", err)
		}
	}
}

// Close closes the underlying database. Staged, unflushed writes are lost.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	pending := s.metadata.Pending() + s.classification.Pending()
	if pending > 0 {
		logging.Warn().Int("pending", pending).Msg("Closing enrichment cache with unflushed entries")
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close BadgerDB: %w", err)
	}
	return nil
}

// MetadataKey builds the metadata namespace key from an already normalized
// title and a release year, so remakes sharing a title stay distinct.
func MetadataKey(normalizedTitle string, year int) string {
	return normalizedTitle + "|" + strconv.Itoa(year)
}

// ClassificationKey builds the classification namespace key. Classification
// is treated as title-invariant, so the key is the normalized title alone.
func ClassificationKey(normalizedTitle string) string {
	return normalizedTitle
}
