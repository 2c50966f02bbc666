// Package storage provides the top-level StorageManager coordinating the
// offline cache and credential store over a single local BadgerHold database.
package storage

import (
	"context"
	"fmt"

	badgerholdlib "github.com/timshannon/badgerhold/v4"

	"github.com/jtarrant/folio/internal/common"
	"github.com/jtarrant/folio/internal/interfaces"
	"github.com/jtarrant/folio/internal/storage/badger"
)

// SchemaVersion is bumped whenever the cached model shapes change in a way
// old blobs cannot decode into. A mismatch on open wipes the cache; cached
// data is a replaceable copy of backend state, never the source of truth.
// Credentials survive the wipe.
const SchemaVersion = 1

// schemaMarker records the cache schema version in the store itself.
type schemaMarker struct {
	Key     string `badgerhold:"key"`
	Version int
}

const schemaMarkerKey = "cache_schema_version"

// Manager implements interfaces.StorageManager over one BadgerHold store.
type Manager struct {
	store       *badger.Store
	cache       interfaces.CacheStore
	credentials interfaces.CredentialStore
	logger      *common.Logger
}

// NewManager opens the local store and runs the schema version check.
func NewManager(logger *common.Logger, config *common.Config) (*Manager, error) {
	store, err := badger.NewStore(logger, config.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	m := &Manager{
		store:       store,
		cache:       badger.NewCacheStorage(store, logger),
		credentials: badger.NewCredentialStorage(store, logger),
		logger:      logger,
	}

	if err := m.checkSchemaVersion(context.Background()); err != nil {
		store.Close()
		return nil, err
	}

	logger.Info().
		Str("path", config.Storage.Path).
		Int("schema_version", SchemaVersion).
		Msg("Storage manager initialized")

	return m, nil
}

// checkSchemaVersion wipes the cache when the stored schema version does not
// match the current one, then records the current version.
func (m *Manager) checkSchemaVersion(ctx context.Context) error {
	var marker schemaMarker
	err := m.store.DB().Get(schemaMarkerKey, &marker)
	switch {
	case err == badgerholdlib.ErrNotFound:
		// Fresh store, nothing to wipe.
	case err != nil:
		return fmt.Errorf("failed to read cache schema version: %w", err)
	case marker.Version == SchemaVersion:
		return nil
	default:
		m.logger.Warn().
			Int("stored", marker.Version).
			Int("current", SchemaVersion).
			Msg("Cache schema version changed, wiping offline cache")
		if err := m.cache.Wipe(ctx); err != nil {
			return fmt.Errorf("failed to wipe stale cache: %w", err)
		}
	}

	marker = schemaMarker{Key: schemaMarkerKey, Version: SchemaVersion}
	if err := m.store.DB().Upsert(schemaMarkerKey, &marker); err != nil {
		return fmt.Errorf("failed to record cache schema version: %w", err)
	}
	return nil
}

func (m *Manager) Cache() interfaces.CacheStore {
	return m.cache
}

func (m *Manager) Credentials() interfaces.CredentialStore {
	return m.credentials
}

func (m *Manager) Close() error {
	return m.store.Close()
}

// Compile-time check
var _ interfaces.StorageManager = (*Manager)(nil)
