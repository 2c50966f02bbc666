package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/timshannon/badgerhold/v4"

	"github.com/jtarrant/folio/internal/common"
	"github.com/jtarrant/folio/internal/interfaces"
)

// CacheEntry holds one cached collection as a JSON blob keyed by collection
// name, with the time it was last refreshed from the backend.
type CacheEntry struct {
	Key       string `badgerhold:"key"`
	JSON      []byte
	UpdatedAt time.Time
}

// PendingGroup marks a transaction group whose legs may not all have reached
// the backend. Markers are written before submission and cleared on success.
type PendingGroup struct {
	GroupID  string `badgerhold:"key"`
	MarkedAt time.Time
}

type cacheStorage struct {
	store  *Store
	logger *common.Logger
}

// NewCacheStorage creates a CacheStore backed by BadgerHold.
func NewCacheStorage(store *Store, logger *common.Logger) *cacheStorage {
	return &cacheStorage{store: store, logger: logger}
}

func (s *cacheStorage) Put(_ context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry '%s': %w", key, err)
	}
	entry := CacheEntry{Key: key, JSON: data, UpdatedAt: time.Now()}
	if err := s.store.db.Upsert(key, &entry); err != nil {
		return fmt.Errorf("failed to put cache entry '%s': %w", key, err)
	}
	return nil
}

func (s *cacheStorage) Get(_ context.Context, key string, out any) error {
	var entry CacheEntry
	err := s.store.db.Get(key, &entry)
	if err != nil {
		if err == badgerhold.ErrNotFound {
			return interfaces.ErrNotFound
		}
		return fmt.Errorf("failed to get cache entry '%s': %w", key, err)
	}
	if err := json.Unmarshal(entry.JSON, out); err != nil {
		return fmt.Errorf("failed to unmarshal cache entry '%s': %w", key, err)
	}
	return nil
}

func (s *cacheStorage) LastUpdated(_ context.Context, key string) (time.Time, error) {
	var entry CacheEntry
	err := s.store.db.Get(key, &entry)
	if err != nil {
		if err == badgerhold.ErrNotFound {
			return time.Time{}, interfaces.ErrNotFound
		}
		return time.Time{}, fmt.Errorf("failed to get cache entry '%s': %w", key, err)
	}
	return entry.UpdatedAt, nil
}

func (s *cacheStorage) Delete(_ context.Context, key string) error {
	err := s.store.db.Delete(key, CacheEntry{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete cache entry '%s': %w", key, err)
	}
	return nil
}

func (s *cacheStorage) Wipe(_ context.Context) error {
	if err := s.store.db.DeleteMatching(&CacheEntry{}, nil); err != nil {
		return fmt.Errorf("failed to wipe cache entries: %w", err)
	}
	if err := s.store.db.DeleteMatching(&PendingGroup{}, nil); err != nil {
		return fmt.Errorf("failed to wipe pending group markers: %w", err)
	}
	s.logger.Info().Msg("Offline cache wiped")
	return nil
}

func (s *cacheStorage) MarkPendingGroup(_ context.Context, groupID string) error {
	marker := PendingGroup{GroupID: groupID, MarkedAt: time.Now()}
	if err := s.store.db.Upsert(groupID, &marker); err != nil {
		return fmt.Errorf("failed to mark pending group '%s': %w", groupID, err)
	}
	return nil
}

func (s *cacheStorage) PendingGroups(_ context.Context) ([]string, error) {
	var markers []PendingGroup
	if err := s.store.db.Find(&markers, nil); err != nil {
		return nil, fmt.Errorf("failed to list pending groups: %w", err)
	}
	ids := make([]string, 0, len(markers))
	for _, m := range markers {
		ids = append(ids, m.GroupID)
	}
	return ids, nil
}

func (s *cacheStorage) ClearPendingGroup(_ context.Context, groupID string) error {
	err := s.store.db.Delete(groupID, PendingGroup{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to clear pending group '%s': %w", groupID, err)
	}
	return nil
}

// Compile-time check
var _ interfaces.CacheStore = (*cacheStorage)(nil)
