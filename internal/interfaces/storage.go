package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/jtarrant/folio/internal/models"
)

// ErrNotFound reports an absent cache entry or credential. Absence is an
// expected empty state (first launch, signed out), not a failure.
var ErrNotFound = errors.New("not found")

// StorageManager coordinates the local storage areas.
type StorageManager interface {
	Cache() CacheStore
	Credentials() CredentialStore
	Close() error
}

// CacheStore persists JSON blobs under fixed keys (one blob per dataset so
// each write applies atomically), with a last-updated timestamp per key.
// A schema version bump wipes the whole cache on next open.
type CacheStore interface {
	Put(ctx context.Context, key string, value any) error
	Get(ctx context.Context, key string, out any) error
	LastUpdated(ctx context.Context, key string) (time.Time, error)
	Delete(ctx context.Context, key string) error
	Wipe(ctx context.Context) error

	// Pending-group markers recorded before a multi-leg submission and
	// cleared on success; survivors mark candidate orphans to reconcile.
	MarkPendingGroup(ctx context.Context, groupID string) error
	PendingGroups(ctx context.Context) ([]string, error)
	ClearPendingGroup(ctx context.Context, groupID string) error
}

// CredentialStore holds the signed-in session (tokens and user id).
type CredentialStore interface {
	GetSession(ctx context.Context) (*models.Session, error)
	SaveSession(ctx context.Context, session *models.Session) error
	ClearSession(ctx context.Context) error
}
