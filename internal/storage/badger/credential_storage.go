package badger

import (
	"context"
	"fmt"

	"github.com/timshannon/badgerhold/v4"

	"github.com/jtarrant/folio/internal/common"
	"github.com/jtarrant/folio/internal/interfaces"
	"github.com/jtarrant/folio/internal/models"
)

// sessionKey is the fixed key for the single stored session. The app is
// single-user: signing in replaces whatever session was there before.
const sessionKey = "session"

// SessionEntry wraps the stored session for BadgerHold.
type SessionEntry struct {
	Key     string `badgerhold:"key"`
	Session models.Session
}

type credentialStorage struct {
	store  *Store
	logger *common.Logger
}

// NewCredentialStorage creates a CredentialStore backed by BadgerHold.
func NewCredentialStorage(store *Store, logger *common.Logger) *credentialStorage {
	return &credentialStorage{store: store, logger: logger}
}

func (s *credentialStorage) GetSession(_ context.Context) (*models.Session, error) {
	var entry SessionEntry
	err := s.store.db.Get(sessionKey, &entry)
	if err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	session := entry.Session
	return &session, nil
}

func (s *credentialStorage) SaveSession(_ context.Context, session *models.Session) error {
	if session == nil || session.AccessToken == "" {
		return fmt.Errorf("cannot save empty session")
	}
	entry := SessionEntry{Key: sessionKey, Session: *session}
	if err := s.store.db.Upsert(sessionKey, &entry); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	s.logger.Debug().Str("user_id", session.UserID).Msg("Session saved")
	return nil
}

func (s *credentialStorage) ClearSession(_ context.Context) error {
	err := s.store.db.Delete(sessionKey, SessionEntry{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// Compile-time check
var _ interfaces.CredentialStore = (*credentialStorage)(nil)
