package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jtarrant/folio/internal/common"
	"github.com/jtarrant/folio/internal/interfaces"
	"github.com/jtarrant/folio/internal/models"
	"github.com/jtarrant/folio/internal/storage/badger"
)

func testConfig(t *testing.T) *common.Config {
	t.Helper()
	cfg := common.NewDefaultConfig()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "folio")
	return cfg
}

func TestManager_OpenClose(t *testing.T) {
	logger := common.NewLogger("error")
	mgr, err := NewManager(logger, testConfig(t))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if mgr.Cache() == nil || mgr.Credentials() == nil {
		t.Fatal("expected non-nil stores")
	}
	if err := mgr.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestManager_SchemaVersionPersists(t *testing.T) {
	ctx := context.Background()
	logger := common.NewLogger("error")
	cfg := testConfig(t)

	mgr, err := NewManager(logger, cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if err := mgr.Cache().Put(ctx, "stocks", []models.Stock{{Symbol: "AAPL"}}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	mgr.Close()

	// Reopen with the same schema version: cache survives.
	mgr, err = NewManager(logger, cfg)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer mgr.Close()

	var stocks []models.Stock
	if err := mgr.Cache().Get(ctx, "stocks", &stocks); err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if len(stocks) != 1 {
		t.Errorf("expected cached stocks to survive reopen, got %d", len(stocks))
	}
}

func TestManager_SchemaBumpWipesCacheKeepsCredentials(t *testing.T) {
	ctx := context.Background()
	logger := common.NewLogger("error")
	cfg := testConfig(t)

	mgr, err := NewManager(logger, cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if err := mgr.Cache().Put(ctx, "stocks", []models.Stock{{Symbol: "AAPL"}}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	session := &models.Session{AccessToken: "token", UserID: "user-1"}
	if err := mgr.Credentials().SaveSession(ctx, session); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	mgr.Close()

	// Simulate an old on-disk schema version.
	store, err := badger.NewStore(logger, cfg.Storage.Path)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	marker := schemaMarker{Key: schemaMarkerKey, Version: SchemaVersion - 1}
	if err := store.DB().Upsert(schemaMarkerKey, &marker); err != nil {
		t.Fatalf("Upsert marker failed: %v", err)
	}
	store.Close()

	mgr, err = NewManager(logger, cfg)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer mgr.Close()

	var stocks []models.Stock
	if err := mgr.Cache().Get(ctx, "stocks", &stocks); !errors.Is(err, interfaces.ErrNotFound) {
		t.Fatalf("Get after schema bump = %v, want ErrNotFound (cache wiped)", err)
	}

	got, err := mgr.Credentials().GetSession(ctx)
	if err != nil {
		t.Fatalf("GetSession after schema bump failed: %v", err)
	}
	if got.UserID != "user-1" {
		t.Errorf("expected credentials to survive the wipe, got %+v", got)
	}
}
