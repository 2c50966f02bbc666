// Package app wires configuration, storage, the backend client, and services
// into one composition root shared by the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jtarrant/folio/internal/clients/supabase"
	"github.com/jtarrant/folio/internal/common"
	"github.com/jtarrant/folio/internal/interfaces"
	"github.com/jtarrant/folio/internal/services/localbook"
	"github.com/jtarrant/folio/internal/services/portfolio"
	"github.com/jtarrant/folio/internal/services/transaction"
	"github.com/jtarrant/folio/internal/storage"
)

// App holds all initialized services and clients.
type App struct {
	Config             *common.Config
	Logger             *common.Logger
	Storage            interfaces.StorageManager
	Backend            *supabase.Client
	PortfolioService   interfaces.PortfolioService
	TransactionService interfaces.TransactionService
	LocalBookService   interfaces.LocalBookService
	StartupTime        time.Time

	refreshCancel context.CancelFunc
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes configuration, storage, the backend client, and
// services. configPath may be empty, in which case the default resolution
// logic is used. Any previously saved session is restored onto the client.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	// Load version from .version file (fallback if ldflags not set)
	common.LoadVersionFromFile()

	binDir := getBinaryDir()

	// Load configuration - check provided path, FOLIO_CONFIG, then binary dir, then fallback
	if configPath == "" {
		configPath = os.Getenv("FOLIO_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "folio.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/folio.toml" // fallback for development
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Resolve relative storage path to binary directory
	if config.Storage.Path != "" && !filepath.IsAbs(config.Storage.Path) {
		config.Storage.Path = filepath.Join(binDir, config.Storage.Path)
	}

	logger := common.NewLoggerFromConfig(config.Logging)

	storageManager, err := storage.NewManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	backend := supabase.NewClient(config.Backend.BaseURL, config.Backend.APIKey,
		supabase.WithLogger(logger),
		supabase.WithRateLimit(config.Backend.RateLimit),
		supabase.WithTimeout(config.Backend.GetTimeout()),
	)

	// Restore a saved session so data calls carry the user's token.
	ctx := context.Background()
	if session, err := storageManager.Credentials().GetSession(ctx); err == nil {
		backend.SetSession(session)
		logger.Debug().Str("user_id", session.UserID).Msg("Session restored")
	} else if !errors.Is(err, interfaces.ErrNotFound) {
		logger.Warn().Err(err).Msg("Failed to restore saved session")
	}

	portfolioService := portfolio.NewService(backend, storageManager, config, logger)
	transactionService := transaction.NewService(backend, storageManager, portfolioService, logger)
	localBookService := localbook.NewService(storageManager, logger)

	a := &App{
		Config:             config,
		Logger:             logger,
		Storage:            storageManager,
		Backend:            backend,
		PortfolioService:   portfolioService,
		TransactionService: transactionService,
		LocalBookService:   localBookService,
		StartupTime:        startupStart,
	}

	logger.Info().Dur("startup", time.Since(startupStart)).Msg("App initialized")

	return a, nil
}

// SignIn authenticates and persists the resulting session.
func (a *App) SignIn(ctx context.Context, email, password string) error {
	session, err := a.Backend.SignIn(ctx, email, password)
	if err != nil {
		return err
	}
	if err := a.Storage.Credentials().SaveSession(ctx, session); err != nil {
		return fmt.Errorf("signed in but failed to save session: %w", err)
	}
	a.Logger.Info().Str("user_id", session.UserID).Msg("Signed in")
	return nil
}

// SignUp registers a new account, persisting the session when the backend
// returns a usable one.
func (a *App) SignUp(ctx context.Context, email, password string) error {
	session, err := a.Backend.SignUp(ctx, email, password)
	if err != nil {
		return err
	}
	if session.AccessToken == "" {
		a.Logger.Info().Msg("Account created; confirm your email, then sign in")
		return nil
	}
	if err := a.Storage.Credentials().SaveSession(ctx, session); err != nil {
		return fmt.Errorf("signed up but failed to save session: %w", err)
	}
	a.Logger.Info().Str("user_id", session.UserID).Msg("Signed up")
	return nil
}

// SignOut clears the saved session locally. Tokens are not revoked
// server-side; they simply expire.
func (a *App) SignOut(ctx context.Context) error {
	if err := a.Storage.Credentials().ClearSession(ctx); err != nil {
		return err
	}
	a.Backend.SetSession(nil)
	a.Logger.Info().Msg("Signed out")
	return nil
}

// StartAutoRefresh launches a background loop that refreshes portfolio state
// and reconciles orphans on the given interval until Close is called.
func (a *App) StartAutoRefresh(interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	refreshCtx, cancel := context.WithCancel(context.Background())
	a.refreshCancel = cancel
	go a.autoRefresh(refreshCtx, interval)
}

func (a *App) autoRefresh(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := a.PortfolioService.Refresh(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("Background refresh failed")
		}
		if removed, err := a.TransactionService.ReconcileOrphans(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("Orphan reconciliation failed")
		} else if removed > 0 {
			a.Logger.Info().Int("removed", removed).Msg("Orphaned groups reconciled")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Close releases all resources held by the App.
func (a *App) Close() {
	if a.refreshCancel != nil {
		a.refreshCancel()
		a.refreshCancel = nil
	}
	if a.Storage != nil {
		a.Storage.Close()
		a.Storage = nil
	}
}
