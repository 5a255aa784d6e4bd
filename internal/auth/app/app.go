package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gatehouse-id/gatehouse/internal/auth/domain"
	httpapi "github.com/gatehouse-id/gatehouse/internal/auth/http"
	"github.com/gatehouse-id/gatehouse/internal/auth/service"
	"github.com/gatehouse-id/gatehouse/internal/auth/store"
	"github.com/gatehouse-id/gatehouse/internal/auth/store/drivers/sqlite"
	"github.com/gatehouse-id/gatehouse/pkg/cryptox"
	"github.com/gatehouse-id/gatehouse/pkg/idx"
	"github.com/gatehouse-id/gatehouse/pkg/jwtx"
	"github.com/gatehouse-id/gatehouse/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application wires the auth service together: store, signing key, services,
// and the HTTP server.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db     store.Store
	signer *jwtx.EdDSASigner

	authService         *service.AuthService
	tokenService        *service.TokenService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "gatehouse-auth",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	cryptox.SetPepperPath(app.cfg.PepperFile)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	signer, err := initSigningKey(app.cfg, app.logger)
	if err != nil {
		_ = app.db.Close()
		return nil, err
	}
	app.signer = signer

	if err := app.bootstrap(context.Background()); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully stops the HTTP server, the housekeeping worker, and
// closes the store.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// bootstrap seeds one client registration and one user into an empty store.
// Existing data always wins: the seed only runs against empty tables, so a
// redeployed instance never clobbers production records.
func (app *Application) bootstrap(ctx context.Context) error {
	now := time.Now().UTC()

	if app.cfg.BootstrapClientID != "" && app.cfg.BootstrapClientSecret != "" {
		empty, err := app.db.Clients().IsEmpty(ctx)
		if err != nil {
			return fmt.Errorf("bootstrap client check failed: %w", err)
		}
		if empty {
			secretHash, err := cryptox.HashPassword(app.cfg.BootstrapClientSecret)
			if err != nil {
				return err
			}
			client := domain.Client{
				ID:             idx.New().String(),
				ClientID:       app.cfg.BootstrapClientID,
				SecretHash:     secretHash,
				ScopeStr:       "read,write",
				GrantTypeStr:   "password,refresh_token",
				CreatedAt:      now,
				CreatedBy:      "bootstrap",
				LastModifiedAt: now,
				LastModifiedBy: "bootstrap",
			}
			if err := app.db.Clients().CreateClient(ctx, client); err != nil {
				return fmt.Errorf("bootstrap client failed: %w", err)
			}
			app.logger.Info("bootstrapped client registration", "client_id", client.ClientID)
		}
	}

	if app.cfg.BootstrapUsername != "" && app.cfg.BootstrapPassword != "" {
		empty, err := app.db.Users().IsEmpty(ctx)
		if err != nil {
			return fmt.Errorf("bootstrap user check failed: %w", err)
		}
		if empty {
			passwordHash, err := cryptox.HashPassword(app.cfg.BootstrapPassword)
			if err != nil {
				return err
			}
			user := domain.User{
				ID:                    idx.New().String(),
				Username:              app.cfg.BootstrapUsername,
				PasswordHash:          passwordHash,
				Enabled:               true,
				AccountNonExpired:     true,
				AccountNonLocked:      true,
				CredentialsNonExpired: true,
				Authorities:           []string{"ROLE_ADMIN"},
				CreatedAt:             now,
				UpdatedAt:             now,
			}
			if err := app.db.Users().CreateUser(ctx, user); err != nil {
				return fmt.Errorf("bootstrap user failed: %w", err)
			}
			app.logger.Info("bootstrapped user", "username", user.Username)
		}
	}

	return nil
}

func (app *Application) initServices() {
	app.authService = &service.AuthService{Store: app.db}

	app.tokenService = &service.TokenService{
		Auth:   app.authService,
		Store:  app.db,
		Signer: app.signer,
		Issuer: app.cfg.Issuer,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
		app.cfg.AuditRetention,
	)
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.signer,
		app.cfg.Issuer,
		BuildVersion,
		app.db,
		app.logger,
	)

	router.TokenService = app.tokenService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
