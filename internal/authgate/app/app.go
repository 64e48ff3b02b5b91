package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aussiebroadwan/authgate/internal/authgate/audit"
	httpapi "github.com/aussiebroadwan/authgate/internal/authgate/http"
	"github.com/aussiebroadwan/authgate/internal/authgate/service"
	"github.com/aussiebroadwan/authgate/internal/authgate/store"
	"github.com/aussiebroadwan/authgate/internal/authgate/store/drivers/postgres"
	"github.com/aussiebroadwan/authgate/internal/authgate/store/drivers/sqlite"
	"github.com/aussiebroadwan/authgate/pkg/cryptox"
	"github.com/aussiebroadwan/authgate/pkg/ratelimit"
	"github.com/aussiebroadwan/authgate/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application owns every long lived dependency of the gate. The store handle
// is opened in New and released in Shutdown.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db       store.Store
	limiter  *ratelimit.Limiter
	recorder *audit.Recorder

	// Services
	tokenService        *service.TokenService
	loginService        *service.LoginService
	accountService      *service.AccountService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "authgate",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := InitSentry(cfg.SentryDSN, cfg.Env, BuildVersion); err != nil {
		app.logger.Warn("sentry disabled", "error", err)
	}

	// Set pepper path for password hashing
	cryptox.SetPepperPath(app.cfg.PepperFile)
	if err := cryptox.LoadPepper(); err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := app.initDatabase(ctx); err != nil {
		return nil, err
	}

	if err := app.initServices(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	if err := app.bootstrapOperator(ctx); err != nil {
		_ = app.recorder.Close()
		_ = app.db.Close()
		return nil, err
	}

	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("authgate starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"driver", app.cfg.DatabaseDriver,
	)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.housekeepingService.Stop()
			app.release()
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

// Shutdown drains in-flight requests, stops background work and releases the
// store. Must only be called after Run started the housekeeping worker.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down authgate...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.release(); err != nil {
		return err
	}

	app.logger.Info("authgate stopped")
	return nil
}

// release closes the audit sinks and then the store, and flushes Sentry.
func (app *Application) release() error {
	defer FlushSentry()

	if err := app.recorder.Close(); err != nil {
		app.logger.Error("error closing audit sinks", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}
	return nil
}

// Handler exposes the fully wired router, mainly for tests.
func (app *Application) Handler() http.Handler { return app.router }

// initDatabase opens the configured driver, waits for it to answer and
// applies migrations.
func (app *Application) initDatabase(ctx context.Context) error {
	var (
		db  store.Store
		err error
	)
	switch app.cfg.DatabaseDriver {
	case "postgres":
		db, err = postgres.NewStore(app.cfg.DatabaseURL, postgres.DefaultPool)
	default:
		dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", app.cfg.DatabaseFile)
		db, err = sqlite.NewStore(dsn)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	err = store.Retry(ctx, store.ConnectRetry, func(ctx context.Context) error {
		if err := db.Ping(ctx); err != nil {
			app.logger.Warn("database not reachable yet", "error", err)
			return err
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("database unreachable: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully", "driver", app.cfg.DatabaseDriver)
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() error {
	accessSecret, refreshSecret, err := app.signingSecrets()
	if err != nil {
		return err
	}

	sinks := []audit.Sink{&audit.StoreSink{Store: app.db, Retry: store.DefaultRetry}}
	if len(app.cfg.AuditKafkaBrokers) > 0 {
		sinks = append(sinks, audit.NewKafkaSink(app.cfg.AuditKafkaBrokers, app.cfg.AuditKafkaTopic))
		app.logger.Info("audit kafka sink enabled", "topic", app.cfg.AuditKafkaTopic)
	}
	app.recorder = audit.NewRecorder(app.cfg.AuditBufferSize, sinks...)

	app.tokenService, err = service.NewTokenService(app.db, service.TokenConfig{
		AccessSecret:         accessSecret,
		RefreshSecret:        refreshSecret,
		Issuer:               app.cfg.JWTIssuer,
		AccessTTL:            app.cfg.AccessTTL,
		RefreshTTL:           app.cfg.RefreshTTL,
		PersistentRefreshTTL: app.cfg.PersistentRefreshTTL,
	})
	if err != nil {
		_ = app.recorder.Close()
		return fmt.Errorf("failed to initialize token service: %w", err)
	}

	app.limiter = ratelimit.New()
	lockout := service.NewLockoutTracker(app.db, app.cfg.LockoutThreshold, app.cfg.LockoutDuration)

	app.loginService = &service.LoginService{
		Store:   app.db,
		Limiter: app.limiter,
		Policy:  app.cfg.LoginRateLimit,
		Lockout: lockout,
		Tokens:  app.tokenService,
		Audit:   app.recorder,
		Retry:   store.DefaultRetry,
	}
	app.accountService = &service.AccountService{
		Store: app.db,
		Audit: app.recorder,
		Retry: store.DefaultRetry,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.limiter,
		app.logger,
		app.cfg.HousekeepingInterval,
		app.cfg.AuditRetention,
	)
	return nil
}

// signingSecrets returns the configured JWT secrets. Outside prod, missing
// secrets are generated, which invalidates every session on restart.
func (app *Application) signingSecrets() ([]byte, []byte, error) {
	access, refresh := app.cfg.JWTAccessSecret, app.cfg.JWTRefreshSecret
	if access != "" && refresh != "" {
		return []byte(access), []byte(refresh), nil
	}

	var err error
	if access == "" {
		if access, err = cryptox.GenerateToken(32); err != nil {
			return nil, nil, err
		}
	}
	if refresh == "" {
		if refresh, err = cryptox.GenerateToken(32); err != nil {
			return nil, nil, err
		}
	}
	app.logger.Warn("JWT secrets not configured, using ephemeral secrets")
	return []byte(access), []byte(refresh), nil
}

func (app *Application) bootstrapOperator(ctx context.Context) error {
	created, err := app.accountService.EnsureBootstrapOperator(
		slogx.WithContext(ctx, app.logger),
		app.cfg.BootstrapOperatorEmail,
		app.cfg.BootstrapOperatorPassword,
	)
	if err != nil {
		return fmt.Errorf("failed to bootstrap operator: %w", err)
	}
	if created {
		app.logger.Info("bootstrap operator ready", "email", app.cfg.BootstrapOperatorEmail)
	}
	return nil
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		BuildVersion,
		app.db,
		app.logger,
		app.cfg.IsProd(),
	)

	// Wire services to router
	router.TokenService = app.tokenService
	router.LoginService = app.loginService
	router.AccountService = app.accountService
	router.ApplyRoutes()

	app.router = router

	// Initialize HTTP server
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
