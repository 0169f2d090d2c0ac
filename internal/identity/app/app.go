package app

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	httpapi "github.com/veldtlabs/warden/internal/identity/http"
	"github.com/veldtlabs/warden/internal/identity/notify"
	"github.com/veldtlabs/warden/internal/identity/ratelimit"
	"github.com/veldtlabs/warden/internal/identity/service"
	"github.com/veldtlabs/warden/internal/identity/store"
	"github.com/veldtlabs/warden/internal/identity/store/drivers/sqlite"
	"github.com/veldtlabs/warden/pkg/cryptox"
	"github.com/veldtlabs/warden/pkg/sessiontoken"
	"github.com/veldtlabs/warden/pkg/slogx"
)

// BuildVersion should be set at build time via ldflags.
const BuildVersion = "v0.1.0"

// Application encapsulates the identity service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db          store.Store
	redisClient *redis.Client
	codec       *sessiontoken.Codec
	notifier    notify.Notifier
	limiter     ratelimit.AttemptLimiter

	credentialService   *service.CredentialService
	inviteService       *service.InviteService
	mfaService          *service.MFAService
	sessionService      *service.SessionService
	resetService        *service.PasswordResetService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "identity-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	cryptox.SetPepperPath(cfg.PepperFile)
	if cfg.SealKeyFile != "" {
		cryptox.SetSealKeyPath(cfg.SealKeyFile)
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initSessionCodec(); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	app.initLimiter()
	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("identity service starting", "port", app.cfg.Port, "version", BuildVersion)

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

// Shutdown drains the server, stops background work and closes handles.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down identity service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if app.redisClient != nil {
		if err := app.redisClient.Close(); err != nil {
			app.logger.Error("error closing redis client", "error", err)
		}
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("identity service stopped")
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

func (app *Application) initSessionCodec() error {
	secret := []byte(app.cfg.SessionSecret)
	if len(secret) == 0 {
		// Ephemeral secret: fine for development, but sessions will not
		// survive a restart and cannot be shared across instances.
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return fmt.Errorf("failed to generate session secret: %w", err)
		}
		app.logger.Warn("WARDEN_SESSION_SECRET not set, using an ephemeral secret")
	}

	codec, err := sessiontoken.NewCodec(secret, app.cfg.Issuer, app.cfg.SessionTTL)
	if err != nil {
		return fmt.Errorf("failed to initialize session codec: %w", err)
	}
	app.codec = codec
	return nil
}

// initLimiter picks the MFA attempt counter backend. With redis configured
// the budget is shared across instances; otherwise it is per-process.
func (app *Application) initLimiter() {
	if app.cfg.RedisAddr == "" {
		app.limiter = ratelimit.NewMemoryLimiter(app.cfg.MFAMaxAttempts, app.cfg.MFAAttemptWindow)
		app.logger.Info("mfa attempt limiter using in-memory backend")
		return
	}

	app.redisClient = redis.NewClient(&redis.Options{Addr: app.cfg.RedisAddr})
	app.limiter = ratelimit.NewRedisLimiter(app.redisClient, app.cfg.MFAMaxAttempts, app.cfg.MFAAttemptWindow)
	app.logger.Info("mfa attempt limiter using redis backend", "addr", app.cfg.RedisAddr)
}

func (app *Application) initServices() {
	app.notifier = notify.NewLogNotifier()

	app.credentialService = &service.CredentialService{
		Store:    app.db,
		Notifier: app.notifier,
	}
	app.inviteService = &service.InviteService{
		Store:    app.db,
		Notifier: app.notifier,
		TTL:      app.cfg.InviteTTL,
	}
	app.mfaService = &service.MFAService{
		Store:    app.db,
		Limiter:  app.limiter,
		Notifier: app.notifier,
		Issuer:   app.cfg.Issuer,
	}
	app.sessionService = &service.SessionService{
		Credentials: app.credentialService,
		MFA:         app.mfaService,
	}
	app.resetService = &service.PasswordResetService{
		Store:    app.db,
		Notifier: app.notifier,
		TTL:      app.cfg.ResetTTL,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(app.codec, BuildVersion, app.db, app.logger)
	router.CredentialService = app.credentialService
	router.InviteService = app.inviteService
	router.MFAService = app.mfaService
	router.SessionService = app.sessionService
	router.ResetService = app.resetService
	router.ApplyRoutes()

	app.router = router
	app.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", app.cfg.Port),
		Handler: router,
	}
}
