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

	httpapi "github.com/aussiebroadwan/tokengate/internal/auth/http"
	"github.com/aussiebroadwan/tokengate/internal/auth/revocation"
	"github.com/aussiebroadwan/tokengate/internal/auth/service"
	"github.com/aussiebroadwan/tokengate/internal/auth/store"
	"github.com/aussiebroadwan/tokengate/internal/auth/store/drivers/postgres"
	"github.com/aussiebroadwan/tokengate/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/tokengate/pkg/cryptox"
	"github.com/aussiebroadwan/tokengate/pkg/httpx"
	"github.com/aussiebroadwan/tokengate/pkg/jwtx"
	"github.com/aussiebroadwan/tokengate/pkg/metricsx"
	"github.com/aussiebroadwan/tokengate/pkg/slogx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

const (
	// BuildVersion is the reported service version.
	// TODO: make this a var so release builds can set it with -ldflags "-X".
	BuildVersion = "v0.1.0"

	startupTimeout = 10 * time.Second
)

// Application encapsulates the auth service application with all its dependencies
type Application struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metricsx.Metrics

	// Core dependencies
	db          store.Store
	redis       *redis.Client
	revocations *revocation.RedisStore
	codec       *jwtx.Codec
	hasher      cryptox.Hasher

	// Services
	tokenService *service.TokenService
	userService  *service.UserService
	monitor      *service.DependencyMonitor

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "tokengate",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.metrics = metricsx.New(reg)

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	if err := app.initDatabase(ctx); err != nil {
		return nil, err
	}
	if err := app.initRevocations(ctx); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	if err := app.initCrypto(); err != nil {
		_ = app.redis.Close()
		_ = app.db.Close()
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Handler returns the fully wired router, for serving without Run.
func (app *Application) Handler() http.Handler {
	return app.router
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.monitor.Start()

	app.logger.Info("tokengate starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"database", app.cfg.DatabaseDriver,
		"revocation_fail_open", app.cfg.RevocationFailOpen,
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
			_ = app.Shutdown()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		// Perform graceful shutdown
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application. In-flight sign-outs keep
// their own revocation deadline, so they finish before Redis is closed.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down tokengate...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	// Shutdown the HTTP server
	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.monitor.Stop()

	var errs []error
	if err := app.redis.Close(); err != nil {
		app.logger.Error("error closing redis", "error", err)
		errs = append(errs, err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		errs = append(errs, err)
	}

	app.logger.Info("tokengate stopped")
	return errors.Join(errs...)
}

// initDatabase opens the configured user store and applies migrations
func (app *Application) initDatabase(ctx context.Context) error {
	var db store.Store

	switch app.cfg.DatabaseDriver {
	case DriverPostgres:
		pg, err := postgres.Open(ctx, app.cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		db = pg
	default:
		host := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", app.cfg.DatabaseFile)
		lite, err := sqlite.NewStore(host)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		db = lite
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully", "driver", app.cfg.DatabaseDriver)

	empty, err := db.Users().IsEmpty(ctx)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to inspect user store: %w", err)
	}
	if empty {
		app.logger.Info("user store is empty, waiting for the first sign-up")
	}
	return nil
}

// initRevocations connects the Redis revocation store
func (app *Application) initRevocations(ctx context.Context) error {
	client, err := revocation.OpenRedis(ctx, app.cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to connect revocation store: %w", err)
	}
	app.redis = client
	app.revocations = revocation.NewRedisStore(client, revocation.WithKeyPrefix(app.cfg.RevocationKeyPrefix))
	return nil
}

// initCrypto builds the token codec and the password hasher
func (app *Application) initCrypto() error {
	var opts []jwtx.Option
	if app.cfg.Issuer != "" {
		opts = append(opts, jwtx.WithIssuer(app.cfg.Issuer))
	}
	codec, err := jwtx.NewCodec([]byte(app.cfg.JWTSecret), opts...)
	if err != nil {
		return fmt.Errorf("failed to initialize token codec: %w", err)
	}
	app.codec = codec

	hcfg := cryptox.HasherConfig{
		Algorithm:  app.cfg.PasswordHasher,
		BcryptCost: app.cfg.BcryptCost,
	}
	if hcfg.Algorithm != cryptox.HasherBcrypt {
		pepper, err := cryptox.LoadPepper(app.cfg.PepperFile)
		if err != nil {
			return fmt.Errorf("failed to load pepper: %w", err)
		}
		hcfg.Pepper = pepper
	}

	hasher, err := cryptox.NewHasher(hcfg)
	if err != nil {
		return fmt.Errorf("failed to initialize password hasher: %w", err)
	}
	app.hasher = hasher
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	app.tokenService = &service.TokenService{
		Codec:             app.codec,
		Revocations:       app.revocations,
		Store:             app.db,
		Hasher:            app.hasher,
		Metrics:           app.metrics,
		AccessTTL:         app.cfg.AccessTTL,
		RefreshTTL:        app.cfg.RefreshTTL,
		RevocationTimeout: app.cfg.RevocationTimeout,
	}

	app.userService = &service.UserService{Store: app.db}

	app.monitor = service.NewDependencyMonitor(
		map[string]service.Pinger{
			"database": app.db,
			"redis":    app.revocations,
		},
		app.logger,
		app.metrics,
		app.cfg.MonitorInterval,
	)
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	gate := httpx.GateConfig{
		Verifier:    app.codec,
		Revocations: app.revocations,
		FailOpen:    app.cfg.RevocationFailOpen,
		Metrics:     app.metrics,
	}

	router := httpapi.NewRouter(gate, BuildVersion, app.db, app.revocations, app.logger)

	// Wire services to router
	router.TokenService = app.tokenService
	router.UserService = app.userService
	router.Cookies = httpapi.CookieConfig{
		Secure:     app.cfg.CookieSecure,
		AccessTTL:  app.cfg.AccessCookieTTL,
		RefreshTTL: app.cfg.RefreshTTL,
	}
	router.ApplyRoutes()

	app.router = router

	// Initialize HTTP server
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
